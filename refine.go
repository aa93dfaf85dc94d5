package cktools

// Category filtering and renumbering.

import (
	"github.com/cyclopcam/logs"
)

// MergeHistograms sums the counts of several histograms per original category id. Names and
// order are taken from the first histogram that contains a category. The inputs are not
// modified.
func MergeHistograms(histograms ...*CategoryHistogram) *CategoryHistogram {
	merged := NewCategoryHistogram()
	for _, h := range histograms {
		if h == nil {
			continue
		}
		for _, id := range h.ids {
			e := h.entries[id]
			merged.Register(id, e.Name)
			merged.Add(id, e.Count)
		}
	}
	return merged
}

// Refine keeps the categories with at least threshold annotations and assigns them sequential
// ids starting at 1, in histogram order.
func Refine(h *CategoryHistogram, threshold int) *CategoryHistogram {
	refined := NewCategoryHistogram()
	nextID := int64(1)
	for _, id := range h.ids {
		e := h.entries[id]
		if e.Count < threshold {
			continue
		}
		refined.ids = append(refined.ids, id)
		refined.entries[id] = &CategoryCount{Name: e.Name, Count: e.Count, ID: nextID}
		nextID++
	}
	return refined
}

// Reindex rewrites ds to contain only the categories of the refined histogram, renumbered to
// their refined ids.
//
// Images are visited in order and, per image, its annotations in order. Annotations of dropped
// categories are removed, the others get sequential ids. Images left without annotations are
// removed, the others get sequential ids. The output is therefore the same for the same input
// and histogram.
//
// An annotation that refers to a missing image yields a *ReferenceError and leaves ds unchanged.
func Reindex(log logs.Log, ds *Dataset, refined *CategoryHistogram) error {
	byImage := ds.annotationsByImage()
	imageIDs := make(map[int64]bool, len(ds.Images))
	for _, img := range ds.Images {
		imageIDs[img.ID] = true
	}
	for _, a := range ds.Annotations {
		if !imageIDs[a.ImageID] {
			return &ReferenceError{AnnotationID: a.ID, ImageID: a.ImageID}
		}
	}

	images := make([]Image, 0, len(ds.Images))
	annotations := make([]Annotation, 0, len(ds.Annotations))
	for _, img := range ds.Images {
		imageID := int64(len(images) + 1)
		kept := 0
		for _, idx := range byImage[img.ID] {
			a := ds.Annotations[idx]
			e, ok := refined.entries[a.CategoryID]
			if !ok {
				continue
			}
			a.CategoryID = e.ID
			a.ID = int64(len(annotations) + 1)
			a.ImageID = imageID
			annotations = append(annotations, a)
			kept++
		}
		if kept == 0 {
			continue
		}
		// A duplicate image id later on gets no annotations and is dropped.
		delete(byImage, img.ID)
		img.ID = imageID
		images = append(images, img)
	}

	categories := make([]Category, 0, refined.Len())
	for _, c := range ds.Categories {
		e, ok := refined.entries[c.ID]
		if !ok {
			continue
		}
		c.ID = e.ID
		categories = append(categories, c)
	}

	log.Infof("Reindexed dataset: kept %d/%d images, %d/%d annotations, %d/%d categories",
		len(images), len(ds.Images), len(annotations), len(ds.Annotations), len(categories),
		len(ds.Categories))

	ds.Images = images
	ds.Annotations = annotations
	ds.Categories = categories
	return nil
}
