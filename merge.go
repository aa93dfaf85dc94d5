package cktools

// Merging of per-directory COCO annotation sets.

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strconv"

	"github.com/cyclopcam/logs"
)

// DataDirectory pairs an image directory with the directory holding the annotation files for
// those images.
type DataDirectory struct {
	ImageDir      string `json:"image_dir"`
	AnnotationDir string `json:"annotation_dir"`
}

func (d DataDirectory) String() string {
	return fmt.Sprintf("DataDirectory(images=%s, annotations=%s)", d.ImageDir, d.AnnotationDir)
}

// MergeOptions controls which annotation files of a DataDirectory are merged.
type MergeOptions struct {
	SampleSize int        // Maximum number of annotation files to merge; 0 merges all.
	Rand       *rand.Rand // Source for the random file order; nil keeps the sorted order.
}

// progressInterval is the number of files between progress log messages.
const progressInterval = 1000

// MergeInto appends the images and annotations of every *.json file in src.AnnotationDir to
// target and returns the category histogram of target.Categories plus the merged annotations.
//
// Each merged image gets the next free image id and its file name is prefixed with src.ImageDir.
// Each annotation gets the next free annotation id, iscrowd 0 and the new id of its image.
// Category ids not listed in target.Categories are appended to it, named after the id.
//
// An annotation that refers to an image missing from its own file yields a *ReferenceError.
// Files are validated before they are merged, so target only ever holds complete files.
//
// Sampling picks a uniformly random subset of the files and therefore requires opts.Rand.
func MergeInto(log logs.Log, target *Dataset, src DataDirectory, opts MergeOptions) (
		*CategoryHistogram, error) {

	if opts.SampleSize > 0 && opts.Rand == nil {
		return nil, fmt.Errorf("sampling %d files from %v needs a random source",
			opts.SampleSize, src)
	}

	histogram := newHistogramFromCategories(target.Categories)

	paths, err := filesByExtInDir(src.AnnotationDir, ".json")
	if err != nil {
		return nil, err
	}
	if opts.Rand != nil {
		shuffled := make([]string, len(paths))
		for i, j := range opts.Rand.Perm(len(paths)) {
			shuffled[i] = paths[j]
		}
		paths = shuffled
	}
	if opts.SampleSize > 0 && opts.SampleSize < len(paths) {
		paths = paths[:opts.SampleSize]
	}
	log.Infof("Merging %d annotation files from %v", len(paths), src)

	for i, path := range paths {
		var part Dataset
		if err := ReadJSON(path, &part); err != nil {
			return nil, err
		}
		if err := mergeFile(target, histogram, src.ImageDir, path, &part); err != nil {
			return nil, err
		}
		if (i+1)%progressInterval == 0 {
			log.Infof("Merged %d/%d files from %s", i+1, len(paths), src.AnnotationDir)
		}
	}

	log.Infof("Merged %d files, dataset now has %d images, %d annotations and %d categories",
		len(paths), len(target.Images), len(target.Annotations), len(target.Categories))
	return histogram, nil
}

// mergeFile appends the images and annotations of part, read from path, to target.
func mergeFile(target *Dataset, histogram *CategoryHistogram, imageDir, path string,
		part *Dataset) error {

	// Validate the image references before touching target. An id used by several images of
	// the file refers to the last of them.
	newImageIDs := make(map[int64]int64, len(part.Images))
	for i := range part.Images {
		newImageIDs[part.Images[i].ID] = int64(len(target.Images) + i + 1)
	}
	for _, a := range part.Annotations {
		if _, ok := newImageIDs[a.ImageID]; !ok {
			return &ReferenceError{Path: path, AnnotationID: a.ID, ImageID: a.ImageID}
		}
	}

	for _, img := range part.Images {
		img.ID = int64(len(target.Images) + 1)
		img.FileName = filepath.Join(imageDir, img.FileName)
		target.Images = append(target.Images, img)
	}

	for _, a := range part.Annotations {
		a.ID = int64(len(target.Annotations) + 1)
		a.IsCrowd = 0
		a.ImageID = newImageIDs[a.ImageID]

		name := strconv.FormatInt(a.CategoryID, 10)
		if histogram.Register(a.CategoryID, name) {
			target.Categories = append(target.Categories, Category{ID: a.CategoryID, Name: name})
		}
		histogram.Add(a.CategoryID, 1)
		target.Annotations = append(target.Annotations, a)
	}

	return nil
}
