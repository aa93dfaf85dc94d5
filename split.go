package cktools

import (
	"fmt"
	"math/rand"
)

// SplitDataset randomly splits the images of ds, together with their annotations, into
// multiple datasets. Every part gets a copy of the categories. Ids are kept.
//
// The cumulativeSplits specify the cumulative distribution according to which the images are
// split into the returned datasets. Its last value must be 100.
func SplitDataset(ds *Dataset, cumulativeSplits []int, rng *rand.Rand) ([]*Dataset, error) {
	if len(cumulativeSplits) == 0 || cumulativeSplits[len(cumulativeSplits)-1] != 100 {
		return nil, fmt.Errorf("the split percentages do not add up to 100")
	}

	// Allocate slightly more than the expected size for each dataset.
	parts := make([]*Dataset, len(cumulativeSplits))
	prev := 0
	for i, s := range cumulativeSplits {
		if s < prev {
			return nil, fmt.Errorf("the cumulative splits must not decrease: %v", cumulativeSplits)
		}
		expected := int(1.05 * float64(s-prev) / 100 * float64(len(ds.Images)))
		parts[i] = &Dataset{
			Images:     make([]Image, 0, expected),
			Categories: append([]Category(nil), ds.Categories...),
			Extra:      ds.Extra,
		}
		prev = s
	}

	// Assign the images.
	partOfImage := make(map[int64]*Dataset, len(ds.Images))
outer:
	for _, img := range ds.Images {
		r := rng.Intn(100)
		for i, s := range cumulativeSplits {
			if r < s {
				parts[i].Images = append(parts[i].Images, img)
				partOfImage[img.ID] = parts[i]
				continue outer
			}
		}
	}

	// The annotations follow their images.
	for _, a := range ds.Annotations {
		if part, ok := partOfImage[a.ImageID]; ok {
			part.Annotations = append(part.Annotations, a)
		}
	}

	return parts, nil
}
