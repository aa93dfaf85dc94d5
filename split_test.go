package cktools

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitDataset(t *testing.T) {
	ds := &Dataset{Categories: []Category{{ID: 1, Name: "cat"}}}
	for i := int64(1); i <= 100; i++ {
		ds.Images = append(ds.Images, Image{ID: i})
		ds.Annotations = append(ds.Annotations,
			Annotation{ID: 2 * i, ImageID: i, CategoryID: 1},
			Annotation{ID: 2*i + 1, ImageID: i, CategoryID: 1})
	}

	parts, err := SplitDataset(ds, []int{70, 90, 100}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Len(t, parts, 3)

	seen := make(map[int64]bool)
	annotations := 0
	for _, part := range parts {
		require.Equal(t, ds.Categories, part.Categories)
		ids := make(map[int64]bool)
		for _, img := range part.Images {
			require.False(t, seen[img.ID], "image %d in two parts", img.ID)
			seen[img.ID] = true
			ids[img.ID] = true
		}
		for _, a := range part.Annotations {
			require.True(t, ids[a.ImageID], "annotation %d without its image", a.ID)
		}
		require.Equal(t, 2*len(part.Images), len(part.Annotations))
		annotations += len(part.Annotations)
	}
	require.Len(t, seen, 100)
	require.Equal(t, 200, annotations)
	require.Greater(t, len(parts[0].Images), len(parts[2].Images))

	// The same seed gives the same split.
	again, err := SplitDataset(ds, []int{70, 90, 100}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	require.Equal(t, parts, again)
}

func TestSplitDatasetInvalid(t *testing.T) {
	ds := &Dataset{Images: []Image{{ID: 1}}}
	rng := rand.New(rand.NewSource(1))

	_, err := SplitDataset(ds, nil, rng)
	require.Error(t, err)
	_, err = SplitDataset(ds, []int{80}, rng)
	require.Error(t, err)
	_, err = SplitDataset(ds, []int{60, 50, 100}, rng)
	require.Error(t, err)
}
