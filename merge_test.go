package cktools

import (
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

// makeSource writes one annotation file with 3 images and 5 annotations, 3 of category 1 and
// 2 of category 2.
func makeSource(t *testing.T, name string) DataDirectory {
	t.Helper()
	root := filepath.Join(t.TempDir(), name)
	annDir := filepath.Join(root, "annotations")
	writeJSONFile(t, annDir, "part.json", cocoFile(
		[]int64{11, 12, 13},
		[][2]int64{{11, 1}, {12, 2}, {11, 1}, {13, 1}, {13, 2}},
	))
	return DataDirectory{ImageDir: filepath.Join(root, "images"), AnnotationDir: annDir}
}

func TestMergeTwoSources(t *testing.T) {
	log := logs.NewTestingLog(t)
	target := &Dataset{}
	srcA := makeSource(t, "a")
	srcB := makeSource(t, "b")

	hA, err := MergeInto(log, target, srcA, MergeOptions{})
	require.NoError(t, err)
	hB, err := MergeInto(log, target, srcB, MergeOptions{})
	require.NoError(t, err)

	require.Len(t, target.Images, 6)
	require.Len(t, target.Annotations, 10)
	for i, img := range target.Images {
		require.Equal(t, int64(i+1), img.ID)
	}
	for i, a := range target.Annotations {
		require.Equal(t, int64(i+1), a.ID)
		require.Equal(t, 0, a.IsCrowd)
	}

	// File names are prefixed and annotations follow their images.
	require.Equal(t, filepath.Join(srcA.ImageDir, "image11.jpg"), target.Images[0].FileName)
	require.Equal(t, filepath.Join(srcB.ImageDir, "image13.jpg"), target.Images[5].FileName)
	wantImageIDs := []int64{1, 2, 1, 3, 3, 4, 5, 4, 6, 6}
	for i, a := range target.Annotations {
		require.Equal(t, wantImageIDs[i], a.ImageID, "annotation %d", i)
	}

	// Unknown categories are added to the target, named after their id.
	require.Equal(t, []Category{{ID: 1, Name: "1"}, {ID: 2, Name: "2"}}, target.Categories)

	// Each histogram counts its own source only.
	for _, h := range []*CategoryHistogram{hA, hB} {
		require.Equal(t, []int64{1, 2}, h.IDs())
		c1, _ := h.Get(1)
		c2, _ := h.Get(2)
		require.Equal(t, 3, c1.Count)
		require.Equal(t, 2, c2.Count)
	}

	merged := MergeHistograms(hA, hB)
	require.Equal(t, 2, merged.Len())
	c1, _ := merged.Get(1)
	c2, _ := merged.Get(2)
	require.Equal(t, 6, c1.Count)
	require.Equal(t, 4, c2.Count)
	require.Equal(t, 10, merged.Total())
}

func TestMergeUsesTemplateCategories(t *testing.T) {
	target := &Dataset{Categories: []Category{{ID: 2, Name: "cat"}, {ID: 7, Name: "dog"}}}
	h, err := MergeInto(logs.NewTestingLog(t), target, makeSource(t, "a"), MergeOptions{})
	require.NoError(t, err)

	require.Equal(t, []int64{2, 7, 1}, h.IDs())
	cat, _ := h.Get(2)
	require.Equal(t, CategoryCount{Name: "cat", Count: 2}, cat)
	dog, _ := h.Get(7)
	require.Equal(t, 0, dog.Count)
	require.Equal(t, []Category{{ID: 2, Name: "cat"}, {ID: 7, Name: "dog"}, {ID: 1, Name: "1"}},
		target.Categories)
}

func TestMergeIDsContinueAfterExistingEntries(t *testing.T) {
	target := &Dataset{
		Images:      []Image{{ID: 1}, {ID: 2}},
		Annotations: []Annotation{{ID: 1, ImageID: 1}},
	}
	_, err := MergeInto(logs.NewTestingLog(t), target, makeSource(t, "a"), MergeOptions{})
	require.NoError(t, err)

	require.Equal(t, int64(3), target.Images[2].ID)
	require.Equal(t, int64(2), target.Annotations[1].ID)
	require.Equal(t, int64(3), target.Annotations[1].ImageID)
}

func TestMergeDanglingImageReference(t *testing.T) {
	src := makeSource(t, "a")
	writeJSONFile(t, src.AnnotationDir, "z_bad.json", cocoFile(
		[]int64{1},
		[][2]int64{{1, 1}, {99, 1}},
	))

	target := &Dataset{}
	_, err := MergeInto(logs.NewTestingLog(t), target, src, MergeOptions{})
	var refErr *ReferenceError
	require.True(t, errors.As(err, &refErr), "got %v", err)
	require.Equal(t, int64(99), refErr.ImageID)
	require.Equal(t, filepath.Join(src.AnnotationDir, "z_bad.json"), refErr.Path)

	// Only the valid file was merged.
	require.Len(t, target.Images, 3)
	require.Len(t, target.Annotations, 5)
}

func TestMergeSample(t *testing.T) {
	root := t.TempDir()
	src := DataDirectory{ImageDir: "images", AnnotationDir: filepath.Join(root, "annotations")}
	for i := int64(1); i <= 10; i++ {
		writeJSONFile(t, src.AnnotationDir, fmt.Sprintf("%02d.json", i),
			cocoFile([]int64{i}, [][2]int64{{i, 1}}))
	}
	writeTextFile(t, src.AnnotationDir, "notes.txt", "not an annotation file")

	sample := func(seed int64) []string {
		target := &Dataset{}
		_, err := MergeInto(logs.NewTestingLog(t), target, src,
			MergeOptions{SampleSize: 4, Rand: rand.New(rand.NewSource(seed))})
		require.NoError(t, err)
		names := make([]string, len(target.Images))
		for i, img := range target.Images {
			names[i] = img.FileName
		}
		return names
	}

	first := sample(42)
	require.Len(t, first, 4)
	require.Equal(t, first, sample(42))

	// Without a random source all files are merged in name order.
	target := &Dataset{}
	_, err := MergeInto(logs.NewTestingLog(t), target, src, MergeOptions{})
	require.NoError(t, err)
	require.Len(t, target.Images, 10)
	require.Equal(t, filepath.Join("images", "image1.jpg"), target.Images[0].FileName)
	require.Equal(t, filepath.Join("images", "image10.jpg"), target.Images[9].FileName)
}

func TestMergeLiteralAnnotationFile(t *testing.T) {
	root := t.TempDir()
	src := DataDirectory{ImageDir: "images", AnnotationDir: root}
	writeTextFile(t, root, "a_literal.json", `{'images': [{'id': 5, 'file_name': 'x.jpg'}],
		'annotations': [{'id': 1, 'image_id': 5, 'category_id': 3, 'iscrowd': True, 'bbox': (1, 2, 3, 4)}]}`)
	writeTextFile(t, root, "b_strict.json", `{"images": [{"id": 5, "file_name": "y.jpg"}],
		"annotations": [{"id": 1, "image_id": 5, "category_id": 3, "iscrowd": false}]}`)

	target := &Dataset{}
	h, err := MergeInto(logs.NewTestingLog(t), target, src, MergeOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, h.Total())
	require.Len(t, target.Annotations, 2)
	for i, a := range target.Annotations {
		require.Equal(t, int64(i+1), a.ImageID)
		require.Equal(t, 0, a.IsCrowd)
	}
	require.Equal(t, []float64{1, 2, 3, 4}, target.Annotations[0].BBox)
}

func TestMergeDuplicateImageIDs(t *testing.T) {
	root := t.TempDir()
	src := DataDirectory{ImageDir: "i", AnnotationDir: root}
	writeTextFile(t, root, "dup.json", `{
		"images": [{"id": 1, "file_name": "a.jpg"}, {"id": 1, "file_name": "b.jpg"}, {"id": 2, "file_name": "c.jpg"}],
		"annotations": [{"id": 7, "image_id": 1, "category_id": 1}]}`)

	target := &Dataset{Images: []Image{{ID: 1, FileName: "old.jpg"}}}
	_, err := MergeInto(logs.NewTestingLog(t), target, src, MergeOptions{})
	require.NoError(t, err)

	require.Len(t, target.Images, 4)
	for i, img := range target.Images {
		require.Equal(t, int64(i+1), img.ID)
	}
	require.Equal(t, filepath.Join("i", "b.jpg"), target.Images[2].FileName)
	// The shared id refers to the last image that has it.
	require.Equal(t, int64(3), target.Annotations[0].ImageID)
}

func TestMergeSampleNeedsRandomSource(t *testing.T) {
	target := &Dataset{}
	_, err := MergeInto(logs.NewTestingLog(t), target, makeSource(t, "a"), MergeOptions{SampleSize: 1})
	require.Error(t, err)
	require.Empty(t, target.Images)
}

func TestMergeMissingDirectory(t *testing.T) {
	_, err := MergeInto(logs.NewTestingLog(t), &Dataset{},
		DataDirectory{ImageDir: "x", AnnotationDir: filepath.Join(t.TempDir(), "missing")},
		MergeOptions{})
	require.Error(t, err)
}
