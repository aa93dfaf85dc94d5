package cktools

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeJSONFile encodes v as JSON to dir/name and returns the path.
func writeJSONFile(t *testing.T, dir, name string, v interface{}) string {
	t.Helper()
	enc, err := json.Marshal(v)
	require.NoError(t, err)
	return writeTextFile(t, dir, name, string(enc))
}

func writeTextFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writePNG writes an image of the given size whose pixels are given by fill.
func writePNG(t *testing.T, dir, name string, width, height int, fill func(x, y int) color.NRGBA) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, fill(x, y))
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

// cocoFile builds the JSON content of a per-image annotation file. Annotations are given as
// (image id, category id) pairs.
func cocoFile(imageIDs []int64, anns [][2]int64) map[string]interface{} {
	images := make([]map[string]interface{}, 0, len(imageIDs))
	for _, id := range imageIDs {
		images = append(images, map[string]interface{}{
			"id":        id,
			"file_name": "image" + itoa(id) + ".jpg",
			"width":     640,
			"height":    480,
		})
	}
	annotations := make([]map[string]interface{}, 0, len(anns))
	for i, a := range anns {
		annotations = append(annotations, map[string]interface{}{
			"id":           100 + i,
			"image_id":     a[0],
			"category_id":  a[1],
			"iscrowd":      1,
			"bbox":         []float64{1, 2, 3, 4},
			"segmentation": [][]float64{{1, 1, 5, 1, 5, 5}},
		})
	}
	return map[string]interface{}{"images": images, "annotations": annotations}
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
