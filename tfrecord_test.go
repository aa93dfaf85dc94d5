package cktools

import (
	"encoding/binary"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func tfRecordDataset(t *testing.T, dir string) *Dataset {
	t.Helper()
	gray := func(x, y int) color.NRGBA { return color.NRGBA{128, 128, 128, 255} }
	return &Dataset{
		Images: []Image{
			{ID: 1, FileName: writePNG(t, dir, "a.png", 20, 10, gray)},
			{ID: 2, FileName: filepath.Join(dir, "missing.png")},
			{ID: 3, FileName: writePNG(t, dir, "c.png", 8, 8, gray)},
		},
		Annotations: []Annotation{
			{ID: 1, ImageID: 1, CategoryID: 4, BBox: []float64{2, 1, 10, 5}},
			{ID: 2, ImageID: 3, CategoryID: 9, BBox: []float64{0, 0, 8, 8}},
			{ID: 3, ImageID: 3, CategoryID: 9}, // No box.
		},
		Categories: []Category{{ID: 4, Name: "cat"}, {ID: 9, Name: "dog \"big\""}},
	}
}

// recordCount counts the records in a TFRecord file by walking the length headers.
func recordCount(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	n := 0
	for len(data) > 0 {
		// uint64 length, uint32 length crc, data, uint32 data crc.
		require.GreaterOrEqual(t, len(data), 12)
		size := int(binary.LittleEndian.Uint64(data))
		require.GreaterOrEqual(t, len(data), 16+size)
		data = data[16+size:]
		n++
	}
	return n
}

func TestWriteTFRecord(t *testing.T) {
	dir := t.TempDir()
	ds := tfRecordDataset(t, dir)
	recordPath := filepath.Join(dir, "train.record")
	labelMapPath := filepath.Join(dir, "label_map.pbtxt")

	require.NoError(t, WriteTFRecord(logs.NewTestingLog(t), recordPath, labelMapPath, ds, 1))

	// The unreadable image is skipped.
	require.Equal(t, 2, recordCount(t, recordPath))

	labelMap, err := os.ReadFile(labelMapPath)
	require.NoError(t, err)
	require.Equal(t, "item {\n  id: 4\n  name: \"cat\"\n}\nitem {\n  id: 9\n  name: \"dog \\\"big\\\"\"\n}\n",
		string(labelMap))
}

func TestWriteTFRecordShards(t *testing.T) {
	dir := t.TempDir()
	ds := tfRecordDataset(t, dir)
	recordPath := filepath.Join(dir, "train.record")

	require.NoError(t, WriteTFRecord(logs.NewTestingLog(t), recordPath,
		filepath.Join(dir, "label_map.pbtxt"), ds, 2))

	require.NoFileExists(t, recordPath)
	require.Equal(t, 1, recordCount(t, recordPath+"-00000-of-00002"))
	require.Equal(t, 1, recordCount(t, recordPath+"-00001-of-00002"))
}

func TestToTFFeatures(t *testing.T) {
	ds := tfRecordDataset(t, t.TempDir())
	f, err := toTFFeatures(ds.Images[0], ds.Annotations[:1], ds.categoryNames())
	require.NoError(t, err)

	require.Equal(t, 20, f["image/width"])
	require.Equal(t, 10, f["image/height"])
	require.Equal(t, "png", f["image/format"])
	require.Equal(t, "1", f["image/source_id"])
	require.Equal(t, []float32{0.1}, f["image/object/bbox/xmin"])
	require.Equal(t, []float32{0.1}, f["image/object/bbox/ymin"])
	require.Equal(t, []float32{0.6}, f["image/object/bbox/xmax"])
	require.Equal(t, []float32{0.6}, f["image/object/bbox/ymax"])
	require.Equal(t, []string{"cat"}, f["image/object/class/text"])
	require.Equal(t, []int64{4}, f["image/object/class/label"])

	_, err = toTFFeatures(ds.Images[1], nil, nil)
	require.Error(t, err)
}
