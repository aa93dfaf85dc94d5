package cktools

// TFRecord export for the TensorFlow object detection API.

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/cyclopcam/logs"
	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFFeatures converts a dataset image and its annotations to object detection features.
func toTFFeatures(img Image, annotations []Annotation, names map[int64]string) (
		TFFeatureMap, error) {

	// Get the image width and height.
	config, format, err := decodeImageConfig(img.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %w", err)
	}

	// Read the image data.
	imgData, err := readFile(img.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %w", err)
	}

	f := make(TFFeatureMap, 16)
	f["image/height"] = config.Height
	f["image/width"] = config.Width
	f["image/filename"] = img.FileName
	f["image/source_id"] = fmt.Sprint(img.ID)
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per label data. COCO boxes are x, y, width, height in pixels.
	n := len(annotations)
	xmins := make([]float32, 0, n)
	ymins := make([]float32, 0, n)
	xmaxs := make([]float32, 0, n)
	ymaxs := make([]float32, 0, n)
	classes := make([]string, 0, n)
	classIDs := make([]int64, 0, n)
	width, height := float32(config.Width), float32(config.Height)
	for _, a := range annotations {
		if len(a.BBox) != 4 {
			continue
		}
		x, y, w, h := float32(a.BBox[0]), float32(a.BBox[1]), float32(a.BBox[2]), float32(a.BBox[3])
		xmins = append(xmins, x/width)
		ymins = append(ymins, y/height)
		xmaxs = append(xmaxs, (x+w)/width)
		ymaxs = append(ymaxs, (y+h)/height)
		classes = append(classes, names[a.CategoryID])
		classIDs = append(classIDs, a.CategoryID)
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord writes one tensorflow.Example per image of ds to one or more TFRecord files
// stored under recordFilePath (with suffixes added when numShards>1). The category ids are used
// as class labels and the label map is written to labelMapPath.
//
// Images that cannot be read are logged and skipped.
func WriteTFRecord(log logs.Log, recordFilePath, labelMapPath string, ds *Dataset,
		numShards int) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}
	if len(ds.Images) == 0 {
		return saveTFRecordLabelMap(labelMapPath, ds.Categories)
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	names := ds.categoryNames()
	byImage := ds.annotationsByImage()

	var shardFile *os.File
	var shard *bufio.Writer
	closeShard := func() error {
		if shardFile == nil {
			return nil
		}
		flushErr := shard.Flush()
		closeErr := shardFile.Close()
		shardFile = nil
		if flushErr != nil {
			return flushErr
		}
		return closeErr
	}
	defer closeWithErrCheck(closerFunc(closeShard), &err)

	shardSize := int(math.Ceil(float64(len(ds.Images)) / float64(numShards)))
	shardIdx := -1
	written := 0

	// Convert and serialise one image at a time.
	for i, img := range ds.Images {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++
			if err := closeShard(); err != nil {
				return err
			}

			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %w", shardPath, err)
			}
			shardFile = f
			shard = bufio.NewWriter(f)
		}

		annotations := make([]Annotation, 0, len(byImage[img.ID]))
		for _, idx := range byImage[img.ID] {
			annotations = append(annotations, ds.Annotations[idx])
		}
		features, err := toTFFeatures(img, annotations, names)
		if err != nil {
			log.Warnf("Failed to convert %q: %v", img.FileName, err)
			continue
		}

		if err := writeTFRecordExample(shard, example.New(features)); err != nil {
			return fmt.Errorf("failed to write example for %q: %w", img.FileName, err)
		}
		written++
	}
	log.Infof("Wrote %d/%d images to %d TFRecord shards", written, len(ds.Images), shardIdx+1)

	return saveTFRecordLabelMap(labelMapPath, ds.Categories)
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap writes the categories as a StringIntLabelMap in prototxt format to path.
func saveTFRecordLabelMap(path string, categories []Category) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %w", path, err)
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for _, c := range categories {
		fmt.Fprintf(w, "item {\n  id: %d\n  name: %q\n}\n", c.ID, c.Name)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write the label map %q: %w", path, err)
	}

	return nil
}
