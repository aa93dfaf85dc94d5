// Prepares and inspects COCO datasets: merges per-directory annotation sets, filters rare
// categories, splits datasets and renders boxes and trimaps for spot checks.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/sensorable/cktools"
)

func check(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func main() {
	parser := argparse.NewParser("cktools", "COCO dataset preparation tools")

	mergeCmd := parser.NewCommand("merge", "Merge per-directory COCO annotation sets into one dataset")
	mergeConfig := mergeCmd.String("c", "config", &argparse.Options{Help: "Merge job config file (JSON with comments)"})
	mergeTemplate := mergeCmd.String("t", "template", &argparse.Options{Help: "COCO file whose categories seed the merged dataset"})
	mergeSources := mergeCmd.StringList("s", "source", &argparse.Options{Help: "Source as image_dir,annotation_dir (repeatable)"})
	mergeSample := mergeCmd.Int("n", "sample", &argparse.Options{Help: "Max. annotation files per source (0 for all)", Default: -1})
	mergeSeed := mergeCmd.Int("", "seed", &argparse.Options{Help: "Seed for the random file order (0 keeps the sorted order unless sampling)", Default: -1})
	mergeThreshold := mergeCmd.Int("", "threshold", &argparse.Options{Help: "Min. annotations to keep a category (0 keeps all)", Default: -1})
	mergeOutput := mergeCmd.String("o", "output", &argparse.Options{Help: "Output COCO file"})
	mergeTFRecord := mergeCmd.String("", "tfrecord", &argparse.Options{Help: "Also write TFRecord files to this path"})
	mergeLabelMap := mergeCmd.String("", "label-map", &argparse.Options{Help: "TFRecord label map path", Default: "label_map.pbtxt"})
	mergeShards := mergeCmd.Int("", "shards", &argparse.Options{Help: "Number of TFRecord shards", Default: 1})
	mergeVIA := mergeCmd.String("", "via", &argparse.Options{Help: "Also write a VIA project to this path"})
	mergePlot := mergeCmd.String("", "plot", &argparse.Options{Help: "Write a category histogram plot to this path"})

	splitCmd := parser.NewCommand("split", "Randomly split a COCO dataset by image")
	splitInput := splitCmd.String("i", "input", &argparse.Options{Help: "Input COCO file", Required: true})
	splitOutputs := splitCmd.String("o", "output", &argparse.Options{Help: "Comma-separated output COCO files", Required: true})
	splitPercent := splitCmd.String("p", "split", &argparse.Options{Help: "Comma-separated split percentages, adding up to 100", Default: "80,20"})
	splitSeed := splitCmd.Int("", "seed", &argparse.Options{Help: "Random seed", Default: 1})

	showCmd := parser.NewCommand("show", "Render images with their boxes into a grid image")
	showInput := showCmd.String("i", "input", &argparse.Options{Help: "COCO file", Required: true})
	showCount := showCmd.Int("n", "count", &argparse.Options{Help: "Number of images", Default: 8})
	showPerRow := showCmd.Int("", "per-row", &argparse.Options{Help: "Images per grid row", Default: 4})
	showSize := showCmd.Int("", "size", &argparse.Options{Help: "Image size in the grid", Default: 256})
	showOutput := showCmd.String("o", "output", &argparse.Options{Help: "Output image", Required: true})

	trimapCmd := parser.NewCommand("trimap", "Write the trimap of one image")
	trimapInput := trimapCmd.String("i", "input", &argparse.Options{Help: "COCO file", Required: true})
	trimapImage := trimapCmd.Int("", "image-id", &argparse.Options{Help: "Image id", Required: true})
	trimapOutput := trimapCmd.String("o", "output", &argparse.Options{Help: "Output PNG", Required: true})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	log, err := logs.NewLog()
	check(err)

	switch {
	case mergeCmd.Happened():
		cfg := &cktools.MergeConfig{}
		if *mergeConfig != "" {
			cfg, err = cktools.LoadMergeConfig(*mergeConfig)
			check(err)
		}
		// Flags override the config file.
		if *mergeTemplate != "" {
			cfg.Template = *mergeTemplate
		}
		for _, s := range *mergeSources {
			src, err := parseSource(s)
			check(err)
			cfg.Sources = append(cfg.Sources, src)
		}
		if *mergeSample >= 0 {
			cfg.SampleSize = *mergeSample
		}
		if *mergeSeed >= 0 {
			cfg.Seed = int64(*mergeSeed)
		}
		if *mergeThreshold >= 0 {
			cfg.Threshold = *mergeThreshold
		}
		if *mergeOutput != "" {
			cfg.Output = *mergeOutput
		}
		if len(cfg.Sources) == 0 || cfg.Output == "" {
			check(fmt.Errorf("merge needs at least one source and an output path"))
		}
		runMerge(log, cfg, *mergeTFRecord, *mergeLabelMap, *mergeShards, *mergeVIA, *mergePlot)

	case splitCmd.Happened():
		runSplit(log, *splitInput, strings.Split(*splitOutputs, ","), *splitPercent, int64(*splitSeed))

	case showCmd.Happened():
		runShow(log, *showInput, *showCount, *showPerRow, *showSize, *showOutput)

	case trimapCmd.Happened():
		runTrimap(log, *trimapInput, int64(*trimapImage), *trimapOutput)
	}
}

// parseSource parses "image_dir,annotation_dir".
func parseSource(s string) (cktools.DataDirectory, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return cktools.DataDirectory{}, fmt.Errorf("invalid source %q, expected image_dir,annotation_dir", s)
	}
	return cktools.DataDirectory{ImageDir: parts[0], AnnotationDir: parts[1]}, nil
}

func runMerge(log logs.Log, cfg *cktools.MergeConfig, tfRecordPath, labelMapPath string,
		numShards int, viaPath, plotPath string) {

	target := &cktools.Dataset{}
	if cfg.Template != "" {
		var err error
		target, err = cktools.ReadDataset(cfg.Template)
		check(err)
		// Only the categories of the template are used.
		target.Images = nil
		target.Annotations = nil
	}

	opts := cktools.MergeOptions{SampleSize: cfg.SampleSize}
	seed := cfg.Seed
	if seed == 0 && cfg.SampleSize > 0 {
		seed = time.Now().UnixNano()
		log.Infof("Sampling with seed %d", seed)
	}
	if seed != 0 {
		opts.Rand = rand.New(rand.NewSource(seed))
	}

	histograms := make([]*cktools.CategoryHistogram, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		h, err := cktools.MergeInto(log, target, src, opts)
		check(err)
		histograms = append(histograms, h)
	}
	histogram := cktools.MergeHistograms(histograms...)

	if cfg.Threshold > 0 {
		histogram = cktools.Refine(histogram, cfg.Threshold)
		check(cktools.Reindex(log, target, histogram))
	}

	s := histogram.Summary()
	log.Infof("Categories: %d, annotations: %d, per category mean %.1f, std. dev. %.1f, median %.1f, min %d, max %d",
		s.Categories, s.Total, s.Mean, s.StdDev, s.Median, s.Min, s.Max)

	check(cktools.WriteDataset(cfg.Output, target))
	log.Infof("Wrote %d images and %d annotations to %s", len(target.Images), len(target.Annotations), cfg.Output)

	if tfRecordPath != "" {
		check(cktools.WriteTFRecord(log, tfRecordPath, labelMapPath, target, numShards))
	}
	if viaPath != "" {
		check(cktools.WriteVIA(viaPath, cktools.ToVIA(target)))
	}
	if plotPath != "" && histogram.Len() > 0 {
		check(cktools.PlotHistogram(histogram, plotPath))
	}
}

func runSplit(log logs.Log, input string, outputs []string, percentages string, seed int64) {
	ds, err := cktools.ReadDataset(input)
	check(err)

	var cumulative []int
	sum := 0
	for _, v := range strings.Split(percentages, ",") {
		p, err := strconv.Atoi(v)
		if err != nil || p < 0 || p > 100 {
			check(fmt.Errorf("invalid split percentage %q", v))
		}
		sum += p
		cumulative = append(cumulative, sum)
	}
	if len(cumulative) != len(outputs) {
		check(fmt.Errorf("got %d split percentages for %d outputs", len(cumulative), len(outputs)))
	}

	parts, err := cktools.SplitDataset(ds, cumulative, rand.New(rand.NewSource(seed)))
	check(err)
	for i, part := range parts {
		check(cktools.WriteDataset(outputs[i], part))
		log.Infof("Wrote %d images and %d annotations to %s", len(part.Images), len(part.Annotations), outputs[i])
	}
}

func runShow(log logs.Log, input string, count, perRow, size int, output string) {
	ds, err := cktools.ReadDataset(input)
	check(err)
	if count > len(ds.Images) {
		count = len(ds.Images)
	}
	images := ds.Images[:count]

	paths := make([]string, len(images))
	for i, img := range images {
		paths[i] = img.FileName
	}
	batch, err := cktools.LoadImages(paths, size, 3)
	check(err)

	// Class names by category id.
	names := make(map[int]string, len(ds.Categories))
	for _, c := range ds.Categories {
		names[int(c.ID)] = c.Name
	}

	tensors := make([]cktools.Tensor, len(images))
	boxes := make([][]cktools.Box, len(images))
	for i, img := range images {
		tensors[i] = batch.Normalized(i, cktools.DefaultMean, cktools.DefaultStd)
		boxes[i] = batchBoxes(ds, img, size)
	}

	check(cktools.ShowImages(tensors, boxes, names, perRow, output))
	log.Infof("Wrote %d images to %s", count/perRow*perRow, output)
}

// batchBoxes returns the boxes of img in the coordinates of its batch entry, which is resized to
// size x size and flipped vertically.
func batchBoxes(ds *cktools.Dataset, img cktools.Image, size int) []cktools.Box {
	if img.Width == 0 || img.Height == 0 {
		return nil
	}
	sx := float64(size) / float64(img.Width)
	sy := float64(size) / float64(img.Height)

	var boxes []cktools.Box
	for _, a := range ds.Annotations {
		if a.ImageID != img.ID || len(a.BBox) != 4 {
			continue
		}
		x, y, w, h := a.BBox[0], a.BBox[1], a.BBox[2], a.BBox[3]
		boxes = append(boxes, cktools.Box{
			X1:    x * sx,
			Y1:    float64(size) - (y+h)*sy,
			X2:    (x + w) * sx,
			Y2:    float64(size) - y*sy,
			Class: int(a.CategoryID),
		})
	}
	return boxes
}

func runTrimap(log logs.Log, input string, imageID int64, output string) {
	ds, err := cktools.ReadDataset(input)
	check(err)

	var img *cktools.Image
	for i := range ds.Images {
		if ds.Images[i].ID == imageID {
			img = &ds.Images[i]
			break
		}
	}
	if img == nil {
		check(fmt.Errorf("no image with id %d in %s", imageID, input))
	}

	// Classes are the positions of the categories.
	classOf := make(map[int64]int, len(ds.Categories))
	for i, c := range ds.Categories {
		classOf[c.ID] = i
	}

	var classIDs []int
	var polygons [][]float64
	for _, a := range ds.Annotations {
		if a.ImageID != imageID {
			continue
		}
		p, err := a.Polygons()
		if err != nil {
			log.Warnf("Skipping annotation %d: %v", a.ID, err)
			continue
		}
		for _, polygon := range p {
			classIDs = append(classIDs, classOf[a.CategoryID])
			polygons = append(polygons, polygon)
		}
	}

	src, err := cktools.LoadImage(img.FileName)
	check(err)
	trimap, err := cktools.BuildTrimap(src, classIDs, polygons, len(ds.Categories))
	check(err)
	check(cktools.SaveImage(output, trimap.Gray(), 100))
	log.Infof("Wrote the trimap of %s (%d polygons) to %s", img.FileName, len(polygons), output)
}
