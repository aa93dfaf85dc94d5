package cktools

// Segmentation to trimap conversion.

import (
	"fmt"
	"image"
	"image/color"

	"github.com/llgcode/draw2d/draw2dimg"
)

// TrimapBorderWidth is the width in pixels of the uncertain region around each shape.
const TrimapBorderWidth = 5

// maxTrimapClasses keeps classCount+2 within a uint8.
const maxTrimapClasses = 253

// Trimap is a per pixel class mask with a single channel. Values are a class id in
// [0, classCount), classCount for the uncertain border around shapes or classCount+1 for
// background.
type Trimap struct {
	Width  int
	Height int
	Pix    []uint8 // Row major, Width*Height values.
}

// At returns the value at x, y.
func (t *Trimap) At(x, y int) uint8 {
	return t.Pix[y*t.Width+x]
}

// Shape returns the array shape: height, width and one channel.
func (t *Trimap) Shape() [3]int {
	return [3]int{t.Height, t.Width, 1}
}

// Gray returns the trimap as a grayscale image sharing its pixels.
func (t *Trimap) Gray() *image.Gray {
	return &image.Gray{Pix: t.Pix, Stride: t.Width, Rect: image.Rect(0, 0, t.Width, t.Height)}
}

// BuildTrimap converts polygon segmentations of img into a trimap.
//
// Each polygon is filled with its class id. Pixels within TrimapBorderWidth of a shape, but not
// inside any shape, form the border class classCount. All other pixels are background,
// classCount+1. Background deliberately has the highest value: canvas added by geometric
// augmentation later on is then background and not the first class.
//
// classIDs[i] is the class of polygons[i], in [0, classCount). Later polygons overwrite earlier
// ones where they overlap. A pixel belongs to a polygon when at least half of it is covered, so
// for integer vertices the pixels right of and below the outline are border, not shape: the
// square from 10 to 30 fills pixels 10 to 29.
func BuildTrimap(img image.Image, classIDs []int, polygons [][]float64, classCount int) (
		*Trimap, error) {

	if classCount < 1 || classCount > maxTrimapClasses {
		return nil, fmt.Errorf("class count %d out of range [1, %d]", classCount, maxTrimapClasses)
	}
	if len(classIDs) != len(polygons) {
		return nil, fmt.Errorf("got %d class ids for %d polygons", len(classIDs), len(polygons))
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	mask := make([]uint8, width*height)

	// Fill the shapes, shifting class ids by one so that zero stays unfilled.
	for i, polygon := range polygons {
		classID := classIDs[i]
		if classID < 0 || classID >= classCount {
			return nil, fmt.Errorf("class id %d of polygon %d out of range [0, %d)",
				classID, i, classCount)
		}
		coverage, err := rasterizePolygon(width, height, polygon)
		if err != nil {
			return nil, fmt.Errorf("polygon %d: %w", i, err)
		}
		for j := range mask {
			if coverage.Pix[j*4+3] >= 0x80 {
				mask[j] = uint8(classID + 1)
			}
		}
	}

	// Isolate the ring just outside the shapes and mark it as border.
	border := uint8(classCount + 1)
	ring := dilate(mask, width, height, TrimapBorderWidth)
	for j, v := range mask {
		if v > 0 {
			ring[j] = 0
		}
	}
	for j, v := range ring {
		if v > 0 {
			mask[j] = border
		}
	}

	// Background, then shift everything back to zero based values.
	for j, v := range mask {
		if v == 0 {
			mask[j] = border + 1
		}
		mask[j]--
	}

	return &Trimap{Width: width, Height: height, Pix: mask}, nil
}

// rasterizePolygon fills the polygon, given as flat x1,y1,x2,y2,... coordinates, onto a
// transparent canvas. The alpha channel holds the coverage of each pixel.
func rasterizePolygon(width, height int, polygon []float64) (*image.RGBA, error) {
	if len(polygon)%2 != 0 {
		return nil, fmt.Errorf("odd number of coordinates (%d)", len(polygon))
	}
	if len(polygon) < 6 {
		return nil, fmt.Errorf("need at least 3 points, got %d", len(polygon)/2)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	gc := draw2dimg.NewGraphicContext(canvas)
	gc.SetFillColor(color.White)
	gc.MoveTo(polygon[0], polygon[1])
	for i := 2; i < len(polygon); i += 2 {
		gc.LineTo(polygon[i], polygon[i+1])
	}
	gc.Close()
	gc.Fill()

	return canvas, nil
}

// dilate returns the grey-level dilation of the width x height mask with a square structuring
// element of side 2*radius+1, i.e. the maximum over each pixel's neighbourhood.
func dilate(mask []uint8, width, height, radius int) []uint8 {
	maxInWindow := func(src, dst []uint8, n, stride, offset int) {
		for i := 0; i < n; i++ {
			lo, hi := i-radius, i+radius
			if lo < 0 {
				lo = 0
			}
			if hi > n-1 {
				hi = n - 1
			}
			var m uint8
			for k := lo; k <= hi; k++ {
				if v := src[offset+k*stride]; v > m {
					m = v
				}
			}
			dst[offset+i*stride] = m
		}
	}

	// The square element is separable into a horizontal and a vertical pass.
	rows := make([]uint8, len(mask))
	for y := 0; y < height; y++ {
		maxInWindow(mask, rows, width, 1, y*width)
	}
	out := make([]uint8, len(mask))
	for x := 0; x < width; x++ {
		maxInWindow(rows, out, height, width, x)
	}
	return out
}

// ScaleSegmentation rescales polygons of an origWidth x origHeight image to a square image of
// targetSize. Coordinates are truncated to integers.
func ScaleSegmentation(polygons [][]float64, origWidth, origHeight, targetSize int) (
		[][]int, error) {

	if origWidth <= 0 || origHeight <= 0 {
		return nil, fmt.Errorf("invalid original image size %dx%d", origWidth, origHeight)
	}
	scaleX := float64(targetSize) / float64(origWidth)
	scaleY := float64(targetSize) / float64(origHeight)

	scaled := make([][]int, len(polygons))
	for i, polygon := range polygons {
		scaled[i] = make([]int, len(polygon))
		for j, v := range polygon {
			if j&1 == 0 {
				scaled[i][j] = int(v * scaleX)
			} else {
				scaled[i][j] = int(v * scaleY)
			}
		}
	}
	return scaled, nil
}
