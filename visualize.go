package cktools

// Debug rendering of images and bounding boxes.

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// The ImageNet normalisation constants.
var (
	DefaultMean = []float64{0.485, 0.456, 0.406}
	DefaultStd  = []float64{0.229, 0.224, 0.225}
)

// Tensor is a float image. Data is laid out as Channels x Height x Width, or as
// Height x Width x Channels if ChannelsLast is set.
type Tensor struct {
	Channels     int
	Height       int
	Width        int
	ChannelsLast bool
	Data         []float32
}

func (t *Tensor) index(c, y, x int) int {
	if t.ChannelsLast {
		return (y*t.Width+x)*t.Channels + c
	}
	return (c*t.Height+y)*t.Width + x
}

// At returns the value of channel c at x, y.
func (t *Tensor) At(c, y, x int) float32 {
	return t.Data[t.index(c, y, x)]
}

// Box is a detection in absolute pixel coordinates. Boxes with a negative class are padding.
type Box struct {
	X1, Y1, X2, Y2 float64
	Class          int
}

// Denormalize reverses the per channel normalisation (x-mean)/std of t, clips the result to
// [0, 1] and scales it to [0, 255] if multiplyByte is set. The result is channels last.
func Denormalize(t Tensor, mean, std []float64, multiplyByte bool) Tensor {
	out := Tensor{
		Channels:     t.Channels,
		Height:       t.Height,
		Width:        t.Width,
		ChannelsLast: true,
		Data:         make([]float32, len(t.Data)),
	}
	scale := 1.0
	if multiplyByte {
		scale = 255
	}

	for c := 0; c < t.Channels; c++ {
		m, s := mean[c%len(mean)], std[c%len(std)]
		for y := 0; y < t.Height; y++ {
			for x := 0; x < t.Width; x++ {
				v := float64(t.At(c, y, x))*s + m
				v = math.Max(0, math.Min(1, v))
				out.Data[out.index(c, y, x)] = float32(v * scale)
			}
		}
	}
	return out
}

// TensorImage converts a tensor with values in [0, 255] and one or three channels to an image.
func TensorImage(t Tensor) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, t.Width, t.Height))
	toByte := func(v float32) uint8 {
		return uint8(math.Max(0, math.Min(255, math.Round(float64(v)))))
	}

	for y := 0; y < t.Height; y++ {
		for x := 0; x < t.Width; x++ {
			var c color.NRGBA
			if t.Channels >= 3 {
				c = color.NRGBA{toByte(t.At(0, y, x)), toByte(t.At(1, y, x)), toByte(t.At(2, y, x)), 255}
			} else {
				v := toByte(t.At(0, y, x))
				c = color.NRGBA{v, v, v, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

var boxColor = color.RGBA{0, 0, 255, 255}

// DrawBoxes draws the boxes onto img with their class names from names above the top left
// corner.
func DrawBoxes(img *image.RGBA, boxes []Box, names map[int]string) {
	dc := gg.NewContextForRGBA(img)
	dc.SetColor(boxColor)
	dc.SetLineWidth(2)

	for _, b := range boxes {
		if b.Class < 0 {
			continue
		}
		x1, y1 := math.Trunc(b.X1), math.Trunc(b.Y1)
		x2, y2 := math.Trunc(b.X2), math.Trunc(b.Y2)

		dc.DrawRectangle(x1, y1, x2-x1, y2-y1)
		dc.Stroke()

		name, ok := names[b.Class]
		if !ok {
			name = fmt.Sprint(b.Class)
		}
		dc.DrawString(name, x1, y1)
	}
}

// ShowImages denormalizes the images, draws their boxes and writes them as a grid with perRow
// images per row to outPath. Only full rows are rendered. All images must have the size of the
// first one.
func ShowImages(imgs []Tensor, boxes [][]Box, names map[int]string, perRow int,
		outPath string) error {

	if perRow <= 0 {
		return fmt.Errorf("invalid number of images per row %d", perRow)
	}
	rows := len(imgs) / perRow
	if rows == 0 {
		return fmt.Errorf("need at least %d images for one row, got %d", perRow, len(imgs))
	}

	cellWidth, cellHeight := imgs[0].Width, imgs[0].Height
	grid := imaging.New(perRow*cellWidth, rows*cellHeight, color.White)

	for i := 0; i < rows*perRow; i++ {
		t := imgs[i]
		if t.Width != cellWidth || t.Height != cellHeight {
			return fmt.Errorf("image %d is %dx%d, expected %dx%d", i, t.Width, t.Height,
				cellWidth, cellHeight)
		}

		src := TensorImage(Denormalize(t, DefaultMean, DefaultStd, true))
		cell := image.NewRGBA(src.Bounds())
		draw.Draw(cell, cell.Bounds(), src, image.Point{}, draw.Src)
		if i < len(boxes) {
			DrawBoxes(cell, boxes[i], names)
		}

		at := image.Pt((i%perRow)*cellWidth, (i/perRow)*cellHeight)
		grid = imaging.Paste(grid, cell, at)
	}

	return SaveImage(outPath, grid, 95)
}
