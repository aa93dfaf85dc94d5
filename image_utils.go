package cktools

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
)

// Batch is a stack of equally sized images with values in [0, 255], laid out as
// N x Size x Size x Channels.
type Batch struct {
	N        int
	Size     int
	Channels int
	Data     []float32
}

// At returns the value of channel c of pixel x, y in image n.
func (b *Batch) At(n, y, x, c int) float32 {
	return b.Data[((n*b.Size+y)*b.Size+x)*b.Channels+c]
}

// Shape returns the batch dimensions.
func (b *Batch) Shape() [4]int {
	return [4]int{b.N, b.Size, b.Size, b.Channels}
}

// LoadImages reads the images at paths into a batch. Each image is resized to size x size with
// nearest neighbour sampling and its first channels RGB components are kept. With a single
// channel that is the red component, not a grayscale conversion.
//
// The rows of every image are stored bottom to top, i.e. the batch is flipped vertically.
//
// Any image that cannot be read fails the whole batch.
func LoadImages(paths []string, size, channels int) (*Batch, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid image size %d", size)
	}
	if channels < 1 || channels > 3 {
		return nil, fmt.Errorf("invalid channel count %d, must be in [1, 3]", channels)
	}

	b := &Batch{
		N:        len(paths),
		Size:     size,
		Channels: channels,
		Data:     make([]float32, len(paths)*size*size*channels),
	}

	out := b.Data
	for _, path := range paths {
		img, err := LoadImage(path)
		if err != nil {
			return nil, err
		}
		pix := imaging.FlipV(imaging.Resize(img, size, size, imaging.NearestNeighbor))

		for y := 0; y < size; y++ {
			row := pix.Pix[y*pix.Stride:]
			for x := 0; x < size; x++ {
				for c := 0; c < channels; c++ {
					out[c] = float32(row[x*4+c])
				}
				out = out[channels:]
			}
		}
	}

	return b, nil
}

// Normalized returns image n as a channels first tensor, scaled to [0, 1] and normalised per
// channel with (x-mean)/std.
func (b *Batch) Normalized(n int, mean, std []float64) Tensor {
	t := Tensor{
		Channels: b.Channels,
		Height:   b.Size,
		Width:    b.Size,
		Data:     make([]float32, b.Size*b.Size*b.Channels),
	}
	for c := 0; c < b.Channels; c++ {
		m, s := mean[c%len(mean)], std[c%len(std)]
		for y := 0; y < b.Size; y++ {
			for x := 0; x < b.Size; x++ {
				v := float64(b.At(n, y, x, c)) / 255
				t.Data[t.index(c, y, x)] = float32((v - m) / s)
			}
		}
	}
	return t
}

// LoadImage reads and decodes the image at path.
func LoadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot load image %q: %w", path, err)
	}
	return img, nil
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// SaveImage saves the image to path, encoded according to the file extension of path.
func SaveImage(path string, img image.Image, jpegQuality int) error {
	if err := imaging.Save(img, path, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("cannot save image %q: %w", path, err)
	}
	return nil
}
