package recognition

import (
	"errors"
	"image"

	"golang.org/x/image/draw"
)

// ErrEmptyFace is returned when a box does not overlap the image.
var ErrEmptyFace = errors.New("face box outside image")

// Largest returns the box with the greatest area. ok is false for an empty slice.
func Largest(boxes []Box) (Box, bool) {
	if len(boxes) == 0 {
		return Box{}, false
	}
	best := boxes[0]
	for _, b := range boxes[1:] {
		if b.Area() > best.Area() {
			best = b
		}
	}
	return best, true
}

// Preprocess crops box out of img, converts it to gray, scales it to FaceSize and
// equalises its histogram. Enrollment and inference must both go through here.
func Preprocess(img image.Image, box Box) (*image.Gray, error) {
	r := box.Rect().Intersect(img.Bounds())
	if r.Empty() {
		return nil, ErrEmptyFace
	}
	face := image.NewGray(image.Rect(0, 0, FaceSize, FaceSize))
	draw.BiLinear.Scale(face, face.Bounds(), img, r, draw.Src, nil)
	Equalize(face)
	return face, nil
}

// PreprocessWhole treats the full image as the face box.
func PreprocessWhole(img image.Image) (*image.Gray, error) {
	b := img.Bounds()
	return Preprocess(img, Box{X: b.Min.X, Y: b.Min.Y, Width: b.Dx(), Height: b.Dy()})
}

// Equalize spreads the gray histogram of g in place.
func Equalize(g *image.Gray) {
	var hist [256]int
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[(y-b.Min.Y)*g.Stride:]
		for x := 0; x < b.Dx(); x++ {
			hist[row[x]]++
		}
	}
	total := b.Dx() * b.Dy()
	var cdf [256]int
	run, cdfMin := 0, 0
	for i, n := range hist {
		run += n
		cdf[i] = run
		if cdfMin == 0 && run > 0 {
			cdfMin = run
		}
	}
	if total == cdfMin {
		// flat image, nothing to spread
		return
	}
	var lut [256]uint8
	for i := range lut {
		if cdf[i] <= cdfMin {
			continue
		}
		lut[i] = uint8((cdf[i] - cdfMin) * 255 / (total - cdfMin))
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := g.Pix[(y-b.Min.Y)*g.Stride:]
		for x := 0; x < b.Dx(); x++ {
			row[x] = lut[row[x]]
		}
	}
}
