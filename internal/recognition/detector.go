package recognition

import (
	"context"
	"image"
)

// FullFrameDetector reports the whole frame as a single face. It suits kiosks
// where the camera is already framed on the face.
type FullFrameDetector struct{}

func (FullFrameDetector) Detect(_ context.Context, img image.Image) ([]Box, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}
	return []Box{{X: b.Min.X, Y: b.Min.Y, Width: b.Dx(), Height: b.Dy()}}, nil
}
