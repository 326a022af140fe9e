// Package recognition turns detector and matcher output into a classified result,
// applying a distance threshold and a per-person debounce window.
package recognition

import (
	"context"
	"errors"
	"image"
	"time"

	"faceclock/internal/attendance"
)

const (
	// DefaultConfidenceThreshold is the distance ceiling for a match. Lower is stricter.
	DefaultConfidenceThreshold = 0.45
	// DefaultLowConfidenceMargin is the band above the threshold reported as LowConfidence.
	DefaultLowConfidenceMargin = 0.10
	// DefaultDebounceWindow suppresses repeat recognitions of the same person.
	DefaultDebounceWindow = 3 * time.Second
	// FaceSize is the side of the square every face is normalised to before matching.
	FaceSize = 96
)

// ErrClassifier marks failures raised by the detector or matcher.
var ErrClassifier = errors.New("classifier failure")

// Box is a face bounding box in image pixel coordinates.
type Box struct {
	X, Y, Width, Height int
}

// Rect converts the box to an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Area is width times height; degenerate boxes have zero area.
func (b Box) Area() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Detector finds faces. An empty slice is a valid answer.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Box, error)
}

// Matcher maps a normalised face to the closest known label.
type Matcher interface {
	Train(ctx context.Context, faces []*image.Gray, labels []string) error
	Predict(ctx context.Context, face *image.Gray) (label string, distance float64, err error)
}

// Directory resolves a matcher label to a person. Unknown ids return nil, nil.
type Directory interface {
	LookupPerson(ctx context.Context, id string) (*attendance.Person, error)
}

// Status is the classification of one frame.
type Status string

const (
	StatusRecognized    Status = "recognized"
	StatusUnknown       Status = "unknown"
	StatusLowConfidence Status = "low_confidence"
	StatusDebounced     Status = "debounced"
	StatusNoFace        Status = "no_face"
	StatusError         Status = "error"
)

// Result is the transient outcome of Classify. Only StatusRecognized is forwarded to attendance.
type Result struct {
	Status   Status             `json:"status"`
	PersonID string             `json:"person_id,omitempty"`
	Person   *attendance.Person `json:"person,omitempty"`
	Distance float64            `json:"confidence_score"`
	Box      *Box               `json:"box,omitempty"`
	Message  string             `json:"message"`
	At       time.Time          `json:"at"`
	Err      error              `json:"-"`
}
