package recognition

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"
)

// Config tunes the engine. Zero values take the package defaults except
// DebounceWindow, where a negative value disables debouncing.
type Config struct {
	Threshold           float64
	LowConfidenceMargin float64
	DebounceWindow      time.Duration
	Now                 func() time.Time
}

// Engine classifies frames. It is safe for concurrent use.
type Engine struct {
	detector  Detector
	matcher   Matcher
	directory Directory
	debounce  DebounceStore

	threshold float64
	margin    float64
	window    time.Duration
	now       func() time.Time
	log       *slog.Logger

	// serializes the debounce check-and-mark
	mu sync.Mutex
}

func NewEngine(det Detector, m Matcher, dir Directory, deb DebounceStore, cfg Config, log *slog.Logger) *Engine {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfidenceThreshold
	}
	if cfg.LowConfidenceMargin < 0 {
		cfg.LowConfidenceMargin = DefaultLowConfidenceMargin
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deb == nil {
		deb = NewMemoryDebounce(cfg.DebounceWindow)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		detector:  det,
		matcher:   m,
		directory: dir,
		debounce:  deb,
		threshold: cfg.Threshold,
		margin:    cfg.LowConfidenceMargin,
		window:    cfg.DebounceWindow,
		now:       cfg.Now,
		log:       log.With("component", "recognition"),
	}
}

// Threshold is the configured distance ceiling.
func (e *Engine) Threshold() float64 { return e.threshold }

// Classify runs detection, matching, threshold and debounce on one frame.
// Failures from the collaborators come back as StatusError; Classify never panics.
func (e *Engine) Classify(ctx context.Context, img image.Image) (res Result) {
	res.At = e.now()
	defer func() {
		if p := recover(); p != nil {
			res = e.errorResult(res.At, "classify", fmt.Errorf("%w: panic: %v", ErrClassifier, p))
		}
	}()

	boxes, err := e.detector.Detect(ctx, img)
	if err != nil {
		return e.errorResult(res.At, "detect", fmt.Errorf("%w: detect: %w", ErrClassifier, err))
	}
	box, ok := Largest(boxes)
	if !ok {
		return Result{Status: StatusNoFace, Message: "no face detected", At: res.At}
	}
	face, err := Preprocess(img, box)
	if err != nil {
		return e.errorResult(res.At, "preprocess", err)
	}

	label, dist, err := e.matcher.Predict(ctx, face)
	if err != nil {
		return e.errorResult(res.At, "predict", fmt.Errorf("%w: predict: %w", ErrClassifier, err))
	}
	res = Result{PersonID: label, Distance: dist, Box: &box, At: res.At}
	if dist > e.threshold {
		res.PersonID = ""
		if dist <= e.threshold+e.margin {
			res.Status = StatusLowConfidence
			res.Message = fmt.Sprintf("low confidence (%.3f > %.3f)", dist, e.threshold)
		} else {
			res.Status = StatusUnknown
			res.Message = "unknown face"
		}
		return res
	}

	person, err := e.directory.LookupPerson(ctx, label)
	if err != nil {
		return e.errorResult(res.At, "lookup", fmt.Errorf("lookup person: %w", err))
	}
	if person == nil {
		res.Status = StatusUnknown
		res.Message = "no person registered for " + label
		return res
	}
	res.Person = person

	e.mu.Lock()
	defer e.mu.Unlock()
	last, seen, err := e.debounce.Last(ctx, person.ID)
	if err != nil {
		return e.errorResult(res.At, "debounce", fmt.Errorf("debounce lookup: %w", err))
	}
	if seen && res.At.Sub(last) < e.window {
		res.Status = StatusDebounced
		res.Message = "already recognized " + person.DisplayName
		return res
	}
	if err := e.debounce.Mark(ctx, person.ID, res.At); err != nil {
		return e.errorResult(res.At, "debounce", fmt.Errorf("debounce mark: %w", err))
	}
	res.Status = StatusRecognized
	res.Message = "recognized " + person.DisplayName
	return res
}

// Reset forgets every debounce entry.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.debounce.Reset(ctx)
}

func (e *Engine) errorResult(at time.Time, stage string, err error) Result {
	e.log.Warn("classification failed", "stage", stage, "err", err)
	return Result{Status: StatusError, Message: err.Error(), At: at, Err: err}
}
