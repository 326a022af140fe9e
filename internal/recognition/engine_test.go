package recognition

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceclock/internal/attendance"
	"faceclock/internal/logging"
)

type stubDetector struct {
	boxes []Box
	err   error
	panic bool
}

func (s stubDetector) Detect(context.Context, image.Image) ([]Box, error) {
	if s.panic {
		panic("native detector crashed")
	}
	return s.boxes, s.err
}

type stubMatcher struct {
	label string
	dist  float64
	err   error
	seen  *image.Gray
}

func (s *stubMatcher) Train(context.Context, []*image.Gray, []string) error { return nil }

func (s *stubMatcher) Predict(_ context.Context, face *image.Gray) (string, float64, error) {
	s.seen = face
	return s.label, s.dist, s.err
}

type mapDirectory map[string]*attendance.Person

func (d mapDirectory) LookupPerson(_ context.Context, id string) (*attendance.Person, error) {
	return d[id], nil
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func frame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 80, 255})
		}
	}
	return img
}

var alice = &attendance.Person{ID: "alice", DisplayName: "Alice"}

func newTestEngine(det Detector, m Matcher, clock *fakeClock) *Engine {
	return NewEngine(det, m, mapDirectory{"alice": alice}, NewMemoryDebounce(3*time.Second), Config{
		Threshold:           0.45,
		LowConfidenceMargin: 0.10,
		DebounceWindow:      3 * time.Second,
		Now:                 clock.Now,
	}, logging.Discard())
}

func fullBox() stubDetector {
	return stubDetector{boxes: []Box{{X: 0, Y: 0, Width: 64, Height: 48}}}
}

func TestClassifyRecognizedThenDebounced(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	m := &stubMatcher{label: "alice", dist: 0.2}
	e := newTestEngine(fullBox(), m, clock)
	ctx := context.Background()

	res := e.Classify(ctx, frame())
	assert.Equal(t, StatusRecognized, res.Status)
	assert.Equal(t, "alice", res.PersonID)
	assert.Equal(t, alice, res.Person)
	assert.InDelta(t, 0.2, res.Distance, 1e-9)
	require.NotNil(t, m.seen)
	assert.Equal(t, image.Rect(0, 0, FaceSize, FaceSize), m.seen.Bounds())

	clock.Advance(2999 * time.Millisecond)
	res = e.Classify(ctx, frame())
	assert.Equal(t, StatusDebounced, res.Status)
	assert.Equal(t, "alice", res.PersonID)

	// Debounced results do not extend the window.
	clock.Advance(time.Millisecond)
	res = e.Classify(ctx, frame())
	assert.Equal(t, StatusRecognized, res.Status)
}

func TestClassifyThresholdBands(t *testing.T) {
	cases := []struct {
		dist float64
		want Status
	}{
		{0.45, StatusRecognized},
		{0.4501, StatusLowConfidence},
		{0.54, StatusLowConfidence},
		{0.56, StatusUnknown},
		{3.0, StatusUnknown},
	}
	for _, tc := range cases {
		clock := &fakeClock{t: time.Now()}
		e := newTestEngine(fullBox(), &stubMatcher{label: "alice", dist: tc.dist}, clock)
		res := e.Classify(context.Background(), frame())
		assert.Equal(t, tc.want, res.Status, "distance %v", tc.dist)
		if tc.want != StatusRecognized {
			assert.Empty(t, res.PersonID)
		}
	}
}

func TestClassifyAboveThresholdDoesNotMarkDebounce(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	m := &stubMatcher{label: "alice", dist: 0.9}
	e := newTestEngine(fullBox(), m, clock)
	assert.Equal(t, StatusUnknown, e.Classify(context.Background(), frame()).Status)

	m.dist = 0.1
	assert.Equal(t, StatusRecognized, e.Classify(context.Background(), frame()).Status)
}

func TestClassifyUnregisteredLabel(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	e := newTestEngine(fullBox(), &stubMatcher{label: "ghost", dist: 0.1}, clock)
	res := e.Classify(context.Background(), frame())
	assert.Equal(t, StatusUnknown, res.Status)
	assert.Nil(t, res.Person)
}

func TestClassifyNoFace(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	e := newTestEngine(stubDetector{}, &stubMatcher{}, clock)
	assert.Equal(t, StatusNoFace, e.Classify(context.Background(), frame()).Status)
}

func TestClassifyCollaboratorFailures(t *testing.T) {
	boom := errors.New("boom")
	cases := map[string]struct {
		det Detector
		m   Matcher
	}{
		"detect error":  {stubDetector{err: boom}, &stubMatcher{}},
		"detect panic":  {stubDetector{panic: true}, &stubMatcher{}},
		"predict error": {fullBox(), &stubMatcher{err: boom}},
		"box outside":   {stubDetector{boxes: []Box{{X: 500, Y: 500, Width: 10, Height: 10}}}, &stubMatcher{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{t: time.Now()}
			e := newTestEngine(tc.det, tc.m, clock)
			var res Result
			require.NotPanics(t, func() { res = e.Classify(context.Background(), frame()) })
			assert.Equal(t, StatusError, res.Status)
			assert.Error(t, res.Err)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestClassifyDetectErrorIsClassifierError(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	e := newTestEngine(stubDetector{err: errors.New("x")}, &stubMatcher{}, clock)
	res := e.Classify(context.Background(), frame())
	assert.ErrorIs(t, res.Err, ErrClassifier)
}

type failingDebounce struct{ MemoryDebounce }

func (failingDebounce) Last(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("redis down")
}

func TestClassifyDebounceStoreFailure(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	e := NewEngine(fullBox(), &stubMatcher{label: "alice", dist: 0.1}, mapDirectory{"alice": alice},
		&failingDebounce{}, Config{Now: clock.Now}, logging.Discard())
	assert.Equal(t, StatusError, e.Classify(context.Background(), frame()).Status)
}

func TestEngineReset(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	e := newTestEngine(fullBox(), &stubMatcher{label: "alice", dist: 0.1}, clock)
	ctx := context.Background()

	require.Equal(t, StatusRecognized, e.Classify(ctx, frame()).Status)
	require.Equal(t, StatusDebounced, e.Classify(ctx, frame()).Status)
	require.NoError(t, e.Reset(ctx))
	assert.Equal(t, StatusRecognized, e.Classify(ctx, frame()).Status)
}

func TestEngineDefaults(t *testing.T) {
	e := NewEngine(FullFrameDetector{}, &stubMatcher{}, mapDirectory{}, nil, Config{}, nil)
	assert.Equal(t, DefaultConfidenceThreshold, e.Threshold())
	assert.Equal(t, DefaultDebounceWindow, e.window)
}
