package pipeline

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceclock/internal/attendance"
	"faceclock/internal/capture"
	"faceclock/internal/events"
	"faceclock/internal/logging"
	"faceclock/internal/metrics"
	"faceclock/internal/queue"
	"faceclock/internal/recognition"
)

type fixedMatcher struct {
	label string
	dist  float64
}

func (fixedMatcher) Train(context.Context, []*image.Gray, []string) error { return nil }
func (m fixedMatcher) Predict(context.Context, *image.Gray) (string, float64, error) {
	return m.label, m.dist, nil
}

type rejectSubmitter struct{ calls atomic.Int32 }

func (r *rejectSubmitter) Submit(context.Context, attendance.Attempt) error {
	r.calls.Add(1)
	return queue.ErrFull
}

func seed(t *testing.T) *attendance.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := attendance.NewMemoryStore()
	_, err := store.UpsertPerson(ctx, attendance.Person{ID: "alice", Code: "A1", DisplayName: "Alice"})
	require.NoError(t, err)
	start, _ := attendance.ParseClockTime("00:00")
	end, _ := attendance.ParseClockTime("23:59:59")
	for d := time.Sunday; d <= time.Saturday; d++ {
		_, err := store.AddSchedule(ctx, attendance.ScheduleEntry{PersonID: "alice", Day: d, Start: start, End: end, Activity: "Homeroom"})
		require.NoError(t, err)
	}
	return store
}

func camera() *capture.Source {
	open := func(context.Context, int) (capture.Device, error) { return capture.NewSyntheticDevice(32, 32), nil }
	return capture.NewSource(open, capture.Config{SourceID: "kiosk-test", TargetFPS: 100, StopTimeout: 200 * time.Millisecond}, nil, logging.Discard())
}

func TestRecognizedFaceIsClockedInOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logging.Discard()

	store := seed(t)
	deb := recognition.NewMemoryDebounce(time.Hour)
	engine := recognition.NewEngine(recognition.FullFrameDetector{}, fixedMatcher{label: "alice", dist: 0.1}, store, deb, recognition.Config{DebounceWindow: time.Hour}, log)
	clock := attendance.NewClock(store, attendance.ClockConfig{MinimumDwell: 15 * time.Minute}, log)
	disp := attendance.NewDispatcher(queue.NewInMemory(8), clock, log)
	bus := events.New()
	m, err := metrics.New()
	require.NoError(t, err)

	src := camera()
	p := New(src, engine, disp, bus, m, log)
	disp.OnOutcome(p.OnOutcome)

	decisions, unsubscribe := bus.Subscribe(16, events.TypeAttendance)
	defer unsubscribe()
	recognitions, unsubscribeRec := bus.Subscribe(256, events.TypeRecognition)
	defer unsubscribeRec()

	go func() { _ = disp.Run(ctx) }()
	require.NoError(t, p.Start(ctx))

	var d attendance.Decision
	select {
	case ev := <-decisions:
		d = ev.Payload.(attendance.Decision)
	case <-time.After(2 * time.Second):
		t.Fatal("no attendance decision")
	}
	assert.Equal(t, attendance.OutcomeLogged, d.Outcome.Kind)
	require.NotNil(t, d.Outcome.Event)
	assert.Equal(t, attendance.TimeIn, d.Outcome.Event.Type)
	assert.Equal(t, "Homeroom", d.Outcome.Event.Activity)
	assert.Equal(t, "kiosk-test", d.Outcome.Event.Source)
	assert.NotEmpty(t, d.Attempt.TraceID)

	ev := <-recognitions
	rec := ev.Payload.(Recognition)
	assert.Equal(t, "kiosk-test", rec.Source)
	assert.NotZero(t, rec.FrameSeq)

	// later frames are debounced, so nothing else reaches the clock
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Recognition.Results.WithLabelValues("debounced")) > 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, decisions)

	require.NoError(t, p.Stop())
	assert.Zero(t, deb.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attendance.Outcomes.WithLabelValues("logged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Capture.Status.WithLabelValues("disconnected")))

	logged, err := store.ListEvents(ctx, attendance.EventFilter{PersonID: "alice"})
	require.NoError(t, err)
	assert.Len(t, logged, 1)
}

func TestOnlyRecognizedResultsAreSubmitted(t *testing.T) {
	log := logging.Discard()
	store := seed(t)
	sub := &rejectSubmitter{}
	m, err := metrics.New()
	require.NoError(t, err)

	engine := recognition.NewEngine(recognition.FullFrameDetector{}, fixedMatcher{label: "alice", dist: 0.9}, store, nil, recognition.Config{}, log)
	p := New(camera(), engine, sub, nil, m, log)
	frame := &capture.Frame{Seq: 1, Image: image.NewGray(image.Rect(0, 0, 8, 8)), Source: "kiosk-test"}
	frame.Image.(*image.Gray).Pix[0] = 200

	p.HandleFrame(context.Background(), frame)
	assert.Zero(t, sub.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recognition.Results.WithLabelValues("unknown")))

	engine = recognition.NewEngine(recognition.FullFrameDetector{}, fixedMatcher{label: "alice", dist: 0.1}, store, nil, recognition.Config{}, log)
	p = New(camera(), engine, sub, nil, m, log)
	p.HandleFrame(context.Background(), frame)
	assert.Equal(t, int32(1), sub.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attendance.DispatchDrops))
}

func TestFailedOutcomeIsPublished(t *testing.T) {
	bus := events.New()
	ch, cancel := bus.Subscribe(1)
	defer cancel()
	engine := recognition.NewEngine(recognition.FullFrameDetector{}, fixedMatcher{}, attendance.NewMemoryStore(), nil, recognition.Config{}, logging.Discard())
	p := New(camera(), engine, &rejectSubmitter{}, bus, nil, logging.Discard())

	p.OnOutcome(attendance.Attempt{PersonID: "alice"}, attendance.Outcome{Kind: attendance.OutcomeFailed, Err: errors.New("disk full")})
	ev := <-ch
	d := ev.Payload.(attendance.Decision)
	assert.Equal(t, attendance.OutcomeFailed, d.Outcome.Kind)
	assert.Equal(t, "disk full", d.Error)
}
