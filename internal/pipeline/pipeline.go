// Package pipeline wires the capture source, the recognition engine and the
// attendance dispatcher together and publishes what happens on the event bus.
package pipeline

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	"faceclock/internal/attendance"
	"faceclock/internal/capture"
	"faceclock/internal/events"
	"faceclock/internal/metrics"
	"faceclock/internal/recognition"
)

// Camera is the part of capture.Source the pipeline drives.
type Camera interface {
	Start(ctx context.Context) error
	Stop() error
	Stats() capture.Stats
	SetHandler(capture.Handler)
	Subscribe(func(capture.StatusEvent))
}

// Classifier is the part of recognition.Engine the pipeline uses.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) recognition.Result
	Reset(ctx context.Context) error
}

// Submitter queues accepted recognitions for the attendance clock.
type Submitter interface {
	Submit(ctx context.Context, a attendance.Attempt) error
}

// Recognition is the bus payload for one classified frame.
type Recognition struct {
	recognition.Result
	Source   string `json:"source_id"`
	TraceID  string `json:"trace_id"`
	FrameSeq uint64 `json:"frame_seq"`
}

// Pipeline is installed as the capture handler. HandleFrame runs on the capture goroutine.
type Pipeline struct {
	camera   Camera
	engine   Classifier
	dispatch Submitter
	bus      *events.Bus
	metrics  *metrics.Metrics
	log      *slog.Logger

	mu           sync.Mutex
	lastCaptured uint64
	lastDropped  uint64
}

// New installs the pipeline on camera. bus and m may be nil.
func New(camera Camera, engine Classifier, dispatch Submitter, bus *events.Bus, m *metrics.Metrics, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		camera:   camera,
		engine:   engine,
		dispatch: dispatch,
		bus:      bus,
		metrics:  m,
		log:      log.With("component", "pipeline"),
	}
	camera.SetHandler(p.HandleFrame)
	camera.Subscribe(p.onCapture)
	return p
}

// Start starts the camera.
func (p *Pipeline) Start(ctx context.Context) error {
	return p.camera.Start(ctx)
}

// Stop stops the camera and then forgets every debounce entry.
func (p *Pipeline) Stop() error {
	err := p.camera.Stop()
	if rerr := p.engine.Reset(context.Background()); rerr != nil {
		p.log.Warn("debounce reset failed", "err", rerr)
	}
	return err
}

// Stats reports the camera state.
func (p *Pipeline) Stats() capture.Stats { return p.camera.Stats() }

// ResetDebounce forgets every debounce entry without touching the camera.
func (p *Pipeline) ResetDebounce(ctx context.Context) error {
	return p.engine.Reset(ctx)
}

// HandleFrame classifies one frame and submits recognized people.
func (p *Pipeline) HandleFrame(ctx context.Context, f *capture.Frame) {
	start := time.Now()
	res := p.engine.Classify(ctx, f.Image)
	if p.metrics != nil {
		p.metrics.Recognition.Observe(string(res.Status), time.Since(start))
	}
	p.publish(events.TypeRecognition, res.At, Recognition{Result: res, Source: f.Source, TraceID: f.TraceID, FrameSeq: f.Seq})

	if res.Status != recognition.StatusRecognized || res.Person == nil {
		return
	}
	attempt := attendance.Attempt{
		PersonID: res.Person.ID,
		Score:    res.Distance,
		Source:   f.Source,
		At:       res.At,
		TraceID:  f.TraceID,
	}
	if err := p.dispatch.Submit(ctx, attempt); err != nil && p.metrics != nil {
		p.metrics.Attendance.DispatchDrops.Inc()
	}
}

// OnOutcome is the dispatcher callback.
func (p *Pipeline) OnOutcome(a attendance.Attempt, o attendance.Outcome) {
	if p.metrics != nil {
		p.metrics.Attendance.ObserveOutcome(string(o.Kind))
	}
	if o.Kind == attendance.OutcomeFailed {
		p.log.Error("attendance not recorded", "person_id", a.PersonID, "at", a.At, "stage", "decide", "err", o.Err)
	}
	p.publish(events.TypeAttendance, time.Now(), attendance.NewDecision(a, o))
}

func (p *Pipeline) onCapture(ev capture.StatusEvent) {
	if p.metrics != nil {
		st := p.camera.Stats()
		p.mu.Lock()
		p.metrics.Capture.FramesCaptured.Add(float64(st.Captured - p.lastCaptured))
		p.metrics.Capture.FramesDropped.Add(float64(st.Dropped - p.lastDropped))
		p.lastCaptured, p.lastDropped = st.Captured, st.Dropped
		p.mu.Unlock()
		p.metrics.Capture.FPS.Set(ev.FPS)
		p.metrics.Capture.SetStatus(string(ev.Status))
	}
	p.publish(events.TypeCapture, ev.At, ev)
}

func (p *Pipeline) publish(t events.Type, at time.Time, payload any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{Type: t, At: at, Payload: payload})
}
