package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTargetFPS     = 10
	DefaultStopTimeout   = 2 * time.Second
	DefaultMaxEmptyReads = 30
	DefaultReadBackoff   = 50 * time.Millisecond
)

// Config tunes a Source. Zero values take the defaults above.
type Config struct {
	SourceID      string
	DeviceIndex   int
	TargetFPS     float64
	StopTimeout   time.Duration
	MaxEmptyReads int
	ReadBackoff   time.Duration
}

func (c Config) withDefaults() Config {
	if c.TargetFPS <= 0 {
		c.TargetFPS = DefaultTargetFPS
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.MaxEmptyReads <= 0 {
		c.MaxEmptyReads = DefaultMaxEmptyReads
	}
	if c.ReadBackoff <= 0 {
		c.ReadBackoff = DefaultReadBackoff
	}
	if c.SourceID == "" {
		c.SourceID = fmt.Sprintf("camera-%d", c.DeviceIndex)
	}
	return c
}

// Handler runs on the capture goroutine for every frame, before it reaches the mailbox.
// A slow handler lowers the effective frame rate.
type Handler func(ctx context.Context, f *Frame)

// Stats is a point-in-time view of a Source.
type Stats struct {
	Status    Status  `json:"status"`
	FPS       float64 `json:"fps"`
	Captured  uint64  `json:"frames_captured"`
	Dropped   uint64  `json:"frames_dropped"`
	LastError string  `json:"last_error,omitempty"`
}

// run is one Start..Stop cycle.
type run struct {
	cancel    context.CancelFunc
	done      chan struct{}
	started   bool
	stopping  bool
	dev       Device
	closeOnce sync.Once
	closeErr  error
}

func (r *run) closeDevice() error {
	r.closeOnce.Do(func() {
		if r.dev != nil {
			r.closeErr = r.dev.Close()
		}
	})
	return r.closeErr
}

// Source owns one camera and its capture goroutine.
type Source struct {
	open    Opener
	cfg     Config
	handler Handler
	log     *slog.Logger
	box     mailbox
	seq     atomic.Uint64

	mu      sync.Mutex
	status  Status
	lastErr string
	fps     float64
	cur     *run
	subs    []func(StatusEvent)
}

// NewSource creates a disconnected source. handler may be nil.
func NewSource(open Opener, cfg Config, handler Handler, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Source{
		open:    open,
		cfg:     cfg,
		handler: handler,
		log:     log.With("component", "capture", "source", cfg.SourceID),
		status:  StatusDisconnected,
	}
}

// SetHandler replaces the per-frame handler. Call before Start.
func (s *Source) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Subscribe registers fn for status and fps updates. fn runs synchronously and must not block.
func (s *Source) Subscribe(fn func(StatusEvent)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Source) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Source) FPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

// LatestFrame returns the newest frame, or nil. It never blocks on the capture loop.
func (s *Source) LatestFrame() *Frame { return s.box.latest() }

func (s *Source) Stats() Stats {
	published, dropped := s.box.counts()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Status: s.status, FPS: s.fps, Captured: published, Dropped: dropped, LastError: s.lastErr}
}

// Start opens the device and launches the capture loop. Calling Start on a
// starting or running source is a no-op. The loop also ends when ctx is cancelled.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.status {
	case StatusStarting, StatusRunning:
		s.mu.Unlock()
		s.log.Info("capture already started")
		return nil
	case StatusStopping:
		s.mu.Unlock()
		return ErrStopping
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.cur = r
	s.lastErr = ""
	ev := s.setStatusLocked(StatusStarting, "")
	s.mu.Unlock()
	s.emit(ev)

	dev, err := s.open(runCtx, s.cfg.DeviceIndex)
	if err != nil {
		cancel()
		s.mu.Lock()
		if s.cur != r || r.stopping {
			// Stop cancelled the open.
			s.mu.Unlock()
			return nil
		}
		msg := fmt.Sprintf("cannot open camera %d: %v", s.cfg.DeviceIndex, err)
		s.cur = nil
		s.lastErr = msg
		ev = s.setStatusLocked(StatusError, msg)
		s.mu.Unlock()
		s.emit(ev)
		s.log.Error("camera open failed", "index", s.cfg.DeviceIndex, "err", err)
		return fmt.Errorf("%w: %w", ErrDeviceOpen, err)
	}

	s.mu.Lock()
	if s.cur != r || r.stopping {
		// Stop won the race while the device was opening.
		s.mu.Unlock()
		cancel()
		_ = dev.Close()
		return nil
	}
	r.dev = dev
	r.started = true
	handler := s.handler
	ev = s.setStatusLocked(StatusRunning, "")
	s.mu.Unlock()
	s.emit(ev)

	s.log.Info("capture started", "index", s.cfg.DeviceIndex, "target_fps", s.cfg.TargetFPS)
	go s.loop(runCtx, r, handler)
	return nil
}

// Stop ends the capture loop, waiting at most StopTimeout before force-closing the
// device. It is idempotent and safe from any goroutine. The mailbox is cleared.
func (s *Source) Stop() error {
	s.mu.Lock()
	r := s.cur
	if r == nil || r.stopping {
		var ev *StatusEvent
		if r == nil && s.status == StatusError {
			e := s.setStatusLocked(StatusDisconnected, "")
			ev = &e
		}
		s.mu.Unlock()
		s.box.clear()
		if ev != nil {
			s.emit(*ev)
		}
		return nil
	}
	r.stopping = true
	ev := s.setStatusLocked(StatusStopping, "")
	s.mu.Unlock()
	s.emit(ev)

	r.cancel()
	if r.started {
		select {
		case <-r.done:
		case <-time.After(s.cfg.StopTimeout):
			s.log.Warn("capture loop did not exit in time, forcing device close", "timeout", s.cfg.StopTimeout)
		}
	}
	err := r.closeDevice()
	s.box.clear()

	s.mu.Lock()
	if s.cur == r {
		s.cur = nil
	}
	s.fps = 0
	ev = s.setStatusLocked(StatusDisconnected, "")
	s.mu.Unlock()
	s.emit(ev)
	s.log.Info("capture stopped")
	if err != nil {
		return fmt.Errorf("close camera: %w", err)
	}
	return nil
}

func (s *Source) loop(ctx context.Context, r *run, handler Handler) {
	defer close(r.done)

	interval := time.Duration(float64(time.Second) / s.cfg.TargetFPS)
	pace := time.NewTimer(interval)
	defer pace.Stop()

	var (
		failures    int
		windowCount int
		windowStart = time.Now()
	)
	for ctx.Err() == nil {
		f, err := r.dev.Read(ctx)
		if ctx.Err() != nil {
			break
		}
		if err != nil || f == nil || f.Image == nil {
			failures++
			if failures > s.cfg.MaxEmptyReads {
				s.fail(r, failures, err)
				return
			}
			if !sleep(ctx, s.cfg.ReadBackoff) {
				break
			}
			continue
		}
		failures = 0

		f.Seq = s.seq.Add(1)
		if f.Timestamp.IsZero() {
			f.Timestamp = time.Now()
		}
		if f.Source == "" {
			f.Source = s.cfg.SourceID
		}
		if f.TraceID == "" {
			f.TraceID = uuid.NewString()
		}
		if handler != nil {
			s.handle(ctx, handler, f)
		}
		s.box.publish(f)

		windowCount++
		if elapsed := time.Since(windowStart); elapsed >= time.Second {
			s.updateFPS(float64(windowCount) / elapsed.Seconds())
			windowCount, windowStart = 0, time.Now()
		}

		pace.Reset(interval)
		select {
		case <-ctx.Done():
		case <-pace.C:
		}
	}
	s.ended(r)
}

func (s *Source) handle(ctx context.Context, handler Handler, f *Frame) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("frame handler panicked", "seq", f.Seq, "panic", p)
		}
	}()
	handler(ctx, f)
}

// fail moves the source to Error after too many bad reads and releases the device.
func (s *Source) fail(r *run, failures int, err error) {
	msg := fmt.Sprintf("%v: %d consecutive empty reads", ErrDeviceRead, failures)
	if err != nil {
		msg += ": " + err.Error()
	}
	s.log.Error("capture failed", "failures", failures, "err", err)
	_ = r.closeDevice()
	s.box.clear()

	s.mu.Lock()
	if s.cur != r || r.stopping {
		s.mu.Unlock()
		return
	}
	s.cur = nil
	s.fps = 0
	s.lastErr = msg
	r.cancel()
	ev := s.setStatusLocked(StatusError, msg)
	s.mu.Unlock()
	s.emit(ev)
}

// ended handles a loop that exited because its parent context was cancelled.
func (s *Source) ended(r *run) {
	s.mu.Lock()
	if s.cur != r || r.stopping {
		s.mu.Unlock()
		return
	}
	s.cur = nil
	s.fps = 0
	ev := s.setStatusLocked(StatusDisconnected, "")
	s.mu.Unlock()
	_ = r.closeDevice()
	s.box.clear()
	s.emit(ev)
}

func (s *Source) updateFPS(fps float64) {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return
	}
	s.fps = fps
	ev := StatusEvent{Status: s.status, FPS: fps, At: time.Now()}
	s.mu.Unlock()
	s.emit(ev)
}

func (s *Source) setStatusLocked(st Status, msg string) StatusEvent {
	s.status = st
	return StatusEvent{Status: st, FPS: s.fps, Message: msg, At: time.Now()}
}

func (s *Source) emit(ev StatusEvent) {
	s.mu.Lock()
	subs := make([]func(StatusEvent), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// sleep waits for d or ctx. It reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
