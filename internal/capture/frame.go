// Package capture runs the camera loop: one goroutine per running source reads
// frames, hands them to a synchronous handler and keeps only the latest one.
package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"
)

var (
	ErrDeviceOpen = errors.New("capture device open failed")
	ErrDeviceRead = errors.New("capture device read failed")
	ErrStopping   = errors.New("capture source is stopping")
)

// Frame is one captured image.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Image     image.Image
	Source    string
	TraceID   string
}

// Device is an opened camera. Read may block; Close must unblock a pending Read.
type Device interface {
	Read(ctx context.Context) (*Frame, error)
	Close() error
}

// Opener opens camera number index.
type Opener func(ctx context.Context, index int) (Device, error)

// Status is the lifecycle state of a Source.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusStarting     Status = "starting"
	StatusRunning      Status = "running"
	StatusStopping     Status = "stopping"
	StatusError        Status = "error"
)

// StatusEvent is delivered to subscribers on every status change and fps update.
type StatusEvent struct {
	Status  Status    `json:"status"`
	FPS     float64   `json:"fps"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// mailbox holds the most recent frame. A newer frame always replaces an older one;
// replacing a frame nobody read counts as a drop.
type mailbox struct {
	mu        sync.Mutex
	frame     *Frame
	unread    bool
	published uint64
	dropped   uint64
}

func (m *mailbox) publish(f *Frame) {
	m.mu.Lock()
	if m.frame != nil && m.unread {
		m.dropped++
	}
	m.frame = f
	m.unread = true
	m.published++
	m.mu.Unlock()
}

func (m *mailbox) latest() *Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unread = false
	return m.frame
}

func (m *mailbox) clear() {
	m.mu.Lock()
	m.frame = nil
	m.unread = false
	m.mu.Unlock()
}

func (m *mailbox) counts() (published, dropped uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.dropped
}
