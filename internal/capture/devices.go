package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"sync"
	"time"
)

var errDeviceClosed = errors.New("device closed")

// SyntheticDevice generates frames without a camera. With Images set it cycles
// through them, otherwise it draws a moving gradient.
type SyntheticDevice struct {
	Width, Height int
	Images        []image.Image

	mu     sync.Mutex
	n      int
	closed bool
}

func NewSyntheticDevice(width, height int, images ...image.Image) *SyntheticDevice {
	return &SyntheticDevice{Width: width, Height: height, Images: images}
}

func (d *SyntheticDevice) Read(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errDeviceClosed
	}
	n := d.n
	d.n++
	if len(d.Images) > 0 {
		return &Frame{Timestamp: time.Now(), Image: d.Images[n%len(d.Images)]}, nil
	}
	img := image.NewGray(image.Rect(0, 0, d.Width, d.Height))
	for y := 0; y < d.Height; y++ {
		for x := 0; x < d.Width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y + n*4) % 256)})
		}
	}
	return &Frame{Timestamp: time.Now(), Image: img}, nil
}

func (d *SyntheticDevice) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

// SnapshotDevice polls an HTTP endpoint that returns one JPEG or PNG per request,
// as most IP cameras expose.
type SnapshotDevice struct {
	url    string
	client *http.Client
	base   context.Context
	cancel context.CancelFunc
}

// OpenSnapshot probes url once so a dead camera fails at open time.
func OpenSnapshot(ctx context.Context, url string, client *http.Client) (*SnapshotDevice, error) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	base, cancel := context.WithCancel(context.Background())
	d := &SnapshotDevice{url: url, client: client, base: base, cancel: cancel}
	if _, err := d.Read(ctx); err != nil {
		cancel()
		return nil, err
	}
	return d, nil
}

// Read fetches one snapshot. Close aborts an in-flight request.
func (d *SnapshotDevice) Read(ctx context.Context) (*Frame, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.base, cancel)
	defer stop()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot %s: status %d", d.url, resp.StatusCode)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &Frame{Timestamp: time.Now(), Image: img}, nil
}

func (d *SnapshotDevice) Close() error {
	d.cancel()
	return nil
}

// NewOpener returns the Opener for driver ("synthetic" or "snapshot").
// For snapshot, index selects an entry of urls.
func NewOpener(driver string, urls []string, client *http.Client) (Opener, error) {
	switch driver {
	case "", "synthetic":
		return func(context.Context, int) (Device, error) {
			return NewSyntheticDevice(320, 240), nil
		}, nil
	case "snapshot":
		return func(ctx context.Context, index int) (Device, error) {
			if index < 0 || index >= len(urls) {
				return nil, fmt.Errorf("no snapshot url for camera %d (%d configured)", index, len(urls))
			}
			return OpenSnapshot(ctx, urls[index], client)
		}, nil
	default:
		return nil, fmt.Errorf("unknown camera driver %q", driver)
	}
}
