package capture

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 12, 9))))
	return buf.Bytes()
}

func TestSyntheticDevice(t *testing.T) {
	d := NewSyntheticDevice(10, 6)
	f, err := d.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 6), f.Image.Bounds())

	require.NoError(t, d.Close())
	_, err = d.Read(context.Background())
	assert.Error(t, err)
}

func TestSyntheticDeviceCyclesImages(t *testing.T) {
	a := image.NewGray(image.Rect(0, 0, 1, 1))
	b := image.NewGray(image.Rect(0, 0, 2, 2))
	d := NewSyntheticDevice(0, 0, a, b)
	ctx := context.Background()

	for _, want := range []image.Image{a, b, a} {
		f, err := d.Read(ctx)
		require.NoError(t, err)
		assert.Same(t, want, f.Image)
	}
}

func TestSnapshotDevice(t *testing.T) {
	body := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	open, err := NewOpener("snapshot", []string{srv.URL}, srv.Client())
	require.NoError(t, err)
	dev, err := open(context.Background(), 0)
	require.NoError(t, err)

	f, err := dev.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 12, 9), f.Image.Bounds())

	require.NoError(t, dev.Close())
	_, err = dev.Read(context.Background())
	assert.Error(t, err)
}

func TestSnapshotOpenFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	open, err := NewOpener("snapshot", []string{srv.URL}, srv.Client())
	require.NoError(t, err)

	_, err = open(context.Background(), 0)
	assert.ErrorContains(t, err, "status 503")

	_, err = open(context.Background(), 1)
	assert.ErrorContains(t, err, "no snapshot url for camera 1")
}

func TestNewOpenerUnknownDriver(t *testing.T) {
	_, err := NewOpener("v4l2", nil, nil)
	assert.Error(t, err)

	open, err := NewOpener("synthetic", nil, nil)
	require.NoError(t, err)
	dev, err := open(context.Background(), 3)
	require.NoError(t, err)
	assert.NoError(t, dev.Close())
}
