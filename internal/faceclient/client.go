// Package faceclient talks to an external face microservice. The client
// implements recognition.Detector and recognition.Matcher.
package faceclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"time"

	"faceclock/internal/recognition"
)

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

type box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detect asks the service for face boxes in img.
func (c *Client) Detect(ctx context.Context, img image.Image) ([]recognition.Box, error) {
	if c.Skip {
		b := img.Bounds()
		return []recognition.Box{{X: b.Min.X, Y: b.Min.Y, Width: b.Dx(), Height: b.Dy()}}, nil
	}
	encoded, err := encodeImage(img)
	if err != nil {
		return nil, err
	}

	var out struct {
		Faces []box `json:"faces"`
	}
	if err := c.post(ctx, "/detect", map[string]string{"image": encoded}, &out); err != nil {
		return nil, err
	}
	boxes := make([]recognition.Box, 0, len(out.Faces))
	for _, f := range out.Faces {
		boxes = append(boxes, recognition.Box{X: f.X, Y: f.Y, Width: f.Width, Height: f.Height})
	}
	return boxes, nil
}

type trainSample struct {
	Label string `json:"label"`
	Image string `json:"image"`
}

// Train uploads the labelled corpus. The service replaces its model.
func (c *Client) Train(ctx context.Context, faces []*image.Gray, labels []string) error {
	if len(faces) != len(labels) {
		return fmt.Errorf("train: %d faces but %d labels", len(faces), len(labels))
	}
	if c.Skip {
		return nil
	}
	samples := make([]trainSample, 0, len(faces))
	for i, face := range faces {
		encoded, err := encodeImage(face)
		if err != nil {
			return err
		}
		samples = append(samples, trainSample{Label: labels[i], Image: encoded})
	}

	var out struct {
		Trained int `json:"trained"`
	}
	if err := c.post(ctx, "/train", map[string]any{"samples": samples}, &out); err != nil {
		return err
	}
	if out.Trained == 0 && len(samples) > 0 {
		return fmt.Errorf("face service trained no samples")
	}
	return nil
}

// Predict returns the nearest label and its distance, lower is closer.
func (c *Client) Predict(ctx context.Context, face *image.Gray) (string, float64, error) {
	if c.Skip {
		return "mock-user", 0.1, nil
	}
	encoded, err := encodeImage(face)
	if err != nil {
		return "", 0, err
	}

	var out struct {
		Label    string  `json:"label"`
		Distance float64 `json:"distance"`
	}
	if err := c.post(ctx, "/predict", map[string]string{"image": encoded}, &out); err != nil {
		return "", 0, err
	}
	return out.Label, out.Distance, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}

	return nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func encodeImage(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
