// Package matcher is a pure-Go identity matcher: each normalised face becomes a
// mean-centred vector searched by cosine distance in an HNSW graph.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// ErrNotTrained is returned by Predict before a successful Train.
var ErrNotTrained = errors.New("matcher not trained")

const maxNeighbors = 16

// Local implements recognition.Matcher.
type Local struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[int]
	labels map[int]string
}

func NewLocal() *Local { return &Local{} }

// Train replaces the index with faces. faces[i] is labelled labels[i].
func (l *Local) Train(ctx context.Context, faces []*image.Gray, labels []string) error {
	if len(faces) != len(labels) {
		return fmt.Errorf("train: %d faces but %d labels", len(faces), len(labels))
	}
	if len(faces) == 0 {
		return errors.New("train: empty corpus")
	}
	g := hnsw.NewGraph[int]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors)
	g.Distance = hnsw.CosineDistance

	byKey := make(map[int]string, len(faces))
	for i, face := range faces {
		if err := ctx.Err(); err != nil {
			return err
		}
		vec, ok := Vector(face)
		if !ok {
			// a flat face has no direction to compare
			continue
		}
		g.Add(hnsw.MakeNode(i, vec))
		byKey[i] = labels[i]
	}
	if len(byKey) == 0 {
		return errors.New("train: every face was blank")
	}

	l.mu.Lock()
	l.graph, l.labels = g, byKey
	l.mu.Unlock()
	return nil
}

// Predict returns the nearest label and its cosine distance in [0, 2].
func (l *Local) Predict(_ context.Context, face *image.Gray) (string, float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.graph == nil {
		return "", 0, ErrNotTrained
	}
	vec, ok := Vector(face)
	if !ok {
		return "", 2, nil
	}
	neighbors := l.graph.Search(vec, 1)
	if len(neighbors) == 0 {
		return "", 2, nil
	}
	n := neighbors[0]
	return l.labels[n.Key], float64(CosineDistance(vec, n.Value)), nil
}

// Size is the number of indexed faces.
func (l *Local) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.labels)
}

// Vector flattens face into a zero-mean vector. ok is false for a uniform image.
func Vector(face *image.Gray) ([]float32, bool) {
	b := face.Bounds()
	vec := make([]float32, 0, b.Dx()*b.Dy())
	var sum float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(face.GrayAt(x, y).Y)
			sum += v
			vec = append(vec, float32(v))
		}
	}
	if len(vec) == 0 {
		return nil, false
	}
	mean := float32(sum / float64(len(vec)))
	var norm float64
	for i := range vec {
		vec[i] -= mean
		norm += float64(vec[i]) * float64(vec[i])
	}
	return vec, norm > 0
}

// CosineDistance is 1 - cos(a, b).
func CosineDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	return float32(math.Max(0, d))
}
