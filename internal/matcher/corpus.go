package matcher

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/webp"

	"faceclock/internal/recognition"
)

// Corpus is a set of preprocessed enrollment faces.
type Corpus struct {
	Faces  []*image.Gray
	Labels []string
}

// People returns the distinct labels in the corpus.
func (c Corpus) People() []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range c.Labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// LoadCorpus reads <dir>/<personID>/*.{jpg,jpeg,png,webp}. Each image goes through the
// detector and the same preprocessing used at inference. Images without a face
// are skipped with a warning.
func LoadCorpus(ctx context.Context, dir string, det recognition.Detector, log *slog.Logger) (Corpus, error) {
	if log == nil {
		log = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Corpus{}, fmt.Errorf("read enroll dir: %w", err)
	}
	var c Corpus
	for _, person := range entries {
		if !person.IsDir() {
			continue
		}
		personDir := filepath.Join(dir, person.Name())
		files, err := os.ReadDir(personDir)
		if err != nil {
			return Corpus{}, err
		}
		for _, f := range files {
			if f.IsDir() || !isImage(f.Name()) {
				continue
			}
			path := filepath.Join(personDir, f.Name())
			face, err := loadFace(ctx, path, det)
			if err != nil {
				log.Warn("skipping enrollment image", "path", path, "err", err)
				continue
			}
			c.Faces = append(c.Faces, face)
			c.Labels = append(c.Labels, person.Name())
		}
	}
	return c, nil
}

func loadFace(ctx context.Context, path string, det recognition.Detector) (*image.Gray, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, err
	}
	boxes, err := det.Detect(ctx, img)
	if err != nil {
		return nil, err
	}
	box, ok := recognition.Largest(boxes)
	if !ok {
		return nil, fmt.Errorf("no face found")
	}
	return recognition.Preprocess(img, box)
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}
