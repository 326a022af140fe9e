package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceclock/internal/store"
)

func writeFace(t *testing.T, path string, vertical bool) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			v := x * 10
			if vertical {
				v = y * 10
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	fh, err := os.Create(path)
	require.NoError(t, err)
	defer fh.Close()
	require.NoError(t, png.Encode(fh, img))
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestMigrateAndTrain(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "faceclock.db")
	enroll := filepath.Join(dir, "enroll")
	writeFace(t, filepath.Join(enroll, "alice", "1.png"), false)
	writeFace(t, filepath.Join(enroll, "bob", "1.png"), true)

	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", dbPath)
	t.Setenv("ENROLL_DIR", enroll)
	t.Setenv("LOG_LEVEL", "error")

	assert.Contains(t, run(t, "migrate"), "schema applied (sqlite)")
	out := run(t, "train", "--register")
	assert.Contains(t, out, "trained local matcher on 2 faces of 2 people")
	assert.Contains(t, out, "registered 2 new people")

	db, err := store.NewSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	defer db.Close()
	people, err := db.Backend().ListPeople(context.Background())
	require.NoError(t, err)
	assert.Len(t, people, 2)

	assert.Contains(t, run(t, "train", "--register"), "registered 0 new people")
}

func TestWorkerRequiresRedisQueue(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "error")
	rootCmd.SetArgs([]string{"worker"})
	err := rootCmd.ExecuteContext(context.Background())
	assert.ErrorContains(t, err, "QUEUE_BACKEND=redis")
}

func TestInvalidConfiguration(t *testing.T) {
	t.Setenv("STORE_BACKEND", "mongo")
	rootCmd.SetArgs([]string{"migrate"})
	assert.ErrorContains(t, rootCmd.ExecuteContext(context.Background()), "STORE_BACKEND")
}
