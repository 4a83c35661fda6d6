package storage_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"heart-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetObject(t *testing.T) {
	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.PutObject(ctx, "artifacts/model.json", bytes.NewReader([]byte(`{"type":"x"}`))))

	reader, err := store.GetObject(ctx, "artifacts/model.json")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"x"}`, string(data))
}

func TestGetMissingObject(t *testing.T) {
	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), "nope.json")
	assert.Error(t, err)
}

func TestUploadDownloadDirRoundTrip(t *testing.T) {
	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "model.json"), []byte("model"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "preprocessor.json"), []byte("pipeline"), 0o644))

	require.NoError(t, store.UploadDir(ctx, "artifacts", src))

	dest := filepath.Join(t.TempDir(), "downloaded")
	require.NoError(t, store.DownloadDir(ctx, "artifacts", dest))

	model, err := os.ReadFile(filepath.Join(dest, "model.json"))
	require.NoError(t, err)
	assert.Equal(t, "model", string(model))

	pipeline, err := os.ReadFile(filepath.Join(dest, "preprocessor.json"))
	require.NoError(t, err)
	assert.Equal(t, "pipeline", string(pipeline))
}

func TestDownloadDirMissingPrefix(t *testing.T) {
	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)

	err = store.DownloadDir(context.Background(), "absent", t.TempDir())
	assert.Error(t, err)
}
