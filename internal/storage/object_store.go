// Package storage moves training artifacts between the local filesystem the
// trainer writes to and a shared location the serving side can pull from.
package storage

import (
	"context"
	"io"
)

// ObjectStore is a flat key/value blob store. Keys use forward slashes.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, data io.Reader) error

	GetObject(ctx context.Context, key string) (io.ReadCloser, error)

	// UploadDir copies every file under src to key prefix/<relative path>.
	UploadDir(ctx context.Context, prefix, src string) error

	// DownloadDir copies every object under prefix into dest, creating it.
	DownloadDir(ctx context.Context, prefix, dest string) error
}
