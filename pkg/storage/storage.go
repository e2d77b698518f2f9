package storage

import (
	"context"
	"io"
	"time"
)

// TempStore keeps uploaded files until they are claimed or swept.
type TempStore interface {
	// SaveTemporaryFile consumes r and returns the stored file.
	SaveTemporaryFile(ctx context.Context, name string, r io.Reader) (*TempFile, error)

	// Open returns the content behind a handle. The caller closes it.
	Open(ctx context.Context, handle string) (io.ReadCloser, error)

	// Remove deletes the file behind a handle. Missing files are not an error.
	Remove(ctx context.Context, handle string) error

	// Sweep removes files stored before the given time.
	Sweep(ctx context.Context, before time.Time) (int, error)
}

// TempFile describes a stored upload.
type TempFile struct {
	Handle      string
	Name        string
	ContentType string
	Size        int64
	StoredAt    time.Time
}
