package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// LocalStore writes uploads into a single directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed. An empty dir means os.TempDir()/kiln-uploads.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "kiln-uploads")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "storage: create %s", dir), ErrInvalidConfig)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the backing directory.
func (l *LocalStore) Dir() string { return l.dir }

func (l *LocalStore) SaveTemporaryFile(ctx context.Context, name string, r io.Reader) (*TempFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contentType, body := Sniff(r)

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "storage: handle")
	}
	handle := id.String() + Extension(contentType)

	f, err := os.OpenFile(filepath.Join(l.dir, handle), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "storage: create"), ErrUploadFailed)
	}

	cr := &countingReader{r: body}
	_, copyErr := io.Copy(f, cr)
	closeErr := f.Close()
	if err := errors.CombineErrors(copyErr, closeErr); err != nil {
		_ = os.Remove(f.Name())
		return nil, errors.Mark(errors.Wrap(err, "storage: write"), ErrUploadFailed)
	}

	return &TempFile{
		Handle:      handle,
		Name:        name,
		ContentType: contentType,
		Size:        cr.n,
		StoredAt:    time.Now(),
	}, nil
}

func (l *LocalStore) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	path, err := l.path(handle)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, errors.Wrap(err, "storage: open")
}

func (l *LocalStore) Remove(_ context.Context, handle string) error {
	path, err := l.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Mark(errors.Wrap(err, "storage: remove"), ErrDeleteFailed)
	}
	return nil
}

// Sweep removes files whose modification time is before the given time.
func (l *LocalStore) Sweep(ctx context.Context, before time.Time) (int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, errors.Wrap(err, "storage: list")
	}
	n := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(before) {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, e.Name())); err == nil {
			n++
		}
	}
	return n, nil
}

// path rejects handles that would escape the directory.
func (l *LocalStore) path(handle string) (string, error) {
	if handle == "" || strings.ContainsAny(handle, `/\`) || handle == "." || handle == ".." {
		return "", ErrInvalidHandle
	}
	return filepath.Join(l.dir, handle), nil
}

var _ TempStore = (*LocalStore)(nil)
