package internal

import (
	"context"
	"io"
	"mime"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/kilnhq/kiln/pkg/storage"
)

// MultipartLimits bounds multipart draining. Zero means unlimited.
type MultipartLimits struct {
	MaxFileSize  int64
	MaxFieldSize int64
	MaxFiles     int
}

// Limits applied until WithMultipartLimits or WithConfig replaces them.
const (
	DefaultMaxFileSize  = 10 << 20
	DefaultMaxFieldSize = 1 << 20
	DefaultMaxFiles     = 10
)

// DefaultMultipartLimits returns the limits a new server starts with.
func DefaultMultipartLimits() MultipartLimits {
	return MultipartLimits{
		MaxFileSize:  DefaultMaxFileSize,
		MaxFieldSize: DefaultMaxFieldSize,
		MaxFiles:     DefaultMaxFiles,
	}
}

var errPartTooLarge = errors.New("kiln: multipart part too large")

// UploadedFile is a file part drained into temporary storage before the
// handler runs.
type UploadedFile struct {
	store storage.TempStore
	file  *storage.TempFile
	field string
}

func (f *UploadedFile) FieldName() string    { return f.field }
func (f *UploadedFile) OriginalName() string { return f.file.Name }
func (f *UploadedFile) Handle() string       { return f.file.Handle }
func (f *UploadedFile) Size() int64          { return f.file.Size }
func (f *UploadedFile) MimeType() string     { return f.file.ContentType }

// Extension returns the extension of the original name, falling back to the
// one registered for the sniffed MIME type.
func (f *UploadedFile) Extension() string {
	if ext := filepath.Ext(f.file.Name); ext != "" {
		return strings.ToLower(ext)
	}
	return storage.Extension(f.file.ContentType)
}

// Open returns the stored content. The caller closes it.
func (f *UploadedFile) Open(ctx context.Context) (io.ReadCloser, error) {
	return f.store.Open(ctx, f.file.Handle)
}

// Remove deletes the stored content.
func (f *UploadedFile) Remove(ctx context.Context) error {
	return f.store.Remove(ctx, f.file.Handle)
}

func isMultipart(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mt, "multipart/")
}

// drainMultipart reads every part of a multipart body. File parts go to
// store, field parts into the returned form.
func drainMultipart(ctx context.Context, c *requestContext, store storage.TempStore, limits MultipartLimits, m *metrics) error {
	mr, err := c.request.MultipartReader()
	if err != nil {
		return BadRequest("malformed multipart body").WithCause(err)
	}
	form := url.Values{}
	c.form = form
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return BadRequest("malformed multipart body").WithCause(err)
		}

		if part.FileName() == "" {
			b, err := io.ReadAll(limitPart(part, limits.MaxFieldSize))
			_ = part.Close()
			if errors.Is(err, errPartTooLarge) {
				return PayloadTooLarge("field " + part.FormName() + " exceeds the size limit").WithCause(err)
			}
			if err != nil {
				return BadRequest("malformed multipart body").WithCause(err)
			}
			form.Add(part.FormName(), string(b))
			continue
		}

		if limits.MaxFiles > 0 && len(c.files) >= limits.MaxFiles {
			_ = part.Close()
			return PayloadTooLarge("too many files")
		}
		tf, err := store.SaveTemporaryFile(ctx, part.FileName(), limitPart(part, limits.MaxFileSize))
		_ = part.Close()
		if errors.Is(err, errPartTooLarge) {
			return PayloadTooLarge("file " + part.FileName() + " exceeds the size limit").WithCause(err)
		}
		if err != nil {
			return errors.Wrapf(err, "kiln: store upload %q", part.FileName())
		}
		c.files = append(c.files, &UploadedFile{store: store, file: tf, field: part.FormName()})
		m.upload()
	}
}

type partLimiter struct {
	r         io.Reader
	remaining int64
}

func limitPart(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	return &partLimiter{r: r, remaining: max}
}

func (l *partLimiter) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errPartTooLarge
	}
	return n, err
}
