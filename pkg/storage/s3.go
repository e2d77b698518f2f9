package storage

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// S3Config configures an S3Store. Fields load from KILN_S3_* variables.
type S3Config struct {
	Bucket    string `env:"KILN_S3_BUCKET"`
	AccessKey string `env:"KILN_S3_ACCESS_KEY"`
	SecretKey string `env:"KILN_S3_SECRET_KEY"`
	Region    string `env:"KILN_S3_REGION" envDefault:"us-east-1"`

	// Endpoint targets MinIO or another S3-compatible service.
	Endpoint  string `env:"KILN_S3_ENDPOINT"`
	PathStyle bool   `env:"KILN_S3_PATH_STYLE"`

	// Prefix is prepended to every key.
	Prefix string `env:"KILN_S3_PREFIX" envDefault:"tmp/uploads"`
}

func (c *S3Config) validate() error {
	if c.Bucket == "" || c.AccessKey == "" || c.SecretKey == "" {
		return ErrInvalidConfig
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	return nil
}

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps uploads in a bucket. Streams are spooled to a local temp file
// first so the object can be sent with a known length.
type S3Store struct {
	client s3API
	cfg    S3Config
}

// NewS3Store validates cfg and builds a client with static credentials.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := s3.New(s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		}
	})
	return &S3Store{client: client, cfg: cfg}, nil
}

func (s *S3Store) key(handle string) string {
	return path.Join(strings.Trim(s.cfg.Prefix, "/"), handle)
}

func (s *S3Store) SaveTemporaryFile(ctx context.Context, name string, r io.Reader) (*TempFile, error) {
	contentType, body := Sniff(r)

	spool, err := os.CreateTemp("", "kiln-spool-*")
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "storage: spool"), ErrUploadFailed)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	size, err := io.Copy(spool, body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "storage: spool"), ErrUploadFailed)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "storage: spool"), ErrUploadFailed)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "storage: handle")
	}
	handle := id.String() + Extension(contentType)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(s.key(handle)),
		Body:          spool,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{"original-name": name},
	})
	if err != nil {
		return nil, wrapS3Error(err, ErrUploadFailed)
	}

	return &TempFile{
		Handle:      handle,
		Name:        name,
		ContentType: contentType,
		Size:        size,
		StoredAt:    time.Now(),
	}, nil
}

func (s *S3Store) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	if handle == "" || strings.Contains(handle, "/") {
		return nil, ErrInvalidHandle
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(handle)),
	})
	if err != nil {
		return nil, wrapS3Error(err, ErrNotFound)
	}
	return out.Body, nil
}

func (s *S3Store) Remove(ctx context.Context, handle string) error {
	if handle == "" || strings.Contains(handle, "/") {
		return ErrInvalidHandle
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(handle)),
	})
	if err != nil {
		return wrapS3Error(err, ErrDeleteFailed)
	}
	return nil
}

// Sweep deletes objects under the prefix last modified before the given time.
func (s *S3Store) Sweep(ctx context.Context, before time.Time) (int, error) {
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})

	n := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return n, wrapS3Error(err, ErrNotFound)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(before) {
				continue
			}
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.cfg.Bucket),
				Key:    obj.Key,
			})
			if err != nil {
				return n, wrapS3Error(err, ErrDeleteFailed)
			}
			n++
		}
	}
	return n, nil
}

var _ TempStore = (*S3Store)(nil)
