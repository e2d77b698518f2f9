package storage

import (
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/cockroachdb/errors"
)

var (
	ErrInvalidConfig = errors.New("storage: invalid configuration")
	ErrInvalidHandle = errors.New("storage: invalid handle")
	ErrNotFound      = errors.New("storage: file not found")
	ErrAccessDenied  = errors.New("storage: access denied")
	ErrUploadFailed  = errors.New("storage: upload failed")
	ErrDeleteFailed  = errors.New("storage: delete failed")
)

// wrapS3Error maps AWS errors onto the package sentinels. Callers match with
// errors.Is; the AWS error types are not exposed.
func wrapS3Error(err error, fallback error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return errors.Mark(errors.Wrap(err, "storage"), ErrNotFound)
		case "AccessDenied", "Forbidden":
			return errors.Mark(errors.Wrap(err, "storage"), ErrAccessDenied)
		}
	}

	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return errors.Mark(errors.Wrap(err, "storage"), ErrNotFound)
	}
	return errors.Mark(errors.Wrap(err, "storage"), fallback)
}
