package s3blob

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// Archiver implements domain.SnapshotArchiver, uploading snapshot copies
// under an optional key prefix. Uploads go through the SDK upload manager so
// oversized payloads are split into parts transparently.
type Archiver struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewArchiver creates an Archiver writing to the client's bucket.
func NewArchiver(c *Client, prefix string) *Archiver {
	return &Archiver{
		uploader: manager.NewUploader(c.S3()),
		bucket:   c.Bucket(),
		prefix:   prefix,
	}
}

// Archive uploads one snapshot payload under key.
func (a *Archiver) Archive(ctx context.Context, key string, data io.Reader) error {
	fullKey := key
	if a.prefix != "" {
		fullKey = path.Join(a.prefix, key)
	}

	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(fullKey),
		Body:        data,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: archive %s: %w", fullKey, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotArchiver = (*Archiver)(nil)
