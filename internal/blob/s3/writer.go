package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Dineshdataengineer/reactive-stock-trader/internal/domain"
)

// multipartFloor is the smallest part size S3 accepts for multipart uploads.
const multipartFloor int64 = 5 * 1024 * 1024

// Writer uploads archive objects. Journal exports are a single PutObject per
// portfolio; PutMultipart exists for the rare portfolio whose journal
// outgrows a single request.
type Writer struct {
	client *Client
}

// NewWriter creates a Writer over the archive bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{client: c}
}

// Put stores one object under the given key.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.client.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.client.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// PutMultipart streams a large object in concurrent parts through the SDK's
// upload manager. Part sizes under the S3 floor are raised to it.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	if partSize < multipartFloor {
		partSize = multipartFloor
	}

	uploader := manager.NewUploader(w.client.s3, func(u *manager.Uploader) {
		u.PartSize = partSize
	})

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.client.bucket),
		Key:    aws.String(path),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart put %s: %w", path, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.BlobWriter = (*Writer)(nil)
