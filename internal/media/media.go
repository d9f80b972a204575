// Package media stores uploaded images and returns their public URL.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/eventual/internal/metrics"
	"github.com/ukydev/eventual/internal/models"
)

// MaxUploadSize bounds the size of one uploaded file.
const MaxUploadSize = 10 << 20

// ErrDisabled is wrapped by DisabledUploader failures.
var ErrDisabled = errors.New("media uploads are not configured")

// File is an image attached to a create request.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// Uploader stores a file and returns a stable URL for it. Failures are
// *models.UpstreamError.
type Uploader interface {
	Upload(ctx context.Context, f File) (string, error)
}

// DisabledUploader rejects every upload.
type DisabledUploader struct{}

// Upload implements Uploader.
func (DisabledUploader) Upload(ctx context.Context, f File) (string, error) {
	return "", &models.UpstreamError{Service: "media", Err: ErrDisabled}
}

// S3Config describes an S3 compatible bucket.
type S3Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// S3Uploader puts files into an S3 compatible bucket under media/.
type S3Uploader struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3Uploader creates an uploader using static credentials and path-style
// addressing, which works with AWS as well as MinIO-like services.
func NewS3Uploader(cfg S3Config) *S3Uploader {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	base := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if base == "" {
		if cfg.Endpoint != "" {
			base = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}

	return &S3Uploader{
		client:        s3.New(opts),
		bucket:        cfg.Bucket,
		publicBaseURL: base,
	}
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, f File) (string, error) {
	// One byte past the limit is read to detect oversized files.
	data, err := io.ReadAll(io.LimitReader(f.Body, MaxUploadSize+1))
	if err != nil {
		return "", &models.UpstreamError{Service: "media", Err: fmt.Errorf("read upload: %w", err)}
	}
	if len(data) > MaxUploadSize {
		return "", &models.ValidationError{Field: "image", Message: fmt.Sprintf("image exceeds %d bytes", MaxUploadSize)}
	}
	if len(data) == 0 {
		return "", &models.ValidationError{Field: "image", Message: "image is empty"}
	}

	key := objectKey(f.Name)
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		metrics.ObserveMediaUpload(false)
		return "", &models.UpstreamError{Service: "media", Err: err}
	}
	metrics.ObserveMediaUpload(true)

	url := u.publicBaseURL + "/" + key
	log.WithFields(log.Fields{"key": key, "size": len(data)}).Info("Uploaded media")
	return url, nil
}

func objectKey(name string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(name, "\\", "/"))))
	if len(ext) > 8 {
		ext = ""
	}
	return "media/" + uuid.NewString() + ext
}
