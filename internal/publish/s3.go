package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"shortsfactory/internal/config"
	"shortsfactory/internal/services"
	"shortsfactory/internal/textutil"
)

const (
	uploadAttempts       = 4
	uploadInitialBackoff = 2 * time.Second
	uploadMaxBackoff     = 30 * time.Second
)

// objectStore is the subset of *minio.Client the backend needs.
type objectStore interface {
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// S3Backend uploads clips to an S3-compatible bucket.
type S3Backend struct {
	client    objectStore
	bucket    string
	prefix    string
	publicURL string
	endpoint  string
	secure    bool
	backoff   func() backoff.BackOff
}

// NewS3Backend connects to the configured endpoint. No request is made
// until the first upload or health check.
func NewS3Backend(cfg config.S3) (*S3Backend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "s3 client", "invalid endpoint", err)
	}
	return newS3Backend(client, cfg), nil
}

func newS3Backend(client objectStore, cfg config.S3) *S3Backend {
	return &S3Backend{
		client:    client,
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		endpoint:  cfg.Endpoint,
		secure:    cfg.UseSSL,
		backoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = uploadInitialBackoff
			bo.MaxInterval = uploadMaxBackoff
			return bo
		},
	}
}

func (b *S3Backend) Name() string { return "s3" }

// Check confirms the bucket exists and the credentials can see it.
func (b *S3Backend) Check(ctx context.Context) error {
	ok, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("s3 bucket %s: %w", b.bucket, err)
	}
	if !ok {
		return fmt.Errorf("s3 bucket %s does not exist", b.bucket)
	}
	return nil
}

// Upload puts the clip under <prefix>/<job>.mp4, retrying transient errors
// with exponential backoff. Metadata travels as object user metadata.
func (b *S3Backend) Upload(ctx context.Context, upload Upload) (Receipt, error) {
	key := b.objectKey(upload)
	opts := minio.PutObjectOptions{
		ContentType:        "video/mp4",
		ContentDisposition: fmt.Sprintf("inline; filename=%q", textutil.Slug(upload.Metadata.Title, 80)+path.Ext(upload.VideoPath)),
		UserMetadata: map[string]string{
			"job-id":  upload.JobID,
			"title":   upload.Metadata.Title,
			"privacy": upload.Metadata.PrivacyStatus,
		},
	}

	info, err := backoff.Retry(ctx, func() (minio.UploadInfo, error) {
		info, err := b.client.FPutObject(ctx, b.bucket, key, upload.VideoPath, opts)
		if err != nil && !retryableS3(err) {
			return info, backoff.Permanent(err)
		}
		return info, err
	}, backoff.WithBackOff(b.backoff()), backoff.WithMaxTries(uploadAttempts))
	if err != nil {
		return Receipt{}, services.Wrap(services.ErrTransient, "publish", "s3 upload", key, err)
	}

	id := b.bucket + "/" + key
	if info.VersionID != "" {
		id += "@" + info.VersionID
	}
	return Receipt{PlatformID: "s3:" + id, URL: b.objectURL(key)}, nil
}

func (b *S3Backend) objectKey(upload Upload) string {
	name := upload.JobID + path.Ext(upload.VideoPath)
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}

func (b *S3Backend) objectURL(key string) string {
	if b.publicURL != "" {
		return b.publicURL + "/" + key
	}
	scheme := "http"
	if b.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, b.endpoint, b.bucket, key)
}

// retryableS3 treats server-side and throttling responses as transient.
// Client errors such as a missing bucket or bad credentials are not.
func retryableS3(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	resp := minio.ToErrorResponse(err)
	if resp.StatusCode == 0 {
		return true
	}
	return resp.StatusCode >= 500 || resp.StatusCode == 429
}
