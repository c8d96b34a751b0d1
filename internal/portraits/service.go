// Package portraits stores director portrait images in S3-compatible
// object storage.
package portraits

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"boardroom/api/internal/util"
)

// Config describes the object storage target.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the externally reachable base URL for serving objects,
	// e.g. a CDN or the MinIO endpoint itself.
	PublicURL string
}

type Service struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// New connects to object storage and ensures the portraits bucket exists.
func New(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Upload stores a director's portrait and returns its public URL. The
// object key is derived from the director name, so re-uploading replaces
// the previous portrait.
func (s *Service) Upload(ctx context.Context, directorName, contentType string, body io.Reader, size int64) (string, error) {
	ext, err := extensionFor(contentType)
	if err != nil {
		return "", err
	}

	key := "portraits/" + util.Slug(directorName) + ext
	_, err = s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=86400",
	})
	if err != nil {
		return "", fmt.Errorf("upload portrait: %w", err)
	}

	return s.objectURL(key), nil
}

// Remove deletes a director's stored portrait, if any.
func (s *Service) Remove(ctx context.Context, directorName string) error {
	prefix := "portraits/" + util.Slug(directorName)
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if object.Err != nil {
			return fmt.Errorf("list portraits: %w", object.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove portrait: %w", err)
		}
	}
	return nil
}

func (s *Service) objectURL(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + s.bucket + "/" + key
	}
	return "/" + s.bucket + "/" + key
}

func extensionFor(contentType string) (string, error) {
	switch contentType {
	case "image/png":
		return ".png", nil
	case "image/jpeg":
		return ".jpg", nil
	case "image/webp":
		return ".webp", nil
	default:
		return "", fmt.Errorf("unsupported portrait content type %q", contentType)
	}
}
