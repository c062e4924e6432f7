package share

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"droplink/internal/logging"
)

// S3Storage implements Storage against any S3-compatible endpoint via the
// MinIO client.
type S3Storage struct {
	client *minio.Client
	bucket string
	prefix string
}

// S3Config holds configuration for S3-compatible storage.
type S3Config struct {
	Endpoint  string // host:port, or http(s)://host:port
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // optional folder prefix for all objects
}

// NewS3Storage creates a new S3-backed storage and verifies the bucket exists.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	endpoint, secure, err := normalizeEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	logging.S3.Printf("initializing storage (bucket=%s, prefix=%s, endpoint=%s)", cfg.Bucket, cfg.Prefix, endpoint)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bucket does not exist: %s", cfg.Bucket)
	}

	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// normalizeEndpoint accepts either "host:9000" or "http(s)://host:9000".
func normalizeEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, err
		}
		if u.Host == "" {
			return "", false, fmt.Errorf("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, fmt.Errorf("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	// No scheme, treat as host:port (insecure by default for local setups).
	return raw, false, nil
}

func (s *S3Storage) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *S3Storage) Save(ctx context.Context, name string, data io.Reader) (int64, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, s.key(name), data, -1, minio.PutObjectOptions{})
	if err != nil {
		logging.S3.Printf("upload failed for %s: %v", name, err)
		return 0, err
	}
	return info.Size, nil
}

func (s *S3Storage) Load(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}

	// GetObject is lazy; stat to surface missing objects now.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (s *S3Storage) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *S3Storage) List(ctx context.Context) ([]ObjectInfo, error) {
	opts := minio.ListObjectsOptions{Recursive: true}
	if s.prefix != "" {
		opts.Prefix = s.prefix + "/"
	}

	var objects []ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := obj.Key
		if s.prefix != "" {
			name = strings.TrimPrefix(name, s.prefix+"/")
		}
		objects = append(objects, ObjectInfo{
			Name:    name,
			Size:    obj.Size,
			ModTime: obj.LastModified,
		})
	}
	return objects, nil
}
