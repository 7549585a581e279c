package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// ErrNotConfigured is returned by uploads when no bucket client was created.
var ErrNotConfigured = errors.New("object storage is not configured")

// ObjectStore is the put/public-url surface uploads need.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	PublicURL(key string) string
}

type GCSStore struct {
	client        *gcs.Client
	bucket        string
	publicBaseURL string
}

// NewGCSStore uses application default credentials unless opts override them.
func NewGCSStore(ctx context.Context, bucket, publicBaseURL string, opts ...option.ClientOption) (*GCSStore, error) {
	opts = append(opts, option.WithScopes(gcs.ScopeReadWrite))
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSStore{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}, nil
}

// Put writes a new object and refuses to overwrite an existing key.
func (s *GCSStore) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	if s == nil || s.client == nil {
		return 0, ErrNotConfigured
	}
	obj := s.client.Bucket(s.bucket).Object(key).If(gcs.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return 0, fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("close object writer: %w", err)
	}
	return n, nil
}

func (s *GCSStore) PublicURL(key string) string {
	return PublicURL(s.publicBaseURL, s.bucket, key)
}

func (s *GCSStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func PublicURL(baseURL, bucket, key string) string {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if baseURL != "" {
		return fmt.Sprintf("%s/%s/%s", baseURL, bucket, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}

// ObjectKey names an upload <unix-ms>_<random>.<ext>, keeping the client's extension.
func ObjectKey(fileName string, now time.Time) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if ext == "" {
		ext = "bin"
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	return fmt.Sprintf("%d_%s.%s", now.UnixMilli(), random, ext)
}
