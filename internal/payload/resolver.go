// Package payload resolves media references into inline bytes. Analysis
// tasks usually carry an object-store reference ("bucket/key" or a bare key
// in the default bucket) rather than inline data; the resolver fetches the
// object before dispatch so providers receive the media itself.
package payload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrEmptyReference indicates a task with neither inline data nor a
// resolvable reference.
var ErrEmptyReference = errors.New("empty payload reference")

// Config holds the S3-compatible storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Resolver fetches payload objects from S3-compatible storage.
type Resolver struct {
	client        *minio.Client
	defaultBucket string
}

// NewResolver connects to the configured object store.
func NewResolver(cfg Config) (*Resolver, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("payload endpoint not configured")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("payload: connect to object store: %w", err)
	}

	return &Resolver{client: client, defaultBucket: cfg.Bucket}, nil
}

// Resolve fetches the object a reference points at.
func (r *Resolver) Resolve(ctx context.Context, ref string) ([]byte, error) {
	bucket, key, err := ParseReference(ref, r.defaultBucket)
	if err != nil {
		return nil, err
	}

	obj, err := r.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("payload: fetch %s/%s: %w", bucket, key, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("payload: read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// ParseReference splits a reference into bucket and key. "bucket/key/path"
// addresses an explicit bucket; a bare key falls back to defaultBucket.
func ParseReference(ref, defaultBucket string) (bucket, key string, err error) {
	ref = strings.TrimSpace(strings.TrimPrefix(ref, "/"))
	if ref == "" {
		return "", "", ErrEmptyReference
	}

	if idx := strings.IndexByte(ref, '/'); idx > 0 && idx < len(ref)-1 {
		return ref[:idx], ref[idx+1:], nil
	}

	if defaultBucket == "" {
		return "", "", fmt.Errorf("reference %q has no bucket and no default bucket is configured", ref)
	}
	return defaultBucket, ref, nil
}
