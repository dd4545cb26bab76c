// storage.go - Object Storage Adapter.
//
// Uploaded bytes live behind an opaque storage reference. For objects
// we store ourselves that is a MinIO object key; references carrying an
// http(s) scheme are resolved by fetching the upstream resource, so a
// row may point at an external URL and still download through the same
// path.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// StoredObject is what the adapter hands back after a successful store.
type StoredObject struct {
	Ref  string
	Size int64
}

// ObjectStore abstracts where file bytes live. Store streams the
// payload to durable storage and returns its reference; Fetch resolves
// a reference back into a byte stream with its content type and size
// (size < 0 when unknown).
type ObjectStore interface {
	Store(ctx context.Context, r io.Reader, contentType string) (StoredObject, error)
	Fetch(ctx context.Context, ref string) (io.ReadCloser, string, int64, error)
}

// MinioStore implements ObjectStore on a MinIO/S3 bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	// httpClient resolves external http(s) references.
	httpClient *http.Client
}

func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("empty endpoint")
	}

	// Accept either "minio:9000" or "http://minio:9000" / "https://minio:9000".
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
		secure = (u.Scheme == "https")
		return u.Host, secure, nil
	}

	// No scheme provided, treat as host:port (insecure by default for local MinIO).
	return raw, false, nil
}

// NewMinioStoreFromEnv builds the storage adapter from FV_S3_ENDPOINT,
// FV_S3_ACCESS_KEY, FV_S3_SECRET_KEY and FV_BUCKET.
func NewMinioStoreFromEnv() (*MinioStore, error) {
	rawEndpoint := os.Getenv("FV_S3_ENDPOINT")
	accessKey := os.Getenv("FV_S3_ACCESS_KEY")
	secretKey := os.Getenv("FV_S3_SECRET_KEY")
	bucket := os.Getenv("FV_BUCKET")

	if rawEndpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		return nil, fmt.Errorf("object storage configuration incomplete")
	}

	endpoint, secure, err := normaliseEndpoint(rawEndpoint)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}

	// Sanity check: bucket must exist.
	exists, err := client.BucketExists(context.Background(), bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bucket does not exist: %s", bucket)
	}

	return NewMinioStore(client, bucket), nil
}

func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{
		client:     client,
		bucket:     bucket,
		httpClient: http.DefaultClient,
	}
}

// Store streams the payload to the bucket under a fresh non-guessable
// key and reports the byte count actually written.
func (s *MinioStore) Store(ctx context.Context, r io.Reader, contentType string) (StoredObject, error) {
	key := "uploads/" + uuid.New().String()

	info, err := s.client.PutObject(ctx, s.bucket, key, r, -1,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return StoredObject{}, fmt.Errorf("%w: put %s: %w", ErrUpstream, key, err)
	}

	return StoredObject{Ref: key, Size: info.Size}, nil
}

// Fetch resolves a storage reference into a byte stream. The caller
// must close the returned reader.
func (s *MinioStore) Fetch(ctx context.Context, ref string) (io.ReadCloser, string, int64, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return s.fetchHTTP(ctx, ref)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: get %s: %v", ErrUpstream, ref, err)
	}

	// Force an early error for missing object / auth issues.
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, "", 0, fmt.Errorf("%w: stat %s: %v", ErrUpstream, ref, err)
	}

	return obj, stat.ContentType, stat.Size, nil
}

// fetchHTTP proxies an external reference. The upstream Content-Type is
// forwarded verbatim; cancelling ctx tears down the upstream request.
func (s *MinioStore) fetchHTTP(ctx context.Context, ref string) (io.ReadCloser, string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: fetch %s: %v", ErrUpstream, ref, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, "", 0, fmt.Errorf("%w: fetch %s: status %d", ErrUpstream, ref, resp.StatusCode)
	}

	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}
