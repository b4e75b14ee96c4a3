// Package blobstore stores history photos. It defines the Store interface, an
// in-memory implementation for development and tests, and an HTTP backend
// speaking the object-storage REST dialect
// ("/v0/b/{bucket}/o?name=..." to upload, "/v0/b/{bucket}/o/{object}" to
// delete). Stored objects are addressed by path; callers keep the URL
// returned by Put and recover the path with PathFromURL.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrNotFound           = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrEmptyPath          = errors.New("blob path is required")
)

// ---------------------------------------------------------------------------
// Validation constants
// ---------------------------------------------------------------------------

// MaxFileSize is the maximum allowed photo size in bytes (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes lists the image types accepted for history photos.
var AllowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/heic": true,
}

// ---------------------------------------------------------------------------
// Store interface
// ---------------------------------------------------------------------------

// Store is the contract for blob backends.
type Store interface {
	// Put writes content at path and returns its download URL.
	Put(ctx context.Context, path, contentType string, content io.Reader) (string, error)
	// Delete removes the object at path. It returns ErrNotFound when
	// nothing is stored there.
	Delete(ctx context.Context, path string) error
}

func objectURL(base, bucket, path string) string {
	return strings.TrimRight(base, "/") + "/v0/b/" + bucket + "/o/" + url.PathEscape(path) + "?alt=media"
}

// PathFromURL recovers the object path from a URL produced by Put: the
// decoded segment after "/o/" up to the query string. Anything that does
// not look like an object URL is returned unchanged.
func PathFromURL(raw string) string {
	i := strings.Index(raw, "/o/")
	if i < 0 {
		return raw
	}
	seg := raw[i+len("/o/"):]
	if q := strings.IndexByte(seg, '?'); q >= 0 {
		seg = seg[:q]
	}
	if seg == "" {
		return raw
	}
	p, err := url.PathUnescape(seg)
	if err != nil {
		return seg
	}
	return p
}

func readLimited(content io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func validate(path, contentType string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if !AllowedContentTypes[contentType] {
		return fmt.Errorf("%w: %s", ErrInvalidContentType, contentType)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	contentType string
	content     []byte
	createdAt   time.Time
}

// MemoryStore is a thread-safe, in-memory Store.
type MemoryStore struct {
	base   string
	bucket string

	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		base:   "memory://blobs",
		bucket: "clinic",
		blobs:  make(map[string]*storedBlob),
	}
}

func (s *MemoryStore) Put(_ context.Context, path, contentType string, content io.Reader) (string, error) {
	if err := validate(path, contentType); err != nil {
		return "", err
	}
	data, err := readLimited(content)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.blobs[path] = &storedBlob{contentType: contentType, content: data, createdAt: time.Now().UTC()}
	s.mu.Unlock()
	return objectURL(s.base, s.bucket, path), nil
}

func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[path]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, path)
	return nil
}

// Get returns a copy of the stored content and its content type.
func (s *MemoryStore) Get(path string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[path]
	if !ok {
		return nil, "", ErrNotFound
	}
	return bytes.Clone(b.content), b.contentType, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// ---------------------------------------------------------------------------
// HTTP implementation
// ---------------------------------------------------------------------------

// HTTPStore talks to a remote object store over REST.
type HTTPStore struct {
	client *resty.Client
	base   string
	bucket string
}

func NewHTTPStore(baseURL, bucket, token string) *HTTPStore {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPStore{client: client, base: baseURL, bucket: bucket}
}

func (s *HTTPStore) Put(ctx context.Context, path, contentType string, content io.Reader) (string, error) {
	if err := validate(path, contentType); err != nil {
		return "", err
	}
	data, err := readLimited(content)
	if err != nil {
		return "", err
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("bucket", s.bucket).
		SetQueryParam("name", path).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		Post("/v0/b/{bucket}/o")
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("upload %s: status %d", path, resp.StatusCode())
	}
	return objectURL(s.base, s.bucket, path), nil
}

func (s *HTTPStore) Delete(ctx context.Context, path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"bucket": s.bucket, "object": path}).
		Delete("/v0/b/{bucket}/o/{object}")
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return ErrNotFound
	case resp.IsError():
		return fmt.Errorf("delete %s: status %d", path, resp.StatusCode())
	}
	return nil
}
