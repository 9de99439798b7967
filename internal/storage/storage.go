// Package storage provides the evidence archive backends
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// Provider is an archive for uploaded evidence and analysis results.
// Keys are slash-separated and chosen by the caller.
type Provider interface {
	// Initialize sets the provider up from its option map
	Initialize(options map[string]string) error

	// Type names the backend ("local", "s3", "gcs")
	Type() string

	// Put stores content under key and returns the backend's id for it
	Put(ctx context.Context, key string, content io.Reader, size int64, meta Metadata) (string, error)

	// Get opens a stored object. Missing objects yield ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, Metadata, error)

	// Delete removes a stored object
	Delete(ctx context.Context, key string) error

	// List returns the objects whose key starts with prefix
	List(ctx context.Context, prefix string) ([]Object, error)

	// SignedURL returns a time-limited download link
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Metadata describes a stored object
type Metadata struct {
	ContentType string            `json:"contentType,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// Object is one entry of a listing
type Object struct {
	Key         string            `json:"key"`
	Size        int64             `json:"size"`
	ContentType string            `json:"contentType,omitempty"`
	ModifiedAt  time.Time         `json:"modifiedAt"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// CleanKey normalises a key and rejects ones that escape the archive root
func CleanKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

// ObjectKey builds an archive key from path segments, replacing characters
// that do not belong in object names
func ObjectKey(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Map(func(r rune) rune {
			switch {
			case r == '/' || r == '\\' || r == ' ':
				return '_'
			case r < 0x20:
				return -1
			}
			return r
		}, p)
		p = strings.Trim(p, ".")
		if p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}
