package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const metaSuffix = ".meta.json"

// LocalStorage keeps the archive on the local filesystem. Metadata lives
// in a JSON sidecar next to each object.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates an uninitialised local provider
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

// Initialize implements Provider
func (l *LocalStorage) Initialize(options map[string]string) error {
	l.basePath = options["basePath"]
	if l.basePath == "" {
		l.basePath = "./evidence"
	}
	if err := os.MkdirAll(l.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}
	return nil
}

// Type implements Provider
func (l *LocalStorage) Type() string { return "local" }

// BasePath returns the archive root
func (l *LocalStorage) BasePath() string { return l.basePath }

func (l *LocalStorage) path(key string) (string, string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	if strings.HasSuffix(key, metaSuffix) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key, filepath.Join(l.basePath, filepath.FromSlash(key)), nil
}

// Put implements Provider. The object is written to a temporary file first
// so a failed copy never leaves a partial object behind.
func (l *LocalStorage) Put(ctx context.Context, key string, content io.Reader, size int64, meta Metadata) (string, error) {
	key, p, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: content}); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write file content: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return "", fmt.Errorf("failed to store file: %w", err)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(p+metaSuffix, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}
	return key, nil
}

// Get implements Provider
func (l *LocalStorage) Get(ctx context.Context, key string) (io.ReadCloser, Metadata, error) {
	_, p, err := l.path(key)
	if err != nil {
		return nil, Metadata{}, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("failed to open file: %w", err)
	}
	return f, readMeta(p), nil
}

// Delete implements Provider
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	_, p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	_ = os.Remove(p + metaSuffix)
	return nil
}

// List implements Provider
func (l *LocalStorage) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	err := filepath.WalkDir(l.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, metaSuffix) || strings.HasPrefix(name, ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		meta := readMeta(p)
		objects = append(objects, Object{
			Key:         key,
			Size:        info.Size(),
			ContentType: meta.ContentType,
			ModifiedAt:  info.ModTime(),
			Attributes:  meta.Attributes,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return objects, nil
}

// SignedURL returns a file:// URL; local files need no signing
func (l *LocalStorage) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	_, p, err := l.path(key)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func readMeta(p string) Metadata {
	var meta Metadata
	if data, err := os.ReadFile(p + metaSuffix); err == nil {
		_ = json.Unmarshal(data, &meta)
	}
	return meta
}

// ctxReader stops a copy once the context is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
