package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GoogleCloudStorage archives evidence in a GCS bucket
type GoogleCloudStorage struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGoogleCloudStorage creates an uninitialised GCS provider
func NewGoogleCloudStorage() *GoogleCloudStorage {
	return &GoogleCloudStorage{}
}

// Initialize implements Provider. Options: bucket (required), prefix,
// credentialFile and endpoint.
func (g *GoogleCloudStorage) Initialize(options map[string]string) error {
	g.bucketName = options["bucket"]
	if g.bucketName == "" {
		return fmt.Errorf("bucket is required for Google Cloud Storage")
	}
	g.prefix = options["prefix"]

	var opts []option.ClientOption
	if credFile := options["credentialFile"]; credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	}
	if endpoint := options["endpoint"]; endpoint != "" {
		// emulators take no credentials
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create Google Cloud Storage client: %w", err)
	}
	g.client = client
	return nil
}

// Type implements Provider
func (g *GoogleCloudStorage) Type() string { return "gcs" }

func (g *GoogleCloudStorage) object(key string) (*storage.ObjectHandle, string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, "", err
	}
	name := g.prefix + key
	return g.client.Bucket(g.bucketName).Object(name), name, nil
}

// Put implements Provider
func (g *GoogleCloudStorage) Put(ctx context.Context, key string, content io.Reader, size int64, meta Metadata) (string, error) {
	obj, name, err := g.object(key)
	if err != nil {
		return "", err
	}

	w := obj.NewWriter(ctx)
	w.Metadata = meta.Attributes
	w.ContentType = meta.ContentType
	if _, err := io.Copy(w, content); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write file content to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize file upload to GCS: %w", err)
	}
	return name, nil
}

// Get implements Provider
func (g *GoogleCloudStorage) Get(ctx context.Context, key string) (io.ReadCloser, Metadata, error) {
	obj, _, err := g.object(key)
	if err != nil {
		return nil, Metadata{}, err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, Metadata{}, gcsError("retrieve", key, err)
	}
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		r.Close()
		return nil, Metadata{}, gcsError("read attributes of", key, err)
	}
	return r, Metadata{ContentType: attrs.ContentType, Attributes: attrs.Metadata}, nil
}

// Delete implements Provider
func (g *GoogleCloudStorage) Delete(ctx context.Context, key string) error {
	obj, _, err := g.object(key)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil {
		return gcsError("delete", key, err)
	}
	return nil
}

// List implements Provider
func (g *GoogleCloudStorage) List(ctx context.Context, prefix string) ([]Object, error) {
	it := g.client.Bucket(g.bucketName).Objects(ctx, &storage.Query{Prefix: g.prefix + prefix})

	var objects []Object
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list files from GCS: %w", err)
		}
		objects = append(objects, Object{
			Key:         strings.TrimPrefix(attrs.Name, g.prefix),
			Size:        attrs.Size,
			ContentType: attrs.ContentType,
			ModifiedAt:  attrs.Updated,
			Attributes:  attrs.Metadata,
		})
	}
	return objects, nil
}

// SignedURL implements Provider with a V4 signed GET
func (g *GoogleCloudStorage) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	_, name, err := g.object(key)
	if err != nil {
		return "", err
	}
	url, err := g.client.Bucket(g.bucketName).SignedURL(name, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: time.Now().Add(expiry),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}
	return url, nil
}

func gcsError(op, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("failed to %s file in GCS: %w", op, err)
}
