package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/example/trafficwatch/internal/config"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	l := NewLocalStorage()
	if err := l.Initialize(map[string]string{"basePath": t.TempDir()}); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return l
}

func TestLocalRoundTrip(t *testing.T) {
	l := newLocal(t)
	ctx := context.Background()

	meta := Metadata{ContentType: "video/mp4", Attributes: map[string]string{"workspace": "w1"}}
	id, err := l.Put(ctx, "uploads/w1/clip.mp4", strings.NewReader("frames"), 6, meta)
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if id != "uploads/w1/clip.mp4" {
		t.Errorf("unexpected id %q", id)
	}

	rc, got, err := l.Get(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "frames" || got.ContentType != "video/mp4" || got.Attributes["workspace"] != "w1" {
		t.Errorf("unexpected object %q %+v", data, got)
	}

	if _, err := l.Put(ctx, "results/w1/r1.json", strings.NewReader("{}"), 2, Metadata{ContentType: "application/json"}); err != nil {
		t.Fatal(err)
	}
	objs, err := l.List(ctx, "uploads/")
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 1 || objs[0].Key != id || objs[0].Size != 6 {
		t.Errorf("unexpected listing %+v", objs)
	}

	if err := l.Delete(ctx, id); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, _, err := l.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := l.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	l := newLocal(t)
	for _, key := range []string{"", "../outside", "a/../../b", "clip.mp4.meta.json"} {
		if _, err := l.Put(context.Background(), key, strings.NewReader("x"), 1, Metadata{}); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestLocalSignedURL(t *testing.T) {
	l := newLocal(t)
	url, err := l.SignedURL(context.Background(), "uploads/a.mp4", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "/uploads/a.mp4") {
		t.Errorf("unexpected url %q", url)
	}
}

func TestObjectKey(t *testing.T) {
	got := ObjectKey("uploads", "w1", "my clip/..mp4")
	if got != "uploads/w1/my_clip_..mp4" {
		t.Errorf("unexpected key %q", got)
	}
	if ObjectKey("", "..", "a") != "a" {
		t.Error("empty and dot-only segments should be dropped")
	}
}

func TestFactory(t *testing.T) {
	f := NewStorageFactory()

	p, err := f.FromConfig(config.StorageConfig{Provider: "local", Local: map[string]string{"basePath": t.TempDir()}})
	if err != nil || p.Type() != "local" {
		t.Fatalf("expected local provider, got %v %v", p, err)
	}

	if _, err := f.Create("ftp", nil); err == nil {
		t.Error("expected unsupported provider error")
	}

	// missing bucket fails before any client is built
	if _, err := f.Create("s3", map[string]string{"region": "eu-west-1"}); err == nil {
		t.Fatal("expected S3 init error")
	}
	if ok, reason := f.IsAvailable("s3"); ok || !strings.Contains(reason, "bucket") {
		t.Errorf("s3 should be marked unavailable, got %v %q", ok, reason)
	}
	if _, err := f.Create("s3", map[string]string{"region": "eu-west-1", "bucket": "b"}); err == nil {
		t.Error("unavailable provider must not be retried")
	}

	if _, err := f.Create("gcs", map[string]string{}); err == nil {
		t.Error("expected GCS init error without bucket")
	}
}
