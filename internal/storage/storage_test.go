package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tubelens/backend/internal/logger"
)

func TestObjectKey(t *testing.T) {
	if got := ObjectKey("My Song.mp3"); got != "downloads/My Song.mp3" {
		t.Errorf("ObjectKey() = %q", got)
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.mp3":     "audio/mpeg",
		"b.MP4":     "video/mp4",
		"c.m4a":     "audio/mp4",
		"d.unknown": "application/octet-stream",
	}
	for name, want := range tests {
		if got := contentType(name); got != want {
			t.Errorf("contentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestIsNotFoundError(t *testing.T) {
	if !isNotFoundError(errors.New("operation error S3: HeadObject, https response error StatusCode: 404, NotFound")) {
		t.Error("expected 404 to be not-found")
	}
	if isNotFoundError(errors.New("connection refused")) {
		t.Error("connection refused is not not-found")
	}
}

// TestMirror_RoundTrip runs against a local MinIO when MINIO_ENDPOINT is set.
func TestMirror_RoundTrip(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}

	m, err := NewMirror(&Config{
		Endpoint:  endpoint,
		AccessKey: envOr("MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey: envOr("MINIO_SECRET_KEY", "minioadmin"),
		Bucket:    "tubelens-test",
		Region:    "us-east-1",
	}, logger.New(io.Discard, logger.LevelError, "storage"))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.Init(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	name := fmt.Sprintf("test-%d.mp3", time.Now().UnixNano())
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not really audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := m.Upload(ctx, path, name); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	// same size again is deduplicated
	if err := m.Upload(ctx, path, name); err != nil {
		t.Fatalf("second Upload() error = %v", err)
	}

	exists, err := m.objects.ObjectExists(ctx, ObjectKey(name))
	if err != nil || !exists {
		t.Fatalf("object missing after upload: %v", err)
	}

	if err := m.Remove(ctx, name); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := m.Remove(ctx, name); err != nil {
		t.Errorf("Remove() of missing object = %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
