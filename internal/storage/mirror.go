package storage

import (
	"context"
	"time"

	apperrors "github.com/tubelens/backend/internal/errors"
	"github.com/tubelens/backend/internal/logger"
)

// Mirror copies finalized files into the bucket and removes them again
// when the gallery deletes them. Mirroring is best effort; callers log
// failures and carry on.
type Mirror struct {
	objects  *Client
	uploader *S3Storage
	retry    *apperrors.RetryConfig
	log      *logger.Logger
}

// NewMirror builds both clients for cfg.
func NewMirror(cfg *Config, log *logger.Logger) (*Mirror, error) {
	objects, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Default()
	}
	return &Mirror{
		objects:  objects,
		uploader: NewS3Storage(cfg),
		retry:    apperrors.StorageRetryConfig(),
		log:      log.WithComponent("storage"),
	}, nil
}

// Init creates the bucket when missing.
func (m *Mirror) Init(ctx context.Context) error {
	return m.objects.EnsureBucket(ctx)
}

// Ping is used by readiness checks.
func (m *Mirror) Ping(ctx context.Context) error {
	return m.objects.Ping(ctx)
}

// Bucket returns the mirror bucket name.
func (m *Mirror) Bucket() string {
	return m.objects.Bucket()
}

// Upload mirrors the file at path under name, retrying transient failures.
func (m *Mirror) Upload(ctx context.Context, path, name string) error {
	key := ObjectKey(name)
	start := time.Now()

	result, err := apperrors.RetryWithResult(ctx, m.retry, func(ctx context.Context) (*UploadResult, error) {
		res, err := m.uploader.Upload(ctx, path, key)
		if err != nil {
			return nil, apperrors.StorageError("failed to mirror file").WithCause(err)
		}
		return res, nil
	})
	if err != nil {
		return err
	}

	m.log.Info(ctx, "file mirrored", map[string]interface{}{
		"key":         result.Key,
		"bytes":       result.Size,
		"new":         result.IsNew,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// Remove deletes the mirrored copy of name if there is one.
func (m *Mirror) Remove(ctx context.Context, name string) error {
	key := ObjectKey(name)
	exists, err := m.objects.ObjectExists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return m.objects.DeleteObject(ctx, key)
}
