// Package gallery manages the durable downloads directory: listing,
// deleting and importing finished files, with an optional object storage
// mirror.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/tubelens/backend/internal/filename"
	"github.com/tubelens/backend/internal/logger"
	"github.com/tubelens/backend/internal/metrics"
)

// ErrNotFound is returned for names that are not a stored media file.
var ErrNotFound = errors.New("file not found")

// Mirror receives copies of stored files. Failures are logged only.
type Mirror interface {
	Upload(ctx context.Context, path, name string) error
	Remove(ctx context.Context, name string) error
}

// File is one gallery entry.
type File struct {
	Name        string  `json:"name"`
	Size        int64   `json:"size"`
	Modified    float64 `json:"modified"`
	DownloadURL string  `json:"downloadUrl"`
	DeleteURL   string  `json:"deleteUrl"`
}

// Store is the durable downloads directory.
type Store struct {
	dir    string
	mirror Mirror
	log    *logger.Logger
}

// New creates the directory if needed. mirror may be nil.
func New(dir string, mirror Mirror, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create downloads directory: %w", err)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Store{dir: dir, mirror: mirror, log: log.WithComponent("gallery")}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// List returns stored media files, newest first.
func (s *Store) List() ([]File, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !filename.IsMedia(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		q := url.QueryEscape(e.Name())
		files = append(files, File{
			Name:        e.Name(),
			Size:        info.Size(),
			Modified:    float64(info.ModTime().UnixNano()) / 1e9,
			DownloadURL: "/api/download?filename=" + q,
			DeleteURL:   "/api/gallery/delete?filename=" + q,
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].Modified > files[j].Modified
	})
	metrics.Default().SetGalleryFiles(len(files))
	return files, nil
}

// Path resolves name to a stored file. Names with directory components
// are never found.
func (s *Store) Path(name string) (string, error) {
	if !filename.IsPlain(name) {
		return "", ErrNotFound
	}
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// Delete removes a stored file and its mirrored copy.
func (s *Store) Delete(ctx context.Context, name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}

	s.log.Info(ctx, "gallery file deleted", map[string]interface{}{"file": name})

	if s.mirror != nil {
		if err := s.mirror.Remove(ctx, name); err != nil {
			s.log.Warn(ctx, "failed to remove mirrored copy", map[string]interface{}{"file": name, "error": err.Error()})
		}
	}
	return nil
}

// Import moves src into the store as name, replacing any file of that
// name. The move is a rename where possible; across filesystems the data
// is copied to a temporary name first so a reader never sees a partial
// file. src is removed only once the copy is in place.
func (s *Store) Import(ctx context.Context, src, name string) (string, error) {
	if !filename.IsPlain(name) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	dst := filepath.Join(s.dir, name)

	if err := os.Rename(src, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return "", fmt.Errorf("failed to move file: %w", err)
		}
		if err := copyAcross(src, dst); err != nil {
			return "", err
		}
		if err := os.Remove(src); err != nil {
			s.log.Warn(ctx, "failed to remove source after copy", map[string]interface{}{"src": src, "error": err.Error()})
		}
	}

	s.log.Info(ctx, "file stored", map[string]interface{}{"file": name})

	if s.mirror != nil {
		if err := s.mirror.Upload(ctx, dst, name); err != nil {
			s.log.Warn(ctx, "failed to mirror stored file", map[string]interface{}{"file": name, "error": err.Error()})
		}
	}
	return name, nil
}

func copyAcross(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to flush destination: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move file: %w", err)
	}
	return nil
}
