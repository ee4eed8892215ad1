package gallery

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tubelens/backend/internal/logger"
)

type fakeMirror struct {
	mu       sync.Mutex
	uploaded []string
	removed  []string
	err      error
}

func (m *fakeMirror) Upload(ctx context.Context, path, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaded = append(m.uploaded, name)
	return m.err
}

func (m *fakeMirror) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, name)
	return m.err
}

func newStore(t *testing.T, mirror Mirror) *Store {
	t.Helper()
	s, err := New(t.TempDir(), mirror, logger.New(io.Discard, logger.LevelError, "gallery"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func put(t *testing.T, dir, name string, age time.Duration) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
		t.Fatal(err)
	}
	mod := time.Now().Add(-age)
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := newStore(t, nil)
	put(t, s.Dir(), "old.mp3", 2*time.Hour)
	put(t, s.Dir(), "new video.mp4", time.Minute)
	put(t, s.Dir(), "mid.webm", time.Hour)
	put(t, s.Dir(), "notes.txt", 0)
	if err := os.Mkdir(filepath.Join(s.Dir(), "dir.mp4"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := s.List()
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, f := range files {
		names = append(names, f.Name)
	}
	want := []string{"new video.mp4", "mid.webm", "old.mp3"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}

	first := files[0]
	if first.DownloadURL != "/api/download?filename=new+video.mp4" || first.DeleteURL != "/api/gallery/delete?filename=new+video.mp4" {
		t.Errorf("unexpected urls: %+v", first)
	}
	if first.Size != int64(len("new video.mp4")) || first.Modified <= 0 {
		t.Errorf("unexpected size/modified: %+v", first)
	}
}

func TestStore_Delete(t *testing.T) {
	mirror := &fakeMirror{}
	s := newStore(t, mirror)
	put(t, s.Dir(), "a.mp4", 0)

	if err := s.Delete(context.Background(), "a.mp4"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "a.mp4")); !os.IsNotExist(err) {
		t.Error("file still present")
	}
	if len(mirror.removed) != 1 || mirror.removed[0] != "a.mp4" {
		t.Errorf("mirror removals = %v", mirror.removed)
	}

	for _, name := range []string{"a.mp4", "../a.mp4", "", ".."} {
		if err := s.Delete(context.Background(), name); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete(%q) = %v, want ErrNotFound", name, err)
		}
	}
}

func TestStore_Import(t *testing.T) {
	mirror := &fakeMirror{err: errors.New("bucket offline")}
	s := newStore(t, mirror)

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "Some Title.mp4")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	name, err := s.Import(context.Background(), src, "Some Title.mp4")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(), name))
	if err != nil || string(data) != "payload" {
		t.Errorf("stored file = %q, %v", data, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source still present after import")
	}
	// mirror failures do not fail the import
	if len(mirror.uploaded) != 1 {
		t.Errorf("mirror uploads = %v", mirror.uploaded)
	}

	if _, err := s.Import(context.Background(), src, "Some Title.mp4"); err == nil {
		t.Error("importing a missing source should fail")
	}
	if _, err := s.Import(context.Background(), src, "../escape.mp4"); err == nil {
		t.Error("importing under a path name should fail")
	}
}

func TestCopyAcross(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.mp3")
	dst := filepath.Join(dir, "dst.mp3")
	if err := os.WriteFile(src, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := copyAcross(src, dst); err != nil {
		t.Fatalf("copyAcross() error = %v", err)
	}
	if data, _ := os.ReadFile(dst); string(data) != "abc" {
		t.Errorf("dst = %q", data)
	}
	if _, err := os.Stat(dst + ".part"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestStore_Path(t *testing.T) {
	s := newStore(t, nil)
	put(t, s.Dir(), "x.m4a", 0)

	if p, err := s.Path("x.m4a"); err != nil || filepath.Base(p) != "x.m4a" {
		t.Errorf("Path() = %q, %v", p, err)
	}
	if _, err := s.Path("missing.mp3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Path(missing) = %v", err)
	}
}
