package local

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fruitsalade/dirsync/pkg/models"
)

func newBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := New(Config{RootPath: filepath.Join(t.TempDir(), "uploads"), CreateDirs: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func TestNew_RootIsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(Config{RootPath: f}); err == nil {
		t.Fatal("expected error for file root")
	}
}

func TestCreate_MakesDirectories(t *testing.T) {
	b := newBackend(t)
	n, err := b.Create(context.Background(), "a/b/2.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 bytes, got %d", n)
	}
	data, err := os.ReadFile(filepath.Join(b.Root(), "a", "b", "2.txt"))
	if err != nil || string(data) != "hello" {
		t.Errorf("unexpected content %q, %v", data, err)
	}
}

func TestCreate_NeverOverwrites(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	if _, err := b.Create(ctx, "x.txt", strings.NewReader("original")); err != nil {
		t.Fatal(err)
	}

	_, err := b.Create(ctx, "x.txt", strings.NewReader("second"))
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected ErrExist, got %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(b.Root(), "x.txt"))
	if string(data) != "original" {
		t.Errorf("existing content changed to %q", data)
	}
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "partial"), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestCreate_RemovesPartialFile(t *testing.T) {
	b := newBackend(t)
	_, err := b.Create(context.Background(), "d/partial.bin", &failingReader{})
	if err == nil {
		t.Fatal("expected write error")
	}
	if _, statErr := os.Stat(filepath.Join(b.Root(), "d", "partial.bin")); !os.IsNotExist(statErr) {
		t.Errorf("partial file should be removed, stat err = %v", statErr)
	}
}

func TestCreate_RejectsEscapingKey(t *testing.T) {
	b := newBackend(t)
	for _, key := range []string{"../evil.txt", "a/../../evil.txt", "/abs.txt"} {
		if _, err := b.Create(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Errorf("expected key %q to be rejected", key)
		}
	}
}

func TestSetTimes(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	if _, err := b.Create(ctx, "t.txt", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}

	mod := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	err := b.SetTimes(ctx, "t.txt", models.FileTimes{CreatedAt: mod.Add(-time.Hour), ModifiedAt: mod})
	if err != nil {
		t.Fatalf("SetTimes: %v", err)
	}
	info, err := os.Stat(filepath.Join(b.Root(), "t.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mod) {
		t.Errorf("expected mtime %v, got %v", mod, info.ModTime())
	}
}

func TestExists(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	if ok, err := b.Exists(ctx, "none.txt"); err != nil || ok {
		t.Errorf("expected false, got %v %v", ok, err)
	}
	if _, err := b.Create(ctx, "dir/f.txt", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := b.Exists(ctx, "dir/f.txt"); !ok {
		t.Error("expected file to exist")
	}
	if ok, _ := b.Exists(ctx, "dir"); !ok {
		t.Error("a directory occupies its name")
	}
}
