package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/fruitsalade/dirsync/internal/walker"
	"github.com/fruitsalade/dirsync/pkg/client"
	"github.com/fruitsalade/dirsync/pkg/models"
)

type fakeUploader struct {
	mu    sync.Mutex
	fail  map[string]bool // relative paths that fail
	calls []string
}

func (f *fakeUploader) Upload(_ context.Context, e models.PathCatalog) client.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, e.RelativePath)
	if f.fail[e.RelativePath] {
		return client.Result{Cause: "boom"}
	}
	return client.Result{OK: true, Status: 200}
}

func buildTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, rel := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(rel), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func exists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

func TestRun_CountsAndDeletesOnSuccess(t *testing.T) {
	root := buildTree(t, "a/1.txt", "a/b/2.txt", "c.txt")
	up := &fakeUploader{fail: map[string]bool{"a/b/2.txt": true}}

	r := NewRunner(up, Options{DeleteSourceFile: true})
	out, err := r.Run(context.Background(), root)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if out.Succeeded != 2 || out.Failed != 1 {
		t.Errorf("expected {2 1}, got %+v", out)
	}
	if exists(root, "a/1.txt") || exists(root, "c.txt") {
		t.Error("successfully uploaded files should be deleted")
	}
	if !exists(root, "a/b/2.txt") {
		t.Error("failed upload must keep its source file")
	}
}

func TestRun_KeepsFilesWithoutDeleteFlag(t *testing.T) {
	root := buildTree(t, "x.txt", "y/z.txt")
	r := NewRunner(&fakeUploader{}, Options{})

	out, err := r.Run(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if out.Succeeded != 2 {
		t.Errorf("expected 2 successes, got %+v", out)
	}
	if !exists(root, "x.txt") || !exists(root, "y/z.txt") {
		t.Error("files must be retained when deleteSourceFile is false")
	}
}

func TestRun_DryRunRetainsEverything(t *testing.T) {
	root := buildTree(t, "a/1.txt", "a/b/2.txt")
	c := client.New(client.Config{ServerURL: "http://127.0.0.1:1/upload", DryRun: true})

	r := NewRunner(c, Options{DryRun: true, DeleteSourceFile: true})
	out, err := r.Run(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if out.Succeeded != 2 || out.Failed != 0 {
		t.Errorf("expected {2 0}, got %+v", out)
	}
	if !exists(root, "a/1.txt") || !exists(root, "a/b/2.txt") {
		t.Error("dry run must not delete")
	}
}

func TestRun_DeleteFailureKeepsSuccess(t *testing.T) {
	root := buildTree(t, "f.txt")
	r := NewRunner(&fakeUploader{}, Options{DeleteSourceFile: true})
	r.remove = func(string) error { return errors.New("read-only filesystem") }

	out, err := r.Run(context.Background(), root)
	if err != nil {
		t.Fatal(err)
	}
	if out.Succeeded != 1 || out.Failed != 0 {
		t.Errorf("delete failure must not flip the outcome, got %+v", out)
	}
}

func TestRun_InvariantVisitedEqualsFiles(t *testing.T) {
	cases := map[string][]string{
		"empty":    nil,
		"flat":     {"a", "b", "c"},
		"deep":     {"1/2/3/4/5.txt", "1/x.txt"},
		"siblings": {"d1/a", "d2/b", "d3/c", "d3/d"},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			root := buildTree(t, files...)
			if err := os.MkdirAll(filepath.Join(root, "empty", "dir"), 0755); err != nil {
				t.Fatal(err)
			}
			up := &fakeUploader{fail: map[string]bool{}}
			for i, f := range files {
				if i%2 == 1 {
					up.fail[f] = true
				}
			}
			out, err := NewRunner(up, Options{DeleteSourceFile: true}).Run(context.Background(), root)
			if err != nil {
				t.Fatal(err)
			}
			if out.Visited() != len(files) {
				t.Errorf("expected %d visited, got %+v", len(files), out)
			}
			got := append([]string(nil), up.calls...)
			want := append([]string(nil), files...)
			sort.Strings(got)
			sort.Strings(want)
			if len(got) != len(want) {
				t.Fatalf("expected one upload per file, got %v", got)
			}
			for i := range got {
				if got[i] != want[i] {
					t.Errorf("upload %d: expected %s, got %s", i, want[i], got[i])
				}
			}
		})
	}
}

func TestRun_UnreadableRootAborts(t *testing.T) {
	up := &fakeUploader{}
	_, err := NewRunner(up, Options{}).Run(context.Background(), filepath.Join(t.TempDir(), "missing"))

	var te *walker.TraversalError
	if !errors.As(err, &te) {
		t.Fatalf("expected TraversalError, got %v", err)
	}
	if len(up.calls) != 0 {
		t.Errorf("expected no uploads, got %v", up.calls)
	}
}
