package receiver

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSanitizeDir(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"a":                "a",
		"a/b":              "a/b",
		"/a/b/":            "a/b",
		"a\\b\\c":          "a/b/c",
		"../../etc":        "etc",
		"a/../../b":        "a/b",
		"./a/./b":          "a/b",
		"..":               "",
		"C:\\Users\\me":    "Users/me",
		"//server/share/x": "server/share/x",
		"a//b":             "a/b",
		"..\\..\\windows":  "windows",
		"a/b:c":            "a/b:c",
		"a/C:/b":           "a/b",
		"a\\d:\\b\\Z:":     "a/b",
	}
	for in, want := range cases {
		if got := SanitizeDir(in); got != want {
			t.Errorf("SanitizeDir(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeDir_IdempotentAndContained(t *testing.T) {
	root := filepath.FromSlash("/srv/uploads")
	inputs := []string{"../../../etc/passwd", "a/../..", "x/./../../y", "\\..\\..\\z", "C:/..", "...", "a/.../b"}
	for _, in := range inputs {
		once := SanitizeDir(in)
		if twice := SanitizeDir(once); twice != once {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
		full := filepath.Join(root, filepath.FromSlash(once))
		if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
			t.Errorf("%q resolved outside the root: %s", in, full)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	ok := map[string]string{
		"1.txt":        "1.txt",
		"dir/2.txt":    "2.txt",
		"..\\evil.txt": "evil.txt",
		"../../x.bin":  "x.bin",
		".bashrc":      ".bashrc",
	}
	for in, want := range ok {
		got, err := SanitizeName(in)
		if err != nil || got != want {
			t.Errorf("SanitizeName(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "/", "..", ".", "a/..", "C:"} {
		if _, err := SanitizeName(bad); err == nil {
			t.Errorf("SanitizeName(%q) should fail", bad)
		}
	}
}

func TestSplitExt(t *testing.T) {
	cases := []struct{ name, stem, ext string }{
		{"report.pdf", "report", ".pdf"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{".bashrc", ".bashrc", ""},
		{"Makefile", "Makefile", ""},
		{"trailing.", "trailing", "."},
	}
	for _, c := range cases {
		stem, ext := SplitExt(c.name)
		if stem != c.stem || ext != c.ext {
			t.Errorf("SplitExt(%q) = %q %q, want %q %q", c.name, stem, ext, c.stem, c.ext)
		}
	}
}

func TestCollisionName(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		n    int
		want string
	}{
		{0, "1.txt"},
		{1, "1.20240102-030405.txt"},
		{2, "1.20240102-030405-1.txt"},
		{5, "1.20240102-030405-4.txt"},
	}
	for _, c := range cases {
		if got := CollisionName("1.txt", at, c.n); got != c.want {
			t.Errorf("CollisionName(n=%d) = %q, want %q", c.n, got, c.want)
		}
	}
	if got := CollisionName(".env", at, 1); got != ".env.20240102-030405" {
		t.Errorf("dotfile collision name = %q", got)
	}
}
