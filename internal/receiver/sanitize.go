package receiver

import (
	"errors"
	"strings"
)

// ErrInvalidFilename is returned for an uploaded filename with no usable
// base name.
var ErrInvalidFilename = errors.New("invalid filename")

func splitSegments(p string) []string {
	return strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' })
}

func isDriveLetter(seg string) bool {
	if len(seg) != 2 || seg[1] != ':' {
		return false
	}
	c := seg[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// SanitizeDir turns a client-supplied relative directory into a
// forward-slash path that cannot leave the upload root. Empty, "." and ".."
// segments are dropped, as are drive letters (at any depth) and leading
// separators. The
// result is "" for the root. SanitizeDir is idempotent.
func SanitizeDir(rel string) string {
	segs := splitSegments(rel)
	out := make([]string, 0, len(segs))
	for _, seg := range segs {
		if seg == "." || seg == ".." || isDriveLetter(seg) {
			continue
		}
		out = append(out, seg)
	}
	return strings.Join(out, "/")
}

// SanitizeName reduces an uploaded filename to its base name.
func SanitizeName(name string) (string, error) {
	segs := splitSegments(name)
	if len(segs) == 0 {
		return "", ErrInvalidFilename
	}
	base := segs[len(segs)-1]
	if base == "." || base == ".." || isDriveLetter(base) {
		return "", ErrInvalidFilename
	}
	return base, nil
}

// joinKey builds a storage key from a sanitized directory and file name.
func joinKey(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}
