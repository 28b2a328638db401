//go:build darwin

package fsmeta

import (
	"io/fs"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

func birthTime(path string, _ fs.FileInfo) (time.Time, bool) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return time.Time{}, false
	}
	sec, nsec := st.Btim.Unix()
	return time.Unix(sec, nsec), true
}

// setCreationTime writes ATTR_CMN_CRTIME; the attribute buffer is a single
// struct timespec.
func setCreationTime(path string, created time.Time) error {
	attrs := unix.Attrlist{
		Bitmapcount: unix.ATTR_BIT_MAP_COUNT,
		Commonattr:  unix.ATTR_CMN_CRTIME,
	}
	ts := unix.NsecToTimespec(created.UnixNano())
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&ts)), unsafe.Sizeof(ts))
	return unix.Setattrlist(path, &attrs, buf, unix.FSOPT_NOFOLLOW)
}
