//go:build unix

package fdsys

import (
	"golang.org/x/sys/unix"
)

// openRaw always adds O_CLOEXEC, like [os.OpenFile], so handles never leak
// into child processes started with os/exec.
func openRaw(path string, flag int, perm uint32) (uintptr, error) {
	fd, err := unix.Open(path, flag|unix.O_CLOEXEC, perm)
	if err != nil {
		return 0, err
	}

	return uintptr(fd), nil
}

func closeRaw(raw uintptr) error {
	return unix.Close(int(raw))
}

// sizeRaw reads st_size via fstat.
func sizeRaw(raw uintptr) (int64, error) {
	var st unix.Stat_t

	err := unix.Fstat(int(raw), &st)
	if err != nil {
		return 0, err
	}

	return st.Size, nil
}
