//go:build windows

package fdsys

import (
	"golang.org/x/sys/windows"
)

func openRaw(path string, flag int, perm uint32) (uintptr, error) {
	h, err := windows.Open(path, flag, perm)
	if err != nil {
		return 0, err
	}

	return uintptr(h), nil
}

func closeRaw(raw uintptr) error {
	return windows.CloseHandle(windows.Handle(raw))
}

// sizeRaw uses the handle information query instead of a CRT length call.
// An invalid handle comes back as ERROR_INVALID_HANDLE; there is no
// invalid-parameter handler to suppress.
func sizeRaw(raw uintptr) (int64, error) {
	var info windows.ByHandleFileInformation

	err := windows.GetFileInformationByHandle(windows.Handle(raw), &info)
	if err != nil {
		return 0, err
	}

	return int64(info.FileSizeHigh)<<32 | int64(info.FileSizeLow), nil
}
