//go:build !unix && !windows

package fdsys

import "errors"

func openRaw(string, int, uint32) (uintptr, error) {
	return 0, errors.ErrUnsupported
}

func closeRaw(uintptr) error {
	return errors.ErrUnsupported
}

func sizeRaw(uintptr) (int64, error) {
	return 0, errors.ErrUnsupported
}
