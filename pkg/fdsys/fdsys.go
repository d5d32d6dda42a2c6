// Package fdsys provides the raw OS primitives behind a file handle, so they
// can be swapped for fault injection in tests.
//
// The main types are:
//   - [Sys]: interface for the open, close and size primitives
//   - [Real]: production implementation on golang.org/x/sys
//   - [Chaos]: testing implementation that injects random failures
//
// Example usage:
//
//	sys := fdsys.NewReal()
//	raw, err := sys.Open("data.tgd", os.O_RDONLY, 0)
//	if err != nil {
//	    return err
//	}
//	defer sys.Close(raw)
//
//	size, err := sys.Size(raw)
package fdsys

// Sys defines the platform primitives operating on raw handle values.
//
// Handle values are uintptr on every platform, like [os.File.Fd]. On unix
// they are file descriptors; on windows they are HANDLEs.
//
// Errors are returned unwrapped (a [syscall.Errno] for real failures) so
// callers can attach their own context.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Sys interface {
	// Open opens path with the given [os.O_RDONLY]-style flags and
	// permission bits. perm is only used when flag creates the file.
	Open(path string, flag int, perm uint32) (uintptr, error)

	// Close releases raw. The handle value must not be used afterwards,
	// even when an error is returned.
	Close(raw uintptr) error

	// Size returns the byte length of the file behind raw, read from file
	// metadata. It does not depend on the current read/write offset.
	Size(raw uintptr) (int64, error)
}

// Compile-time interface checks.
var (
	_ Sys = (*Real)(nil)
	_ Sys = (*Chaos)(nil)
)
