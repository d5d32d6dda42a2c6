// Package fd provides [File], exclusive ownership of a single open OS file
// handle with guaranteed release.
//
// A [File] is created by [Open] (which performs the OS open call) or by
// [Wrap] (which adopts a handle that is already open). It can report the
// size of the file behind it with [File.Size] and hand out the raw value
// with [File.Fd] for use with lower-level calls. There is no read or write
// API; this package only manages the handle.
//
// # Ownership
//
// Exactly one File owns a given handle. Ownership moves with [File.Move]
// and [File.Assign]; the source is left empty. An empty File holds
// [Invalid] and every release operation on it is a no-op.
//
// # Release
//
// There are three release paths:
//   - [File.Close] closes the handle and reports failures as [*OsError].
//     The File is empty afterwards even if the OS close failed.
//   - [File.Dispose] does the same but discards the error. Use it with
//     defer on cleanup paths.
//   - The garbage collector releases the handle of an unreachable owning
//     File, discarding errors. Do not rely on this for timely release.
//
// Handle values 0 and 1 are never closed by any of these paths, so wrapping
// an inherited standard stream cannot invalidate it.
//
// # Platforms
//
// [File.Size] uses fstat on unix and the handle information query on
// windows; the implementation is chosen at build time in package
// [github.com/calvinalkan/filehandle/pkg/fdsys]. Tests inject OS failures
// with [OpenWith] and [WrapWith] and an [fdsys.Chaos].
//
// Example:
//
//	f, err := fd.Open("tiles.tgd", os.O_RDONLY, 0)
//	if err != nil {
//	    return err // *fd.OsError
//	}
//	defer f.Dispose()
//
//	size, err := f.Size()
//	if err != nil {
//	    return err
//	}
//
//	// Hand the handle to the header reader, keeping ownership.
//	return readHeader(f.Fd(), size)
package fd
