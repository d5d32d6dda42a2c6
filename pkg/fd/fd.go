package fd

import (
	"os"
	"runtime"
	"syscall"

	"github.com/calvinalkan/filehandle/pkg/fdsys"
)

// FD is a raw OS handle value: a file descriptor on unix, a HANDLE on
// windows. It has the same representation as [os.File.Fd].
type FD = uintptr

// Invalid is the sentinel [File.Fd] returns when the [File] owns nothing.
// It matches what [os.File.Fd] returns for a closed file.
const Invalid FD = ^FD(0)

// Raw values below reservedLimit (stdin and stdout on unix) are never
// closed. This is a plain numeric check: any handle with one of these values
// is treated as reserved, whatever it actually refers to.
const reservedLimit FD = 2

// S_ISUID, S_ISGID and S_ISVTX. Spelled out because package syscall does
// not define them on every platform.
const (
	modeSetuid = 0o4000
	modeSetgid = 0o2000
	modeSticky = 0o1000
)

// defaultSys backs [Open] and [Wrap].
var defaultSys fdsys.Sys = fdsys.NewReal()

// File owns exactly one open OS handle.
//
// A File is either owning (holds a handle) or empty (holds nothing,
// [File.Fd] returns [Invalid]). The zero value is empty.
//
// Ownership is exclusive. Never copy a File by value; pass *File around and
// use [File.Move] or [File.Assign] to hand the handle to another File.
//
// An owning File releases its handle on [File.Close], on [File.Dispose], or
// when it becomes unreachable and is collected. Only Close reports errors.
//
// A File is not safe for concurrent use.
type File struct {
	_ noCopy

	h *handle
}

// handle is the owned resource. It is shared by nothing: a Move hands the
// pointer to the new File and clears the old one. The finalizer lives on
// the handle so it follows the resource across moves.
type handle struct {
	raw FD
	sys fdsys.Sys
}

func newHandle(sys fdsys.Sys, raw FD) *handle {
	h := &handle{raw: raw, sys: sys}
	runtime.SetFinalizer(h, (*handle).finalize)

	return h
}

func (h *handle) reserved() bool {
	return h.raw < reservedLimit
}

// close releases the OS handle unless it is reserved. released reports
// whether the handle is gone; it is true even when err is non-nil.
func (h *handle) close() (released bool, err error) {
	if h.reserved() {
		return false, nil
	}

	runtime.SetFinalizer(h, nil)

	raw := h.raw
	h.raw = Invalid

	return true, h.sys.Close(raw)
}

func (h *handle) finalize() {
	_, _ = h.close()
}

// Wrap takes ownership of raw, an already open handle.
//
// No validation is done; the caller guarantees raw is open and that nothing
// else will close it. Wrapping [Invalid] returns an empty File.
func Wrap(raw FD) *File {
	return WrapWith(defaultSys, raw)
}

// WrapWith is like [Wrap] but releases and queries raw through sys.
// Panics if sys is nil.
func WrapWith(sys fdsys.Sys, raw FD) *File {
	if sys == nil {
		panic("sys is nil")
	}

	if raw == Invalid {
		return &File{}
	}

	return &File{h: newHandle(sys, raw)}
}

// Open opens path with the given flags ([os.O_RDONLY], [os.O_CREATE], ...)
// and returns an owning File. perm is used only when flag creates the file;
// its permission bits plus [os.ModeSetuid], [os.ModeSetgid] and
// [os.ModeSticky] are passed on, other mode type bits are ignored.
//
// On failure no File is created and the error is an [*OsError] with
// Op [OpOpen] and the attempted path.
//
// Example:
//
//	f, err := fd.Open("tiles.tgd", os.O_RDONLY, 0)
//	if err != nil {
//	    return err
//	}
//	defer f.Dispose()
//
//	size, err := f.Size()
func Open(path string, flag int, perm os.FileMode) (*File, error) {
	return OpenWith(defaultSys, path, flag, perm)
}

// OpenWith is like [Open] but opens, releases and queries the handle
// through sys. Panics if sys is nil.
func OpenWith(sys fdsys.Sys, path string, flag int, perm os.FileMode) (*File, error) {
	if sys == nil {
		panic("sys is nil")
	}

	raw, err := sys.Open(path, flag, openMode(perm))
	if err != nil {
		return nil, &OsError{Op: OpOpen, Path: path, Err: err}
	}

	return &File{h: newHandle(sys, raw)}, nil
}

// openMode converts perm to the mode argument of open(2), the way
// [os.OpenFile] does.
func openMode(perm os.FileMode) uint32 {
	mode := uint32(perm.Perm())

	if perm&os.ModeSetuid != 0 {
		mode |= modeSetuid
	}

	if perm&os.ModeSetgid != 0 {
		mode |= modeSetgid
	}

	if perm&os.ModeSticky != 0 {
		mode |= modeSticky
	}

	return mode
}

// Fd returns the raw handle, or [Invalid] if f is empty.
//
// f keeps ownership. Callers must not close the value, and must keep f
// reachable (see [runtime.KeepAlive]) while they use it, otherwise the
// collector may release it.
func (f *File) Fd() FD {
	if f.h == nil {
		return Invalid
	}

	return f.h.raw
}

// Owning reports whether f currently owns a handle.
func (f *File) Owning() bool {
	return f.h != nil
}

// Size returns the current length of the file in bytes.
//
// The value comes from file metadata (fstat on unix, the handle
// information query on windows), so the read/write offset does not matter.
// Errors are an [*OsError] with Op [OpSize]; an empty f reports EBADF.
func (f *File) Size() (int64, error) {
	h := f.h
	if h == nil {
		return 0, &OsError{Op: OpSize, Err: syscall.EBADF}
	}

	size, err := h.sys.Size(h.raw)
	runtime.KeepAlive(h)

	if err != nil {
		return 0, &OsError{Op: OpSize, Err: err}
	}

	return size, nil
}

// Close releases the handle.
//
// Close is a no-op returning nil if f is empty or holds a reserved value
// (0 or 1); a reserved File stays owning. Otherwise f becomes empty whether
// or not the OS close succeeds, so a second Close never closes twice. A
// failed close is reported as an [*OsError] with Op [OpClose].
func (f *File) Close() error {
	if f.h == nil {
		return nil
	}

	released, err := f.h.close()
	if !released {
		return nil
	}

	f.h = nil

	if err != nil {
		return &OsError{Op: OpClose, Err: err}
	}

	return nil
}

// Dispose releases the handle like [File.Close] and discards any error.
//
// Use it on cleanup paths that must not fail:
//
//	f, err := fd.Open(path, os.O_RDONLY, 0)
//	if err != nil {
//	    return err
//	}
//	defer f.Dispose()
func (f *File) Dispose() {
	_ = f.Close()
}

// Move transfers the handle to a new File and leaves f empty.
// Moving an empty File returns an empty File.
func (f *File) Move() *File {
	moved := &File{h: f.h}
	f.h = nil

	return moved
}

// Assign releases whatever f owns, then takes over src's handle and leaves
// src empty. A failure to release f's old handle is discarded so that
// Assign itself never fails. Assigning f to itself does nothing.
func (f *File) Assign(src *File) {
	if src == f {
		return
	}

	f.Dispose()

	f.h = src.h
	src.h = nil
}

// noCopy makes go vet's copylocks check flag copies of a [File].
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
