package fdsys

// Real implements [Sys] using the host operating system.
//
// Every method is a thin passthrough to golang.org/x/sys. The platform
// specific halves live in real_unix.go and real_windows.go and are selected
// at build time.
type Real struct{}

// NewReal returns a new [Real].
func NewReal() *Real {
	return &Real{}
}

// Open opens path. On unix O_CLOEXEC is always added.
func (r *Real) Open(path string, flag int, perm uint32) (uintptr, error) {
	return openRaw(path, flag, perm)
}

func (r *Real) Close(raw uintptr) error {
	return closeRaw(raw)
}

// Size queries file metadata for raw.
func (r *Real) Size(raw uintptr) (int64, error) {
	return sizeRaw(raw)
}
