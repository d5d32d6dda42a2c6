package fdsys

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection. Unset rates default to 0.0.
//
// Fault injection is enabled by default ([ChaosModeActive]). Use
// [Chaos.SetMode] with [ChaosModeNoOp] to pass every call through to the
// underlying [Sys].
type ChaosConfig struct {
	// OpenFailRate controls how often Open fails before reaching the
	// underlying Sys. Read-only opens fail with EACCES, EIO, EMFILE, ENFILE
	// or ENOTDIR. Opens that may write or create add ENOSPC, EDQUOT, EROFS.
	OpenFailRate float64

	// CloseFailRate controls how often Close reports an error. The
	// underlying handle is always closed (to avoid leaks) even when an error
	// is returned. Returns EIO.
	CloseFailRate float64

	// SizeFailRate controls how often Size fails on an open handle,
	// returning EIO.
	SizeFailRate float64

	// TraceCapacity is the max number of calls to keep in the trace log.
	// Set to 0 (default) to disable tracing.
	TraceCapacity int
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection.
	// This is the default mode for a new [Chaos].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every call directly to the underlying Sys.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails  int64
	CloseFails int64
	SizeFails  int64
}

// chaosError marks an error as intentionally injected by [Chaos].
//
// It wraps a [syscall.Errno] so errors.Is/As and os.IsPermission keep
// working, while [IsChaosErr] can still tell injected and real errors apart.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsChaosErr reports whether err (or any wrapped error) was injected by [Chaos].
// Returns false if err is nil.
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// Chaos wraps a [Sys] and injects random failures for testing.
//
// Error model:
//   - Injected errors are a [syscall.Errno] wrapped so [IsChaosErr] reports
//     true. Errors from the wrapped Sys are returned unchanged.
//   - Chaos never injects ENOENT (missing paths come from the wrapped Sys)
//     and never injects EINTR.
//   - Chaos does not inject "API misuse" failures such as EBADF; those
//     come from the wrapped Sys when a caller passes a bad handle.
//
// Return-shape constraints:
//   - Open injected failures return raw==0 and never reach the wrapped Sys.
//   - Close injected failures still close the underlying handle.
//   - Size injected failures return 0 after skipping the wrapped Sys.
//
// Chaos remembers the path each handle was opened with so traces of Close
// and Size calls can name the file.
type Chaos struct {
	sys    Sys
	rng    *rand.Rand
	config ChaosConfig
	mode   atomic.Uint32
	trace  *chaosTrace

	rngMu sync.Mutex

	pathsMu sync.Mutex
	paths   map[uintptr]string

	openFails  atomic.Int64
	closeFails atomic.Int64
	sizeFails  atomic.Int64
}

// NewChaos creates a new [Chaos] wrapping the given [Sys].
// The seed controls random fault injection for reproducibility.
// Panics if underlying is nil.
func NewChaos(underlying Sys, seed int64, config ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying sys is nil")
	}

	return &Chaos{
		sys:    underlying,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		config: config,
		trace:  newChaosTrace(config.TraceCapacity),
		paths:  make(map[uintptr]string),
	}
}

// SetMode updates [Chaos] behavior. Safe to call concurrently.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Trace returns a formatted string of recent calls.
// Returns an empty string if tracing is disabled (TraceCapacity == 0).
func (c *Chaos) Trace() string {
	return c.trace.String()
}

// TraceEvents returns a snapshot of the trace buffer.
// Returns nil if tracing is disabled (TraceCapacity == 0).
func (c *Chaos) TraceEvents() []TraceEvent {
	return c.trace.snapshot()
}

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:  c.openFails.Load(),
		CloseFails: c.closeFails.Load(),
		SizeFails:  c.sizeFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults.
func (c *Chaos) TotalFaults() int64 {
	stats := c.Stats()

	return stats.OpenFails + stats.CloseFails + stats.SizeFails
}

// Open opens path with fault injection.
func (c *Chaos) Open(path string, flag int, perm uint32) (uintptr, error) {
	op := chaosOpOpen
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		op = chaosOpCreate
	}

	mode := c.getMode()

	if c.should(mode, c.config.OpenFailRate) {
		errno := c.pickError(op)
		c.openFails.Add(1)

		err := &chaosError{Err: errno}

		c.trace.add(op, path, "fail", err, true, TraceAttr{"errno", errno.Error()})

		return 0, err
	}

	raw, err := c.sys.Open(path, flag, perm)
	if err != nil {
		c.trace.add(op, path, "fail", err, false)

		return 0, err
	}

	c.pathsMu.Lock()
	c.paths[raw] = path
	c.pathsMu.Unlock()

	c.trace.add(op, path, "ok", nil, false, TraceAttr{"raw", strconv.FormatUint(uint64(raw), 10)})

	return raw, nil
}

// Close closes raw with fault injection.
func (c *Chaos) Close(raw uintptr) error {
	path := c.forget(raw)
	mode := c.getMode()
	injectClose := c.should(mode, c.config.CloseFailRate)

	// Always close the underlying handle to avoid descriptor leaks, even when
	// returning an injected error.
	err := c.sys.Close(raw)
	if err != nil {
		c.trace.add("close", path, "fail", err, false, rawAttr(raw))

		return err
	}

	if injectClose {
		c.closeFails.Add(1)
		errno := c.pickError(chaosOpClose)
		err := &chaosError{Err: errno}

		c.trace.add("close", path, "fail", err, true, rawAttr(raw), TraceAttr{"errno", errno.Error()})

		return err
	}

	c.trace.add("close", path, "ok", nil, false, rawAttr(raw))

	return nil
}

// Size queries the size of raw with fault injection.
func (c *Chaos) Size(raw uintptr) (int64, error) {
	path := c.lookup(raw)
	mode := c.getMode()

	if c.should(mode, c.config.SizeFailRate) {
		c.sizeFails.Add(1)
		errno := c.pickError(chaosOpSize)
		err := &chaosError{Err: errno}

		c.trace.add("size", path, "fail", err, true, rawAttr(raw), TraceAttr{"errno", errno.Error()})

		return 0, err
	}

	size, err := c.sys.Size(raw)
	if err != nil {
		c.trace.add("size", path, "fail", err, false, rawAttr(raw))

		return 0, err
	}

	c.trace.add("size", path, "ok", nil, false, rawAttr(raw), TraceAttr{"size", strconv.FormatInt(size, 10)})

	return size, nil
}

// getMode returns the current ChaosMode safely.
func (c *Chaos) getMode() ChaosMode {
	v := c.mode.Load()
	if v > uint32(ChaosModeNoOp) {
		return ChaosModeActive
	}

	return ChaosMode(v)
}

func (c *Chaos) lookup(raw uintptr) string {
	c.pathsMu.Lock()
	defer c.pathsMu.Unlock()

	return c.paths[raw]
}

func (c *Chaos) forget(raw uintptr) string {
	c.pathsMu.Lock()
	defer c.pathsMu.Unlock()

	path := c.paths[raw]
	delete(c.paths, raw)

	return path
}

// chaosOp identifies operation names used in Chaos fault injection.
const (
	chaosOpOpen   = "open"
	chaosOpCreate = "create"
	chaosOpClose  = "close"
	chaosOpSize   = "size"
)

// should returns true with the given probability when chaos is injecting.
func (c *Chaos) should(mode ChaosMode, rate float64) bool {
	if mode != ChaosModeActive {
		return false
	}

	return c.randFloat() < rate
}

// randFloat returns a random float64 in [0.0, 1.0) (thread-safe).
func (c *Chaos) randFloat() float64 {
	c.rngMu.Lock()
	result := c.rng.Float64()
	c.rngMu.Unlock()

	return result
}

// randIntn returns a random int in [0, n) (thread-safe).
func (c *Chaos) randIntn(n int) int {
	c.rngMu.Lock()
	result := c.rng.IntN(n)
	c.rngMu.Unlock()

	return result
}

// pickRandom selects a random error from the slice.
func (c *Chaos) pickRandom(errs []syscall.Errno) syscall.Errno {
	return errs[c.randIntn(len(errs))]
}

// pickError selects an injected errno for the given operation.
//
// Operation → injected errnos:
//   - open: EACCES, EIO, EMFILE, ENFILE, ENOTDIR
//   - create: EACCES, EIO, ENOSPC, EDQUOT, EROFS, EMFILE, ENFILE, ENOTDIR
//   - close, size: EIO only (avoid EACCES/ENOENT post-open)
func (c *Chaos) pickError(op string) syscall.Errno {
	switch op {
	case chaosOpOpen:
		// EACCES: permission denied (file/directory permissions or ACLs)
		// EIO: I/O error (device/filesystem failure)
		// EMFILE: too many open files for this process (per-process FD limit)
		// ENFILE: too many open files in the system (system-wide FD limit)
		// ENOTDIR: expected a directory, but a path component is not a directory
		return c.pickRandom([]syscall.Errno{
			syscall.EACCES,
			syscall.EIO,
			syscall.EMFILE,
			syscall.ENFILE,
			syscall.ENOTDIR,
		})

	case chaosOpCreate:
		// Same as open, plus the write-side failures:
		// ENOSPC: no space left on device
		// EDQUOT: disk quota exceeded
		// EROFS: read-only filesystem (writes/mutations are rejected)
		return c.pickRandom([]syscall.Errno{
			syscall.EACCES,
			syscall.EIO,
			syscall.ENOSPC,
			syscall.EDQUOT,
			syscall.EROFS,
			syscall.EMFILE,
			syscall.ENFILE,
			syscall.ENOTDIR,
		})

	default:
		return syscall.EIO
	}
}

func rawAttr(raw uintptr) TraceAttr {
	return TraceAttr{"raw", strconv.FormatUint(uint64(raw), 10)}
}

// TraceEvent records one call seen by [Chaos].
type TraceEvent struct {
	// Seq is the monotonically increasing sequence number.
	Seq uint64
	// Op is the call name ("open", "create", "close", "size").
	Op string
	// Path is the path the handle was opened with, if known.
	Path string
	// Err is the error returned by the call (nil for success).
	Err error
	// Injected is true if Chaos produced the error.
	Injected bool
	// Kind is a short label for what happened: "ok" or "fail".
	Kind string
	// Attrs contains additional key-value details (e.g. "raw=7", "errno=EIO").
	Attrs []TraceAttr
}

// TraceAttr is one key-value detail of a [TraceEvent].
type TraceAttr struct {
	Key   string
	Value string
}

func (e TraceEvent) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "#%d", e.Seq)

	if e.Injected {
		fmt.Fprintf(&sb, " [CHAOS:%s]", e.Kind)
	}

	fmt.Fprintf(&sb, " %s", e.Op)

	if e.Path != "" {
		fmt.Fprintf(&sb, " path=%q", e.Path)
	}

	for _, a := range e.Attrs {
		fmt.Fprintf(&sb, " %s=%s", a.Key, a.Value)
	}

	if !e.Injected {
		sb.WriteString(" ")
		sb.WriteString(e.Kind)
	}

	if e.Err != nil {
		fmt.Fprintf(&sb, " err=%v", e.Err)
	}

	return sb.String()
}

// chaosTrace is a bounded circular buffer of [TraceEvent].
type chaosTrace struct {
	mu       sync.Mutex
	capacity int
	events   []TraceEvent
	next     int
	full     bool
	seq      uint64
}

func newChaosTrace(capacity int) *chaosTrace {
	if capacity <= 0 {
		return nil
	}

	return &chaosTrace{
		capacity: capacity,
		events:   make([]TraceEvent, 0, capacity),
	}
}

func (t *chaosTrace) String() string {
	events := t.snapshot()
	if len(events) == 0 {
		return ""
	}

	var sb strings.Builder

	for i, e := range events {
		if i > 0 {
			sb.WriteByte('\n')
		}

		sb.WriteString(e.String())
	}

	return sb.String()
}

func (t *chaosTrace) add(op, path, kind string, err error, injected bool, attrs ...TraceAttr) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++

	event := TraceEvent{
		Seq:      t.seq,
		Op:       op,
		Path:     path,
		Err:      err,
		Injected: injected,
		Kind:     kind,
		Attrs:    attrs,
	}

	if len(t.events) < t.capacity {
		t.events = append(t.events, event)

		return
	}

	t.events[t.next] = event
	t.next = (t.next + 1) % t.capacity
	t.full = true
}

func (t *chaosTrace) snapshot() []TraceEvent {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		return append([]TraceEvent(nil), t.events...)
	}

	out := make([]TraceEvent, 0, len(t.events))
	out = append(out, t.events[t.next:]...)
	out = append(out, t.events[:t.next]...)

	return out
}
