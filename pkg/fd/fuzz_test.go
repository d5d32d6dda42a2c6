package fd

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"testing"
)

// =============================================================================
// Fuzz Tests
//
// FuzzFile_Ownership drives a handful of File slots through random sequences
// of Open, Wrap, Move, Assign, Close, Dispose and Size. A model Sys tracks
// which raw handles are live and fails the test on any close it should never
// see. After every step:
//   - each live handle is owned by exactly one slot
//   - no raw handle was closed twice
//   - reserved values 0 and 1 were never closed
//
// Disposing every slot at the end must leave no live handles behind.
// =============================================================================

const fuzzSlots = 4

// modelSys hands out raw handles counting up from 3 and never reuses them,
// so a double close is always visible.
type modelSys struct {
	mu     sync.Mutex
	next   uintptr
	live   map[uintptr]int64
	closed map[uintptr]bool
	errs   []string

	failNextClose bool
}

func newModelSys() *modelSys {
	return &modelSys{
		next:   3,
		live:   map[uintptr]int64{},
		closed: map[uintptr]bool{},
	}
}

func (m *modelSys) Open(_ string, _ int, _ uint32) (uintptr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw := m.next
	m.next++
	m.live[raw] = int64(raw) * 10

	return raw, nil
}

func (m *modelSys) Close(raw uintptr) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case raw < reservedLimit:
		m.errs = append(m.errs, fmt.Sprintf("reserved handle %d closed", raw))
	case m.closed[raw]:
		m.errs = append(m.errs, fmt.Sprintf("handle %d closed twice", raw))
	case raw >= m.next:
		m.errs = append(m.errs, fmt.Sprintf("handle %d closed but never opened", raw))
	}

	delete(m.live, raw)
	m.closed[raw] = true

	if m.failNextClose {
		m.failNextClose = false

		return syscall.EIO
	}

	return nil
}

func (m *modelSys) Size(raw uintptr) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if raw < reservedLimit {
		return 0, nil
	}

	size, ok := m.live[raw]
	if !ok {
		m.errs = append(m.errs, fmt.Sprintf("size on dead handle %d", raw))

		return 0, syscall.EBADF
	}

	return size, nil
}

func (m *modelSys) check(t *testing.T, step int, slots []*File) {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.errs) > 0 {
		t.Fatalf("step %d: %v", step, m.errs)
	}

	for raw := range m.live {
		owners := 0

		for _, f := range slots {
			if f.Fd() == raw {
				owners++
			}
		}

		if owners != 1 {
			t.Fatalf("step %d: live handle %d has %d owners", step, raw, owners)
		}
	}

	for i, f := range slots {
		raw := f.Fd()
		if raw == Invalid || raw < reservedLimit {
			continue
		}

		if _, ok := m.live[raw]; !ok {
			t.Fatalf("step %d: slot %d holds dead handle %d", step, i, raw)
		}
	}
}

func FuzzFile_Ownership(f *testing.F) {
	f.Add([]byte{0, 0, 1, 0, 2, 0})
	f.Add([]byte{0, 0, 0, 1, 3, 1, 0, 2, 2, 0, 2, 1})
	f.Add([]byte{5, 0, 2, 0, 4, 0, 3, 0})
	f.Add([]byte{0, 1, 7, 1, 2, 1, 2, 1})
	f.Add([]byte{0, 0, 6, 0, 0, 1, 1, 0, 4, 1, 3, 1})

	f.Fuzz(func(t *testing.T, ops []byte) {
		sys := newModelSys()

		slots := make([]*File, fuzzSlots)
		for i := range slots {
			slots[i] = &File{}
		}

		for step := 0; step+1 < len(ops); step += 2 {
			op := ops[step] % 8
			arg := ops[step+1]
			i := int(arg) % fuzzSlots
			j := int(arg>>2) % fuzzSlots

			switch op {
			case 0: // open into slot i
				opened, err := OpenWith(sys, "model", 0, 0)
				if err != nil {
					t.Fatalf("step %d: open: %v", step, err)
				}

				slots[i].Assign(opened)
			case 1: // move i into j
				slots[j].Assign(slots[i].Move())
			case 2: // close
				wasOwning := slots[i].Owning()
				reserved := wasOwning && slots[i].Fd() < reservedLimit

				err := slots[i].Close()
				if err != nil {
					t.Fatalf("step %d: close: %v", step, err)
				}

				if got, want := slots[i].Owning(), reserved; got != want {
					t.Fatalf("step %d: Owning after Close=%v, want=%v", step, got, want)
				}
			case 3: // dispose
				slots[i].Dispose()
			case 4: // size
				size, err := slots[i].Size()

				switch {
				case !slots[i].Owning():
					var osErr *OsError
					if !errors.As(err, &osErr) || osErr.Code() != syscall.EBADF {
						t.Fatalf("step %d: Size on empty slot: %v, want EBADF", step, err)
					}
				case slots[i].Fd() < reservedLimit:
					if err != nil {
						t.Fatalf("step %d: Size on reserved: %v", step, err)
					}
				default:
					if err != nil || size != int64(slots[i].Fd())*10 {
						t.Fatalf("step %d: Size=%d, %v", step, size, err)
					}
				}
			case 5: // wrap a reserved value
				slots[i].Assign(WrapWith(sys, FD(arg&1)))
			case 6: // self assign
				before := slots[i].Fd()
				slots[i].Assign(slots[i])

				if got := slots[i].Fd(); got != before {
					t.Fatalf("step %d: self Assign changed Fd %d -> %d", step, before, got)
				}
			case 7: // close that fails at the OS
				if !slots[i].Owning() || slots[i].Fd() < reservedLimit {
					continue
				}

				sys.mu.Lock()
				sys.failNextClose = true
				sys.mu.Unlock()

				err := slots[i].Close()

				var osErr *OsError
				if !errors.As(err, &osErr) || osErr.Op != OpClose {
					t.Fatalf("step %d: failed close: %v, want OsError{Op: close}", step, err)
				}

				if slots[i].Owning() {
					t.Fatalf("step %d: slot still owning after failed close", step)
				}
			}

			sys.check(t, step, slots)
		}

		for _, s := range slots {
			s.Dispose()
		}

		sys.check(t, len(ops), slots)

		sys.mu.Lock()
		defer sys.mu.Unlock()

		if len(sys.live) != 0 {
			t.Fatalf("handles leaked after dispose: %v", sys.live)
		}
	})
}
