package fdsys

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// =============================================================================
// Chaos Sys Tests
//
// These tests verify Chaos fault injection and errno-shaped errors.
//
// Chaos never injects ENOENT: missing-path errors must come from the wrapped Sys.
// =============================================================================

func writeFixture(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	return path
}

func Test_Chaos_Passes_Through_When_Mode_Is_NoOp(t *testing.T) {
	chaos := NewChaos(NewReal(), 12345, ChaosConfig{
		OpenFailRate:  1.0,
		CloseFailRate: 1.0,
		SizeFailRate:  1.0,
	})
	chaos.SetMode(ChaosModeNoOp)

	path := writeFixture(t, "noop.bin", []byte("hello"))

	raw, err := chaos.Open(path, os.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	size, err := chaos.Size(raw)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}

	if got, want := size, int64(5); got != want {
		t.Fatalf("size=%d, want=%d", got, want)
	}

	if err := chaos.Close(raw); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got, want := chaos.TotalFaults(), int64(0); got != want {
		t.Fatalf("TotalFaults=%d, want=%d", got, want)
	}
}

func Test_Chaos_Toggles_Injection_When_Mode_Changes(t *testing.T) {
	chaos := NewChaos(NewReal(), 12345, ChaosConfig{SizeFailRate: 1.0})
	path := writeFixture(t, "toggle.bin", []byte("abc"))

	raw, err := chaos.Open(path, os.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	t.Cleanup(func() { _ = chaos.Close(raw) })

	// Active by default - should fail
	if _, err := chaos.Size(raw); err == nil {
		t.Fatal("active: expected error")
	}

	// NoOp - should succeed
	chaos.SetMode(ChaosModeNoOp)

	if _, err := chaos.Size(raw); err != nil {
		t.Fatalf("noop: %v", err)
	}

	// Active again - should fail
	chaos.SetMode(ChaosModeActive)

	if _, err := chaos.Size(raw); err == nil {
		t.Fatal("active: expected error")
	}
}

func Test_Chaos_Injects_Open_Error_When_Open_Fail_Rate_Is_One(t *testing.T) {
	chaos := NewChaos(NewReal(), 7, ChaosConfig{OpenFailRate: 1.0})
	path := writeFixture(t, "open.bin", nil)

	_, err := chaos.Open(path, os.O_RDONLY, 0)
	if err == nil {
		t.Fatal("Open unexpectedly succeeded")
	}

	if got, want := IsChaosErr(err), true; got != want {
		t.Fatalf("IsChaosErr=%v, want=%v (err=%v)", got, want, err)
	}

	if errors.Is(err, syscall.ENOENT) {
		t.Fatalf("open should never inject ENOENT: %v", err)
	}

	validErrs := []error{syscall.EACCES, syscall.EIO, syscall.EMFILE, syscall.ENFILE, syscall.ENOTDIR}

	for _, e := range validErrs {
		if errors.Is(err, e) {
			return
		}
	}

	t.Fatalf("err=%v, want one of %v", err, validErrs)
}

func Test_Chaos_Returns_Real_Error_When_Path_Is_Missing(t *testing.T) {
	chaos := NewChaos(NewReal(), 7, ChaosConfig{})

	_, err := chaos.Open(filepath.Join(t.TempDir(), "missing"), os.O_RDONLY, 0)
	if err == nil {
		t.Fatal("Open unexpectedly succeeded")
	}

	if got, want := IsChaosErr(err), false; got != want {
		t.Fatalf("IsChaosErr=%v, want=%v (err=%v)", got, want, err)
	}

	if got, want := os.IsNotExist(err), true; got != want {
		t.Fatalf("os.IsNotExist=%v, want=%v (err=%v)", got, want, err)
	}
}

func Test_Chaos_Closes_Underlying_Handle_When_Close_Fault_Is_Injected(t *testing.T) {
	chaos := NewChaos(NewReal(), 99, ChaosConfig{CloseFailRate: 1.0})
	path := writeFixture(t, "close.bin", []byte("x"))

	raw, err := chaos.Open(path, os.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	err = chaos.Close(raw)

	if got, want := IsChaosErr(err), true; got != want {
		t.Fatalf("IsChaosErr=%v, want=%v (err=%v)", got, want, err)
	}

	if got, want := errors.Is(err, syscall.EIO), true; got != want {
		t.Fatalf("errors.Is(err, EIO)=%v, want=%v", got, want)
	}

	// The real handle is gone: a real close now fails.
	if err := NewReal().Close(raw); err == nil {
		t.Fatal("underlying handle still open after injected close failure")
	}
}

func Test_Chaos_Counts_Injected_Faults_When_All_Rates_Are_One(t *testing.T) {
	chaos := NewChaos(NewReal(), 3, ChaosConfig{CloseFailRate: 1.0, SizeFailRate: 1.0})
	path := writeFixture(t, "stats.bin", []byte("abcdef"))

	raw, err := chaos.Open(path, os.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	_, _ = chaos.Size(raw)
	_, _ = chaos.Size(raw)
	_ = chaos.Close(raw)

	want := ChaosStats{CloseFails: 1, SizeFails: 2}

	if diff := cmp.Diff(want, chaos.Stats()); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}

	if got, want := chaos.TotalFaults(), int64(3); got != want {
		t.Fatalf("TotalFaults=%d, want=%d", got, want)
	}
}

func Test_Chaos_Is_Deterministic_When_Seed_Is_Fixed(t *testing.T) {
	path := writeFixture(t, "seed.bin", []byte("abc"))

	run := func() []bool {
		chaos := NewChaos(NewReal(), 42, ChaosConfig{SizeFailRate: 0.5})

		raw, err := chaos.Open(path, os.O_RDONLY, 0)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}

		defer chaos.Close(raw)

		var outcomes []bool

		for range 32 {
			_, err := chaos.Size(raw)
			outcomes = append(outcomes, err == nil)
		}

		return outcomes
	}

	if diff := cmp.Diff(run(), run()); diff != "" {
		t.Fatalf("same seed produced different outcomes (-first +second):\n%s", diff)
	}
}

func Test_Chaos_Trace_Names_Path_When_Handle_Was_Opened_Through_Chaos(t *testing.T) {
	chaos := NewChaos(NewReal(), 1, ChaosConfig{TraceCapacity: 8})
	path := writeFixture(t, "trace.bin", []byte("abc"))

	raw, err := chaos.Open(path, os.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := chaos.Size(raw); err != nil {
		t.Fatalf("Size: %v", err)
	}

	if err := chaos.Close(raw); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := chaos.TraceEvents()

	var ops []string

	for _, e := range events {
		ops = append(ops, e.Op)

		if e.Path != path {
			t.Fatalf("event %s path=%q, want %q", e.Op, e.Path, path)
		}
	}

	if diff := cmp.Diff([]string{"open", "size", "close"}, ops); diff != "" {
		t.Fatalf("ops mismatch (-want +got):\n%s", diff)
	}

	if got := chaos.Trace(); !strings.Contains(got, "size=3") {
		t.Fatalf("Trace()=%q, want it to contain size=3", got)
	}
}

func Test_Chaos_Trace_Keeps_Latest_Events_When_Capacity_Is_Exceeded(t *testing.T) {
	chaos := NewChaos(NewReal(), 1, ChaosConfig{TraceCapacity: 2})
	path := writeFixture(t, "ring.bin", []byte("abc"))

	raw, err := chaos.Open(path, os.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for range 3 {
		_, _ = chaos.Size(raw)
	}

	_ = chaos.Close(raw)

	events := chaos.TraceEvents()

	if got, want := len(events), 2; got != want {
		t.Fatalf("len(events)=%d, want=%d", got, want)
	}

	if got, want := events[0].Seq, uint64(4); got != want {
		t.Fatalf("events[0].Seq=%d, want=%d", got, want)
	}

	if got, want := events[1].Op, "close"; got != want {
		t.Fatalf("events[1].Op=%q, want=%q", got, want)
	}
}

func Test_Chaos_Trace_Is_Empty_When_Capacity_Is_Zero(t *testing.T) {
	chaos := NewChaos(NewReal(), 1, ChaosConfig{})

	if got := chaos.Trace(); got != "" {
		t.Fatalf("Trace()=%q, want empty", got)
	}

	if got := chaos.TraceEvents(); got != nil {
		t.Fatalf("TraceEvents()=%v, want nil", got)
	}
}
