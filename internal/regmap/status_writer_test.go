// internal/regmap/status_writer_test.go
package regmap

import (
	"errors"
	"testing"

	"github.com/tamzrod/vsd-gateway/internal/status"
)

// ---- fake register destination ----

type fakeRegisters struct {
	calls    int
	lastAddr uint16
	lastRegs []uint16
	fail     bool
}

func (f *fakeRegisters) WriteRegisters(addr uint16, values []uint16) error {
	f.calls++
	if f.fail {
		return errors.New("write refused")
	}
	f.lastAddr = addr
	f.lastRegs = append([]uint16(nil), values...)
	return nil
}

// ---- tests ----

func TestLabelWrittenOnFullAssertOnly(t *testing.T) {
	dst := &fakeRegisters{}
	sw := newStatusWriter(&StatusPlan{Base: 8000}, "PMP 1 INTAKE", dst)

	// ---- first write: FULL ASSERT ----
	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthOK}); err != nil {
		t.Fatalf("initial full assert failed: %v", err)
	}

	if len(dst.lastRegs) != status.SlotsPerDevice || dst.lastAddr != 8000 {
		t.Fatalf("expected full block write at 8000, got %d regs at %d", len(dst.lastRegs), dst.lastAddr)
	}

	// Verify label encoding EXACTLY
	want := status.EncodeName("PMP 1 INTAKE")
	for i := 0; i < status.SlotDeviceNameSlots; i++ {
		slot := status.SlotDeviceNameStart + i
		if dst.lastRegs[slot] != want[i] {
			t.Fatalf("label slot %d mismatch: got=%d want=%d", slot, dst.lastRegs[slot], want[i])
		}
	}

	// ---- second write: INCREMENTAL ONLY ----
	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthError, LastErrorCode: 1}); err != nil {
		t.Fatalf("incremental write failed: %v", err)
	}

	if len(dst.lastRegs) == status.SlotsPerDevice {
		t.Fatalf("label should not be rewritten on incremental update")
	}
	if dst.lastAddr != 8000+status.SlotLastErrorCode || dst.lastRegs[0] != 1 {
		t.Fatalf("expected last error write at slot 1, got addr=%d regs=%v", dst.lastAddr, dst.lastRegs)
	}
}

func TestUnchangedSnapshotWritesNothing(t *testing.T) {
	dst := &fakeRegisters{}
	sw := newStatusWriter(&StatusPlan{Base: 0}, "DEV", dst)

	s := status.Snapshot{Health: status.HealthOK}
	if err := sw.WriteStatus(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sw.WriteStatus(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dst.calls != 1 {
		t.Fatalf("expected 1 write, got %d", dst.calls)
	}
}

func TestFailedWriteForcesFullReassert(t *testing.T) {
	dst := &fakeRegisters{}
	sw := newStatusWriter(&StatusPlan{Base: 0}, "DEV", dst)

	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthOK}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dst.fail = true
	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthError}); err == nil {
		t.Fatalf("expected error, got nil")
	}

	dst.fail = false
	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthError}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dst.lastRegs) != status.SlotsPerDevice {
		t.Fatalf("expected full block re-assert, got %d regs", len(dst.lastRegs))
	}
}
