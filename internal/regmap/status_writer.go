// internal/regmap/status_writer.go
package regmap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/vsd-gateway/internal/status"
)

// registerWriter is the exact contract the status writer uses.
type registerWriter interface {
	WriteRegisters(addr uint16, values []uint16) error
}

// statusWriter delivers one device status block into the map.
// It receives a snapshot and writes it verbatim.
type statusWriter struct {
	plan  *StatusPlan
	label string
	dst   registerWriter

	needFull bool
	snap     status.Snapshot // latest wanted state
	last     status.Snapshot // latest delivered state
}

func newStatusWriter(plan *StatusPlan, label string, dst registerWriter) *statusWriter {
	return &statusWriter{
		plan:     plan,
		label:    label,
		dst:      dst,
		needFull: true, // full re-assert on first write
	}
}

// WriteStatus delivers a status snapshot.
// On any write failure, the next call re-asserts the full block.
func (sw *statusWriter) WriteStatus(s status.Snapshot) error {
	if sw == nil || sw.plan == nil {
		return errors.New("status writer: disabled")
	}
	sw.snap = s

	base := sw.plan.Base

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		if err := sw.dst.WriteRegisters(base, status.Encode(s, sw.label)); err != nil {
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}
		sw.needFull = false
		sw.last = s
		return nil
	}

	var errs []string

	write := func(slot int, name string, prev *uint16, v uint16) {
		if *prev == v {
			return
		}
		if err := sw.dst.WriteRegisters(base+uint16(slot), []uint16{v}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", slot, name, err))
			return
		}
		*prev = v
	}

	write(status.SlotHealthCode, "health", &sw.last.Health, s.Health)
	write(status.SlotLastErrorCode, "last_error", &sw.last.LastErrorCode, s.LastErrorCode)
	write(status.SlotSecondsInError, "seconds", &sw.last.SecondsInError, s.SecondsInError)
	write(status.SlotFailCount, "fail_count", &sw.last.FailCount, s.FailCount)

	if len(errs) > 0 {
		// Any partial failure introduces doubt, re-assert on next call.
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	return nil
}
