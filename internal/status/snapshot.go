// internal/status/snapshot.go
package status

import "github.com/tamzrod/vsd-gateway/internal/health"

// Snapshot represents exactly what the status writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16
	FailCount      uint16
}

// FromDevice derives the health and error slots from a device record.
// SecondsInError is owned by the 1 Hz ticker and carried from prev.
func FromDevice(d health.Device, prev Snapshot) Snapshot {
	s := prev

	switch {
	case d.LastProbe.IsZero():
		s.Health = HealthUnknown
	case d.State == health.Offline:
		s.Health = HealthDisabled
	case d.FailCount > 0:
		s.Health = HealthError
	default:
		s.Health = HealthOK
	}

	s.LastErrorCode = d.LastErrorCode
	if d.FailCount > 0xFFFF {
		s.FailCount = 0xFFFF
	} else {
		s.FailCount = uint16(d.FailCount)
	}

	// recovery resets the counter
	if s.Health == HealthOK {
		s.SecondsInError = 0
	}

	return s
}

// Tick advances SecondsInError by one second while the device is not OK.
// It saturates and reports whether the snapshot changed.
func (s *Snapshot) Tick() bool {
	if s.Health == HealthOK || s.Health == HealthUnknown {
		return false
	}
	if s.SecondsInError >= MaxSecondsInError {
		return false
	}
	s.SecondsInError++
	return true
}
