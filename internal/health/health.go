// internal/health/health.go
package health

import (
	"time"
)

// State is the health of one drive on the bus.
type State int

const (
	Online State = iota
	Offline
)

func (s State) String() string {
	if s == Offline {
		return "OFFLINE"
	}
	return "ONLINE"
}

// MarshalText renders the state as ONLINE/OFFLINE in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Error codes recorded with a failure. Mirrored into the status block.
const (
	CodeNone       uint16 = 0
	CodeDevice     uint16 = 1 // timeout / exception from this slave
	CodePort       uint16 = 2 // link went down while probing this slave
	CodeAllFailed  uint16 = 3 // every parameter of the sweep failed
	CodeUnexpected uint16 = 4 // recovered panic while probing
)

const (
	DefaultFailThreshold = 3
	DefaultCooldown      = 30 * time.Second
)

// Device is one drive and its runtime health.
// Mutated only by the polling goroutine.
type Device struct {
	ID    byte   `json:"id"`
	Name  string `json:"name"`
	Label string `json:"label"`

	State         State     `json:"state"`
	FailCount     int       `json:"fail_count"`
	LastOK        time.Time `json:"last_ok"`
	LastError     string    `json:"last_error,omitempty"`
	LastErrorCode uint16    `json:"last_error_code"`
	LastProbe     time.Time `json:"last_probe"`
	DisabledUntil time.Time `json:"disabled_until"`
}

// Transition is an edge between ONLINE and OFFLINE.
type Transition struct {
	Device string
	Label  string
	From   State
	To     State
	Reason string
	At     time.Time
}

// Policy holds the failure threshold and the OFFLINE cooldown.
type Policy struct {
	FailThreshold int
	Cooldown      time.Duration
}

// Normalized fills zero fields with defaults.
func (p Policy) Normalized() Policy {
	if p.FailThreshold <= 0 {
		p.FailThreshold = DefaultFailThreshold
	}
	if p.Cooldown <= 0 {
		p.Cooldown = DefaultCooldown
	}
	return p
}

// Due reports whether d may be probed at now.
// An OFFLINE device stays silent until its cooldown expires.
func (p Policy) Due(d *Device, now time.Time) bool {
	if d.State != Offline {
		return true
	}
	return !now.Before(d.DisabledUntil)
}

// Succeed records a successful sweep.
// The returned bool is true only on the OFFLINE -> ONLINE edge.
func (p Policy) Succeed(d *Device, now time.Time) (Transition, bool) {
	prev := d.State

	d.State = Online
	d.FailCount = 0
	d.LastOK = now
	d.LastErrorCode = CodeNone
	d.DisabledUntil = time.Time{}

	if prev == Online {
		return Transition{}, false
	}

	return Transition{
		Device: d.Name,
		Label:  d.Label,
		From:   prev,
		To:     Online,
		Reason: "recovered",
		At:     now,
	}, true
}

// Fail records a device-level failure.
// Reaching the threshold moves the device OFFLINE and (re)arms the cooldown;
// the returned bool is true only on the ONLINE -> OFFLINE edge.
func (p Policy) Fail(d *Device, now time.Time, code uint16, reason string) (Transition, bool) {
	d.FailCount++
	d.LastError = reason
	d.LastErrorCode = code

	if d.FailCount < p.FailThreshold {
		return Transition{}, false
	}

	prev := d.State
	d.State = Offline
	d.DisabledUntil = now.Add(p.Cooldown)

	if prev == Offline {
		return Transition{}, false
	}

	return Transition{
		Device: d.Name,
		Label:  d.Label,
		From:   prev,
		To:     Offline,
		Reason: reason,
		At:     now,
	}, true
}
