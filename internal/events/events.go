// internal/events/events.go
package events

import (
	"time"

	"github.com/tamzrod/vsd-gateway/internal/health"
)

// Topics consumers can subscribe to. Data is also published under the device name.
const (
	TopicData    = "drive:data"
	TopicOnline  = "drive:device_online"
	TopicOffline = "drive:device_offline"
	TopicPLC     = "plc"
)

// Event is anything the engine publishes.
type Event interface {
	Topics() []string
}

// Reading is one parameter outcome of a sweep. Error is set when the read failed.
type Reading struct {
	Name  string  `json:"name"`
	Unit  string  `json:"unit,omitempty"`
	Raw   int32   `json:"raw"`
	Value float64 `json:"value"`
	Error string  `json:"error,omitempty"`
}

// OK reports whether the parameter was read.
func (r Reading) OK() bool { return r.Error == "" }

// Data is one successful sweep of one device.
type Data struct {
	Device   string    `json:"device"`
	Label    string    `json:"label"`
	Readings []Reading `json:"readings"`
	At       time.Time `json:"ts"`
}

func (d Data) Topics() []string { return []string{d.Device, TopicData} }

// Value returns the decoded value of the named parameter.
func (d Data) Value(name string) (float64, bool) {
	for _, r := range d.Readings {
		if r.Name == name && r.OK() {
			return r.Value, true
		}
	}
	return 0, false
}

// Transition is an ONLINE/OFFLINE edge of one device.
type Transition struct {
	Device string       `json:"device"`
	Label  string       `json:"label"`
	State  health.State `json:"state"`
	Reason string       `json:"reason"`
	At     time.Time    `json:"ts"`
}

func (t Transition) Topics() []string {
	if t.State == health.Offline {
		return []string{TopicOffline}
	}
	return []string{TopicOnline}
}

// FromHealth converts a health edge into an event.
func FromHealth(tr health.Transition) Transition {
	return Transition{
		Device: tr.Device,
		Label:  tr.Label,
		State:  tr.To,
		Reason: tr.Reason,
		At:     tr.At,
	}
}

// PLC is one decoded read of the PLC tag block.
type PLC struct {
	Values map[string]float64 `json:"values"`
	At     time.Time          `json:"ts"`
}

func (PLC) Topics() []string { return []string{TopicPLC} }
