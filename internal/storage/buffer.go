// internal/storage/buffer.go
package storage

import (
	"strings"
	"sync"
	"time"

	"github.com/tamzrod/vsd-gateway/internal/events"
)

// Pump status column values.
const (
	StatusOn  = "ON"
	StatusOff = "OFF"
)

// Sample is the latest known state of one pump.
type Sample struct {
	Pump       string    `json:"pump"`
	Status     string    `json:"status"`
	Speed      float64   `json:"speed"`
	Frequency  float64   `json:"frequency"`
	Current    float64   `json:"current"`
	Torque     float64   `json:"torque"`
	MotorPower float64   `json:"motor_power"`
	DCVolt     float64   `json:"dc_volt"`
	OutputVolt float64   `json:"output_volt"`
	KWhCounter float64   `json:"kwh"`
	MWhCounter float64   `json:"mwh"`
	Timestamp  time.Time `json:"timestamp"`
}

// Buffer keeps one Sample per pump. A stopped or offline pump reads as OFF
// with zeroed process values; energy counters are carried over.
// A pump appears only after its first event.
type Buffer struct {
	runParam string

	mu      sync.Mutex
	samples map[string]Sample
}

// NewBuffer returns an empty buffer. runParam decides ON/OFF, "frequency" by default.
func NewBuffer(runParam string) *Buffer {
	if runParam == "" {
		runParam = "frequency"
	}
	return &Buffer{
		runParam: runParam,
		samples:  make(map[string]Sample),
	}
}

// Subscribe attaches the buffer to the engine topics.
func (b *Buffer) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.TopicData, b.Handle)
	bus.Subscribe(events.TopicOffline, b.Handle)
}

// Handle folds one event in. It never blocks.
func (b *Buffer) Handle(e events.Event) {
	switch ev := e.(type) {
	case events.Data:
		run, ok := ev.Value(b.runParam)
		if !ok || run == 0 {
			b.off(ev.Device, ev.At)
			return
		}
		b.on(ev)

	case events.Transition:
		b.off(ev.Device, ev.At)
	}
}

func (b *Buffer) on(ev events.Data) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.samples[ev.Device]
	s := Sample{
		Pump:       pumpName(ev.Device),
		Status:     StatusOn,
		KWhCounter: prev.KWhCounter,
		MWhCounter: prev.MWhCounter,
		Timestamp:  ev.At,
	}

	for _, r := range ev.Readings {
		if !r.OK() {
			continue
		}
		switch r.Name {
		case "speed":
			s.Speed = r.Value
		case "frequency":
			s.Frequency = r.Value
		case "current":
			s.Current = r.Value
		case "torque":
			s.Torque = r.Value
		case "motor_power":
			s.MotorPower = r.Value
		case "dc_volt":
			s.DCVolt = r.Value
		case "output_volt":
			s.OutputVolt = r.Value
		case "kWh_counter":
			s.KWhCounter = r.Value
		case "mWh_counter":
			s.MWhCounter = r.Value
		}
	}

	b.samples[ev.Device] = s
}

func (b *Buffer) off(device string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev := b.samples[device]
	b.samples[device] = Sample{
		Pump:       pumpName(device),
		Status:     StatusOff,
		KWhCounter: prev.KWhCounter,
		MWhCounter: prev.MWhCounter,
		Timestamp:  at,
	}
}

// Snapshot returns a copy of every sample keyed by device name.
func (b *Buffer) Snapshot() map[string]Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]Sample, len(b.samples))
	for k, v := range b.samples {
		out[k] = v
	}
	return out
}

func pumpName(device string) string {
	return strings.ToUpper(device)
}
