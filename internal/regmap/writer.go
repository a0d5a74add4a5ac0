// internal/regmap/writer.go
package regmap

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tamzrod/vsd-gateway/internal/events"
	"github.com/tamzrod/vsd-gateway/internal/health"
	"github.com/tamzrod/vsd-gateway/internal/status"
)

var ErrUnknownDevice = errors.New("regmap: unknown device")

var _ Publisher = (*Writer)(nil)

// Writer applies reading sets and health changes to the map using the plan.
// WriteReadings and WriteHealth are called by the polling goroutine,
// Tick by the 1 Hz status ticker.
type Writer struct {
	m    *Map
	plan Plan
	log  zerolog.Logger

	mu     sync.Mutex
	status map[string]*statusWriter
}

func NewWriter(m *Map, plan Plan, logger zerolog.Logger) *Writer {
	w := &Writer{
		m:      m,
		plan:   plan,
		log:    logger.With().Str("component", "regmap").Logger(),
		status: make(map[string]*statusWriter),
	}

	for name, dp := range plan.Devices {
		if dp.Status != nil {
			w.status[name] = newStatusWriter(dp.Status, dp.Label, m)
		}
	}

	return w
}

// Init writes every status block in full. Devices start as unknown.
func (w *Writer) Init() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []string
	for _, name := range w.statusNames() {
		if err := w.status[name].WriteStatus(status.Snapshot{Health: status.HealthUnknown}); err != nil {
			errs = append(errs, fmt.Sprintf("regmap: device=%s %v", name, err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

// WriteReadings stores every mapped parameter of one sweep.
// Failed parameters keep their previous register contents.
func (w *Writer) WriteReadings(device string, set []events.Reading) error {
	dp, ok := w.plan.Devices[device]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, device)
	}

	byName := make(map[string]events.Reading, len(set))
	for _, r := range set {
		byName[r.Name] = r
	}

	var errs []string

	for _, e := range dp.Entries {
		r, ok := byName[e.Parameter]
		if !ok || !r.OK() {
			continue
		}

		var err error
		switch e.Encoding {
		case Int32:
			err = w.m.WriteInt32(e.Address, r.Raw)
		default:
			err = w.m.WriteValue(e.Address, r.Value)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf(
				"regmap: device=%s param=%s addr=%d err=%v",
				device, e.Parameter, e.Address, err,
			))
		}
	}

	for _, f := range dp.Flags {
		if f.Source == SourceOnline {
			continue
		}
		r, ok := byName[f.Source]
		if !ok || !r.OK() {
			continue
		}
		if err := w.m.WriteFlagBit(f.Address, f.Bit, r.Value != 0); err != nil {
			errs = append(errs, fmt.Sprintf(
				"regmap: device=%s flag=%s addr=%d.%d err=%v",
				device, f.Name, f.Address, f.Bit, err,
			))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

// WriteHealth mirrors device health into the map.
// Online flags follow the state; OFFLINE also clears every parameter flag
// so a dead drive never reads as running.
func (w *Writer) WriteHealth(d health.Device) error {
	dp, ok := w.plan.Devices[d.Name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, d.Name)
	}

	online := d.State == health.Online
	var errs []string

	for _, f := range dp.Flags {
		var err error
		switch {
		case f.Source == SourceOnline:
			err = w.m.WriteFlagBit(f.Address, f.Bit, online)
		case !online:
			err = w.m.WriteFlagBit(f.Address, f.Bit, false)
		default:
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf(
				"regmap: device=%s flag=%s addr=%d.%d err=%v",
				d.Name, f.Name, f.Address, f.Bit, err,
			))
		}
	}

	w.mu.Lock()
	if sw := w.status[d.Name]; sw != nil {
		if err := sw.WriteStatus(status.FromDevice(d, sw.snap)); err != nil {
			errs = append(errs, fmt.Sprintf("regmap: device=%s %v", d.Name, err))
		}
	}
	w.mu.Unlock()

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

// Tick advances seconds-in-error of every unhealthy device by one.
func (w *Writer) Tick() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []string
	for _, name := range w.statusNames() {
		sw := w.status[name]
		s := sw.snap
		if !s.Tick() {
			continue
		}
		if err := sw.WriteStatus(s); err != nil {
			errs = append(errs, fmt.Sprintf("regmap: device=%s %v", name, err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}

// Snapshot returns the status last requested for device.
func (w *Writer) Snapshot(device string) (status.Snapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sw, ok := w.status[device]
	if !ok {
		return status.Snapshot{}, false
	}
	return sw.snap, true
}

func (w *Writer) statusNames() []string {
	names := make([]string, 0, len(w.status))
	for name := range w.status {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
