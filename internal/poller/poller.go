// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/tamzrod/vsd-gateway/internal/events"
	"github.com/tamzrod/vsd-gateway/internal/health"
	"github.com/tamzrod/vsd-gateway/internal/param"
	"github.com/tamzrod/vsd-gateway/internal/transport"
)

// Poller is the self-timed, multi-slave polling engine of one RS485 bus.
// Device records are owned by the polling goroutine; Devices hands out copies.
type Poller struct {
	cfg       Config
	transport Transport
	sink      events.Publisher
	regs      MapWriter
	clock     clock.Clock
	rec       Recorder
	log       zerolog.Logger

	mu      sync.RWMutex
	devices []health.Device
}

// Option customizes a Poller.
type Option func(*Poller)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithRecorder attaches an observer.
func WithRecorder(r Recorder) Option {
	return func(p *Poller) { p.rec = r }
}

// WithMapWriter attaches the register map.
func WithMapWriter(w MapWriter) Option {
	return func(p *Poller) { p.regs = w }
}

// New creates a poller with immutable config.
func New(cfg Config, t Transport, sink events.Publisher, logger zerolog.Logger, opts ...Option) (*Poller, error) {
	if t == nil {
		return nil, errors.New("poller: transport required")
	}
	if sink == nil {
		return nil, errors.New("poller: event sink required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.InterDeviceDelay < 0 {
		return nil, errors.New("poller: inter-device delay must be >= 0")
	}
	if len(cfg.Parameters) == 0 {
		return nil, errors.New("poller: at least one parameter required")
	}
	if len(cfg.Devices) == 0 {
		return nil, errors.New("poller: at least one device required")
	}
	cfg.Policy = cfg.Policy.Normalized()

	p := &Poller{
		cfg:       cfg,
		transport: t,
		sink:      sink,
		clock:     clock.New(),
		rec:       nopRecorder{},
		log:       logger.With().Str("component", "poller").Logger(),
		devices:   append([]health.Device(nil), cfg.Devices...),
	}
	for _, o := range opts {
		o(p)
	}

	for _, d := range p.devices {
		p.rec.DeviceState(d.Name, d.State == health.Online)
	}

	return p, nil
}

// Devices returns a copy of every device record, in probe order.
func (p *Poller) Devices() []health.Device {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]health.Device(nil), p.devices...)
}

func (p *Poller) device(i int) health.Device {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.devices[i]
}

func (p *Poller) store(i int, d health.Device) {
	p.mu.Lock()
	p.devices[i] = d
	p.mu.Unlock()
}

// Cycle performs exactly one pass over the bus.
// It never panics and never leaves the transport in an unknown state:
// a port error or a panic closes the link, the next cycle reconnects.
func (p *Poller) Cycle(ctx context.Context) (res CycleResult) {
	start := p.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("panic", fmt.Sprint(r)).Msg("unexpected polling error")
			p.transport.Close()
			res.Aborted = true
		}
		res.Elapsed = p.clock.Since(start)
		p.rec.Cycle(res.Result(), res.Elapsed)
	}()

	if !p.transport.IsOpen() {
		ok := p.transport.EnsureConnected(ctx)
		p.rec.Reconnect(ok)
	}
	if !p.transport.IsOpen() {
		return res
	}
	res.Connected = true

	for i := range p.devices {
		if ctx.Err() != nil {
			return res
		}

		d := p.device(i)
		if !p.cfg.Policy.Due(&d, p.clock.Now()) {
			res.Skipped = append(res.Skipped, d.Name)
			continue
		}

		portErr := p.probe(&d)
		p.store(i, d)
		res.Probed = append(res.Probed, d.Name)

		if portErr != nil {
			// remaining devices are not charged: the bus is gone, not them
			p.log.Error().Err(portErr).Str("device", d.Name).Msg("port error, aborting cycle")
			p.transport.Close()
			res.Aborted = true
			return res
		}

		if !sleep(ctx, p.clock, p.cfg.InterDeviceDelay) {
			return res
		}
	}

	return res
}

// probe runs the precheck and the full sweep of one device and updates its health.
// A port error is returned untouched and leaves health alone.
func (p *Poller) probe(d *health.Device) (portErr error) {
	d.LastProbe = p.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			p.fail(d, health.CodeUnexpected, fmt.Sprintf("panic: %v", r))
			portErr = nil
		}
	}()

	if pc := p.cfg.Precheck; pc != nil {
		data, err := p.transport.Read(d.ID, pc.TransportAddress, pc.WordCount)
		if err == nil {
			_, _, err = pc.Decode(data)
		}
		if err != nil {
			if transport.IsPortError(err) {
				return err
			}
			p.fail(d, health.CodeDevice, "precheck: "+err.Error())
			return nil
		}
	}

	set := make([]events.Reading, 0, len(p.cfg.Parameters))
	failed := 0
	var lastErr error

	for _, pt := range p.cfg.Parameters {
		r, err := p.read(d.ID, pt)
		if err != nil {
			if transport.IsPortError(err) {
				return err
			}
			failed++
			lastErr = err
			p.rec.ParameterError(d.Name, pt.Name)
			p.log.Debug().Err(err).Str("device", d.Name).Str("param", pt.Name).Msg("parameter read failed")
		}
		set = append(set, r)
	}

	if failed == len(p.cfg.Parameters) {
		reason := fmt.Sprintf("all parameters error (%dx): %v", d.FailCount+1, lastErr)
		p.fail(d, health.CodeAllFailed, reason)
		return nil
	}

	p.succeed(d, set)
	return nil
}

// read issues one parameter request. Errors are folded into the reading.
func (p *Poller) read(slave byte, pt param.Point) (events.Reading, error) {
	r := events.Reading{Name: pt.Name, Unit: pt.Unit}

	data, err := p.transport.Read(slave, pt.TransportAddress, pt.WordCount)
	if err == nil {
		r.Raw, r.Value, err = pt.Decode(data)
	}
	if err != nil {
		r.Error = err.Error()
		return r, err
	}
	return r, nil
}

func (p *Poller) succeed(d *health.Device, set []events.Reading) {
	now := p.clock.Now()

	if tr, edge := p.cfg.Policy.Succeed(d, now); edge {
		p.log.Info().Str("device", d.Name).Str("label", d.Label).Msg("device ONLINE")
		p.rec.DeviceState(d.Name, true)
		p.sink.Publish(events.FromHealth(tr))
	}

	if p.regs != nil {
		if err := p.regs.WriteReadings(d.Name, set); err != nil {
			p.log.Warn().Err(err).Str("device", d.Name).Msg("register map write failed")
		}
	}
	p.writeHealth(*d)

	p.sink.Publish(events.Data{
		Device:   d.Name,
		Label:    d.Label,
		Readings: set,
		At:       now,
	})
}

func (p *Poller) fail(d *health.Device, code uint16, reason string) {
	tr, edge := p.cfg.Policy.Fail(d, p.clock.Now(), code, reason)

	p.rec.DeviceFailure(d.Name, failureKind(code))
	p.log.Warn().
		Str("device", d.Name).
		Int("fail_count", d.FailCount).
		Str("reason", reason).
		Msg("device probe failed")

	if edge {
		p.log.Warn().
			Str("device", d.Name).
			Str("label", d.Label).
			Time("retry_at", d.DisabledUntil).
			Msg("device OFFLINE")
		p.rec.DeviceState(d.Name, false)
		p.sink.Publish(events.FromHealth(tr))
	}

	p.writeHealth(*d)
}

func (p *Poller) writeHealth(d health.Device) {
	if p.regs == nil {
		return
	}
	if err := p.regs.WriteHealth(d); err != nil {
		p.log.Warn().Err(err).Str("device", d.Name).Msg("status write failed")
	}
}

func failureKind(code uint16) string {
	switch code {
	case health.CodeAllFailed:
		return "all_failed"
	case health.CodeUnexpected:
		return "unexpected"
	default:
		return "device"
	}
}

// sleep waits d on clk. It returns false if ctx ended first.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := clk.Timer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
