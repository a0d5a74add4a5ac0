// internal/mqtt/bridge.go
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/tamzrod/vsd-gateway/internal/events"
)

// ErrPublishTimeout is returned when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt: publish timeout")

// RunStatusKey is the per-device flag downstream consumers use to tell ON from OFF.
const RunStatusKey = "pmp_run_sts"

// Client is the part of paho.Client the bridge publishes through.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Recorder counts publishes. Satisfied by *metrics.Metrics.
type Recorder interface {
	Publish(ok bool)
}

// Config is the bridge configuration.
type Config struct {
	Topic        string
	QoS          byte
	Interval     time.Duration
	Timeout      time.Duration
	Devices      []string // published as {} until first data
	RunParameter string   // non-zero value means running, default "frequency"
}

// Bridge keeps the latest value of every device and the PLC and publishes
// the whole picture as one JSON document on every tick.
type Bridge struct {
	cfg    Config
	client Client
	clock  clock.Clock
	rec    Recorder
	log    zerolog.Logger

	mu      sync.Mutex
	plc     map[string]interface{}
	devices map[string]map[string]interface{}
}

// Option customizes a Bridge.
type Option func(*Bridge)

func WithClock(c clock.Clock) Option { return func(b *Bridge) { b.clock = c } }

func WithRecorder(r Recorder) Option { return func(b *Bridge) { b.rec = r } }

func New(cfg Config, client Client, logger zerolog.Logger, opts ...Option) *Bridge {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Interval
	}
	if cfg.RunParameter == "" {
		cfg.RunParameter = "frequency"
	}

	b := &Bridge{
		cfg:     cfg,
		client:  client,
		clock:   clock.New(),
		log:     logger.With().Str("component", "mqtt").Logger(),
		plc:     map[string]interface{}{},
		devices: make(map[string]map[string]interface{}, len(cfg.Devices)),
	}
	for _, d := range cfg.Devices {
		b.devices[d] = map[string]interface{}{}
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscribe attaches the bridge to the engine topics.
func (b *Bridge) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.TopicData, b.Handle)
	bus.Subscribe(events.TopicOffline, b.Handle)
	bus.Subscribe(events.TopicPLC, b.Handle)
}

// Handle folds one event into the latest picture. It never blocks.
func (b *Bridge) Handle(e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch ev := e.(type) {
	case events.Data:
		vals := make(map[string]interface{}, len(ev.Readings)+1)
		for _, r := range ev.Readings {
			if r.OK() {
				vals[r.Name] = finite(r.Value)
			}
		}
		if v, ok := ev.Value(b.cfg.RunParameter); ok {
			vals[RunStatusKey] = v != 0
		}
		b.devices[ev.Device] = vals

	case events.Transition:
		// an offline pump is published as {} so consumers read it as OFF
		b.devices[ev.Device] = map[string]interface{}{}

	case events.PLC:
		plc := make(map[string]interface{}, len(ev.Values))
		for k, v := range ev.Values {
			plc[k] = finite(v)
		}
		b.plc = plc
	}
}

// finite returns v, or nil for NaN and ±Inf which JSON cannot carry.
func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// Payload renders the current picture.
func (b *Bridge) Payload() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	doc := make(map[string]interface{}, len(b.devices)+1)
	doc["plc"] = b.plc
	for name, vals := range b.devices {
		doc[name] = vals
	}
	return json.Marshal(doc)
}

// PublishOnce sends the current picture.
func (b *Bridge) PublishOnce() error {
	payload, err := b.Payload()
	if err != nil {
		return fmt.Errorf("mqtt: encode: %w", err)
	}

	token := b.client.Publish(b.cfg.Topic, b.cfg.QoS, false, payload)
	if !token.WaitTimeout(b.cfg.Timeout) {
		return ErrPublishTimeout
	}
	return token.Error()
}

// Run publishes every interval until ctx is cancelled. Failures are logged only.
func (b *Bridge) Run(ctx context.Context) error {
	t := b.clock.Ticker(b.cfg.Interval)
	defer t.Stop()

	b.log.Info().Str("topic", b.cfg.Topic).Dur("interval", b.cfg.Interval).Msg("mqtt bridge started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			err := b.PublishOnce()
			if b.rec != nil {
				b.rec.Publish(err == nil)
			}
			if err != nil {
				b.log.Warn().Err(err).Str("topic", b.cfg.Topic).Msg("publish failed")
			}
		}
	}
}
