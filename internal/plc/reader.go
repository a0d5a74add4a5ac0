// internal/plc/reader.go
package plc

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/tamzrod/vsd-gateway/internal/events"
)

// Source is one open connection to the PLC.
type Source interface {
	ReadHoldingRegisters(unitID uint8, addr, qty uint16) ([]byte, error)
	Close() error
}

// Dialer opens a new Source.
type Dialer func() (Source, error)

// Recorder counts reads.
type Recorder interface {
	PLCRead(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) PLCRead(bool) {}

type Config struct {
	UnitID    uint8
	Interval  time.Duration
	Reconnect time.Duration
	Blocks    []Block
}

// Reader polls the PLC tag blocks and publishes one events.PLC per read.
type Reader struct {
	cfg    Config
	dial   Dialer
	sink   events.Publisher
	clk    clock.Clock
	rec    Recorder
	logger zerolog.Logger

	src Source
}

type Option func(*Reader)

func WithClock(c clock.Clock) Option { return func(r *Reader) { r.clk = c } }

func WithRecorder(rec Recorder) Option { return func(r *Reader) { r.rec = rec } }

func NewReader(cfg Config, dial Dialer, sink events.Publisher, logger zerolog.Logger, opts ...Option) *Reader {
	if len(cfg.Blocks) == 0 {
		cfg.Blocks = DefaultBlocks
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = 3 * time.Second
	}

	r := &Reader{
		cfg:    cfg,
		dial:   dial,
		sink:   sink,
		clk:    clock.New(),
		rec:    nopRecorder{},
		logger: logger.With().Str("component", "plc").Logger(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ReadOnce reads every block on the current connection, dialing first if needed.
// On error the connection is dropped.
func (r *Reader) ReadOnce() (map[string]float64, error) {
	if r.src == nil {
		src, err := r.dial()
		if err != nil {
			return nil, fmt.Errorf("plc: connect: %w", err)
		}
		r.src = src
		r.logger.Info().Msg("plc connected")
	}

	values := make(map[string]float64)
	for _, b := range r.cfg.Blocks {
		data, err := r.src.ReadHoldingRegisters(r.cfg.UnitID, b.Address, b.Quantity)
		if err == nil {
			err = b.Decode(data, values)
		}
		if err != nil {
			r.drop()
			return nil, fmt.Errorf("plc: read block %d: %w", b.Address, err)
		}
	}

	return values, nil
}

func (r *Reader) drop() {
	if r.src == nil {
		return
	}
	_ = r.src.Close()
	r.src = nil
}

// Run polls until ctx is cancelled. The next read is scheduled after the
// previous one finishes; a failure waits the reconnect delay instead.
func (r *Reader) Run(ctx context.Context) error {
	defer r.drop()

	for {
		start := r.clk.Now()
		values, err := r.ReadOnce()
		r.rec.PLCRead(err == nil)

		wait := r.cfg.Reconnect
		if err != nil {
			r.logger.Warn().Err(err).Dur("retry_in", wait).Msg("plc read failed")
		} else {
			r.sink.Publish(events.PLC{Values: values, At: r.clk.Now()})
			wait = r.cfg.Interval - r.clk.Since(start)
			if wait < 0 {
				wait = 0
			}
		}

		t := r.clk.Timer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
