// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run drives Cycle until ctx is cancelled.
// Self-rescheduling: the next cycle starts only after the previous one
// finished, so cycles never overlap. No fixed-rate ticker.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info().
		Dur("interval", p.cfg.Interval).
		Int("devices", len(p.devices)).
		Int("parameters", len(p.cfg.Parameters)).
		Msg("polling started")

	for {
		res := p.Cycle(ctx)

		if !sleep(ctx, p.clock, NextDelay(p.cfg.Interval, res.Elapsed)) {
			p.log.Info().Msg("polling stopped")
			return nil
		}
	}
}

// NextDelay is the drift-compensated wait before the next cycle.
func NextDelay(interval, elapsed time.Duration) time.Duration {
	if d := interval - elapsed; d > 0 {
		return d
	}
	return 0
}
