// internal/poller/builder.go
package poller

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	cfg "github.com/tamzrod/vsd-gateway/internal/config"
	"github.com/tamzrod/vsd-gateway/internal/events"
	"github.com/tamzrod/vsd-gateway/internal/health"
	"github.com/tamzrod/vsd-gateway/internal/param"
)

// BuildConfig converts the polling sections of the config into a poller Config.
// Assumes config has already passed Validate and Normalize.
// Addresses are resolved here, once.
func BuildConfig(c *cfg.Config) (Config, error) {
	points := make([]param.Point, 0, len(c.Parameters))
	byName := make(map[string]param.Point, len(c.Parameters))

	for _, pc := range c.Parameters {
		pt, err := pc.Resolve()
		if err != nil {
			return Config{}, err
		}
		points = append(points, pt)
		byName[pt.Name] = pt
	}

	out := Config{
		Interval:         time.Duration(c.Polling.IntervalMs) * time.Millisecond,
		InterDeviceDelay: time.Duration(c.Polling.InterDeviceDelayMs) * time.Millisecond,
		Parameters:       points,
		Policy: health.Policy{
			FailThreshold: c.Polling.FailThreshold,
			Cooldown:      time.Duration(c.Polling.CooldownMs) * time.Millisecond,
		},
	}

	if c.Precheck != "" {
		pt, ok := byName[c.Precheck]
		if !ok {
			return Config{}, fmt.Errorf("poller: precheck parameter %q not defined", c.Precheck)
		}
		out.Precheck = &pt
	}

	for _, d := range c.Devices {
		out.Devices = append(out.Devices, health.Device{
			ID:    d.ID,
			Name:  d.Name,
			Label: d.Label,
			State: health.Online,
		})
	}

	return out, nil
}

// Build constructs a Poller from config.
// The transport is owned by the caller and injected, never created here.
func Build(c *cfg.Config, t Transport, sink events.Publisher, logger zerolog.Logger, opts ...Option) (*Poller, error) {
	pc, err := BuildConfig(c)
	if err != nil {
		return nil, err
	}
	return New(pc, t, sink, logger, opts...)
}
