// internal/regmap/builder.go
package regmap

import (
	"errors"

	cfg "github.com/tamzrod/vsd-gateway/internal/config"
	"github.com/tamzrod/vsd-gateway/internal/status"
)

// BuildPlan converts the device section of the config into a map Plan.
// Assumes config has already passed geometry validation and normalization.
func BuildPlan(c *cfg.Config) (Plan, error) {
	if c == nil {
		return Plan{}, errors.New("regmap: nil config")
	}

	plan := Plan{
		Size:    c.RegisterMap.Size,
		Devices: make(map[string]DevicePlan, len(c.Devices)),
	}

	for _, d := range c.Devices {
		dp := DevicePlan{
			Device: d.Name,
			Label:  d.Label,
		}

		for _, r := range d.Registers {
			enc := Float32
			if r.Encoding == cfg.EncodingInt32 {
				enc = Int32
			}
			dp.Entries = append(dp.Entries, Entry{
				Parameter: r.Parameter,
				Address:   r.Address,
				Encoding:  enc,
			})
		}

		for _, f := range d.Flags {
			dp.Flags = append(dp.Flags, Flag{
				Name:    f.Name,
				Source:  f.Source,
				Address: f.Address,
				Bit:     f.Bit,
			})
		}

		if d.StatusSlot != nil && c.RegisterMap.StatusBase != nil {
			dp.Status = &StatusPlan{
				Base: *c.RegisterMap.StatusBase + *d.StatusSlot*status.SlotsPerDevice,
			}
		}

		plan.Devices[d.Name] = dp
	}

	return plan, nil
}
