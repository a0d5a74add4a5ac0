// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tamzrod/vsd-gateway/internal/param"
	"github.com/tamzrod/vsd-gateway/internal/status"
)

// FlagSourceOnline binds a flag bit to the device health instead of a parameter.
const FlagSourceOnline = "online"

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}

	// ------------------------------------------------------------
	// DRIVE PARAMETERS
	// ------------------------------------------------------------

	if len(cfg.Parameters) == 0 {
		return fmt.Errorf("parameters: at least one parameter is required")
	}

	params := make(map[string]struct{}, len(cfg.Parameters))
	for _, p := range cfg.Parameters {
		if _, dup := params[p.Name]; dup {
			return fmt.Errorf("parameter %q: duplicate name", p.Name)
		}
		params[p.Name] = struct{}{}

		if p.Scale < 0 {
			return fmt.Errorf("parameter %q: scale must be >= 1", p.Name)
		}
		if _, err := p.Resolve(); err != nil {
			return err
		}
	}

	if cfg.Precheck != "" {
		if _, ok := params[cfg.Precheck]; !ok {
			return fmt.Errorf("precheck: unknown parameter %q", cfg.Precheck)
		}
	}

	// ------------------------------------------------------------
	// SERIAL / POLLING
	// ------------------------------------------------------------

	switch strings.ToUpper(cfg.Serial.Parity) {
	case "", "N", "E", "O":
	default:
		return fmt.Errorf("serial: parity must be N, E or O, got %q", cfg.Serial.Parity)
	}
	if cfg.Serial.BaudRate < 0 || cfg.Serial.TimeoutMs < 0 || cfg.Serial.RetryDelayMs < 0 {
		return fmt.Errorf("serial: negative values are not allowed")
	}
	if cfg.Polling.IntervalMs < 0 || cfg.Polling.InterDeviceDelayMs < 0 || cfg.Polling.CooldownMs < 0 {
		return fmt.Errorf("polling: negative durations are not allowed")
	}

	// ------------------------------------------------------------
	// DEVICES
	// ------------------------------------------------------------

	if len(cfg.Devices) == 0 {
		return fmt.Errorf("devices: at least one device is required")
	}

	ids := make(map[uint8]string)
	names := make(map[string]struct{})

	for _, d := range cfg.Devices {
		if d.Name == "" {
			return fmt.Errorf("device id=%d: name is required", d.ID)
		}
		if _, dup := names[d.Name]; dup {
			return fmt.Errorf("device %q: duplicate name", d.Name)
		}
		names[d.Name] = struct{}{}

		if d.ID < 1 || d.ID > 247 {
			return fmt.Errorf("device %q: id %d out of range 1..247", d.Name, d.ID)
		}
		if prev, dup := ids[d.ID]; dup {
			return fmt.Errorf("device %q: id %d already used by %q", d.Name, d.ID, prev)
		}
		ids[d.ID] = d.Name

		// label sanity (ASCII only, it is packed into registers)
		for i := 0; i < len(d.Label); i++ {
			if d.Label[i] > 0x7F {
				return fmt.Errorf("device %q: label must contain ASCII characters only", d.Name)
			}
		}

		for _, r := range d.Registers {
			if _, ok := params[r.Parameter]; !ok {
				return fmt.Errorf("device %q: register %d references unknown parameter %q", d.Name, r.Address, r.Parameter)
			}
			switch r.Encoding {
			case "", EncodingFloat32, EncodingInt32:
			default:
				return fmt.Errorf("device %q: register %d: unknown encoding %q", d.Name, r.Address, r.Encoding)
			}
		}

		for _, f := range d.Flags {
			if f.Name == "" {
				return fmt.Errorf("device %q: flag at %d.%d has no name", d.Name, f.Address, f.Bit)
			}
			if f.Bit > 15 {
				return fmt.Errorf("device %q: flag %q: bit %d out of range 0..15", d.Name, f.Name, f.Bit)
			}
			if f.Source != FlagSourceOnline {
				if _, ok := params[f.Source]; !ok {
					return fmt.Errorf("device %q: flag %q: unknown source %q", d.Name, f.Name, f.Source)
				}
			}
		}

		if d.StatusSlot != nil && cfg.RegisterMap.StatusBase == nil {
			return fmt.Errorf("device %q: status_slot is set but register_map.status_base is not", d.Name)
		}
	}

	// ------------------------------------------------------------
	// REGISTER MAP GEOMETRY
	// ------------------------------------------------------------

	if err := validateGeometry(cfg); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// OUTPUTS
	// ------------------------------------------------------------

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt: broker is required when enabled")
		}
		if cfg.MQTT.Topic == "" {
			return fmt.Errorf("mqtt: topic is required when enabled")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
		}
	}

	if cfg.Storage.Enabled && cfg.Storage.Schedule != "" {
		if _, err := CronParser.Parse(cfg.Storage.Schedule); err != nil {
			return fmt.Errorf("storage: schedule %q: %w", cfg.Storage.Schedule, err)
		}
	}

	if cfg.PLC.Enabled && cfg.PLC.Endpoint == "" {
		return fmt.Errorf("plc: endpoint is required when enabled")
	}

	switch cfg.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log: format must be json or console, got %q", cfg.Log.Format)
	}
	if cfg.Log.Level != "" {
		if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
			return fmt.Errorf("log: %w", err)
		}
	}

	return nil
}

// CronParser accepts six-field expressions with a leading seconds field.
var CronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// validateGeometry checks that every value register, flag register and
// status block fits the buffer and that no two owners share a register.
// Flags may share a register with other flags, never the same bit.
func validateGeometry(cfg *Config) error {
	type span struct {
		start int
		end   int
		owner string
	}

	size := cfg.RegisterMap.Size
	if size == 0 {
		size = DefaultRegisterMapSize
	}
	if size < 0 || size > 65536 {
		return fmt.Errorf("register_map: size %d out of range 1..65536", size)
	}

	var spans []span

	claim := func(start, count int, owner string) error {
		end := start + count - 1
		if end >= size {
			return fmt.Errorf(
				"register_map: %s range=%d-%d exceeds size %d",
				owner, start, end, size,
			)
		}
		for _, s := range spans {
			// overlap check (inclusive)
			if !(end < s.start || start > s.end) {
				return fmt.Errorf(
					"register_map overlap: %s range=%d-%d overlaps with %s range=%d-%d",
					owner, start, end, s.owner, s.start, s.end,
				)
			}
		}
		spans = append(spans, span{start: start, end: end, owner: owner})
		return nil
	}

	for _, d := range cfg.Devices {
		for _, r := range d.Registers {
			owner := fmt.Sprintf("device %q register %q", d.Name, r.Parameter)
			if err := claim(int(r.Address), 2, owner); err != nil {
				return err
			}
		}

		if d.StatusSlot != nil && cfg.RegisterMap.StatusBase != nil {
			base := int(*cfg.RegisterMap.StatusBase) + int(*d.StatusSlot)*status.SlotsPerDevice
			owner := fmt.Sprintf("device %q status_slot %d", d.Name, *d.StatusSlot)
			if err := claim(base, status.SlotsPerDevice, owner); err != nil {
				return err
			}
		}
	}

	// flag registers are claimed once; bits inside them must be unique
	bits := make(map[uint16]uint16)
	flagOwner := make(map[uint16]string)

	for _, d := range cfg.Devices {
		for _, f := range d.Flags {
			mask := uint16(1) << f.Bit
			if bits[f.Address]&mask != 0 {
				return fmt.Errorf(
					"register_map: device %q flag %q: bit %d of register %d already used by %s",
					d.Name, f.Name, f.Bit, f.Address, flagOwner[f.Address],
				)
			}
			if bits[f.Address] == 0 {
				owner := fmt.Sprintf("device %q flag %q", d.Name, f.Name)
				if err := claim(int(f.Address), 1, owner); err != nil {
					return err
				}
				flagOwner[f.Address] = owner
			}
			bits[f.Address] |= mask
		}
	}

	return nil
}

// Resolve converts the YAML parameter into a resolved drive point.
// Scale 0 is treated as 1.
func (p ParameterConfig) Resolve() (param.Point, error) {
	w, err := param.ParseWidth(p.Type)
	if err != nil {
		return param.Point{}, fmt.Errorf("parameter %q: %w", p.Name, err)
	}

	scale := p.Scale
	if scale == 0 {
		scale = 1
	}

	return param.Resolve(param.Parameter{
		Name:       p.Name,
		GroupIndex: p.Num,
		Unit:       p.Unit,
		Width:      w,
		Scale:      scale,
	})
}
