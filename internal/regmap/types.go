// internal/regmap/types.go
package regmap

import (
	"github.com/tamzrod/vsd-gateway/internal/events"
	"github.com/tamzrod/vsd-gateway/internal/health"
)

// Encoding is how a parameter value is laid out in the map.
type Encoding int

const (
	// Float32 is the scaled value as a big-endian IEEE-754 float.
	Float32 Encoding = iota
	// Int32 is the raw, unscaled value as a big-endian integer.
	Int32
)

func (e Encoding) String() string {
	if e == Int32 {
		return "int32"
	}
	return "float32"
}

// Entry places one parameter of one device in the map.
type Entry struct {
	Parameter string
	Address   uint16
	Encoding  Encoding
}

// Flag places one bit of one device in the map.
// Source is a parameter name, set when the value is non-zero,
// or SourceOnline, set while the device is ONLINE.
type Flag struct {
	Name    string
	Source  string
	Address uint16
	Bit     uint8
}

// SourceOnline binds a flag to device health.
const SourceOnline = "online"

// StatusPlan is the location of a device status block.
type StatusPlan struct {
	Base uint16
}

// DevicePlan is the fully built map layout for one device.
type DevicePlan struct {
	Device  string
	Label   string
	Entries []Entry
	Flags   []Flag
	Status  *StatusPlan
}

// Plan is the fully built map layout, keyed by device name.
type Plan struct {
	Size    int
	Devices map[string]DevicePlan
}

// Publisher is what the polling engine writes into.
type Publisher interface {
	WriteReadings(device string, set []events.Reading) error
	WriteHealth(d health.Device) error
}
