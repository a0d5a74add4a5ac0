// internal/poller/types.go
package poller

import (
	"context"
	"time"

	"github.com/tamzrod/vsd-gateway/internal/events"
	"github.com/tamzrod/vsd-gateway/internal/health"
	"github.com/tamzrod/vsd-gateway/internal/param"
)

// Transport is the bus the poller drives. Satisfied by *transport.Manager.
type Transport interface {
	EnsureConnected(ctx context.Context) bool
	IsOpen() bool
	Read(slave byte, address, quantity uint16) ([]byte, error)
	Close()
}

// MapWriter receives successful sweeps and every health change.
// Satisfied by *regmap.Writer.
type MapWriter interface {
	WriteReadings(device string, set []events.Reading) error
	WriteHealth(d health.Device) error
}

// Recorder observes the engine. Satisfied by *metrics.Metrics.
type Recorder interface {
	Cycle(result string, elapsed time.Duration)
	Reconnect(ok bool)
	DeviceFailure(device, kind string)
	ParameterError(device, parameter string)
	DeviceState(device string, online bool)
}

// Cycle results reported to the Recorder.
const (
	ResultOK           = "ok"
	ResultDisconnected = "disconnected"
	ResultAborted      = "aborted"
)

type nopRecorder struct{}

func (nopRecorder) Cycle(string, time.Duration) {}
func (nopRecorder) Reconnect(bool) {}
func (nopRecorder) DeviceFailure(string, string) {}
func (nopRecorder) ParameterError(string, string) {}
func (nopRecorder) DeviceState(string, bool) {}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Interval         time.Duration
	InterDeviceDelay time.Duration
	Parameters       []param.Point
	Precheck         *param.Point
	Devices          []health.Device // probed in this order
	Policy           health.Policy
}

// CycleResult is what one pass over the bus did.
type CycleResult struct {
	Connected bool
	Aborted   bool     // port error or recovered panic
	Probed    []string // device names, in probe order
	Skipped   []string // OFFLINE devices still in cooldown
	Elapsed   time.Duration
}

// Result is the label reported to the Recorder.
func (r CycleResult) Result() string {
	switch {
	case !r.Connected:
		return ResultDisconnected
	case r.Aborted:
		return ResultAborted
	default:
		return ResultOK
	}
}
