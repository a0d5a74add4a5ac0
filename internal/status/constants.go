// internal/status/constants.go
package status

// Device Status Block layout constants.
// These values define the register contract seen by SCADA clients
// and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of registers per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the device health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last error code (see health.Code*).
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the device has been unhealthy.
const SlotSecondsInError = 2

// SlotFailCount holds the consecutive failure counter.
const SlotFailCount = 3

// ---- RESERVED RANGE ----

// Slots 4–10 are reserved for future use.
const SlotReservedStart = 4
const SlotReservedEnd = 10

// ---- DEVICE LABEL ----

// SlotDeviceNameStart is the first slot used for the device label.
// The label is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the label.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the label (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for the label.
const DeviceNameMaxChars = 16

// MaxSecondsInError is where the seconds counter saturates.
const MaxSecondsInError = 65535

// ---- HEALTH CODES ----

// HealthUnknown represents the boot state, before the first probe.
const HealthUnknown uint16 = 0

// HealthOK represents a device answering its sweep.
const HealthOK uint16 = 1

// HealthError represents a device that failed but is still probed.
const HealthError uint16 = 2

// HealthStale is reserved for data older than one cycle. Not produced yet.
const HealthStale uint16 = 3

// HealthDisabled represents an OFFLINE device sitting out its cooldown.
const HealthDisabled uint16 = 4
