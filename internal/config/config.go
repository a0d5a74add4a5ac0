// internal/config/config.go
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Polling     PollingConfig     `yaml:"polling"`
	Parameters  []ParameterConfig `yaml:"parameters"`
	Precheck    string            `yaml:"precheck"` // parameter name, optional
	Devices     []DeviceConfig    `yaml:"devices"`
	RegisterMap RegisterMapConfig `yaml:"register_map"`
	TCPServer   TCPServerConfig   `yaml:"tcp_server"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Storage     StorageConfig     `yaml:"storage"`
	HTTP        HTTPConfig        `yaml:"http"`
	PLC         PLCConfig         `yaml:"plc"`
	Log         LogConfig         `yaml:"log"`
}

// ---- SERIAL (RS485) ----

type SerialConfig struct {
	Port      string `yaml:"port"`
	BaudRate  int    `yaml:"baud_rate"`
	DataBits  int    `yaml:"data_bits"`
	Parity    string `yaml:"parity"` // N | E | O
	StopBits  int    `yaml:"stop_bits"`
	TimeoutMs int    `yaml:"timeout_ms"`

	ConnectAttempts int `yaml:"connect_attempts"`
	RetryDelayMs    int `yaml:"retry_delay_ms"`
}

// ---- POLLING ----

type PollingConfig struct {
	IntervalMs         int `yaml:"interval_ms"`
	InterDeviceDelayMs int `yaml:"inter_device_delay_ms"`
	FailThreshold      int `yaml:"fail_threshold"`
	CooldownMs         int `yaml:"cooldown_ms"`
}

// ---- DRIVE PARAMETERS ----

type ParameterConfig struct {
	Name  string `yaml:"name"`
	Num   string `yaml:"num"` // "GG.II"
	Unit  string `yaml:"unit"`
	Type  string `yaml:"type"` // 16bit | 32bit
	Scale int    `yaml:"scale"`
}

// ---- DEVICES ----

type DeviceConfig struct {
	ID    uint8  `yaml:"id"`
	Name  string `yaml:"name"`
	Label string `yaml:"label"`

	Registers []RegisterConfig `yaml:"registers"`
	Flags     []FlagConfig     `yaml:"flags"`

	// Device status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot"`
}

// RegisterConfig places one parameter value in the register map.
type RegisterConfig struct {
	Parameter string `yaml:"parameter"`
	Address   uint16 `yaml:"address"`
	Encoding  string `yaml:"encoding"` // float32 | int32
}

// FlagConfig places one bit in the register map.
// Source is a parameter name (bit set when the value is non-zero) or "online".
type FlagConfig struct {
	Name    string `yaml:"name"`
	Source  string `yaml:"source"`
	Address uint16 `yaml:"address"`
	Bit     uint8  `yaml:"bit"`
}

// ---- REGISTER MAP / TCP SERVER ----

type RegisterMapConfig struct {
	Size       int     `yaml:"size"`
	StatusBase *uint16 `yaml:"status_base"`
}

type TCPServerConfig struct {
	Listen     string `yaml:"listen"` // tcp://host:port
	UnitID     *uint8 `yaml:"unit_id"`
	MaxClients uint   `yaml:"max_clients"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// ---- OPTIONAL OUTPUTS ----

type MQTTConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Broker            string `yaml:"broker"`
	ClientID          string `yaml:"client_id"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	Topic             string `yaml:"topic"`
	QoS               byte   `yaml:"qos"`
	PublishIntervalMs int    `yaml:"publish_interval_ms"`
	ReconnectMs       int    `yaml:"reconnect_ms"`
	ConnectTimeoutMs  int    `yaml:"connect_timeout_ms"` // startup wait for the first connection
}

type StorageConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Path     string `yaml:"path"`
	Schedule string `yaml:"schedule"` // cron, seconds field first
	Site     string `yaml:"site"`     // device_id column
	Location string `yaml:"location"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type PLCConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"` // host:port
	UnitID      uint8  `yaml:"unit_id"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	IntervalMs  int    `yaml:"interval_ms"`
	ReconnectMs int    `yaml:"reconnect_ms"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// Load reads and decodes a YAML config file. Unknown keys are rejected.
// It does not validate or normalize.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes YAML bytes into a Config.
func Parse(raw []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}
