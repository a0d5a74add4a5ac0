// internal/config/normalize.go
package config

import "strings"

const (
	EncodingFloat32 = "float32"
	EncodingInt32   = "int32"
)

// Defaults. Serial and polling values follow the drive installation
// this gateway was first deployed on.
const (
	DefaultSerialPort      = "/dev/ttyUSB0"
	DefaultBaudRate        = 19200
	DefaultDataBits        = 8
	DefaultParity          = "N"
	DefaultStopBits        = 1
	DefaultSerialTimeoutMs = 1000
	DefaultConnectAttempts = 5
	DefaultRetryDelayMs    = 2000

	DefaultIntervalMs         = 1000
	DefaultInterDeviceDelayMs = 150
	DefaultFailThreshold      = 3
	DefaultCooldownMs         = 30000

	DefaultRegisterMapSize = 8600
	DefaultTCPListen       = "tcp://0.0.0.0:8502"
	DefaultTCPMaxClients   = 5
	DefaultTCPTimeoutMs    = 30000

	DefaultMQTTClientID         = "vsd-gateway"
	DefaultMQTTIntervalMs       = 1000
	DefaultMQTTReconnectMs      = 3000
	DefaultMQTTConnectTimeoutMs = 5000

	DefaultStoragePath     = "vsd_data.db"
	DefaultStorageSchedule = "0 */2 * * * *"
	DefaultStorageSite     = "vsd-gateway"
	DefaultStorageLocation = "IPA"

	DefaultHTTPListen = ":3000"

	DefaultPLCUnitID      = 1
	DefaultPLCTimeoutMs   = 1000
	DefaultPLCIntervalMs  = 1000
	DefaultPLCReconnectMs = 3000

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	s := &cfg.Serial
	setString(&s.Port, DefaultSerialPort)
	setInt(&s.BaudRate, DefaultBaudRate)
	setInt(&s.DataBits, DefaultDataBits)
	setInt(&s.StopBits, DefaultStopBits)
	setInt(&s.TimeoutMs, DefaultSerialTimeoutMs)
	setInt(&s.ConnectAttempts, DefaultConnectAttempts)
	setInt(&s.RetryDelayMs, DefaultRetryDelayMs)
	s.Parity = strings.ToUpper(s.Parity)
	setString(&s.Parity, DefaultParity)

	p := &cfg.Polling
	setInt(&p.IntervalMs, DefaultIntervalMs)
	setInt(&p.InterDeviceDelayMs, DefaultInterDeviceDelayMs)
	setInt(&p.FailThreshold, DefaultFailThreshold)
	setInt(&p.CooldownMs, DefaultCooldownMs)

	for i := range cfg.Parameters {
		if cfg.Parameters[i].Scale == 0 {
			cfg.Parameters[i].Scale = 1
		}
	}

	for di := range cfg.Devices {
		d := &cfg.Devices[di]

		// label falls back to the short name
		setString(&d.Label, d.Name)

		for ri := range d.Registers {
			setString(&d.Registers[ri].Encoding, EncodingFloat32)
		}
	}

	setInt(&cfg.RegisterMap.Size, DefaultRegisterMapSize)

	t := &cfg.TCPServer
	setString(&t.Listen, DefaultTCPListen)
	setInt(&t.TimeoutMs, DefaultTCPTimeoutMs)
	if t.MaxClients == 0 {
		t.MaxClients = DefaultTCPMaxClients
	}

	m := &cfg.MQTT
	setString(&m.ClientID, DefaultMQTTClientID)
	setInt(&m.PublishIntervalMs, DefaultMQTTIntervalMs)
	setInt(&m.ReconnectMs, DefaultMQTTReconnectMs)
	setInt(&m.ConnectTimeoutMs, DefaultMQTTConnectTimeoutMs)

	st := &cfg.Storage
	setString(&st.Path, DefaultStoragePath)
	setString(&st.Schedule, DefaultStorageSchedule)
	setString(&st.Site, DefaultStorageSite)
	setString(&st.Location, DefaultStorageLocation)

	setString(&cfg.HTTP.Listen, DefaultHTTPListen)

	plc := &cfg.PLC
	if plc.UnitID == 0 {
		plc.UnitID = DefaultPLCUnitID
	}
	setInt(&plc.TimeoutMs, DefaultPLCTimeoutMs)
	setInt(&plc.IntervalMs, DefaultPLCIntervalMs)
	setInt(&plc.ReconnectMs, DefaultPLCReconnectMs)

	setString(&cfg.Log.Level, DefaultLogLevel)
	setString(&cfg.Log.Format, DefaultLogFormat)
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}
