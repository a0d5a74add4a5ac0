// internal/transport/link.go
package transport

import (
	"time"

	"github.com/goburrow/modbus"
)

// Link is one physical bus. Not safe for concurrent use.
type Link interface {
	Open() error
	Close() error
	ReadHoldingRegisters(slave byte, address, quantity uint16) ([]byte, error)
}

// SerialConfig holds the fixed line parameters of the RTU bus.
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	Parity   string // "N", "E", "O"
	StopBits int
	Timeout  time.Duration
}

// rtuLink implements Link on top of goburrow's RTU client handler.
type rtuLink struct {
	handler *modbus.RTUClientHandler
	client  modbus.Client
}

// NewRTULink builds a Link for the serial port. Nothing is opened here.
func NewRTULink(cfg SerialConfig) Link {
	h := modbus.NewRTUClientHandler(cfg.Port)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = cfg.Parity
	h.StopBits = cfg.StopBits
	h.Timeout = cfg.Timeout

	return &rtuLink{
		handler: h,
		client:  modbus.NewClient(h),
	}
}

func (l *rtuLink) Open() error {
	return l.handler.Connect()
}

func (l *rtuLink) Close() error {
	return l.handler.Close()
}

func (l *rtuLink) ReadHoldingRegisters(slave byte, address, quantity uint16) ([]byte, error) {
	l.handler.SlaveId = slave
	return l.client.ReadHoldingRegisters(address, quantity)
}
