// internal/regmap/buffer.go
package regmap

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

var ErrOutOfRange = errors.New("regmap: address out of range")

// Map is the holding-register image served over Modbus TCP.
// Every call is atomic with respect to every other call.
type Map struct {
	mu   sync.RWMutex
	regs []uint16
}

// New allocates a zeroed map of size registers.
func New(size int) *Map {
	return &Map{regs: make([]uint16, size)}
}

func (m *Map) Size() int {
	return len(m.regs)
}

func (m *Map) check(addr uint16, qty int) error {
	if int(addr)+qty > len(m.regs) {
		return fmt.Errorf("%w: addr=%d qty=%d size=%d", ErrOutOfRange, addr, qty, len(m.regs))
	}
	return nil
}

// ReadRegisters returns a copy of qty registers starting at addr.
func (m *Map) ReadRegisters(addr, qty uint16) ([]uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(addr, int(qty)); err != nil {
		return nil, err
	}

	out := make([]uint16, qty)
	copy(out, m.regs[addr:])
	return out, nil
}

// Register returns a single register.
func (m *Map) Register(addr uint16) (uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(addr, 1); err != nil {
		return 0, err
	}
	return m.regs[addr], nil
}

// WriteRegisters stores values starting at addr.
func (m *Map) WriteRegisters(addr uint16, values []uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, len(values)); err != nil {
		return err
	}
	copy(m.regs[addr:], values)
	return nil
}

// WriteValue stores v as an IEEE-754 float32 across two registers, high word first.
func (m *Map) WriteValue(addr uint16, v float64) error {
	bits := math.Float32bits(float32(v))
	return m.WriteRegisters(addr, []uint16{uint16(bits >> 16), uint16(bits)})
}

// WriteInt32 stores v as a big-endian int32 across two registers.
func (m *Map) WriteInt32(addr uint16, v int32) error {
	u := uint32(v)
	return m.WriteRegisters(addr, []uint16{uint16(u >> 16), uint16(u)})
}

// WriteFlagBit sets or clears one bit of one register, keeping the others.
func (m *Map) WriteFlagBit(addr uint16, bit uint8, on bool) error {
	if bit > 15 {
		return fmt.Errorf("regmap: bit %d out of range 0..15", bit)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, 1); err != nil {
		return err
	}

	mask := uint16(1) << bit
	if on {
		m.regs[addr] |= mask
	} else {
		m.regs[addr] &^= mask
	}
	return nil
}

// DecodeFloat32 is the inverse of WriteValue for two registers.
func DecodeFloat32(hi, lo uint16) float32 {
	return math.Float32frombits(uint32(hi)<<16 | uint32(lo))
}

// DecodeInt32 is the inverse of WriteInt32 for two registers.
func DecodeInt32(hi, lo uint16) int32 {
	return int32(uint32(hi)<<16 | uint32(lo))
}
