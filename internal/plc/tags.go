// internal/plc/tags.go
package plc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Tag is one named 32-bit value at a register offset inside its block.
type Tag struct {
	Name   string
	Offset uint16
}

// Block is a contiguous holding register range decoded as int32 or float32.
type Block struct {
	Address  uint16
	Quantity uint16
	Float    bool
	Tags     []Tag
}

// Totalizers are the two flow totals, big-endian int32.
var Totalizers = Block{
	Address:  1305,
	Quantity: 4,
	Tags: []Tag{
		{Name: "fqt_4001", Offset: 0},
		{Name: "fqt_8001", Offset: 2},
	},
}

// Process holds flow, turbidity, pH, chlorine and level tags, big-endian float32.
var Process = Block{
	Address:  1003,
	Quantity: 34,
	Float:    true,
	Tags: []Tag{
		{Name: "ft_4001", Offset: 0},
		{Name: "ft_8001", Offset: 2},
		{Name: "nit_4001", Offset: 4},
		{Name: "nit_8001", Offset: 6},
		{Name: "ph_4001", Offset: 8},
		{Name: "ph_8001", Offset: 10},
		{Name: "chl_8001", Offset: 12},
		{Name: "lit_4001", Offset: 14},
		{Name: "lit_4002", Offset: 16},
		{Name: "lit_7001", Offset: 18},
		{Name: "lit_7002", Offset: 20},
		{Name: "lit_7003", Offset: 22},
		{Name: "lit_7004", Offset: 24},
		{Name: "lit_7005", Offset: 26},
		{Name: "lit_7006", Offset: 28},
		{Name: "lit_8001", Offset: 30},
		{Name: "lit_8002", Offset: 32},
	},
}

// DefaultBlocks is what the reader polls unless told otherwise.
var DefaultBlocks = []Block{Totalizers, Process}

// Decode converts the raw register bytes of b into dst.
func (b Block) Decode(data []byte, dst map[string]float64) error {
	if len(data) < int(b.Quantity)*2 {
		return fmt.Errorf("plc: block %d: short response (%d bytes, want %d)", b.Address, len(data), b.Quantity*2)
	}

	for _, t := range b.Tags {
		if t.Offset+2 > b.Quantity {
			return fmt.Errorf("plc: tag %s: offset %d outside block %d", t.Name, t.Offset, b.Address)
		}
		u := binary.BigEndian.Uint32(data[t.Offset*2:])
		if b.Float {
			dst[t.Name] = float64(math.Float32frombits(u))
		} else {
			dst[t.Name] = float64(int32(u))
		}
	}
	return nil
}
