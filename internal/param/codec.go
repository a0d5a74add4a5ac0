// internal/param/codec.go
package param

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrShortPayload = errors.New("param: short register payload")

// DecodeRaw turns wire bytes (big-endian registers) into the signed raw value.
//
// The drive sends 32-bit values low word first. The registers are laid out
// low word first into a little-endian image, which is then read as a
// little-endian signed integer. Getting this backwards does not fail, it
// returns values off by 65536x.
func DecodeRaw(data []byte, w Width) (int32, error) {
	words := 1
	if w == Width32 {
		words = 2
	}
	if len(data) < 2*words {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrShortPayload, len(data), 2*words)
	}

	var img [4]byte
	for i := 0; i < words; i++ {
		reg := binary.BigEndian.Uint16(data[2*i:])
		binary.LittleEndian.PutUint16(img[2*i:], reg)
	}

	if w == Width32 {
		return int32(binary.LittleEndian.Uint32(img[:])), nil
	}
	return int32(int16(binary.LittleEndian.Uint16(img[:2]))), nil
}

// DecodeWords is DecodeRaw for register values already split into words.
func DecodeWords(words []uint16, w Width) (int32, error) {
	data := make([]byte, 2*len(words))
	for i, v := range words {
		binary.BigEndian.PutUint16(data[2*i:], v)
	}
	return DecodeRaw(data, w)
}

// Scale divides raw by the integer scale. scale <= 1 is identity.
func Scale(raw int32, scale int) float64 {
	if scale <= 1 {
		return float64(raw)
	}
	return float64(raw) / float64(scale)
}

// Decode is DecodeRaw followed by Scale for a resolved point.
func (p Point) Decode(data []byte) (raw int32, value float64, err error) {
	raw, err = DecodeRaw(data, p.Width)
	if err != nil {
		return 0, 0, fmt.Errorf("param %q: %w", p.Name, err)
	}
	return raw, Scale(raw, p.Scale), nil
}
