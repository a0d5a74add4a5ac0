// internal/param/param.go
package param

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Width is the register width of a drive parameter.
type Width int

const (
	Width16 Width = 16
	Width32 Width = 32
)

// ---- MODE 0 ADDRESSING (vendor-locked) ----

const (
	base16 = 400000
	base32 = 420000

	// transportOffset converts a protocol address to the zero-based wire address.
	transportOffset = 400001

	maxGroup = 99
	maxIndex = 99
)

var (
	ErrGroupIndex = errors.New("param: malformed group index")
	ErrWidth      = errors.New("param: width must be 16 or 32")
	ErrScale      = errors.New("param: scale must be >= 1")
)

// Parameter is the static descriptor of one drive parameter.
type Parameter struct {
	Name       string
	GroupIndex string // "GG.II", e.g. "01.06"
	Unit       string
	Width      Width
	Scale      int
}

// Address is the device-side location of a parameter.
type Address struct {
	DeviceRegister   int    // protocol-native, e.g. 420212
	TransportAddress uint16 // zero-based, on the wire
	WordCount        uint16
}

// Point is a parameter with its address resolved once at startup.
type Point struct {
	Parameter
	Address
}

// ParseWidth accepts "16bit"/"32bit" (and the bare numbers).
func ParseWidth(s string) (Width, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "16bit", "16":
		return Width16, nil
	case "32bit", "32":
		return Width32, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrWidth, s)
}

// ParseGroupIndex splits "GG.II" into its group and index.
func ParseGroupIndex(s string) (group, index int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrGroupIndex, s)
	}

	group, err = strconv.Atoi(parts[0])
	if err != nil || group < 0 || group > maxGroup {
		return 0, 0, fmt.Errorf("%w: %q", ErrGroupIndex, s)
	}
	index, err = strconv.Atoi(parts[1])
	if err != nil || index < 0 || index > maxIndex {
		return 0, 0, fmt.Errorf("%w: %q", ErrGroupIndex, s)
	}

	return group, index, nil
}

// Translate maps group/index/width to the drive register address.
// Pure arithmetic. Inputs are assumed validated.
func Translate(group, index int, w Width) Address {
	var reg int
	words := uint16(1)

	if w == Width32 {
		reg = base32 + 200*group + 2*index
		words = 2
	} else {
		reg = base16 + 100*group + index
	}

	return Address{
		DeviceRegister:   reg,
		TransportAddress: uint16(reg - transportOffset),
		WordCount:        words,
	}
}

// Validate checks everything Resolve relies on.
func Validate(p Parameter) error {
	if p.Name == "" {
		return errors.New("param: name required")
	}
	if p.Width != Width16 && p.Width != Width32 {
		return fmt.Errorf("param %q: %w", p.Name, ErrWidth)
	}
	if p.Scale < 1 {
		return fmt.Errorf("param %q: %w", p.Name, ErrScale)
	}

	g, i, err := ParseGroupIndex(p.GroupIndex)
	if err != nil {
		return fmt.Errorf("param %q: %w", p.Name, err)
	}
	// 00.00 at 16 bit lands below the Mode 0 origin.
	if Translate(g, i, p.Width).DeviceRegister < transportOffset {
		return fmt.Errorf("param %q: %w: %q maps below register 400001", p.Name, ErrGroupIndex, p.GroupIndex)
	}

	return nil
}

// Resolve validates p and attaches its address.
func Resolve(p Parameter) (Point, error) {
	if err := Validate(p); err != nil {
		return Point{}, err
	}
	g, i, _ := ParseGroupIndex(p.GroupIndex)
	return Point{Parameter: p, Address: Translate(g, i, p.Width)}, nil
}

// ResolveAll resolves a parameter list, keeping order.
func ResolveAll(ps []Parameter) ([]Point, error) {
	out := make([]Point, 0, len(ps))
	seen := make(map[string]struct{}, len(ps))

	for _, p := range ps {
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("param: duplicate name %q", p.Name)
		}
		seen[p.Name] = struct{}{}

		pt, err := Resolve(p)
		if err != nil {
			return nil, err
		}
		out = append(out, pt)
	}

	return out, nil
}
