// Package colorblind implements the per-frame color vision deficiency
// pipeline: linear simulation of a deficiency class and error-driven
// correction (daltonization) derived from that simulation.
//
// Every function here is a pure function of its arguments. Output values
// are quantized by truncation, not rounding, so results are bit-exact with
// the reference matrices and carry a systematic -0.5 LSB bias.
package colorblind

import (
	"fmt"
	"strings"
)

// Mode is a deficiency class, or None for unmodified output.
type Mode uint8

const (
	None Mode = iota
	Protanopia
	Deuteranopia
	Tritanopia
)

var modeNames = [...]string{
	None:         "none",
	Protanopia:   "protanopia",
	Deuteranopia: "deuteranopia",
	Tritanopia:   "tritanopia",
}

var modeLabels = [...]string{
	None:         "Normal View",
	Protanopia:   "Protanopia (Red-Blind)",
	Deuteranopia: "Deuteranopia (Green-Blind)",
	Tritanopia:   "Tritanopia (Blue-Blind)",
}

// Modes lists every mode in menu order.
func Modes() []Mode {
	return []Mode{None, Protanopia, Deuteranopia, Tritanopia}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	return int(m) < len(modeNames)
}

func (m Mode) String() string {
	if !m.Valid() {
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
	return modeNames[m]
}

// Label is the human readable name shown in status text and capture file names.
func (m Mode) Label() string {
	if !m.Valid() {
		return m.String()
	}
	return modeLabels[m]
}

// ParseMode accepts a mode name, its label, or one of the short aliases
// ("normal", "red", "green", "blue"), case-insensitively.
func ParseMode(s string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	switch key {
	case "", "none", "normal", "off":
		return None, nil
	case "red", "red-blind", "protan":
		return Protanopia, nil
	case "green", "green-blind", "deutan":
		return Deuteranopia, nil
	case "blue", "blue-blind", "tritan":
		return Tritanopia, nil
	}
	for i, name := range modeNames {
		if key == name || key == strings.ToLower(modeLabels[i]) {
			return Mode(i), nil
		}
	}
	return None, fmt.Errorf("unknown deficiency mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, &ContractError{Op: "marshal", Err: ErrUnknownMode}
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
