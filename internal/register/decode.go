// Package register decodes fixed-width hexadecimal register readouts.
package register

import (
	"fmt"
	"strconv"
	"strings"
)

// maxDigits keeps the raw value inside a uint64.
const maxDigits = 16

// Value is a register readout and its two's-complement interpretation.
type Value struct {
	Hex    string
	Bits   int
	Signed int64
}

func (v Value) String() string {
	return fmt.Sprintf("%s (%d)", v.Hex, v.Signed)
}

// Decode interprets hex as an unsigned integer of 4*len(hex) bits and then as a
// signed two's-complement value: if the top bit is set, 2^bits is subtracted.
func Decode(hex string) (Value, error) {
	digits := strings.TrimSpace(hex)
	if digits == "" {
		return Value{}, fmt.Errorf("decode register: empty readout")
	}
	if len(digits) > maxDigits {
		return Value{}, fmt.Errorf("decode register %q: %d digits exceed %d", digits, len(digits), maxDigits)
	}

	raw, err := strconv.ParseUint(digits, 16, 64)
	if err != nil {
		return Value{}, fmt.Errorf("decode register %q: %w", digits, err)
	}

	bits := 4 * len(digits)
	signed := int64(raw)
	if bits < 64 && raw&(uint64(1)<<(bits-1)) != 0 {
		signed = int64(raw) - int64(uint64(1)<<bits)
	}

	return Value{Hex: digits, Bits: bits, Signed: signed}, nil
}

// ParseExpected reads the expected signed value from golden file content.
func ParseExpected(content string) (int64, error) {
	trimmed := strings.TrimSpace(content)
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse expected register value %q: %w", trimmed, err)
	}
	return value, nil
}

// Matches reports whether the readout decodes to expected.
func Matches(hex string, expected int64) (Value, bool, error) {
	value, err := Decode(hex)
	if err != nil {
		return Value{}, false, err
	}
	return value, value.Signed == expected, nil
}
