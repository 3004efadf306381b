package register

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// WordOrder selects which register holds the high half of a 32-bit value.
// Bytes inside a word are always big-endian on the wire.
type WordOrder uint8

const (
	HighWordFirst WordOrder = iota
	LowWordFirst
)

func (o WordOrder) String() string {
	if o == LowWordFirst {
		return "low_first"
	}
	return "high_first"
}

func ParseWordOrder(s string) (WordOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "high_first", "big", "abcd":
		return HighWordFirst, nil
	case "low_first", "little", "swapped", "cdab":
		return LowWordFirst, nil
	}
	return 0, fmt.Errorf("unknown word order %q (want high_first|low_first)", s)
}

// DecodeFloat32 packs words[0] then words[1] big-endian and reinterprets the
// four bytes as an IEEE-754 single, widened to float64.
// The caller guarantees len(words) >= 2.
func DecodeFloat32(words []uint16) float64 {
	var buf [4]byte
	binary.BigEndian.PutUint16(buf[0:2], words[0])
	binary.BigEndian.PutUint16(buf[2:4], words[1])
	return float64(math.Float32frombits(binary.BigEndian.Uint32(buf[:])))
}

func DecodeUint16(w uint16) float64 { return float64(w) }

// Decode applies the word order before float reconstruction.
func (o WordOrder) Decode(words []uint16) float64 {
	if o == LowWordFirst {
		return DecodeFloat32([]uint16{words[1], words[0]})
	}
	return DecodeFloat32(words)
}

// EncodeFloat32 is the inverse of Decode for the given order.
func EncodeFloat32(v float32, o WordOrder) []uint16 {
	bits := math.Float32bits(v)
	hi, lo := uint16(bits>>16), uint16(bits)
	if o == LowWordFirst {
		return []uint16{lo, hi}
	}
	return []uint16{hi, lo}
}

// Value decodes a register according to its width. words must hold at
// least def.Width entries.
func Value(def Definition, o WordOrder, words []uint16) float64 {
	if def.Width == Single {
		return DecodeUint16(words[0])
	}
	return o.Decode(words)
}

// Encode is the inverse of Value. Single-word values are clamped to 0..65535.
func Encode(def Definition, o WordOrder, v float64) []uint16 {
	if def.Width == Single {
		return []uint16{uint16(math.Max(0, math.Min(math.Round(v), math.MaxUint16)))}
	}
	return EncodeFloat32(float32(v), o)
}
