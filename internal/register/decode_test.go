package register

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestDecodeFloat32_KnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		words []uint16
		want  float32
	}{
		{"measured psi", []uint16{0x4248, 0xF5C3}, 50.24},
		{"voltage 220.25", []uint16{0x435C, 0x4000}, 220.25},
		{"current 15.75", []uint16{0x417C, 0x0000}, 15.75},
		{"zero", []uint16{0x0000, 0x0000}, 0},
		{"negative one", []uint16{0xBF80, 0x0000}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeFloat32(tt.words)
			if got != float64(tt.want) {
				t.Errorf("DecodeFloat32(%#04x) = %v, want %v", tt.words, got, tt.want)
			}
		})
	}
}

func TestDecodeFloat32_MatchesBigEndianBytes(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		hi, lo := uint16(r.Uint32()), uint16(r.Uint32())
		var buf [4]byte
		buf[0], buf[1] = byte(hi>>8), byte(hi)
		buf[2], buf[3] = byte(lo>>8), byte(lo)
		want := math.Float32frombits(binary.BigEndian.Uint32(buf[:]))

		got := DecodeFloat32([]uint16{hi, lo})
		if math.IsNaN(float64(want)) {
			if !math.IsNaN(got) {
				t.Fatalf("DecodeFloat32(%#04x,%#04x) = %v, want NaN", hi, lo, got)
			}
			continue
		}
		if got != float64(want) {
			t.Fatalf("DecodeFloat32(%#04x,%#04x) = %v, want %v", hi, lo, got, want)
		}
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	values := []float32{50.24, -12.5, 0.001, math.MaxFloat32, math.SmallestNonzeroFloat32, 60, 123456.789}
	for _, order := range []WordOrder{HighWordFirst, LowWordFirst} {
		for _, v := range values {
			words := EncodeFloat32(v, order)
			got := order.Decode(words)
			if math.Float32bits(float32(got)) != math.Float32bits(v) {
				t.Errorf("%v: round trip of %v gave %v", order, v, got)
			}
			if got != float64(v) {
				t.Errorf("%v: widening of %v not exact: %v", order, v, got)
			}
		}
	}
}

func TestWordOrder_LowFirstSwapsWords(t *testing.T) {
	got := LowWordFirst.Decode([]uint16{0xF5C3, 0x4248})
	if got != float64(float32(50.24)) {
		t.Errorf("LowWordFirst.Decode = %v, want 50.24", got)
	}
}

func TestValue_SingleWordIsUnsignedInteger(t *testing.T) {
	def := Definition{Name: "voltage", Width: Single}
	if got := Value(def, HighWordFirst, []uint16{0xFFFF}); got != 65535 {
		t.Errorf("Value(single 0xFFFF) = %v, want 65535", got)
	}
	if got := Value(def, HighWordFirst, []uint16{230}); got != 230 {
		t.Errorf("Value(single 230) = %v, want 230", got)
	}
}

func TestParseWordOrder(t *testing.T) {
	for in, want := range map[string]WordOrder{"": HighWordFirst, "high_first": HighWordFirst, "CDAB": LowWordFirst, "low_first": LowWordFirst} {
		got, err := ParseWordOrder(in)
		if err != nil || got != want {
			t.Errorf("ParseWordOrder(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseWordOrder("middle"); err == nil {
		t.Error("ParseWordOrder(middle) expected error")
	}
}

// =============================================================================
// Catalog
// =============================================================================

func dxeDefs() []Definition {
	return []Definition{
		{Name: "measured_psi", Address: 33, Width: Float32, Function: InputRegister, Unit: "psi", DeviceClass: "pressure"},
		{Name: "measured_gpm", Address: 34, Width: Float32, Function: InputRegister, Unit: "gpm"},
		{Name: "target_hz", Address: 36, Width: Float32, Function: InputRegister, Unit: "Hz", DeviceClass: "frequency"},
	}
}

func TestNewCatalog_KeepsOrderAndIsReadOnly(t *testing.T) {
	defs := dxeDefs()
	cat, err := NewCatalog(defs)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	defs[0].Name = "mutated"

	got := cat.Definitions()
	if got[0].Name != "measured_psi" || got[2].Name != "target_hz" {
		t.Errorf("Definitions() = %v", got)
	}
	got[1].Address = 999
	if d, _ := cat.Lookup("measured_gpm"); d.Address != 34 {
		t.Errorf("catalog mutated through Definitions(): address = %d", d.Address)
	}
	if cat.Len() != 3 {
		t.Errorf("Len() = %d, want 3", cat.Len())
	}
}

func TestNewCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
	}{
		{"empty", nil},
		{"duplicate", []Definition{
			{Name: "a", Width: Float32, Function: InputRegister},
			{Name: "a", Address: 2, Width: Float32, Function: InputRegister},
		}},
		{"missing name", []Definition{{Width: Float32, Function: InputRegister}}},
		{"topic wildcard", []Definition{{Name: "psi/#", Width: Float32, Function: InputRegister}}},
		{"bad width", []Definition{{Name: "a", Width: 4, Function: InputRegister}}},
		{"bad function", []Definition{{Name: "a", Width: Single, Function: 1}}},
		{"overflow", []Definition{{Name: "a", Address: 0xFFFF, Width: Float32, Function: InputRegister}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.defs)
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Errorf("NewCatalog() error = %v, want ErrInvalidCatalog", err)
			}
		})
	}
}

func TestParseWidthAndFunction(t *testing.T) {
	if w, err := ParseWidth(""); err != nil || w != Float32 {
		t.Errorf("ParseWidth(\"\") = %v, %v", w, err)
	}
	if w, err := ParseWidth("single"); err != nil || w != Single {
		t.Errorf("ParseWidth(single) = %v, %v", w, err)
	}
	if _, err := ParseWidth("float64"); err == nil {
		t.Error("ParseWidth(float64) expected error")
	}
	if f, err := ParseFunction("holding"); err != nil || f != HoldingRegister {
		t.Errorf("ParseFunction(holding) = %v, %v", f, err)
	}
	if f, err := ParseFunction(""); err != nil || f != InputRegister {
		t.Errorf("ParseFunction(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFunction("coil"); err == nil {
		t.Error("ParseFunction(coil) expected error")
	}
}
