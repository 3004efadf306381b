package register

import (
	"fmt"
	"strings"
)

// Width is the number of 16-bit words a register occupies.
type Width uint16

const (
	Single  Width = 1
	Float32 Width = 2
)

func (w Width) String() string {
	switch w {
	case Single:
		return "single"
	case Float32:
		return "float32"
	default:
		return fmt.Sprintf("width(%d)", uint16(w))
	}
}

func ParseWidth(s string) (Width, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "float32", "float":
		return Float32, nil
	case "single", "uint16", "u16":
		return Single, nil
	}
	return 0, fmt.Errorf("unknown register width %q (want float32|single)", s)
}

// Function is the Modbus read function code used for a register.
type Function uint8

const (
	HoldingRegister Function = 3 // FC3
	InputRegister   Function = 4 // FC4
)

func (f Function) String() string {
	switch f {
	case HoldingRegister:
		return "holding"
	case InputRegister:
		return "input"
	default:
		return fmt.Sprintf("fc(%d)", uint8(f))
	}
}

func ParseFunction(s string) (Function, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "input", "fc4":
		return InputRegister, nil
	case "holding", "fc3":
		return HoldingRegister, nil
	}
	return 0, fmt.Errorf("unknown register function %q (want input|holding)", s)
}

// Definition describes one polled register. Name doubles as topic suffix
// and discovery id, so it must be unique within a catalog.
type Definition struct {
	Name        string
	Address     uint16
	Width       Width
	Function    Function
	Unit        string
	DeviceClass string
	StateClass  string
}

// RawReading is what a single read call returned for a register.
type RawReading struct {
	Address uint16
	Words   []uint16
}

// DecodedValue is the per-cycle outcome for one register.
type DecodedValue struct {
	Definition Definition
	Value      float64
	Err        error
}

func (v DecodedValue) OK() bool { return v.Err == nil }

func (v DecodedValue) Name() string { return v.Definition.Name }

// DeviceIdentity is shared by every discovery payload of the physical device.
type DeviceIdentity struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}
