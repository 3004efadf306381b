// Package sim backs the Modbus slave simulators with catalog-aware register access.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vfdlink/modbus2mqtt/internal/register"
)

var ErrUnknownRegister = errors.New("unknown register")

// DefaultSeed gives a plausible running-pump reading for the stock catalog.
var DefaultSeed = map[string]float64{
	"measured_psi": 50.24,
	"measured_gpm": 12.5,
	"measured_ft":  115.9,
	"target_hz":    60,
	"target_psi":   55,
	"target_gpm":   15,
	"voltage":      230,
}

// Bank reads and writes catalog registers inside a slave's register tables.
// Input and Holding alias the server's slices; writes are visible to the
// Modbus side immediately.
type Bank struct {
	mu      sync.RWMutex
	input   []uint16
	holding []uint16
	cat     *register.Catalog
	order   register.WordOrder
}

func NewBank(input, holding []uint16, cat *register.Catalog, order register.WordOrder) *Bank {
	return &Bank{input: input, holding: holding, cat: cat, order: order}
}

func (b *Bank) table(def register.Definition) []uint16 {
	if def.Function == register.HoldingRegister {
		return b.holding
	}
	return b.input
}

func (b *Bank) Set(name string, v float64) error {
	def, ok := b.cat.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRegister, name)
	}
	words := register.Encode(def, b.order, v)
	b.mu.Lock()
	defer b.mu.Unlock()
	tbl := b.table(def)
	if int(def.Address)+len(words) > len(tbl) {
		return fmt.Errorf("register %q at %d outside table of %d words", name, def.Address, len(tbl))
	}
	copy(tbl[def.Address:], words)
	return nil
}

func (b *Bank) Get(name string) (float64, error) {
	def, ok := b.cat.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRegister, name)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	tbl := b.table(def)
	end := int(def.Address) + int(def.Width)
	if end > len(tbl) {
		return 0, fmt.Errorf("register %q at %d outside table of %d words", name, def.Address, len(tbl))
	}
	return register.Value(def, b.order, tbl[def.Address:end]), nil
}

// Values returns every catalog register keyed by name.
func (b *Bank) Values() map[string]float64 {
	out := make(map[string]float64, b.cat.Len())
	for _, def := range b.cat.Definitions() {
		if v, err := b.Get(def.Name); err == nil {
			out[def.Name] = v
		}
	}
	return out
}

// Seed writes values for the registers it knows; unknown names are ignored.
func (b *Bank) Seed(values map[string]float64) {
	for _, def := range b.cat.Definitions() {
		if v, ok := values[def.Name]; ok {
			_ = b.Set(def.Name, v)
		}
	}
}
