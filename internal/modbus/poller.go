package modbus

import (
	"context"
	"fmt"
	"math"

	"github.com/vfdlink/modbus2mqtt/internal/logging"
	"github.com/vfdlink/modbus2mqtt/internal/register"
)

// Poller reads a whole catalog per cycle over a link it opens and closes itself.
type Poller struct {
	transport Transport
	order     register.WordOrder
}

func NewPoller(t Transport, order register.WordOrder) *Poller {
	return &Poller{transport: t, order: order}
}

// PollAll opens the transport, reads every register in catalog order and
// closes the transport on return. Only an open failure fails the call; a
// register that cannot be read yields a DecodedValue with Err set and the
// remaining registers are still read.
func (p *Poller) PollAll(ctx context.Context, cat *register.Catalog) ([]register.DecodedValue, error) {
	if err := p.transport.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransportOpen, err)
	}
	defer func() {
		if err := p.transport.Close(); err != nil {
			logging.Debug("modbus transport close failed", "error", err)
		}
	}()

	defs := cat.Definitions()
	out := make([]register.DecodedValue, 0, len(defs))
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		dv := p.readOne(def)
		if dv.OK() {
			logging.Info("register read", "register", def.Name, "address", def.Address, "value", dv.Value, "unit", def.Unit)
		} else {
			logging.Warn("register read failed", "register", def.Name, "address", def.Address, "error", dv.Err)
		}
		out = append(out, dv)
	}
	return out, nil
}

func (p *Poller) readOne(def register.Definition) register.DecodedValue {
	raw, err := p.read(def)
	if err != nil {
		return register.DecodedValue{Definition: def, Err: err}
	}
	return p.decode(def, raw)
}

func (p *Poller) read(def register.Definition) (register.RawReading, error) {
	words, err := p.transport.ReadRegisters(def.Function, def.Address, uint16(def.Width))
	if err != nil {
		return register.RawReading{}, fmt.Errorf("%w: %v@%d: %w", ErrRegisterRead, def.Function, def.Address, err)
	}
	return register.RawReading{Address: def.Address, Words: words}, nil
}

// decode checks the word count before decoding; the decoders assume it.
func (p *Poller) decode(def register.Definition, raw register.RawReading) register.DecodedValue {
	qty := int(def.Width)
	if len(raw.Words) < qty {
		return register.DecodedValue{Definition: def, Err: fmt.Errorf("%w: got %d words at %d, want %d", ErrShortResponse, len(raw.Words), raw.Address, qty)}
	}
	v := register.Value(def, p.order, raw.Words[:qty])
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return register.DecodedValue{Definition: def, Err: fmt.Errorf("%w: %v", ErrNonFinite, v)}
	}
	return register.DecodedValue{Definition: def, Value: v}
}
