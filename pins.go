// pins.go - Pin/Bus Driver (C1): type-safe, constant-time access to the
// Z80's address bus, data bus, and active-low control signals.
//
// Every operation here is a fixed sequence of per-pin reads or writes.
// Nothing allocates; only PulseNMI and PulseINT block, sleeping for the
// pulse width. The ISR handlers in isr.go are the only callers permitted to
// drive the data bus.

package main

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// BusPins names every physical connection between host and Z80. Exact pin
// assignment is a deployment detail (see config.go); this type only fixes
// roles and directions, matching spec.md §6.
type BusPins struct {
	Address [16]gpio.PinIn
	Data    [8]gpio.PinIO

	Clock gpio.PinOut

	ReadStrobe  gpio.PinIn
	WriteStrobe gpio.PinIn
	MemRequest  gpio.PinIn
	IORequest   gpio.PinIn
	M1          gpio.PinIn
	Refresh     gpio.PinIn
	Halt        gpio.PinIn
	BusAck      gpio.PinIn

	Reset  gpio.PinOut
	Wait   gpio.PinOut
	Int    gpio.PinOut
	NMI    gpio.PinOut
	BusReq gpio.PinOut
}

// PinDriver is C1: the only code in the repository permitted to touch
// BusPins directly.
type PinDriver struct {
	pins *BusPins
}

// NewPinDriver wires control outputs to their inactive (high) state, as
// spec.md §4.1 requires, and configures the read/write strobes for
// falling-edge interrupt delivery (consumed by isr.go's edge watchers).
func NewPinDriver(pins *BusPins) (*PinDriver, error) {
	for _, out := range []gpio.PinOut{pins.Reset, pins.Wait, pins.Int, pins.NMI, pins.BusReq, pins.Clock} {
		if out == nil {
			continue
		}
		if err := out.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("pins: init %s high: %w", out, err)
		}
	}
	for _, sig := range []gpio.PinIn{pins.MemRequest, pins.IORequest, pins.M1, pins.Refresh, pins.Halt, pins.BusAck} {
		if sig == nil {
			continue
		}
		if err := sig.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("pins: configure %s: %w", sig, err)
		}
	}
	if err := pins.ReadStrobe.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("pins: configure read strobe: %w", err)
	}
	if err := pins.WriteStrobe.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("pins: configure write strobe: %w", err)
	}
	for _, a := range pins.Address {
		if err := a.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("pins: configure address line: %w", err)
		}
	}
	for _, d := range pins.Data {
		if err := d.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("pins: configure data line: %w", err)
		}
	}
	return &PinDriver{pins: pins}, nil
}

// ReadAddress composes the 16-bit address bus from its sixteen input lines.
func (p *PinDriver) ReadAddress() uint16 {
	var addr uint16
	for i, a := range p.pins.Address {
		if a.Read() == gpio.High {
			addr |= 1 << uint(i)
		}
	}
	return addr
}

// ReadData sets the data port to input mode and samples it.
func (p *PinDriver) ReadData() uint8 {
	p.ReleaseData()
	var data uint8
	for i, d := range p.pins.Data {
		if d.Read() == gpio.High {
			data |= 1 << uint(i)
		}
	}
	return data
}

// DriveData sets the data port to output and writes value. The caller is
// always the read-edge ISR, which does not release the bus itself: the
// lines stay driven until the next ReleaseData, which the write-edge ISR
// and ReadData both perform before sampling.
func (p *PinDriver) DriveData(value uint8) {
	for i, d := range p.pins.Data {
		level := gpio.Low
		if value&(1<<uint(i)) != 0 {
			level = gpio.High
		}
		_ = d.Out(level)
	}
}

// ReleaseData tri-states the data port.
func (p *PinDriver) ReleaseData() {
	for _, d := range p.pins.Data {
		_ = d.In(gpio.PullNoChange, gpio.NoEdge)
	}
}

// IsReadCycle reports whether the read strobe is currently asserted (low).
func (p *PinDriver) IsReadCycle() bool { return p.pins.ReadStrobe.Read() == gpio.Low }

// IsWriteCycle reports whether the write strobe is currently asserted (low).
func (p *PinDriver) IsWriteCycle() bool { return p.pins.WriteStrobe.Read() == gpio.Low }

// IsMemoryRequest reports whether MREQ is asserted.
func (p *PinDriver) IsMemoryRequest() bool { return p.pins.MemRequest.Read() == gpio.Low }

// IsRefreshCycle reports whether RFSH is asserted.
func (p *PinDriver) IsRefreshCycle() bool { return p.pins.Refresh.Read() == gpio.Low }

// IsM1Cycle reports whether M1 (opcode fetch) is asserted.
func (p *PinDriver) IsM1Cycle() bool { return p.pins.M1.Read() == gpio.Low }

// IsHalt reports whether HALT is asserted.
func (p *PinDriver) IsHalt() bool { return p.pins.Halt.Read() == gpio.Low }

// IsBusAck reports whether BUSACK is asserted.
func (p *PinDriver) IsBusAck() bool { return p.pins.BusAck.Read() == gpio.Low }

// AssertReset drives RESET low.
func (p *PinDriver) AssertReset() error { return p.pins.Reset.Out(gpio.Low) }

// ReleaseReset drives RESET high.
func (p *PinDriver) ReleaseReset() error { return p.pins.Reset.Out(gpio.High) }

// AssertWait drives WAIT low, holding the current bus cycle open.
func (p *PinDriver) AssertWait() error { return p.pins.Wait.Out(gpio.Low) }

// ReleaseWait drives WAIT high.
func (p *PinDriver) ReleaseWait() error { return p.pins.Wait.Out(gpio.High) }

// WaitLevel reports the instantaneous level of the WAIT output.
func (p *PinDriver) WaitLevel() gpio.Level { return p.pins.Wait.Read() }

// PulseNMI drives NMI low for width, then releases it. Called from the
// cooperative main loop only; never from an edge handler.
func (p *PinDriver) PulseNMI(width time.Duration) error {
	if err := p.pins.NMI.Out(gpio.Low); err != nil {
		return fmt.Errorf("pins: assert nmi: %w", err)
	}
	time.Sleep(width)
	if err := p.pins.NMI.Out(gpio.High); err != nil {
		return fmt.Errorf("pins: release nmi: %w", err)
	}
	return nil
}

// PulseINT drives INT low for width and spins on BusAck-adjacent M1 state
// for up to spinLimit iterations waiting for the Z80 to acknowledge, then
// releases INT unconditionally. The vector byte is not placed on the data
// bus here: spec.md §1 excludes interrupt-acknowledge memory cycles from
// the fast path, so the harness only pulses the line.
func (p *PinDriver) PulseINT(width time.Duration, spinLimit int) error {
	if err := p.pins.Int.Out(gpio.Low); err != nil {
		return fmt.Errorf("pins: assert int: %w", err)
	}
	for i := 0; i < spinLimit; i++ {
		if p.IsM1Cycle() {
			break
		}
	}
	time.Sleep(width)
	if err := p.pins.Int.Out(gpio.High); err != nil {
		return fmt.Errorf("pins: release int: %w", err)
	}
	return nil
}
