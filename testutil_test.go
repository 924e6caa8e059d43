// testutil_test.go - an in-memory gpio.PinIO test double, standing in for
// real silicon the same way the pack's periph host drivers separate a
// hardware-backed PinIO from a fake used in unit tests.

package main

import (
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

type fakePin struct {
	name string

	mu    sync.Mutex
	level gpio.Level
	pull  gpio.Pull
	edge  gpio.Edge

	edgeCh chan struct{}
}

func newFakePin(name string) *fakePin {
	return &fakePin{name: name, level: gpio.High, edgeCh: make(chan struct{}, 1)}
}

func (p *fakePin) String() string   { return p.name }
func (p *fakePin) Name() string     { return p.name }
func (p *fakePin) Number() int      { return 0 }
func (p *fakePin) Function() string { return "" }
func (p *fakePin) Halt() error      { return nil }

func (p *fakePin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pull = pull
	p.edge = edge
	return nil
}

func (p *fakePin) Read() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *fakePin) WaitForEdge(timeout time.Duration) bool {
	select {
	case <-p.edgeCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (p *fakePin) Pull() gpio.Pull        { return p.pull }
func (p *fakePin) DefaultPull() gpio.Pull { return gpio.PullNoChange }

func (p *fakePin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = l
	return nil
}

func (p *fakePin) PWM(duty gpio.Duty, freq physic.Frequency) error { return nil }

// setLevel sets the pin level directly, used by tests that poke an
// address/data line without going through Out (e.g. simulating the Z80
// driving the address bus).
func (p *fakePin) setLevel(l gpio.Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = l
}

// fireEdge simulates a falling-edge strobe: sets the level low, then
// wakes exactly one pending WaitForEdge call.
func (p *fakePin) fireEdge() {
	p.setLevel(gpio.Low)
	select {
	case p.edgeCh <- struct{}{}:
	default:
	}
}

// newFakeBusPins returns a fully-populated BusPins backed by fakePin, with
// every control output already idle-high as real hardware reset would
// leave it, and data/address lines configurable by the test.
func newFakeBusPins() *BusPins {
	pins := &BusPins{
		Clock:       newFakePin("clock"),
		ReadStrobe:  newFakePin("rd"),
		WriteStrobe: newFakePin("wr"),
		MemRequest:  newFakePin("mreq"),
		IORequest:   newFakePin("iorq"),
		M1:          newFakePin("m1"),
		Refresh:     newFakePin("rfsh"),
		Halt:        newFakePin("halt"),
		BusAck:      newFakePin("busack"),
		Reset:       newFakePin("reset"),
		Wait:        newFakePin("wait"),
		Int:         newFakePin("int"),
		NMI:         newFakePin("nmi"),
		BusReq:      newFakePin("busreq"),
	}
	for i := range pins.Address {
		pins.Address[i] = newFakePin("a")
	}
	for i := range pins.Data {
		pins.Data[i] = newFakePin("d")
	}
	// MREQ/RFSH default to inactive (high) so a freshly-built harness
	// doesn't look like it's mid-refresh-cycle.
	pins.MemRequest.(*fakePin).setLevel(gpio.High)
	pins.Refresh.(*fakePin).setLevel(gpio.High)
	return pins
}

// setAddress drives the fake address bus to addr.
func setAddress(pins *BusPins, addr uint16) {
	for i, a := range pins.Address {
		l := gpio.Low
		if addr&(1<<uint(i)) != 0 {
			l = gpio.High
		}
		a.(*fakePin).setLevel(l)
	}
}

// setData drives the fake data bus to value (used to simulate the Z80
// presenting a byte during a write cycle).
func setData(pins *BusPins, value uint8) {
	for i, d := range pins.Data {
		l := gpio.Low
		if value&(1<<uint(i)) != 0 {
			l = gpio.High
		}
		d.(*fakePin).setLevel(l)
	}
}
