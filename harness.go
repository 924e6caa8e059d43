// harness.go - the public operations of spec.md §6, wiring C1-C4 together
// for external collaborators (the interactive menu, the benchmark
// workflow) which this repository treats as out-of-scope callers.

package main

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Harness is the single entry point external collaborators use. It owns
// exactly one of each core component and exposes the operation set named
// in spec.md §6.
type Harness struct {
	Pins    *PinDriver
	Clock   *ClockGenerator
	Program *ProgramImage
	Backpr  *BackpressureManager
	Engine  *BusCycleEngine

	readStrobe, writeStrobe edgeWaiter
	cancel                  context.CancelFunc
}

// NewHarness assembles a Harness from a configured BusPins. It does not
// start the clock or the edge engine; call InitPins/InitMemoryHandler and
// then Run.
func NewHarness(pins *BusPins) (*Harness, error) {
	driver, err := NewPinDriver(pins)
	if err != nil {
		return nil, fmt.Errorf("harness: %w", err)
	}
	clock := NewClockGenerator(pins.Clock)
	program := NewProgramImage()
	backpr := NewBackpressureManager(driver, clock)
	engine := NewBusCycleEngine(driver, program, backpr)
	return &Harness{
		Pins:        driver,
		Clock:       clock,
		Program:     program,
		Backpr:      backpr,
		Engine:      engine,
		readStrobe:  pins.ReadStrobe,
		writeStrobe: pins.WriteStrobe,
	}, nil
}

// InitPins is an idempotent no-op placeholder matching spec.md §6's
// operation list: pin configuration already happened in NewHarness/
// NewPinDriver, which itself drives every control output to its inactive
// state on every call.
func (h *Harness) InitPins() error { return nil }

// InitMemoryHandler is an idempotent no-op placeholder: ProgramImage
// starts in its zero (unloaded) state and needs no separate activation
// step beyond a program load.
func (h *Harness) InitMemoryHandler() error { return nil }

// Run starts the bus-cycle edge engine and blocks until ctx is cancelled.
func (h *Harness) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.Engine.Run(ctx, h.readStrobe, h.writeStrobe)
}

// Stop cancels the running edge engine, if any.
func (h *Harness) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

// ResetZ80 drives RESET low for duration, asserting WAIT first so the Z80
// halts on its first post-reset fetch instead of racing the harness. WAIT
// is only released when the caller subsequently calls ReleaseWait,
// matching spec.md §6.
func (h *Harness) ResetZ80(duration time.Duration) error {
	if err := h.Pins.AssertWait(); err != nil {
		return fmt.Errorf("harness: reset: assert wait: %w", err)
	}
	if err := h.Pins.AssertReset(); err != nil {
		return fmt.Errorf("harness: reset: assert reset: %w", err)
	}
	time.Sleep(duration)
	if err := h.Pins.ReleaseReset(); err != nil {
		return fmt.Errorf("harness: reset: release reset: %w", err)
	}
	return nil
}

// ReleaseWait lets the caller choose the moment the Z80 resumes after a
// ResetZ80 call.
func (h *Harness) ReleaseWait() error { return h.Pins.ReleaseWait() }

// pulseFloor is the minimum width spec.md §6 requires for NMI/INT pulses.
const pulseFloor = 5 * time.Microsecond

// pulseWidth derives a pulse width from the clock's current frequency,
// floored at pulseFloor.
func pulseWidth(hz uint32) time.Duration {
	if hz == 0 {
		return pulseFloor
	}
	w := (physic.Frequency(hz) * physic.Hertz).Period()
	if w < pulseFloor {
		return pulseFloor
	}
	return w
}

// spinLimitFor bounds the interrupt-acknowledge poll in PulseINT so a Z80
// that never acknowledges can't hang the caller, per spec.md §5's
// "gives up after a fixed spin count and leaves the INT line released."
const spinLimitFor = 100000

// TriggerNMI pulses NMI for one clock period (floor 5us).
func (h *Harness) TriggerNMI() error {
	return h.Pins.PulseNMI(pulseWidth(h.Clock.Frequency()))
}

// TriggerINT pulses INT for one clock period (floor 5us). vector is
// accepted for interface parity with spec.md §6 but unused: spec.md §1
// excludes interrupt-acknowledge memory cycles from the fast path, so no
// vector byte is ever placed on the bus.
func (h *Harness) TriggerINT(vector uint8) error {
	_ = vector
	return h.Pins.PulseINT(pulseWidth(h.Clock.Frequency()), spinLimitFor)
}

// InitClock validates and applies hz, starts the clock running, and
// records hz as the backpressure manager's un-throttled target.
func (h *Harness) InitClock(hz uint32) error {
	if err := h.Clock.Init(hz); err != nil {
		return err
	}
	h.Backpr.SetTargetFrequency(hz)
	return nil
}

// SetFrequency changes the clock frequency. If the backpressure manager is
// not currently throttled, the clock is reprogrammed at once and hz also
// becomes its new restore target; otherwise the clock keeps its throttled
// rate and hz is only recorded as the target the manager will restore to
// once backpressure clears.
func (h *Harness) SetFrequency(hz uint32) error {
	if h.Backpr.Throttled() {
		if hz < FreqMin || hz > FreqMax {
			return fmt.Errorf("%w: %d", ErrFrequencyOutOfRange, hz)
		}
		h.Backpr.targetHz = hz
		return nil
	}
	if err := h.Clock.SetFrequency(hz); err != nil {
		return err
	}
	h.Backpr.SetTargetFrequency(hz)
	return nil
}

// StartClock (re)connects the clock output to the pin.
func (h *Harness) StartClock() error { return h.Clock.Start() }

// StopClock disconnects the clock output from the pin.
func (h *Harness) StopClock() error { return h.Clock.Stop() }

// SingleStep manually emits one clock pulse while stopped.
func (h *Harness) SingleStep() error { return h.Clock.SingleStep() }

// Frequency returns the clock's current target frequency.
func (h *Harness) Frequency() uint32 { return h.Clock.Frequency() }

// IsRunning reports whether the clock is connected to the pin.
func (h *Harness) IsRunning() bool { return h.Clock.IsRunning() }

// SetProgram loads a program image with no cache.
func (h *Harness) SetProgram(bytes []byte) error { return h.Program.SetProgram(bytes) }

// LoadProgramToCache loads a program image and mirrors it into the cache.
func (h *Harness) LoadProgramToCache(bytes []byte) error {
	return h.Program.LoadProgramToCache(bytes)
}

// SetCacheSize changes the cache capacity ({128, 256, 512, 1024}).
func (h *Harness) SetCacheSize(size int) error { return h.Program.SetCacheSize(size) }

// SetMode switches the capture mode.
func (h *Harness) SetMode(m CaptureMode) { h.Backpr.SetMode(m) }

// Level returns the ring's current occupancy.
func (h *Harness) Level() int { return h.Backpr.Level() }

// ReadOne drains one captured transaction, if any are pending.
func (h *Harness) ReadOne() (Transaction, bool) { return h.Backpr.ReadOne() }

// ClearCapture drops all unconsumed capture state.
func (h *Harness) ClearCapture() { h.Backpr.Clear() }

// Process is a placeholder hook for a consumer loop that wants to drain
// the ring fully on each call; external collaborators are free to call
// ReadOne directly instead.
func (h *Harness) Process(consume func(Transaction)) {
	for {
		tx, ok := h.Backpr.ReadOne()
		if !ok {
			return
		}
		consume(tx)
	}
}

// ManageBackpressure runs one tick of the hysteretic backpressure state
// machine. Intended to be called periodically from the cooperative main
// loop.
func (h *Harness) ManageBackpressure() { h.Backpr.ManageBackpressure(time.Now()) }

// ValidateWrite reports whether a write to addr with data has been
// observed.
func (h *Harness) ValidateWrite(addr uint16, data uint8) bool {
	return h.Backpr.ValidateWrite(addr, data)
}

// GetCapturedWrite returns the single-slot captured write. Only index 0 is
// accepted, in every mode; Buffered-mode ring records are not reachable
// through it.
func (h *Harness) GetCapturedWrite(index int) (addr uint16, data uint8, ok bool) {
	return h.Backpr.GetCapturedWrite(index)
}

// CapturedCount returns the number of writes currently observable.
func (h *Harness) CapturedCount() int { return h.Backpr.CapturedCount() }

// ResetISRState zeroes every counter and invalidates the program's base
// address.
func (h *Harness) ResetISRState() { h.Engine.ResetISRState() }

// Snapshot returns a consistent copy of every counter.
func (h *Harness) Snapshot() Snapshot { return h.Engine.Snapshot() }

// MeasureISRRate samples the combined ISR rate over d.
func (h *Harness) MeasureISRRate(d time.Duration) float64 { return h.Engine.MeasureISRRate(d) }
