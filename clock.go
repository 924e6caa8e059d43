// clock.go - Clock Generator (C2): a programmable 50%-duty square wave on
// the Z80's clock pin.
//
// spec.md §4.2 describes choosing a hardware timer prescaler/top pair; on a
// Linux GPIO host there is no such register to program (spec.md §9 notes
// the timer register layout is platform-specific and should be confined
// behind the C2 interface). The portable contract — frequency range,
// preserved running state across SetFrequency, one-shot single_step — is
// implemented here with a dedicated, OS-thread-pinned toggling goroutine,
// the same technique the pack's bitbang I2C driver uses to hold a half-cycle
// duration steady without a hardware PWM peripheral.
package main

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

const (
	// FreqMin and FreqMax bound the frequencies the clock generator will
	// accept, per spec.md §3.
	FreqMin = 100_000
	FreqMax = 3_000_000
)

// ErrFrequencyOutOfRange is returned by Init/SetFrequency when hz falls
// outside [FreqMin, FreqMax].
var ErrFrequencyOutOfRange = errors.New("clock: frequency out of range")

// ErrClockRunning is returned by SingleStep when the clock is connected.
var ErrClockRunning = errors.New("clock: must be stopped before single-stepping")

// ClockGenerator is C2.
type ClockGenerator struct {
	pin gpio.PinOut

	mu        sync.Mutex
	targetHz  uint32
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	halfCycle time.Duration
}

// NewClockGenerator returns a ClockGenerator driving pin, not yet started.
func NewClockGenerator(pin gpio.PinOut) *ClockGenerator {
	return &ClockGenerator{pin: pin}
}

// Init validates hz, records it as the target frequency, and starts the
// clock running (connected to the pin). Fails without side effects when hz
// is out of range.
func (c *ClockGenerator) Init(hz uint32) error {
	if hz < FreqMin || hz > FreqMax {
		return fmt.Errorf("%w: %d", ErrFrequencyOutOfRange, hz)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetHz = hz
	c.halfCycle = (physic.Frequency(hz) * physic.Hertz).Period() / 2
	return c.startLocked()
}

// Start (re)connects the timer output to the pin. Idempotent.
func (c *ClockGenerator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked()
}

func (c *ClockGenerator) startLocked() error {
	if c.running {
		return nil
	}
	if c.targetHz == 0 {
		return fmt.Errorf("clock: Start called before Init")
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stopCh = stop
	c.doneCh = done
	half := c.halfCycle
	pin := c.pin
	go runSquareWave(pin, half, stop, done)
	c.running = true
	return nil
}

// Stop disconnects the timer output and drives the pin low, so the Z80
// sees a defined idle level. The internal state is preserved so Start
// resumes at the same frequency.
func (c *ClockGenerator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *ClockGenerator) stopLocked() error {
	if !c.running {
		return nil
	}
	close(c.stopCh)
	<-c.doneCh
	c.running = false
	return c.pin.Out(gpio.Low)
}

// SetFrequency recomputes the half-cycle duration and reapplies it,
// preserving whether the clock was running or stopped. A no-op if hz
// already equals the current target.
func (c *ClockGenerator) SetFrequency(hz uint32) error {
	if hz < FreqMin || hz > FreqMax {
		return fmt.Errorf("%w: %d", ErrFrequencyOutOfRange, hz)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if hz == c.targetHz {
		return nil
	}
	wasRunning := c.running
	if wasRunning {
		if err := c.stopLocked(); err != nil {
			return err
		}
	}
	c.targetHz = hz
	c.halfCycle = (physic.Frequency(hz) * physic.Hertz).Period() / 2
	if wasRunning {
		return c.startLocked()
	}
	return nil
}

// SingleStep manually emits one low->high->low transition. Only valid
// while stopped.
func (c *ClockGenerator) SingleStep() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrClockRunning
	}
	if err := c.pin.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(c.halfCycle)
	if err := c.pin.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(c.halfCycle)
	return c.pin.Out(gpio.Low)
}

// Frequency returns the currently configured target frequency.
func (c *ClockGenerator) Frequency() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetHz
}

// IsRunning reports whether the clock output is connected to the pin.
func (c *ClockGenerator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// runSquareWave toggles pin every half-cycle until stop is closed, then
// signals done. Pinning the OS thread keeps the scheduler from inserting
// GC-sized jitter into the half-cycle sleep, the same precaution the
// pack's bitbang transport takes around its timed toggle loop.
func runSquareWave(pin gpio.PinOut, half time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)
	level := gpio.Low
	for {
		select {
		case <-stop:
			return
		default:
		}
		_ = pin.Out(level)
		if level == gpio.Low {
			level = gpio.High
		} else {
			level = gpio.Low
		}
		time.Sleep(half)
	}
}
