// isr.go - Bus-Cycle Edge Engine (C3): the two edge handlers that complete
// a full Z80 memory cycle.
//
// A real microcontroller fires these as hardware interrupts; on a Linux
// GPIO host the closest equivalent is a dedicated goroutine blocked in
// gpio.PinIn.WaitForEdge, the same mechanism the pack's periph d2xx/MPSSE
// driver uses to turn a polled GPIO line into an edge-triggered wakeup.
// edgeMu serializes the two handler bodies against each other, standing in
// for "the hardware interrupt controller runs at most one handler at a
// time" (spec.md §5); it is held only for the duration of one handler
// invocation, never across a WaitForEdge call.
package main

import (
	"context"
	"sync"
	"time"
)

// edgeWaitTimeout bounds each WaitForEdge call so the watcher goroutines
// notice ctx cancellation promptly instead of blocking forever.
const edgeWaitTimeout = 50 * time.Millisecond

// BusCycleEngine is C3.
type BusCycleEngine struct {
	pins     *PinDriver
	program  *ProgramImage
	backpr   *BackpressureManager
	counters Counters

	edgeMu sync.Mutex

	wg sync.WaitGroup
}

// NewBusCycleEngine wires the engine to its three collaborators.
func NewBusCycleEngine(pins *PinDriver, program *ProgramImage, backpr *BackpressureManager) *BusCycleEngine {
	return &BusCycleEngine{pins: pins, program: program, backpr: backpr}
}

// Run starts the read- and write-edge watcher goroutines and blocks until
// ctx is cancelled, then waits for both to exit.
func (e *BusCycleEngine) Run(ctx context.Context, readStrobe, writeStrobe edgeWaiter) {
	e.wg.Add(2)
	go e.watch(ctx, readStrobe, e.onReadEdge)
	go e.watch(ctx, writeStrobe, e.onWriteEdge)
	<-ctx.Done()
	e.wg.Wait()
}

// edgeWaiter is the subset of gpio.PinIn the watcher loop needs.
type edgeWaiter interface {
	WaitForEdge(timeout time.Duration) bool
}

func (e *BusCycleEngine) watch(ctx context.Context, pin edgeWaiter, handler func()) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !pin.WaitForEdge(edgeWaitTimeout) {
			continue
		}
		e.edgeMu.Lock()
		handler()
		e.edgeMu.Unlock()
	}
}

// onReadEdge implements spec.md §4.3's read-edge handler, bullet for
// bullet.
func (e *BusCycleEngine) onReadEdge() {
	e.counters.TriggerCount.Add(1)

	if !e.pins.IsMemoryRequest() {
		return
	}
	if e.pins.IsRefreshCycle() {
		e.counters.RefreshRejects.Add(1)
		return
	}

	address := e.pins.ReadAddress()

	var data uint8
	if e.program.Loaded() {
		data = e.program.ByteAt(address)
	}

	e.pins.DriveData(data)

	if e.backpr.Mode() != ModeOff {
		e.backpr.recordRead(address)
	}

	e.counters.LastReadAddress.Store(uint32(address))
	e.counters.ReadISRCount.Add(1)
}

// onWriteEdge implements spec.md §4.3's write-edge handler.
func (e *BusCycleEngine) onWriteEdge() {
	if !e.pins.IsMemoryRequest() {
		return
	}
	if e.pins.IsRefreshCycle() {
		e.counters.RefreshRejects.Add(1)
		return
	}

	address := e.pins.ReadAddress()

	e.pins.ReleaseData()
	data := e.pins.ReadData()

	e.counters.updatePattern(data)
	e.counters.LastWriteAddress.Store(uint32(address))

	e.backpr.recordWrite(address, data)

	e.counters.WriteISRCount.Add(1)
}

// ResetISRState zeroes every counter and invalidates the program's base
// address, matching spec.md §6.
func (e *BusCycleEngine) ResetISRState() {
	e.counters.Reset()
	e.backpr.ring.overflow.Store(0)
	e.program.ResetISRState()
}

// Snapshot returns a consistent, point-in-time copy of every counter.
// Mirrors spec.md §5's "multi-field counter reads... must be performed
// with interrupts masked": edgeMu is taken so no handler runs mid-read.
func (e *BusCycleEngine) Snapshot() Snapshot {
	e.edgeMu.Lock()
	defer e.edgeMu.Unlock()
	base, valid := e.program.BaseAddress()
	return Snapshot{
		TriggerCount:     e.counters.TriggerCount.Load(),
		ReadISRCount:     e.counters.ReadISRCount.Load(),
		WriteISRCount:    e.counters.WriteISRCount.Load(),
		RefreshRejects:   e.counters.RefreshRejects.Load(),
		LastReadAddress:  uint16(e.counters.LastReadAddress.Load()),
		LastWriteAddress: uint16(e.counters.LastWriteAddress.Load()),
		PatternAA:        e.counters.PatternAA.Load(),
		Pattern55:        e.counters.Pattern55.Load(),
		BaseAddress:      base,
		BaseValid:        valid,
	}
}

// MeasureISRRate samples the combined read+write ISR counters over d and
// returns cycles per second. It is the raw measurement a performance
// self-test would build a pass/fail heuristic on top of; per spec.md §9
// that judgement is explicitly not the core's responsibility.
func (e *BusCycleEngine) MeasureISRRate(d time.Duration) float64 {
	start := e.Snapshot()
	time.Sleep(d)
	end := e.Snapshot()
	cycles := (end.ReadISRCount + end.WriteISRCount) - (start.ReadISRCount + start.WriteISRCount)
	return float64(cycles) / d.Seconds()
}
