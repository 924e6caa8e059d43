// state.go - Counters and the shared core state owned jointly by the edge
// handlers and the cooperative main loop.
//
// Every field here is an atomic-capable integer (read freely from either
// side). The rare multi-field consistent-snapshot read spec.md §5 calls out
// ("reading read- and write-counters together... must be performed with
// interrupts masked") is guarded by BusCycleEngine.edgeMu in isr.go: Go has
// no interrupt mask, so Snapshot takes edgeMu, and each edge handler holds
// it for the whole of one invocation.

package main

import "sync/atomic"

// Counters holds every piece of diagnostic state the ISR engine mutates.
type Counters struct {
	TriggerCount   atomic.Uint64
	ReadISRCount   atomic.Uint64
	WriteISRCount  atomic.Uint64
	RefreshRejects atomic.Uint64

	LastReadAddress  atomic.Uint32
	LastWriteAddress atomic.Uint32

	PatternAA atomic.Uint64
	Pattern55 atomic.Uint64
}

// Snapshot is a consistent, point-in-time copy of Counters.
type Snapshot struct {
	TriggerCount     uint64
	ReadISRCount     uint64
	WriteISRCount    uint64
	RefreshRejects   uint64
	LastReadAddress  uint16
	LastWriteAddress uint16
	PatternAA        uint64
	Pattern55        uint64
	BaseAddress      uint16
	BaseValid        bool
}

// Reset zeroes every counter. Called by ResetISRState; does not touch the
// program image's base-address latch, which the caller resets separately.
func (c *Counters) Reset() {
	c.TriggerCount.Store(0)
	c.ReadISRCount.Store(0)
	c.WriteISRCount.Store(0)
	c.RefreshRejects.Store(0)
	c.LastReadAddress.Store(0)
	c.LastWriteAddress.Store(0)
	c.PatternAA.Store(0)
	c.Pattern55.Store(0)
}

// updatePattern increments the 0xAA/0x55 diagnostic counters used by the
// alternating-pattern test programs (spec.md §8 scenario 4).
func (c *Counters) updatePattern(data uint8) {
	switch data {
	case 0xAA:
		c.PatternAA.Add(1)
	case 0x55:
		c.Pattern55.Add(1)
	}
}
