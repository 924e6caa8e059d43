// capture.go - Capture Pipeline & Backpressure Manager (C4): a bounded SPSC
// ring of bus transactions plus the two-stage WAIT/throttle backpressure
// scheme that keeps the consumer from losing data.
//
// The ring's head/tail publication follows the same lock-free discipline as
// the pack's agilira-lethe MPSC ring (atomic.Uint64 indices, power-of-two
// mask), simplified from multi-producer-with-CAS down to the single-
// producer case spec.md §3 actually describes: only the ISR ever advances
// head, only the main loop ever advances tail, so no compare-and-swap is
// needed at all.

package main

import (
	"sync/atomic"
	"time"
)

// RingCapacity is N in spec.md's tuned constants: a power of two.
const RingCapacity = 16

const (
	HighWater      = 12
	LowWater       = 4
	SustainedWait  = 10 * time.Millisecond
	ThrottleFactor = 2
	MinHz          = 100_000
)

// Op distinguishes a Read transaction from a Write transaction.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
)

// Transaction is an immutable record of one bus cycle.
type Transaction struct {
	Address   uint16
	Data      uint8
	Op        Op
	Timestamp uint32
}

// CaptureRing is the SPSC ring of spec.md §3/§4.4.
type CaptureRing struct {
	buf      [RingCapacity]Transaction
	head     atomic.Uint64 // producer (ISR) index, monotonically increasing
	tail     atomic.Uint64 // consumer (main loop) index, monotonically increasing
	overflow atomic.Uint64
}

const ringMask = RingCapacity - 1

// Level returns the current occupancy: 0..RingCapacity.
func (r *CaptureRing) Level() int {
	return int(r.head.Load() - r.tail.Load())
}

// Push is called only from an edge handler. It stores tx and publishes the
// new head, unless the ring is already at capacity-1 (the "full" slot is
// never used, per the classic head/tail ring rule), in which case the
// record is dropped and the overflow counter incremented.
func (r *CaptureRing) Push(tx Transaction) (dropped bool) {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= RingCapacity-1 {
		r.overflow.Add(1)
		return true
	}
	r.buf[head&ringMask] = tx
	r.head.Store(head + 1)
	return false
}

// Pop is called only from the main loop. It returns the oldest
// transaction and advances tail, or ok=false if the ring is empty.
func (r *CaptureRing) Pop() (tx Transaction, ok bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail == head {
		return Transaction{}, false
	}
	tx = r.buf[tail&ringMask]
	r.tail.Store(tail + 1)
	return tx, true
}

// Peek scans the live, unconsumed portion of the ring without advancing
// tail, used by ValidateWrite in Buffered mode.
func (r *CaptureRing) Peek(f func(Transaction) bool) bool {
	tail := r.tail.Load()
	head := r.head.Load()
	for i := tail; i != head; i++ {
		if f(r.buf[i&ringMask]) {
			return true
		}
	}
	return false
}

// Clear drops all unconsumed records without counting them as overflow.
func (r *CaptureRing) Clear() {
	r.tail.Store(r.head.Load())
}

// OverflowCount returns the number of records dropped for lack of room.
func (r *CaptureRing) OverflowCount() uint64 { return r.overflow.Load() }

// CaptureMode selects how writes (and, implicitly, whether reads) are
// recorded. Represented as a plain integer so the ISR's per-cycle check is
// a comparison, never an indirect call, per spec.md §9.
type CaptureMode int32

const (
	ModeOff CaptureMode = iota
	ModeBuffered
	ModeImmediate
)

// singleSlot is the Off/Immediate-mode single-capture record of spec.md §3.
type singleSlot struct {
	address uint16
	data    uint8
	ready   atomic.Bool
}

// zone names the backpressure state machine's three hysteresis bands.
type zone int

const (
	zoneLow zone = iota
	zoneMid
	zoneHigh
)

// BackpressureManager owns the ring, the single slot, and the hysteretic
// WAIT/throttle state machine of spec.md §4.4.
type BackpressureManager struct {
	ring  CaptureRing
	slot  singleSlot
	mode  atomic.Int32 // CaptureMode
	pins  *PinDriver
	clock *ClockGenerator

	waitAsserted atomic.Bool

	// Fields below are touched only by the cooperative main loop inside
	// ManageBackpressure / SetTargetFrequency, never from an edge handler.
	waitStart    time.Time
	waitStartSet bool
	lowStart     time.Time
	lowStartSet  bool
	throttled    bool
	targetHz     uint32
	currentHz    uint32
}

// NewBackpressureManager wires the manager to the pin driver (for WAIT)
// and clock generator (for throttling).
func NewBackpressureManager(pins *PinDriver, clock *ClockGenerator) *BackpressureManager {
	return &BackpressureManager{pins: pins, clock: clock}
}

// SetMode switches capture mode. Idempotent: setting the same mode twice
// is a no-op beyond the Immediate pre-assert, which is itself idempotent.
func (b *BackpressureManager) SetMode(m CaptureMode) {
	prev := CaptureMode(b.mode.Swap(int32(m)))
	if m == ModeImmediate {
		b.assertWait()
	}
	if prev == ModeImmediate && m != ModeImmediate {
		b.releaseWait()
	}
	if m != prev {
		b.ring.Clear()
		b.slot.ready.Store(false)
	}
}

// Mode returns the current capture mode.
func (b *BackpressureManager) Mode() CaptureMode { return CaptureMode(b.mode.Load()) }

// Level returns the ring's current occupancy.
func (b *BackpressureManager) Level() int { return b.ring.Level() }

// recordRead is called from the read-edge handler. Off and Immediate mode
// do not record reads, matching spec.md §4.4's "reads are not recorded"
// for Off mode and the single-slot write-only semantics of Immediate.
func (b *BackpressureManager) recordRead(address uint16) {
	if b.Mode() != ModeBuffered {
		return
	}
	b.pushAndMaybeAssert(Transaction{Address: address, Op: OpRead})
}

// recordWrite is called from the write-edge handler, per spec.md §4.3
// step 5.
func (b *BackpressureManager) recordWrite(address uint16, data uint8) {
	switch b.Mode() {
	case ModeBuffered:
		b.pushAndMaybeAssert(Transaction{Address: address, Data: data, Op: OpWrite})
	default: // Off, Immediate
		b.slot.address = address
		b.slot.data = data
		b.slot.ready.Store(true)
	}
}

func (b *BackpressureManager) pushAndMaybeAssert(tx Transaction) {
	b.ring.Push(tx)
	if b.ring.Level() >= HighWater && !b.waitAsserted.Load() {
		b.assertWait()
	}
}

func (b *BackpressureManager) assertWait() {
	if b.waitAsserted.CompareAndSwap(false, true) {
		_ = b.pins.AssertWait()
	}
}

func (b *BackpressureManager) releaseWait() {
	if b.waitAsserted.CompareAndSwap(true, false) {
		_ = b.pins.ReleaseWait()
	}
}

// ReadOne drains the oldest ring record for the cooperative consumer,
// releasing WAIT once occupancy drops to LowWater or below.
func (b *BackpressureManager) ReadOne() (Transaction, bool) {
	tx, ok := b.ring.Pop()
	if !ok {
		return Transaction{}, false
	}
	if b.ring.Level() <= LowWater && b.waitAsserted.Load() {
		b.releaseWait()
	}
	return tx, true
}

// Clear drops all unconsumed ring records and the single-slot record.
func (b *BackpressureManager) Clear() {
	b.ring.Clear()
	b.slot.ready.Store(false)
}

// ValidateWrite reports whether a Write transaction matching addr and
// data has been observed. In Off/Immediate mode it consumes the
// single-slot flag on a match (leaving it set on a mismatch, so a later
// correct check can still succeed); in Buffered mode it scans the live
// ring without advancing tail.
func (b *BackpressureManager) ValidateWrite(addr uint16, data uint8) bool {
	if b.Mode() == ModeBuffered {
		return b.ring.Peek(func(tx Transaction) bool {
			return tx.Op == OpWrite && tx.Address == addr && tx.Data == data
		})
	}
	if b.slot.ready.Load() && b.slot.address == addr && b.slot.data == data {
		b.slot.ready.Store(false)
		return true
	}
	return false
}

// GetCapturedWrite returns the single-slot record. index is accepted for
// interface symmetry with a buffered accessor, but only 0 is meaningful in
// any mode; ring records are never returned.
func (b *BackpressureManager) GetCapturedWrite(index int) (addr uint16, data uint8, ok bool) {
	if index != 0 || !b.slot.ready.Load() {
		return 0, 0, false
	}
	return b.slot.address, b.slot.data, true
}

// CapturedCount returns 0 or 1 in Off/Immediate mode (spec.md §9's
// documented "known wart": it cannot distinguish "no write" from "wrote
// 0x00 to address 0x0000"), or the live ring depth in Buffered mode.
func (b *BackpressureManager) CapturedCount() int {
	if b.Mode() == ModeBuffered {
		return b.ring.Level()
	}
	if b.slot.ready.Load() {
		return 1
	}
	return 0
}

// ManageBackpressure runs the hysteretic state machine of spec.md §4.4.
// Intended to be called periodically (e.g. once per main-loop iteration).
func (b *BackpressureManager) ManageBackpressure(now time.Time) {
	level := b.ring.Level()
	switch {
	case level >= HighWater:
		b.lowStartSet = false
		b.assertWait()
		if !b.waitStartSet {
			b.waitStart = now
			b.waitStartSet = true
		}
		if now.Sub(b.waitStart) > SustainedWait {
			if !b.throttled || b.currentHz > MinHz {
				b.throttle(now)
			}
		}
	case level <= LowWater:
		b.waitStartSet = false
		b.releaseWait()
		if !b.lowStartSet {
			b.lowStart = now
			b.lowStartSet = true
		}
		if b.throttled && now.Sub(b.lowStart) > SustainedWait {
			b.restore()
		}
	default:
		// MID zone: hysteresis dead-band, no change.
	}
}

func (b *BackpressureManager) throttle(now time.Time) {
	next := b.currentHz / ThrottleFactor
	if next < MinHz {
		next = MinHz
	}
	if err := b.clock.SetFrequency(next); err == nil {
		b.currentHz = next
	}
	b.throttled = true
	b.waitStartSet = false
}

func (b *BackpressureManager) restore() {
	if err := b.clock.SetFrequency(b.targetHz); err == nil {
		b.currentHz = b.targetHz
		b.throttled = false
	}
}

// SetTargetFrequency records the desired (un-throttled) frequency the
// backpressure manager should restore to once sustained LOW occupancy is
// observed. Called once at startup, after the clock is configured.
func (b *BackpressureManager) SetTargetFrequency(hz uint32) {
	b.targetHz = hz
	b.currentHz = hz
}

// Throttled reports whether the clock is currently running below its
// target frequency due to sustained backpressure.
func (b *BackpressureManager) Throttled() bool { return b.throttled }

// CurrentHz returns the effective (possibly throttled) frequency.
func (b *BackpressureManager) CurrentHz() uint32 { return b.currentHz }
