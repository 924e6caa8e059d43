package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

func TestCaptureRing_PushPopInvariant(t *testing.T) {
	var r CaptureRing
	pushes, pops := 0, 0
	for i := 0; i < 100; i++ {
		if i%3 != 2 {
			if dropped := r.Push(Transaction{Address: uint16(i)}); !dropped {
				pushes++
			}
		} else if _, ok := r.Pop(); ok {
			pops++
		}
		require.LessOrEqual(t, r.Level(), RingCapacity)
		require.Equal(t, pushes-pops, r.Level())
	}
}

func TestCaptureRing_OverflowDropsAndCounts(t *testing.T) {
	var r CaptureRing
	for i := 0; i < RingCapacity-1; i++ {
		require.False(t, r.Push(Transaction{Address: uint16(i)}))
	}
	require.True(t, r.Push(Transaction{Address: 0xFFFF}), "ring should report drop once full")
	require.Equal(t, uint64(1), r.OverflowCount())
}

func TestCaptureRing_OrderPreserved(t *testing.T) {
	var r CaptureRing
	want := []uint16{0x8000, 0x8001, 0x8002}
	for _, a := range want {
		require.False(t, r.Push(Transaction{Address: a, Op: OpWrite}))
	}
	for _, a := range want {
		tx, ok := r.Pop()
		require.True(t, ok)
		require.Equal(t, a, tx.Address)
	}
	_, ok := r.Pop()
	require.False(t, ok)
}

func newTestBackpressure(t *testing.T) (*BackpressureManager, *BusPins) {
	t.Helper()
	pins := newFakeBusPins()
	driver, err := NewPinDriver(pins)
	require.NoError(t, err)
	clock := NewClockGenerator(pins.Clock.(*fakePin))
	require.NoError(t, clock.Init(2_000_000))
	b := NewBackpressureManager(driver, clock)
	b.SetTargetFrequency(2_000_000)
	return b, pins
}

func TestBackpressure_HighWaterAssertsWaitWithinOnePush(t *testing.T) {
	b, pins := newTestBackpressure(t)
	b.SetMode(ModeBuffered)

	for i := 0; i < HighWater-1; i++ {
		b.pushAndMaybeAssert(Transaction{Address: uint16(i), Op: OpWrite})
	}
	require.Equal(t, gpio.High, pins.Wait.(*fakePin).Read(), "WAIT pin must still be idle-high")
	require.False(t, b.waitAsserted.Load(), "WAIT must not assert below HighWater")

	b.pushAndMaybeAssert(Transaction{Address: 0x9000, Op: OpWrite})
	require.True(t, b.waitAsserted.Load(), "WAIT must assert exactly at HighWater")
}

func TestBackpressure_LowWaterReleasesWaitWithinOnePop(t *testing.T) {
	b, _ := newTestBackpressure(t)
	b.SetMode(ModeBuffered)
	for i := 0; i < HighWater; i++ {
		b.pushAndMaybeAssert(Transaction{Address: uint16(i), Op: OpWrite})
	}
	require.True(t, b.waitAsserted.Load())

	for b.Level() > LowWater+1 {
		_, _ = b.ReadOne()
	}
	require.True(t, b.waitAsserted.Load(), "WAIT must remain asserted above LowWater")

	_, _ = b.ReadOne()
	require.Equal(t, LowWater, b.Level())
	require.False(t, b.waitAsserted.Load(), "WAIT must release exactly at LowWater")
}

func TestBackpressure_MidZoneNoToggle(t *testing.T) {
	b, _ := newTestBackpressure(t)
	b.SetMode(ModeBuffered)
	for i := 0; i < LowWater+1; i++ {
		b.pushAndMaybeAssert(Transaction{Address: uint16(i), Op: OpWrite})
	}
	require.False(t, b.waitAsserted.Load())
	b.ManageBackpressure(time.Now())
	require.False(t, b.waitAsserted.Load(), "MID zone must not assert WAIT")
}

func TestBackpressure_SustainedHighThrottles(t *testing.T) {
	b, _ := newTestBackpressure(t)
	b.SetMode(ModeBuffered)
	for i := 0; i < HighWater; i++ {
		b.pushAndMaybeAssert(Transaction{Address: uint16(i), Op: OpWrite})
	}
	now := time.Now()
	b.ManageBackpressure(now)
	require.False(t, b.Throttled(), "must not throttle before SustainedWait elapses")

	later := now.Add(SustainedWait + time.Millisecond)
	b.ManageBackpressure(later)
	require.True(t, b.Throttled())
	require.LessOrEqual(t, b.CurrentHz(), uint32(2_000_000/ThrottleFactor))
	require.GreaterOrEqual(t, b.CurrentHz(), uint32(MinHz))
}

func TestBackpressure_RestoresAfterSustainedLow(t *testing.T) {
	b, _ := newTestBackpressure(t)
	b.SetMode(ModeBuffered)
	b.throttled = true
	b.currentHz = MinHz
	b.targetHz = 2_000_000

	now := time.Now()
	b.ManageBackpressure(now) // enters LOW, starts lowStart
	require.True(t, b.Throttled())

	later := now.Add(SustainedWait + time.Millisecond)
	b.ManageBackpressure(later)
	require.False(t, b.Throttled())
	require.Equal(t, uint32(2_000_000), b.CurrentHz())
}

func TestBackpressure_ValidateWrite_OffModeConsumesOnMatch(t *testing.T) {
	b, _ := newTestBackpressure(t)
	b.SetMode(ModeOff)
	b.recordWrite(0x8000, 0x42)

	require.False(t, b.ValidateWrite(0x8000, 0x43), "mismatch must not consume the slot")
	require.True(t, b.ValidateWrite(0x8000, 0x42))
	require.False(t, b.ValidateWrite(0x8000, 0x42), "slot must be consumed after a matching validate")
}

func TestBackpressure_ValidateWrite_BufferedDoesNotConsume(t *testing.T) {
	b, _ := newTestBackpressure(t)
	b.SetMode(ModeBuffered)
	b.recordWrite(0x8000, 0x42)
	require.True(t, b.ValidateWrite(0x8000, 0x42))
	require.True(t, b.ValidateWrite(0x8000, 0x42), "buffered validate must not advance tail")
	require.Equal(t, 1, b.CapturedCount())
}

func TestBackpressure_SetModeIdempotent(t *testing.T) {
	b, _ := newTestBackpressure(t)
	for _, m := range []CaptureMode{ModeOff, ModeBuffered, ModeImmediate} {
		b.SetMode(m)
		before := b.waitAsserted.Load()
		b.SetMode(m)
		require.Equal(t, before, b.waitAsserted.Load())
	}
}

func TestBackpressure_ImmediateModePreAssertsWait(t *testing.T) {
	b, _ := newTestBackpressure(t)
	b.SetMode(ModeImmediate)
	require.True(t, b.waitAsserted.Load())
}
