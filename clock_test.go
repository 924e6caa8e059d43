package main

import (
	"testing"
	"time"
)

func TestClockGenerator_InitRange(t *testing.T) {
	tests := []struct {
		name    string
		hz      uint32
		wantErr bool
	}{
		{"min_ok", FreqMin, false},
		{"max_ok", FreqMax, false},
		{"below_min", FreqMin - 1, true},
		{"above_max", FreqMax + 1, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pin := newFakePin("clk")
			c := NewClockGenerator(pin)
			err := c.Init(tc.hz)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Init(%d) = nil, want error", tc.hz)
				}
				if c.Frequency() != 0 {
					t.Fatalf("failed Init left targetHz = %d, want 0 (no side effects)", c.Frequency())
				}
				return
			}
			if err != nil {
				t.Fatalf("Init(%d) = %v, want nil", tc.hz, err)
			}
			if got := c.Frequency(); got != tc.hz {
				t.Fatalf("Frequency() = %d, want %d", got, tc.hz)
			}
			if !c.IsRunning() {
				t.Fatalf("expected clock running after Init")
			}
			c.Stop()
		})
	}
}

func TestClockGenerator_SetFrequencyPreservesRunState(t *testing.T) {
	pin := newFakePin("clk")
	c := NewClockGenerator(pin)
	if err := c.Init(200_000); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()

	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFrequency(300_000); err != nil {
		t.Fatal(err)
	}
	if c.IsRunning() {
		t.Fatalf("SetFrequency while stopped should remain stopped")
	}
	if c.Frequency() != 300_000 {
		t.Fatalf("Frequency() = %d, want 300000", c.Frequency())
	}

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFrequency(400_000); err != nil {
		t.Fatal(err)
	}
	if !c.IsRunning() {
		t.Fatalf("SetFrequency while running should remain running")
	}
}

func TestClockGenerator_SetFrequencyIdempotent(t *testing.T) {
	pin := newFakePin("clk")
	c := NewClockGenerator(pin)
	if err := c.Init(500_000); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()
	before := c.IsRunning()
	if err := c.SetFrequency(500_000); err != nil {
		t.Fatal(err)
	}
	if c.IsRunning() != before {
		t.Fatalf("no-op SetFrequency changed running state")
	}
}

func TestClockGenerator_SingleStepRequiresStopped(t *testing.T) {
	pin := newFakePin("clk")
	c := NewClockGenerator(pin)
	if err := c.Init(FreqMin); err != nil {
		t.Fatal(err)
	}
	defer c.Stop()
	if err := c.SingleStep(); err != ErrClockRunning {
		t.Fatalf("SingleStep while running = %v, want ErrClockRunning", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := c.SingleStep(); err != nil {
		t.Fatalf("SingleStep while stopped = %v, want nil", err)
	}
}

func TestClockGenerator_StopDrivesPinLow(t *testing.T) {
	fp := newFakePin("clk")
	c := NewClockGenerator(fp)
	if err := c.Init(FreqMin); err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if fp.Read() != false { // gpio.Low
		t.Fatalf("expected pin low after Stop")
	}
}
