package main

import (
	"sync"
	"testing"
	"time"
)

// TestCaptureRing_ConcurrentProducerConsumer stresses the SPSC discipline
// between a single producer (simulating the ISR) and a single consumer
// (the main loop). The test makes no functional assertions; the race
// detector is the oracle.
// Run with: go test -race -run TestCaptureRing_ConcurrentProducerConsumer
func TestCaptureRing_ConcurrentProducerConsumer(t *testing.T) {
	var r CaptureRing
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Go(func() {
		addr := uint16(0)
		for {
			select {
			case <-stop:
				return
			default:
			}
			r.Push(Transaction{Address: addr, Op: OpWrite})
			addr++
		}
	})

	wg.Go(func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			r.Pop()
		}
	})

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}
