// main.go - entry point for the z80bench harness binary.
//
// This wires GPIO pins to a Harness and runs the bus-cycle engine until
// interrupted. The interactive menu, human-readable status printing, and
// the performance benchmark workflow are explicitly out of scope
// (spec.md §1): this binary is the minimal driver a menu or benchmark
// process would sit on top of.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

func resolvePin(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("main: no such GPIO pin %q", name)
	}
	return p, nil
}

func buildBusPins(names PinNames) (*BusPins, error) {
	pins := &BusPins{}
	var err error

	assign := func(dst *gpio.PinIO, name string) {
		if err != nil {
			return
		}
		*dst, err = resolvePin(name)
	}

	for i, n := range names.Address {
		var p gpio.PinIO
		assign(&p, n)
		pins.Address[i] = p
	}
	for i, n := range names.Data {
		var p gpio.PinIO
		assign(&p, n)
		pins.Data[i] = p
	}

	var p gpio.PinIO
	assign(&p, names.Clock)
	pins.Clock = p

	assign(&p, names.ReadStrobe)
	pins.ReadStrobe = p
	assign(&p, names.WriteStrobe)
	pins.WriteStrobe = p
	assign(&p, names.MemRequest)
	pins.MemRequest = p
	assign(&p, names.IORequest)
	pins.IORequest = p
	assign(&p, names.M1)
	pins.M1 = p
	assign(&p, names.Refresh)
	pins.Refresh = p
	assign(&p, names.Halt)
	pins.Halt = p
	assign(&p, names.BusAck)
	pins.BusAck = p
	assign(&p, names.Reset)
	pins.Reset = p
	assign(&p, names.Wait)
	pins.Wait = p
	assign(&p, names.Int)
	pins.Int = p
	assign(&p, names.NMI)
	pins.NMI = p
	assign(&p, names.BusReq)
	pins.BusReq = p

	if err != nil {
		return nil, err
	}
	return pins, nil
}

func loadStartupProgram(h *Harness, cfg *HarnessConfig) error {
	switch {
	case cfg.ProgramName != "":
		prog, ok := FindTestProgram(cfg.ProgramName)
		if !ok {
			return fmt.Errorf("main: unknown catalogue program %q", cfg.ProgramName)
		}
		return h.LoadProgramToCache(prog.Bytes)
	case cfg.ProgramPath != "":
		data, err := os.ReadFile(cfg.ProgramPath)
		if err != nil {
			return fmt.Errorf("main: reading program image: %w", err)
		}
		return h.LoadProgramToCache(data)
	default:
		return nil
	}
}

func run(cfg *HarnessConfig) error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("main: periph host init: %w", err)
	}

	busPins, err := buildBusPins(cfg.Pins)
	if err != nil {
		return err
	}

	h, err := NewHarness(busPins)
	if err != nil {
		return err
	}
	if err := h.SetCacheSize(cfg.CacheSize); err != nil {
		return err
	}
	if err := loadStartupProgram(h, cfg); err != nil {
		return err
	}
	h.SetMode(cfg.Mode)
	if err := h.InitClock(uint32(cfg.FrequencyHz)); err != nil {
		return err
	}

	slog.Info("harness starting",
		"frequency_hz", cfg.FrequencyHz,
		"mode", cfg.Mode,
		"cache_size", cfg.CacheSize,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	h.Run(ctx)
	return nil
}

func main() {
	cfg, err := ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		slog.Error("harness exited", "error", err)
		os.Exit(1)
	}
}
