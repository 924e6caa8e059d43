// config.go - command-line configuration for the harness binary, following
// the teacher's convention of plain stdlib `flag` rather than a
// third-party CLI framework (see cmd/ie32to64/main.go in the teacher).

package main

import (
	"flag"
	"fmt"
)

// PinNames names every GPIO pin the harness expects to find via
// periph.io's gpioreg registry (e.g. "GPIO17" on a Raspberry Pi).
type PinNames struct {
	Address [16]string
	Data    [8]string

	Clock string

	ReadStrobe  string
	WriteStrobe string
	MemRequest  string
	IORequest   string
	M1          string
	Refresh     string
	Halt        string
	BusAck      string

	Reset  string
	Wait   string
	Int    string
	NMI    string
	BusReq string
}

// HarnessConfig is everything the binary needs to assemble a Harness.
type HarnessConfig struct {
	Pins        PinNames
	FrequencyHz uint
	CacheSize   int
	Mode        CaptureMode
	ProgramPath string
	ProgramName string
}

func modeFromString(s string) (CaptureMode, error) {
	switch s {
	case "off", "":
		return ModeOff, nil
	case "buffered":
		return ModeBuffered, nil
	case "immediate":
		return ModeImmediate, nil
	default:
		return ModeOff, fmt.Errorf("config: unknown capture mode %q", s)
	}
}

// ParseFlags parses args (normally os.Args[1:]) into a HarnessConfig.
// Pin names default to a conventional Raspberry Pi-style layout. The clock
// and control pins can be overridden at the command line for a different
// board; the address lines are always GPIO30-GPIO45 and the data lines
// GPIO50-GPIO57, with no flag to change them.
func ParseFlags(args []string) (*HarnessConfig, error) {
	fs := flag.NewFlagSet("z80bench", flag.ContinueOnError)

	cfg := &HarnessConfig{CacheSize: 256}
	var modeStr string

	fs.UintVar(&cfg.FrequencyHz, "hz", 500_000, "Z80 clock frequency in Hz")
	fs.IntVar(&cfg.CacheSize, "cache", 256, "program cache size (128, 256, 512, 1024)")
	fs.StringVar(&modeStr, "mode", "off", "capture mode: off, buffered, immediate")
	fs.StringVar(&cfg.ProgramPath, "program", "", "path to a raw Z80 program image")
	fs.StringVar(&cfg.ProgramName, "catalogue", "", "name of a catalogue test program (see programs.go)")

	fs.StringVar(&cfg.Pins.Clock, "pin-clock", "GPIO18", "clock output pin")
	fs.StringVar(&cfg.Pins.ReadStrobe, "pin-rd", "GPIO2", "read strobe input pin")
	fs.StringVar(&cfg.Pins.WriteStrobe, "pin-wr", "GPIO3", "write strobe input pin")
	fs.StringVar(&cfg.Pins.MemRequest, "pin-mreq", "GPIO4", "MREQ input pin")
	fs.StringVar(&cfg.Pins.IORequest, "pin-iorq", "GPIO14", "IORQ input pin")
	fs.StringVar(&cfg.Pins.M1, "pin-m1", "GPIO15", "M1 input pin")
	fs.StringVar(&cfg.Pins.Refresh, "pin-rfsh", "GPIO17", "RFSH input pin")
	fs.StringVar(&cfg.Pins.Halt, "pin-halt", "GPIO27", "HALT input pin")
	fs.StringVar(&cfg.Pins.BusAck, "pin-busack", "GPIO22", "BUSACK input pin")
	fs.StringVar(&cfg.Pins.Reset, "pin-reset", "GPIO23", "RESET output pin")
	fs.StringVar(&cfg.Pins.Wait, "pin-wait", "GPIO24", "WAIT output pin")
	fs.StringVar(&cfg.Pins.Int, "pin-int", "GPIO10", "INT output pin")
	fs.StringVar(&cfg.Pins.NMI, "pin-nmi", "GPIO9", "NMI output pin")
	fs.StringVar(&cfg.Pins.BusReq, "pin-busreq", "GPIO11", "BUSREQ output pin")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	mode, err := modeFromString(modeStr)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	for i := range cfg.Pins.Address {
		cfg.Pins.Address[i] = fmt.Sprintf("GPIO%d", 30+i) // placeholder extended header range
	}
	for i := range cfg.Pins.Data {
		cfg.Pins.Data[i] = fmt.Sprintf("GPIO%d", 50+i)
	}

	return cfg, nil
}
