// programs.go - curated catalogue of small Z80 machine-code test programs.
//
// Supplemented from _examples/original_source's isr_test_programs.{h,cpp}:
// the distilled spec.md treats this catalogue as belonging to the
// out-of-scope interactive menu, but the byte sequences are exactly the
// scenarios spec.md §8 exercises end-to-end, so the data itself lives in
// the core where the ISR engine's own tests can load it directly. Nothing
// here interprets the bytes; the Z80 does.

package main

// TestProgram names one catalogue entry.
type TestProgram struct {
	Name  string
	Bytes []byte
}

// TestPrograms mirrors the original firmware's menu catalogue, covering
// the end-to-end scenarios in spec.md §8.
var TestPrograms = []TestProgram{
	{
		// Scenario 1: single-byte HALT.
		Name:  "halt-only",
		Bytes: []byte{0x76},
	},
	{
		// Scenario 2: LD A,0x42 ; LD (0x8000),A ; HALT.
		Name:  "single-write",
		Bytes: []byte{0x3E, 0x42, 0x32, 0x00, 0x80, 0x76},
	},
	{
		// Scenario 3: three sequential stores then HALT.
		Name: "multi-write",
		Bytes: []byte{
			0x3E, 0x11, 0x32, 0x00, 0x80, // LD A,0x11 ; LD (0x8000),A
			0x3E, 0x22, 0x32, 0x01, 0x80, // LD A,0x22 ; LD (0x8001),A
			0x3E, 0x33, 0x32, 0x02, 0x80, // LD A,0x33 ; LD (0x8002),A
			0x76, // HALT
		},
	},
	{
		// Scenario 4: infinite loop alternating 0xAA/0x55 into 0x8000.
		Name: "alternating-pattern",
		Bytes: []byte{
			0x3E, 0xAA, 0x32, 0x00, 0x80, // loop: LD A,0xAA ; LD (0x8000),A
			0x3E, 0x55, 0x32, 0x00, 0x80, //       LD A,0x55 ; LD (0x8000),A
			0xC3, 0x00, 0x00, // JP 0x0000
		},
	},
}

// FindTestProgram returns the catalogue entry with the given name, or
// ok=false if none matches.
func FindTestProgram(name string) (TestProgram, bool) {
	for _, p := range TestPrograms {
		if p.Name == name {
			return p, true
		}
	}
	return TestProgram{}, false
}
