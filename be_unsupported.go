//go:build !(amd64 || arm64 || 386 || arm || riscv64 || loong64 || mipsle || mips64le || ppc64le || wasm)

package main

// z80bench has only been validated on little-endian hosts.
var _ = "z80bench requires a little-endian architecture" + 1
