//go:build amd64 || arm64 || 386 || arm || riscv64 || loong64 || mipsle || mips64le || ppc64le || wasm

// le_check.go - z80bench composes the 16-bit address bus and 8-bit data bus
// from individually-numbered GPIO pins and assumes the host's own integer
// byte order never leaks into that composition. This file compiles on known
// LE targets; be_unsupported.go fails the build on anything else.

package main
