// program.go - ProgramImage: the only "memory" the Z80 sees. A read-only
// byte sequence plus an optional fast-storage cache, loaded under ISR mask
// so the read-edge handler never observes a torn update.

package main

import (
	"errors"
	"fmt"
	"sync"
)

// MaxCache is the largest cache capacity ProgramImage will accept.
const MaxCache = 1024

// ErrCacheSizeUnsupported is returned by SetCacheSize for any value not in
// {128, 256, 512, 1024}.
var ErrCacheSizeUnsupported = errors.New("program: unsupported cache size")

// ErrEmptyProgram is returned when a program load is given a zero-length
// or nil byte sequence.
var ErrEmptyProgram = errors.New("program: empty program image")

var validCacheSizes = map[int]bool{128: true, 256: true, 512: true, 1024: true}

// ProgramImage holds the Z80 program image and its fast-storage mirror.
// Every mutating method masks the ISR (via mu, which the read-edge handler
// also takes through ByteAt) and applies the deactivate -> rewrite -> resize -> activate
// ordering spec.md §3 requires.
type ProgramImage struct {
	mu sync.RWMutex

	bytes  []byte
	length uint16

	cache         [MaxCache]byte
	cacheLen      uint16
	cacheActive   bool
	cacheCap      int
	cacheFellBack bool

	baseAddr  uint16
	baseValid bool
	loaded    bool
}

// NewProgramImage returns an unloaded image with the default 256-byte
// cache capacity.
func NewProgramImage() *ProgramImage {
	return &ProgramImage{cacheCap: 256}
}

// SetCacheSize changes the cache capacity. Fails for any size outside
// {128, 256, 512, 1024}; on success the existing cache is deactivated
// until the next load.
func (p *ProgramImage) SetCacheSize(size int) error {
	if !validCacheSizes[size] {
		return fmt.Errorf("%w: %d", ErrCacheSizeUnsupported, size)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cacheActive = false
	p.cacheLen = 0
	p.cacheCap = size
	return nil
}

// SetProgram loads bytes as the program image with no cache. The ISR read
// path falls back to the direct (slower) byte-slice lookup for every
// offset.
func (p *ProgramImage) SetProgram(bytes []byte) error {
	if len(bytes) == 0 {
		return ErrEmptyProgram
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cacheActive = false
	p.cacheLen = 0
	p.bytes = append([]byte(nil), bytes...)
	p.length = uint16(len(bytes))
	p.loaded = true
	p.baseValid = false
	return nil
}

// LoadProgramToCache loads bytes as the program image and mirrors as much
// of it as fits into the cache. If bytes is larger than the cache
// capacity, the cache holds only the first cacheCap bytes and reads past
// that fall back to the direct byte-slice path (cacheFellBack records
// this for diagnostics); the program is never rejected for being
// oversized, matching spec.md §6's "with fallback when oversized".
func (p *ProgramImage) LoadProgramToCache(bytes []byte) error {
	if len(bytes) == 0 {
		return ErrEmptyProgram
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	// deactivate -> rewrite -> set length -> activate, so a concurrent
	// ISR invocation never observes a cache whose length exceeds its
	// freshly-written contents.
	p.cacheActive = false

	p.bytes = append([]byte(nil), bytes...)
	p.length = uint16(len(bytes))

	n := len(bytes)
	p.cacheFellBack = n > p.cacheCap
	if n > p.cacheCap {
		n = p.cacheCap
	}
	copy(p.cache[:n], bytes[:n])
	p.cacheLen = uint16(n)

	p.cacheActive = true
	p.loaded = true
	p.baseValid = false
	return nil
}

// Loaded reports whether the ISR is permitted to serve bytes.
func (p *ProgramImage) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// ByteAt implements the read path of spec.md §4.3 step 4: lazily latch the
// base address on first fetch, then resolve offset against the cache, the
// direct byte slice, or the harmless 0x00 filler, in that order.
func (p *ProgramImage) ByteAt(address uint16) uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		return 0x00
	}
	if !p.baseValid {
		p.baseAddr = address
		p.baseValid = true
	}
	offset := address - p.baseAddr // wrapping subtraction, 16-bit
	if p.cacheActive && offset < p.cacheLen {
		return p.cache[offset]
	}
	if offset < p.length {
		return p.bytes[offset]
	}
	return 0x00
}

// BaseAddress returns the latched base address and whether it has been
// observed yet.
func (p *ProgramImage) BaseAddress() (addr uint16, valid bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.baseAddr, p.baseValid
}

// ResetISRState invalidates the base-address latch without discarding the
// loaded program, matching the ResetISRState contract in spec.md §6.
func (p *ProgramImage) ResetISRState() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseValid = false
	p.baseAddr = 0
}

// CacheFellBack reports whether the most recent LoadProgramToCache call
// had to truncate the cache mirror because the program exceeded its
// capacity.
func (p *ProgramImage) CacheFellBack() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cacheFellBack
}
