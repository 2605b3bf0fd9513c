package engine

import "fmt"

const offsetMask = 0xffffffff

// memory is a set of byte allocations addressed by id<<32 | offset.
type memory struct {
	allocs map[uint32][]byte
	next   uint32
}

func newMemory() *memory {
	return &memory{allocs: make(map[uint32][]byte), next: 1}
}

func (m *memory) alloc(n int) (Ptr, error) {
	if m.next == 0 {
		return 0, fmt.Errorf("out of allocation ids")
	}
	if n < 0 || n > offsetMask {
		return 0, fmt.Errorf("invalid allocation size %d", n)
	}
	id := m.next
	m.next++
	m.allocs[id] = make([]byte, n)
	return Ptr(uint64(id) << 32), nil
}

// realloc resizes the allocation at p, keeping its contents. A null p
// allocates.
func (m *memory) realloc(p Ptr, n int) (Ptr, error) {
	if p == 0 {
		return m.alloc(n)
	}
	id, off := uint32(uint64(p)>>32), uint64(p)&offsetMask
	buf, ok := m.allocs[id]
	if !ok || off != 0 {
		return 0, fmt.Errorf("realloc of invalid pointer %s", p)
	}
	if n < 0 || n > offsetMask {
		return 0, fmt.Errorf("invalid allocation size %d", n)
	}
	grown := make([]byte, n)
	copy(grown, buf)
	m.allocs[id] = grown
	return p, nil
}

func (m *memory) free(p Ptr) error {
	if p == 0 {
		return nil
	}
	id := uint32(uint64(p) >> 32)
	if _, ok := m.allocs[id]; !ok || uint64(p)&offsetMask != 0 {
		return fmt.Errorf("free of invalid pointer %s", p)
	}
	delete(m.allocs, id)
	return nil
}

// slice returns the n bytes at p, checking bounds.
func (m *memory) slice(p Ptr, n int) ([]byte, error) {
	if p == 0 {
		return nil, fmt.Errorf("null pointer access")
	}
	id, off := uint32(uint64(p)>>32), uint64(p)&offsetMask
	buf, ok := m.allocs[id]
	if !ok {
		return nil, fmt.Errorf("access to freed or invalid pointer %s", p)
	}
	if off+uint64(n) > uint64(len(buf)) {
		return nil, fmt.Errorf("out of bounds access of %d bytes at %s (allocation holds %d)", n, p, len(buf))
	}
	return buf[off : off+uint64(n)], nil
}
