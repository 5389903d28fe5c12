package gridbasic

import (
	"sync/atomic"
)

// Default region sizes. Hosts that want other dimensions construct the
// regions explicitly.
const (
	DefaultSpaceSize  = 4096
	DefaultGridWidth  = 64
	DefaultGridHeight = 64
)

// Space is the unified memory region: a randomly indexed array over the full
// region, and a stack growing downward from the top address. Every address
// is taken modulo the region size, so no access is ever out of range and no
// overflow or underflow error class exists. This mirrors the language's
// heritage and is deliberate, not an oversight.
//
// Space is not safe for unsynchronized sharing between workers; only the
// Grid's CompareAndSwap is.
type Space struct {
	cells []int16
	sp    int // next pop position; 0 is one-past-the-top via wrap
}

// NewSpace allocates a region of the given size, all cells zero.
func NewSpace(size int) *Space {
	if size <= 0 {
		size = DefaultSpaceSize
	}
	return &Space{cells: make([]int16, size)}
}

// Size returns the region size in cells.
func (s *Space) Size() int { return len(s.cells) }

func (s *Space) wrap(index int) int {
	m := index % len(s.cells)
	if m < 0 {
		m += len(s.cells)
	}
	return m
}

// ReadArray reads the cell at index modulo the region size.
func (s *Space) ReadArray(index int) int16 {
	return s.cells[s.wrap(index)]
}

// WriteArray writes the cell at index modulo the region size.
func (s *Space) WriteArray(index int, value int16) {
	s.cells[s.wrap(index)] = value
}

// Push stores value below the current stack pointer. The pointer starts at
// the top address and moves downward; pushing past the bottom simply wraps.
func (s *Space) Push(value int16) {
	s.sp = s.wrap(s.sp - 1)
	s.cells[s.sp] = value
}

// Pop returns the most recently pushed value and moves the pointer upward.
// Popping an empty stack reads whatever cell the wrap rule lands on.
func (s *Space) Pop() int16 {
	v := s.cells[s.wrap(s.sp)]
	s.sp = s.wrap(s.sp + 1)
	return v
}

// Reset zeroes every cell and returns the stack pointer to the top.
func (s *Space) Reset() {
	for i := range s.cells {
		s.cells[i] = 0
	}
	s.sp = 0
}

// Grid is the shared 2-D region. Cells are int16 values held in int32 slots
// so CompareAndSwap can ride on a hardware atomic; that makes the grid the
// one structure safe for unsynchronized concurrent mutation across workers.
// Coordinates wrap modulo the grid dimensions like every other address.
type Grid struct {
	w, h  int
	cells []int32
}

// NewGrid allocates a w by h grid, all cells zero.
func NewGrid(w, h int) *Grid {
	if w <= 0 {
		w = DefaultGridWidth
	}
	if h <= 0 {
		h = DefaultGridHeight
	}
	return &Grid{w: w, h: h, cells: make([]int32, w*h)}
}

// Width returns the grid width in cells.
func (g *Grid) Width() int { return g.w }

// Height returns the grid height in cells.
func (g *Grid) Height() int { return g.h }

func (g *Grid) slot(x, y int) *int32 {
	mx := x % g.w
	if mx < 0 {
		mx += g.w
	}
	my := y % g.h
	if my < 0 {
		my += g.h
	}
	return &g.cells[my*g.w+mx]
}

// Read returns the cell at the wrapped coordinates.
func (g *Grid) Read(x, y int) int16 {
	return int16(atomic.LoadInt32(g.slot(x, y)))
}

// Write stores value at the wrapped coordinates.
func (g *Grid) Write(x, y int, value int16) {
	atomic.StoreInt32(g.slot(x, y), int32(value))
}

// CompareAndSwap writes value only if the cell currently holds expected,
// reporting whether the swap happened. Scripts build spinlocks and lock-free
// retry loops out of this single primitive.
func (g *Grid) CompareAndSwap(x, y int, expected, value int16) bool {
	return atomic.CompareAndSwapInt32(g.slot(x, y), int32(expected), int32(value))
}

// Reset zeroes every cell.
func (g *Grid) Reset() {
	for i := range g.cells {
		atomic.StoreInt32(&g.cells[i], 0)
	}
}
