package gridbasic_test

import (
	"sync"
	"testing"

	"github.com/kkismd/gridworker/pkg/gridbasic"
)

func TestSpaceArrayRoundTrip(t *testing.T) {
	s := gridbasic.NewSpace(16)
	for _, idx := range []int{0, 7, 15, 16, -1, 100} {
		s.WriteArray(idx, int16(idx*3))
		if got := s.ReadArray(idx); got != int16(idx*3) {
			t.Errorf("ReadArray(%d) = %d after write, want %d", idx, got, idx*3)
		}
	}
	// 16 and 0 alias in a 16-cell space.
	s.WriteArray(16, 99)
	if got := s.ReadArray(0); got != 99 {
		t.Errorf("wrap: ReadArray(0) = %d, want 99", got)
	}
}

func TestSpaceStackLIFO(t *testing.T) {
	s := gridbasic.NewSpace(16)
	s.Push(1)
	s.Push(2)
	if got := s.Pop(); got != 2 {
		t.Errorf("first pop = %d, want 2", got)
	}
	if got := s.Pop(); got != 1 {
		t.Errorf("second pop = %d, want 1", got)
	}
}

func TestSpaceStackGrowsDownFromTop(t *testing.T) {
	s := gridbasic.NewSpace(8)
	s.Push(42)
	if got := s.ReadArray(7); got != 42 {
		t.Errorf("top cell = %d, want 42", got)
	}
}

func TestSpaceStackWrapsWithoutError(t *testing.T) {
	s := gridbasic.NewSpace(4)
	for i := int16(0); i < 6; i++ {
		s.Push(i)
	}
	// Six pushes into four cells: the oldest two were overwritten and the
	// pointer wrapped. Popping keeps working and never faults.
	if got := s.Pop(); got != 5 {
		t.Errorf("pop after wrap = %d, want 5", got)
	}
}

func TestGridReadWriteWrap(t *testing.T) {
	g := gridbasic.NewGrid(4, 4)
	g.Write(1, 2, 7)
	if got := g.Read(1, 2); got != 7 {
		t.Errorf("Read(1,2) = %d, want 7", got)
	}
	if got := g.Read(5, 6); got != 7 {
		t.Errorf("wrapped Read(5,6) = %d, want 7", got)
	}
	g.Write(-3, -2, 9)
	if got := g.Read(1, 2); got != 9 {
		t.Errorf("negative wrap Read(1,2) = %d, want 9", got)
	}
}

func TestGridCompareAndSwapSemantics(t *testing.T) {
	g := gridbasic.NewGrid(4, 4)
	if !g.CompareAndSwap(0, 0, 0, 5) {
		t.Error("CAS against matching value should succeed")
	}
	if g.Read(0, 0) != 5 {
		t.Errorf("cell = %d after CAS, want 5", g.Read(0, 0))
	}
	if g.CompareAndSwap(0, 0, 0, 9) {
		t.Error("CAS against stale expected value should fail")
	}
	if g.Read(0, 0) != 5 {
		t.Errorf("failed CAS changed the cell to %d", g.Read(0, 0))
	}
}

func TestGridCASIsAtomicUnderContention(t *testing.T) {
	g := gridbasic.NewGrid(1, 1)
	const workers = 8
	var wg sync.WaitGroup
	wins := make([]int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				// Spin until this worker holds the lock cell, then
				// release it. Only one winner per round is possible.
				for !g.CompareAndSwap(0, 0, 0, int16(w+1)) {
				}
				wins[w]++
				g.Write(0, 0, 0)
			}
		}(w)
	}
	wg.Wait()
	total := 0
	for _, n := range wins {
		total += n
	}
	if total != workers*1000 {
		t.Errorf("total acquisitions = %d, want %d", total, workers*1000)
	}
}
