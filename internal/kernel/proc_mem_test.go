package kernel

import "testing"

// newTestProcCtx builds a Ctx whose Proc has a real page table and whose
// Kernel has a real Allocator and Metrics, the minimum needed to exercise
// Sbrk/Mmap/PageFault/Munmap without a full kernel.New boot.
func newTestProcCtx(t *testing.T, pages uint64) *Ctx {
	t.Helper()
	c := newCpu(0)
	a := NewAllocator(c, (pages+8)*PageSize)
	pt, ok := NewPageTable(c, a)
	if !ok {
		t.Fatal("failed to build test page table")
	}
	p := &Proc{lock: NewSpinLock("proc"), ctx: newSchedHandoff(), env: map[string]string{}, pagetable: pt}
	k := &Kernel{bootCpu: c, alloc: a, metrics: NewTestMetrics()}
	return &Ctx{K: k, C: c, P: p}
}
