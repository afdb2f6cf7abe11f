package kernel

import "sync"

// SpinLock is spec.md §4.1: mutual exclusion plus interrupt-disable nesting
// on the acquiring cpu. Acquiring a lock already held on the same cpu and
// releasing one not held are unrecoverable kernel panics — they indicate a
// broken locking discipline, not a runtime condition to recover from.
// Re-enabling interrupts while a lock is held is not detected.
type SpinLock struct {
	mu   sync.Mutex
	name string

	// held/owner are protected by mu itself: only the goroutine currently
	// inside mu.Lock() ever reads or writes them outside of Holding's
	// diagnostic peek, and Holding is only ever called by the cpu asking
	// about its own ownership.
	held  bool
	owner *Cpu
}

func NewSpinLock(name string) *SpinLock {
	return &SpinLock{name: name}
}

func (l *SpinLock) Name() string { return l.name }

// Holding reports whether cpu c is the current holder. Racing this against
// a concurrent Acquire/Release from another cpu is fine: the only legal use
// is a cpu checking its own prior acquisition, which is externally
// synchronized by program order.
func (l *SpinLock) Holding(c *Cpu) bool {
	return l.held && l.owner == c
}

func (l *SpinLock) Acquire(c *Cpu) {
	c.pushOff()
	if l.Holding(c) {
		panic("spinlock: " + l.name + ": already held by this cpu")
	}
	l.mu.Lock()
	l.held = true
	l.owner = c
}

func (l *SpinLock) Release(c *Cpu) {
	if !l.Holding(c) {
		panic("spinlock: " + l.name + ": release of lock not held")
	}
	l.held = false
	l.owner = nil
	l.mu.Unlock()
	c.popOff()
}
