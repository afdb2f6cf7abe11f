package kernel

// Ctx bundles the three pieces of state almost every kernel operation
// needs: the singleton kernel, the hart it is running on, and the process on
// whose behalf it runs. Real xv6 recovers the latter two through the `tp`
// register (mycpu()/myproc()); a hosted Go process has no equivalent
// thread-local slot cheap enough to fake convincingly, so Ctx is threaded
// explicitly, the way request-scoped state is threaded through a
// context.Context in ordinary Go services. See DESIGN.md Open Questions.
type Ctx struct {
	K *Kernel
	C *Cpu
	P *Proc
}

// sleep parks until channel is woken. On return x.C may name a different
// cpu than on entry — see sched's doc comment — so every call site that
// reads x.C afterward is reading the current one, by construction.
func (x *Ctx) sleep(channel Channel, lk *SpinLock) {
	x.C = x.K.sleep(channel, lk, x.C, x.P)
}

func (x *Ctx) wakeup(channel Channel) {
	x.K.wakeup(channel, x.P)
}

func (x *Ctx) yield() {
	x.C = x.K.yield(x.C, x.P)
}

// Yield is the exported form of yield, for device boundaries outside this
// package (internal/console's polling Read loop) that need to give other
// processes a turn without blocking on a kernel-internal channel.
func (x *Ctx) Yield() { x.yield() }

// Killed reports whether this process has been marked for death. Every
// top-level sleep loop must consult this (spec.md §9's retrofitted policy)
// so a killed-while-sleeping process unwinds instead of sleeping forever.
func (x *Ctx) Killed() bool {
	x.P.lock.Acquire(x.C)
	k := x.P.killed
	x.P.lock.Release(x.C)
	return k
}
