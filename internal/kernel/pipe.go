package kernel

// Pipe is spec.md §4.12's bounded ring buffer: a single spinlock guards the
// counters and data, readers/writers block on sleep/wakeup rather than
// busy-waiting.
type Pipe struct {
	lock *SpinLock
	data [PipeSize]byte

	nread    uint32 // total bytes read, ever
	nwrite   uint32 // total bytes written, ever
	readOpen bool
	writeOpen bool
}

// NewPipe allocates a pipe and its two File endpoints.
func NewPipe(x *Ctx) (readEnd, writeEnd *File, err Errno) {
	p := &Pipe{lock: NewSpinLock("pipe"), readOpen: true, writeOpen: true}

	rf := x.K.files.Alloc(x)
	wf := x.K.files.Alloc(x)
	if rf == nil || wf == nil {
		if rf != nil {
			x.K.files.Close(x, rf)
		}
		if wf != nil {
			x.K.files.Close(x, wf)
		}
		return nil, nil, ENFILE
	}
	rf.typ, rf.pipe, rf.readable, rf.writable = FdPipe, p, true, false
	wf.typ, wf.pipe, wf.readable, wf.writable = FdPipe, p, false, true
	return rf, wf, EOK
}

func (p *Pipe) readChannel() Channel  { return Channel(&p.nread) }
func (p *Pipe) writeChannel() Channel { return Channel(&p.nwrite) }

// Write blocks while the ring is full and a reader remains open; it fails
// once the read end has closed (spec.md §4.12, the Unix EPIPE behavior).
func (p *Pipe) Write(x *Ctx, src []byte) (int, Errno) {
	p.lock.Acquire(x.C)
	defer p.lock.Release(x.C)

	var n int
	for n < len(src) {
		if !p.readOpen || x.Killed() {
			return n, EPIPE
		}
		if p.nwrite-p.nread == PipeSize {
			x.wakeup(p.readChannel())
			x.sleep(p.writeChannel(), p.lock)
			continue
		}
		p.data[p.nwrite%PipeSize] = src[n]
		p.nwrite++
		n++
	}
	x.wakeup(p.readChannel())
	return n, EOK
}

// Read blocks while the ring is empty and a writer remains open; once the
// writer closes, a Read on a drained pipe returns 0 (EOF), matching the
// resolved open question in spec.md §9 (empty-with-writer-open must block,
// empty-with-writer-closed must not).
func (p *Pipe) Read(x *Ctx, dst []byte) (int, Errno) {
	p.lock.Acquire(x.C)
	defer p.lock.Release(x.C)

	for p.nread == p.nwrite && p.writeOpen {
		if x.Killed() {
			return 0, EINTR
		}
		x.sleep(p.readChannel(), p.lock)
	}
	var n int
	for n < len(dst) && p.nread < p.nwrite {
		dst[n] = p.data[p.nread%PipeSize]
		p.nread++
		n++
	}
	x.wakeup(p.writeChannel())
	return n, EOK
}

// CloseEnd marks the read or write end as closed, waking the other side so
// it can observe EOF/EPIPE instead of blocking forever.
func (p *Pipe) CloseEnd(x *Ctx, wasWritable bool) {
	p.lock.Acquire(x.C)
	if wasWritable {
		p.writeOpen = false
		x.wakeup(p.readChannel())
	} else {
		p.readOpen = false
		x.wakeup(p.writeChannel())
	}
	p.lock.Release(x.C)
}
