package kernel

// logHeader is the on-disk block 0 of the log region (spec.md §3).
type logHeader struct {
	n         int32
	blocknos  [LogSize]int32
}

// Log is spec.md §4.8's write-ahead log: a bounded on-disk region whose
// block 0 is the header and blocks 1..n hold copies of modified blocks.
type Log struct {
	lock *SpinLock

	dev   uint32
	start uint32 // first block of the log region
	size  uint32 // blocks in the log region, header included

	outstanding int
	committing  bool

	hdr logHeader

	bc      *BufferCache
	m       *Metrics
	waiters Channel // address used as the admission/commit wakeup channel
}

func NewLog(x *Ctx, bc *BufferCache, dev, start, size uint32, m *Metrics) *Log {
	l := &Log{lock: NewSpinLock("log"), dev: dev, start: start, size: size, bc: bc, m: m}
	l.waiters = logChannel(l)
	l.recover(x)
	return l
}

func logChannel(l *Log) Channel { return Channel(&l.hdr) }

// recover replays a committed-but-not-yet-installed transaction on boot
// (spec.md §4.8 "Recovery"). If count == 0 there is nothing to do: either
// no transaction was in flight, or the previous one already finished
// installing (idempotent to repeat).
func (l *Log) recover(x *Ctx) {
	l.readHead(x)
	if l.hdr.n > 0 {
		l.installFromLog(x)
	}
	l.hdr.n = 0
	l.writeHead(x)
}

func (l *Log) readHead(x *Ctx) {
	b := l.bc.Bread(x, l.dev, l.start)
	h := decodeLogHeader(b.data[:])
	l.hdr = h
	l.bc.Brelse(x, b)
}

func (l *Log) writeHead(x *Ctx) {
	b := l.bc.Bread(x, l.dev, l.start)
	encodeLogHeader(l.hdr, b.data[:])
	l.bc.Bwrite(x, b)
	l.bc.Brelse(x, b)
}

func (l *Log) installFromLog(x *Ctx) {
	for i := int32(0); i < l.hdr.n; i++ {
		logBlk := l.bc.Bread(x, l.dev, l.start+1+uint32(i))
		dstBlk := l.bc.Bread(x, l.dev, uint32(l.hdr.blocknos[i]))
		copy(dstBlk.data[:], logBlk.data[:])
		l.bc.Bwrite(x, dstBlk)
		l.bc.Brelse(x, dstBlk)
		l.bc.Brelse(x, logBlk)
	}
}

// BeginOp opens a transaction participant (spec.md §4.8): block while a
// commit is in flight or while admitting this op could overflow the log.
func (l *Log) BeginOp(x *Ctx) {
	l.lock.Acquire(x.C)
	for {
		if l.committing {
			x.sleep(l.waiters, l.lock)
			continue
		}
		if int(l.hdr.n)+(l.outstanding+1)*MaxOpBlocks > LogSize {
			x.sleep(l.waiters, l.lock)
			continue
		}
		l.outstanding++
		l.lock.Release(x.C)
		return
	}
}

// Write records b.blockno in the header's block list, absorbing repeated
// writes to the same block within one transaction, and pins it so bio
// cannot evict it before commit.
func (l *Log) Write(x *Ctx, b *Buf) {
	l.lock.Acquire(x.C)
	defer l.lock.Release(x.C)

	for i := int32(0); i < l.hdr.n; i++ {
		if uint32(l.hdr.blocknos[i]) == b.blockno {
			return // absorbed
		}
	}
	if int(l.hdr.n) >= LogSize-1 {
		panic("log: too many writes in one transaction")
	}
	l.hdr.blocknos[l.hdr.n] = int32(b.blockno)
	l.hdr.n++
	l.bc.Pin(x, b)
}

// EndOp closes a transaction participant; the last one out commits.
func (l *Log) EndOp(x *Ctx) {
	l.lock.Acquire(x.C)
	l.outstanding--
	doCommit := false
	if l.outstanding == 0 {
		doCommit = true
		l.committing = true
	} else {
		x.wakeup(l.waiters)
	}
	l.lock.Release(x.C)

	if doCommit {
		l.commit(x)
		l.lock.Acquire(x.C)
		l.committing = false
		l.lock.Release(x.C)
		x.wakeup(l.waiters)
	}
}

// commit is spec.md §4.8's four-step ordered commit. Step 2 (writing the
// header) is the atomic durability point: a crash before it leaves the home
// blocks untouched; a crash after it is corrected by recovery's replay.
func (l *Log) commit(x *Ctx) {
	if l.hdr.n == 0 {
		return
	}
	// 1. copy cached blocks into their log slots
	for i := int32(0); i < l.hdr.n; i++ {
		home := l.bc.Bread(x, l.dev, uint32(l.hdr.blocknos[i]))
		logBlk := l.bc.Bread(x, l.dev, l.start+1+uint32(i))
		copy(logBlk.data[:], home.data[:])
		l.bc.Bwrite(x, logBlk)
		l.bc.Brelse(x, logBlk)
		l.bc.Brelse(x, home)
	}
	// 2. commit point
	l.writeHead(x)
	// 3. install to home locations
	l.installFromLog(x)
	for i := int32(0); i < l.hdr.n; i++ {
		home := l.bc.Bread(x, l.dev, uint32(l.hdr.blocknos[i]))
		l.bc.Unpin(x, home)
		l.bc.Brelse(x, home)
	}
	l.m.logCommits.Inc()
	// 4. log is now empty
	l.hdr.n = 0
	l.writeHead(x)
}

// WithTx runs fn inside a BeginOp/EndOp bracket, the idiomatic call shape
// every filesystem-mutating syscall uses.
func (l *Log) WithTx(x *Ctx, fn func() Errno) Errno {
	l.BeginOp(x)
	err := fn()
	l.EndOp(x)
	return err
}
