package audio

import (
	"runtime"
	"sync/atomic"
)

// noteCmd is one scheduled note, timestamped with the absolute sample at
// which its voice should start.
type noteCmd struct {
	start    int64
	frames   int
	freq     float64
	velocity float64
}

// noteRing is a lock-free single-producer single-consumer queue carrying
// note commands from the transport goroutine into the render thread.
type noteRing struct {
	cmds  []noteCmd
	read  *uint32
	write *uint32
}

func newNoteRing(size int) *noteRing {
	if size <= 0 || size&(size-1) != 0 {
		panic("note ring size must be a power of 2")
	}
	return &noteRing{
		cmds:  make([]noteCmd, size),
		read:  new(uint32),
		write: new(uint32),
	}
}

func (r *noteRing) push(cmd noteCmd) {
	for atomic.LoadUint32(r.write)-atomic.LoadUint32(r.read) == uint32(len(r.cmds)) {
		runtime.Gosched()
	}
	write := atomic.LoadUint32(r.write)
	r.cmds[write%uint32(len(r.cmds))] = cmd
	atomic.StoreUint32(r.write, write+1)
}

// play pops commands in order, calling f for each one starting before the
// absolute sample until. Commands are pushed in start order, so the first
// command at or past until ends the scan.
func (r *noteRing) play(until int64, f func(noteCmd)) {
	read := atomic.LoadUint32(r.read)
	write := atomic.LoadUint32(r.write)
	for read != write {
		cmd := r.cmds[read%uint32(len(r.cmds))]
		if cmd.start >= until {
			break
		}
		f(cmd)
		read++
	}
	atomic.StoreUint32(r.read, read)
}

// drain discards everything queued so far.
func (r *noteRing) drain() {
	atomic.StoreUint32(r.read, atomic.LoadUint32(r.write))
}
