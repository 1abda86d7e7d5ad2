// Package ipc implements the kernel's pipe object: a fixed-size ring buffer
// with blocking read/write, per spec.md §4.5. It keeps the teacher's
// SyncPipe shape (two descriptors, Wait blocks until Signal, Close on either
// end unblocks the other) but replaces the real OS pipe it wrapped with an
// in-memory ring buffer and the scheduler's cooperative yield loop, since a
// hosted kernel has no underlying fd to delegate to.
package ipc

import (
	"sync"

	kerrors "nanosec-go/errors"
)

// RingSize is the pipe buffer capacity in bytes, per spec.md §4.5.
const RingSize = 4096

// MaxPipes bounds the pipe table, matching the fixed-table style used
// throughout spec.md's process/file tables.
const MaxPipes = 32

// Checkpointer is the cooperative preemption point a blocked pipe operation
// calls on every polling iteration (kernel/proc.Scheduler.Checkpoint).
type Checkpointer interface {
	Checkpoint()
}

// Pipe is a ring-buffered byte channel with independent read/write closure.
// ReadFD and WriteFD follow spec.md's even-is-read, odd-is-write descriptor
// numbering: ReadFD = 2*slot, WriteFD = 2*slot+1.
type Pipe struct {
	mu   sync.Mutex
	buf  [RingSize]byte
	head int
	tail int
	size int

	readClosed  bool
	writeClosed bool

	readFD  int
	writeFD int
}

// Table is the kernel's fixed pipe table.
type Table struct {
	mu    sync.Mutex
	slots [MaxPipes]*Pipe
	sched Checkpointer
}

// NewTable creates an empty pipe table. sched is used to cooperatively yield
// while a read or write blocks.
func NewTable(sched Checkpointer) *Table {
	return &Table{sched: sched}
}

// Create allocates a pipe and returns its read and write descriptors.
func (t *Table) Create() (readFD, writeFD int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for slot, p := range t.slots {
		if p == nil {
			np := &Pipe{readFD: 2 * slot, writeFD: 2*slot + 1}
			t.slots[slot] = np
			return np.readFD, np.writeFD, nil
		}
	}
	return 0, 0, kerrors.Wrap(kerrors.ErrNoPipeSlots, kerrors.KindResource, "pipe_create")
}

func (t *Table) lookup(fd int) *Pipe {
	slot := fd / 2
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot < 0 || slot >= MaxPipes {
		return nil
	}
	return t.slots[slot]
}

// Read blocks until at least one byte is available, the write end is
// closed with the buffer empty (EOF, returns 0, nil), or the read end is
// already closed (returns ErrPipeReaderClosed).
func (t *Table) Read(fd int, buf []byte) (int, error) {
	p := t.lookup(fd)
	if p == nil {
		return 0, kerrors.New(kerrors.KindNotFound, "pipe_read", "no such pipe")
	}
	for {
		p.mu.Lock()
		if p.readClosed {
			p.mu.Unlock()
			return 0, kerrors.Wrap(kerrors.ErrPipeReaderClosed, kerrors.KindInvalidState, "pipe_read")
		}
		if p.size > 0 {
			n := copy(buf, p.peek())
			p.advance(n)
			if n < len(buf) && p.size > 0 {
				// The readable bytes wrapped past the buffer end; take the
				// run that continues from index 0 as well.
				m := copy(buf[n:], p.peek())
				p.advance(m)
				n += m
			}
			p.mu.Unlock()
			return n, nil
		}
		if p.writeClosed {
			p.mu.Unlock()
			return 0, nil // EOF
		}
		p.mu.Unlock()
		t.sched.Checkpoint()
	}
}

// Write blocks until there is room for at least one byte or the read end is
// closed (ErrPipeWriterClosed, the pipe equivalent of SIGPIPE/EPIPE).
func (t *Table) Write(fd int, data []byte) (int, error) {
	p := t.lookup(fd)
	if p == nil {
		return 0, kerrors.New(kerrors.KindNotFound, "pipe_write", "no such pipe")
	}
	written := 0
	for written < len(data) {
		p.mu.Lock()
		if p.readClosed {
			p.mu.Unlock()
			return written, kerrors.Wrap(kerrors.ErrPipeWriterClosed, kerrors.KindInvalidState, "pipe_write")
		}
		if p.writeClosed {
			p.mu.Unlock()
			return written, kerrors.New(kerrors.KindInvalidState, "pipe_write", "write end already closed")
		}
		free := RingSize - p.size
		if free == 0 {
			p.mu.Unlock()
			t.sched.Checkpoint()
			continue
		}
		n := p.append(data[written:], free)
		p.mu.Unlock()
		written += n
		if n == 0 {
			t.sched.Checkpoint()
		}
	}
	return written, nil
}

// CloseRead marks the read end closed; a blocked or future Write returns
// ErrPipeWriterClosed. Once both ends are closed the slot is reclaimed, per
// spec.md §3's pipe invariant.
func (t *Table) CloseRead(fd int) error {
	p := t.lookup(fd)
	if p == nil {
		return kerrors.New(kerrors.KindNotFound, "pipe_close", "no such pipe")
	}
	p.mu.Lock()
	p.readClosed = true
	bothClosed := p.readClosed && p.writeClosed
	p.mu.Unlock()
	if bothClosed {
		t.reclaim(fd)
	}
	return nil
}

// CloseWrite marks the write end closed; a blocked or future Read drains
// the remaining buffer then returns EOF. Once both ends are closed the slot
// is reclaimed, per spec.md §3's pipe invariant.
func (t *Table) CloseWrite(fd int) error {
	p := t.lookup(fd)
	if p == nil {
		return kerrors.New(kerrors.KindNotFound, "pipe_close", "no such pipe")
	}
	p.mu.Lock()
	p.writeClosed = true
	bothClosed := p.readClosed && p.writeClosed
	p.mu.Unlock()
	if bothClosed {
		t.reclaim(fd)
	}
	return nil
}

// reclaim frees fd's slot so Create can reuse it. Called once both ends of
// a pipe are closed.
func (t *Table) reclaim(fd int) {
	slot := fd / 2
	t.mu.Lock()
	defer t.mu.Unlock()
	if slot >= 0 && slot < MaxPipes {
		t.slots[slot] = nil
	}
}

// peek returns a view of the contiguous readable run starting at head
// (never wrapping past the buffer end in one call).
func (p *Pipe) peek() []byte {
	if p.head+p.size <= RingSize {
		return p.buf[p.head : p.head+p.size]
	}
	return p.buf[p.head:RingSize]
}

func (p *Pipe) advance(n int) {
	p.head = (p.head + n) % RingSize
	p.size -= n
}

// append writes up to min(len(data), free) bytes into the ring, wrapping as
// needed, and returns the number written.
func (p *Pipe) append(data []byte, free int) int {
	n := len(data)
	if n > free {
		n = free
	}
	for i := 0; i < n; i++ {
		p.buf[p.tail] = data[i]
		p.tail = (p.tail + 1) % RingSize
	}
	p.size += n
	return n
}
