package net

import (
	"sync"

	"nanosec-go/kernel/ioport"
)

// Backend is what an NE2000 actually moves frames over. A real NE2000 talks
// to a physical wire; this simulation talks to either a Loopback (for
// ping-to-self and unit tests) or a Linux TAP device (tap.go) for real
// networking.
type Backend interface {
	Send(frame []byte) error
	// Recv returns the next queued frame, or ok=false if the ring is empty.
	Recv() (frame []byte, ok bool)
}

// Loopback is a Backend that delivers every transmitted frame back to its
// own receive ring, standing in for a wire with only this host on it.
type Loopback struct {
	mu   sync.Mutex
	ring [][]byte
}

// NewLoopback creates an empty loopback backend.
func NewLoopback() *Loopback { return &Loopback{} }

func (l *Loopback) Send(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	l.mu.Lock()
	l.ring = append(l.ring, cp)
	l.mu.Unlock()
	return nil
}

func (l *Loopback) Recv() ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ring) == 0 {
		return nil, false
	}
	frame := l.ring[0]
	l.ring = l.ring[1:]
	return frame, true
}

// NE2000 simulates the driver's public contract (init/send/receive) over a
// Backend, matching spec.md §4.5's shape: pad-to-60-bytes on transmit,
// drain-the-ring-until-empty on receive. The simulation collapses remote
// DMA, page-ring bookkeeping, and 16-bit-word PIO transfer into direct byte
// copies against the Backend — those details are how a real NE2000 moves
// bytes across the ISA bus, not semantics anything above the driver
// observes.
type NE2000 struct {
	space   *ioport.Space
	backend Backend
	mac     MAC

	txCount uint64
	rxCount uint64
}

// NewNE2000 "boots" the card: derives a MAC (stands in for the PROM read
// spec.md describes) and wires it to backend.
func NewNE2000(space *ioport.Space, backend Backend, mac MAC) *NE2000 {
	return &NE2000{space: space, backend: backend, mac: mac}
}

// MAC returns the card's hardware address.
func (n *NE2000) MAC() MAC { return n.mac }

// Send pads frame to the 60-byte minimum and hands it to the backend.
// Like the real driver, it does not wait for transmit completion.
func (n *NE2000) Send(frame []byte) error {
	if len(frame) < minFrameLen {
		padded := make([]byte, minFrameLen)
		copy(padded, frame)
		frame = padded
	}
	n.txCount++
	return n.backend.Send(frame)
}

// Poll drains the backend's ring, calling handle for each received frame,
// matching net_poll()'s "loop until drained" behavior.
func (n *NE2000) Poll(handle func(frame []byte)) {
	for {
		frame, ok := n.backend.Recv()
		if !ok {
			return
		}
		n.rxCount++
		handle(frame)
	}
}

// Stats returns cumulative TX/RX frame counts, for `ps`-style diagnostics.
func (n *NE2000) Stats() (tx, rx uint64) { return n.txCount, n.rxCount }
