package net

import (
	"sync"

	kerrors "nanosec-go/errors"
)

const (
	udpHeaderLen  = 8
	MaxUDPSockets = 16
)

// UDPDatagram is a received datagram held in a socket's one-deep recv slot.
type UDPDatagram struct {
	SrcIP   IPv4
	SrcPort uint16
	Data    []byte
}

// UDPSocket is one entry in the fixed socket pool, per spec.md §4.6's
// {local_port, recv_buffer, recv_len, from_ip, from_port, has_data, in_use}
// model: exactly one buffered datagram, overwritten by whatever arrives
// next if recv hasn't drained it yet (drop-oldest-per-socket).
type UDPSocket struct {
	mu        sync.Mutex
	inUse     bool
	localPort uint16
	recv      UDPDatagram
	hasData   bool
}

// UDP is the fixed pool of UDP sockets plus the protocol handler.
type UDP struct {
	mu      sync.Mutex
	sockets [MaxUDPSockets]*UDPSocket
	ip      *Stack
	clock   Ticker
	yield   Yielder
}

// NewUDP creates a UDP layer and registers it on ip for ProtoUDP.
func NewUDP(ip *Stack, clock Ticker, yield Yielder) *UDP {
	u := &UDP{ip: ip, clock: clock, yield: yield}
	ip.RegisterHandler(ProtoUDP, u.handle)
	return u
}

// Bind allocates a socket bound to localPort. Returns ErrNoSocketSlots if
// the pool is full.
func (u *UDP) Bind(localPort uint16) (*UDPSocket, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, s := range u.sockets {
		if s == nil {
			ns := &UDPSocket{inUse: true, localPort: localPort}
			u.sockets[i] = ns
			return ns, nil
		}
	}
	return nil, kerrors.Wrap(kerrors.ErrNoSocketSlots, kerrors.KindResource, "udp_bind")
}

// Send wraps data in a UDP header (checksum left zero, legal for IPv4 per
// spec.md §4.6) and sends it via the IP layer.
func (u *UDP) Send(sock *UDPSocket, dest IPv4, port uint16, data []byte, arpTimeoutTicks uint64) error {
	hdr := make([]byte, udpHeaderLen)
	copy(hdr[0:2], be16(sock.localPort))
	copy(hdr[2:4], be16(port))
	copy(hdr[4:6], be16(uint16(udpHeaderLen+len(data))))
	// checksum field (hdr[6:8]) left zero intentionally.
	packet := append(hdr, data...)
	return u.ip.Send(dest, ProtoUDP, packet, arpTimeoutTicks)
}

// Recv polls the network while waiting for a datagram on sock, returning
// it or a timeout error.
func (u *UDP) Recv(sock *UDPSocket, timeoutTicks uint64) (UDPDatagram, error) {
	deadline := u.clock.Ticks() + timeoutTicks
	for u.clock.Ticks() < deadline {
		sock.mu.Lock()
		if sock.hasData {
			dg := sock.recv
			sock.hasData = false
			sock.recv = UDPDatagram{}
			sock.mu.Unlock()
			return dg, nil
		}
		sock.mu.Unlock()
		u.yield.Checkpoint()
	}
	return UDPDatagram{}, kerrors.Wrap(kerrors.ErrUDPTimeout, kerrors.KindProtocol, "udp_recv")
}

func (u *UDP) handle(src IPv4, payload []byte) {
	if len(payload) < udpHeaderLen {
		return
	}
	srcPort := readBE16(payload[0:2])
	dstPort := readBE16(payload[2:4])
	data := payload[udpHeaderLen:]

	u.mu.Lock()
	var target *UDPSocket
	for _, s := range u.sockets {
		if s != nil && s.inUse && s.localPort == dstPort {
			target = s
			break
		}
	}
	u.mu.Unlock()
	if target == nil {
		return
	}

	dg := UDPDatagram{SrcIP: src, SrcPort: srcPort, Data: append([]byte(nil), data...)}
	target.mu.Lock()
	target.recv = dg // overwrites any undelivered datagram: drop-oldest-per-socket
	target.hasData = true
	target.mu.Unlock()
}

// Close releases sock back to the pool.
func (u *UDP) Close(sock *UDPSocket) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for i, s := range u.sockets {
		if s == sock {
			u.sockets[i] = nil
			return
		}
	}
}
