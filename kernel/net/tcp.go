package net

import (
	"sync"
	"sync/atomic"

	kerrors "nanosec-go/errors"
)

// TCPState is one of the RFC 793 states spec.md §4.7 reduces the machine to.
type TCPState int

const (
	TCPClosed TCPState = iota
	TCPListen
	TCPSynSent
	TCPSynRcvd
	TCPEstablished
	TCPFinWait1
	TCPFinWait2
	TCPCloseWait
	TCPLastAck
	TCPTimeWait
)

func (s TCPState) String() string {
	names := [...]string{"CLOSED", "LISTEN", "SYN_SENT", "SYN_RCVD", "ESTABLISHED",
		"FIN_WAIT1", "FIN_WAIT2", "CLOSE_WAIT", "LAST_ACK", "TIME_WAIT"}
	if int(s) < len(names) {
		return names[s]
	}
	return "UNKNOWN"
}

// TCP segment flag bits.
const (
	flagFIN = 1 << 0
	flagSYN = 1 << 1
	flagACK = 1 << 4
)

const (
	tcpHeaderLen    = 20
	tcpRecvBufSize  = 4096
	tcpSendBufSize  = 4096
	MaxTCPSockets   = 16
	connectTimeout  = 500 // ticks (5s at 100Hz), per spec.md §4.7
	ephemeralPortLo = 49152
)

// TCPSocket is one entry in the fixed socket pool, per spec.md §3.
type TCPSocket struct {
	mu sync.Mutex

	inUse      bool
	state      TCPState
	localPort  uint16
	remoteIP   IPv4
	remotePort uint16

	seqNum uint32
	ackNum uint32

	recvBuf []byte
	sendBuf []byte
}

// State returns the socket's current TCP state.
func (s *TCPSocket) State() TCPState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TCP is the fixed socket pool plus the protocol handler implementing the
// state machine transition table in spec.md §4.7.
type TCP struct {
	mu        sync.Mutex
	sockets   [MaxTCPSockets]*TCPSocket
	ip        *Stack
	selfIP    IPv4
	clock     Ticker
	yield     Yielder
	isnSeed   uint32
	nextPort  uint32
}

// EstablishedCount returns the number of sockets currently in the
// ESTABLISHED state, for sysinfo/metrics reporting.
func (t *TCP) EstablishedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.sockets {
		if s != nil && s.State() == TCPEstablished {
			n++
		}
	}
	return n
}

// NewTCP creates a TCP layer and registers it on ip for ProtoTCP. isnSeed
// is the initial ISN, seeded from the current timer tick per spec.md §4.7;
// each new socket then increments a global counter so concurrent connects
// don't collide.
func NewTCP(selfIP IPv4, ip *Stack, clock Ticker, yield Yielder) *TCP {
	t := &TCP{ip: ip, selfIP: selfIP, clock: clock, yield: yield, nextPort: ephemeralPortLo}
	t.isnSeed = uint32(clock.Ticks())
	ip.RegisterHandler(ProtoTCP, t.handle)
	return t
}

func (t *TCP) nextISN() uint32 {
	return atomic.AddUint32(&t.isnSeed, 1)
}

func (t *TCP) nextEphemeralPort() uint16 {
	p := atomic.AddUint32(&t.nextPort, 1)
	return uint16(ephemeralPortLo + (p % (65535 - ephemeralPortLo)))
}

// Listen allocates a socket in LISTEN on localPort.
func (t *TCP) Listen(localPort uint16) (*TCPSocket, error) {
	sock, err := t.alloc()
	if err != nil {
		return nil, err
	}
	sock.mu.Lock()
	sock.state = TCPListen
	sock.localPort = localPort
	sock.mu.Unlock()
	return sock, nil
}

func (t *TCP) alloc() (*TCPSocket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.sockets {
		if s == nil {
			ns := &TCPSocket{inUse: true}
			t.sockets[i] = ns
			return ns, nil
		}
	}
	return nil, kerrors.Wrap(kerrors.ErrNoSocketSlots, kerrors.KindResource, "tcp_socket")
}

// Connect actively opens a connection: chooses an ephemeral port if unbound,
// transitions to SYN_SENT, sends SYN, and spins on the network for up to
// 5 seconds (connectTimeout ticks) for the handshake to reach ESTABLISHED.
func (t *TCP) Connect(sock *TCPSocket, ip IPv4, port uint16) error {
	sock.mu.Lock()
	if sock.localPort == 0 {
		sock.localPort = t.nextEphemeralPort()
	}
	sock.remoteIP = ip
	sock.remotePort = port
	sock.seqNum = t.nextISN()
	sock.state = TCPSynSent
	seq := sock.seqNum
	sock.mu.Unlock()

	if err := t.sendSegment(sock, flagSYN, seq, 0, nil); err != nil {
		return err
	}
	sock.mu.Lock()
	sock.seqNum++
	sock.mu.Unlock()

	deadline := t.clock.Ticks() + connectTimeout
	for t.clock.Ticks() < deadline {
		if sock.State() == TCPEstablished {
			return nil
		}
		t.yield.Checkpoint()
	}
	return kerrors.Wrap(kerrors.ErrTCPConnectTimeout, kerrors.KindProtocol, "tcp_connect")
}

// Send requires ESTABLISHED; data bytes advance seq_num by their length.
func (t *TCP) Send(sock *TCPSocket, data []byte) error {
	sock.mu.Lock()
	if sock.state != TCPEstablished {
		sock.mu.Unlock()
		return kerrors.Wrap(kerrors.ErrTCPNotEstablished, kerrors.KindInvalidState, "tcp_send")
	}
	seq := sock.seqNum
	ack := sock.ackNum
	sock.mu.Unlock()

	if err := t.sendSegmentWithAck(sock, flagACK, seq, ack, data); err != nil {
		return err
	}
	sock.mu.Lock()
	sock.seqNum += uint32(len(data))
	sock.mu.Unlock()
	return nil
}

// Recv polls the network and drains recvBuf, shifting remaining bytes down.
func (t *TCP) Recv(sock *TCPSocket, buf []byte, timeoutTicks uint64) (int, error) {
	deadline := t.clock.Ticks() + timeoutTicks
	for t.clock.Ticks() < deadline {
		sock.mu.Lock()
		if len(sock.recvBuf) > 0 {
			n := copy(buf, sock.recvBuf)
			sock.recvBuf = sock.recvBuf[n:]
			sock.mu.Unlock()
			return n, nil
		}
		sock.mu.Unlock()
		t.yield.Checkpoint()
	}
	return 0, kerrors.Wrap(kerrors.ErrTCPConnectTimeout, kerrors.KindProtocol, "tcp_recv")
}

// Close accepts either half of spec.md §4.7's reduced state machine:
// ESTABLISHED (active close, sends FIN+ACK and enters FIN_WAIT1) or
// CLOSE_WAIT (passive close, sends our own FIN+ACK and enters LAST_ACK,
// completing once the peer's final ACK arrives and handle's TCPLastAck
// case releases the socket).
func (t *TCP) Close(sock *TCPSocket) error {
	sock.mu.Lock()
	state := sock.state
	if state != TCPEstablished && state != TCPCloseWait {
		sock.mu.Unlock()
		return kerrors.New(kerrors.KindInvalidState, "tcp_close", "socket not established or in close-wait")
	}
	seq := sock.seqNum
	ack := sock.ackNum
	sock.mu.Unlock()

	if err := t.sendSegmentWithAck(sock, flagFIN|flagACK, seq, ack, nil); err != nil {
		return err
	}
	sock.mu.Lock()
	sock.seqNum++
	if state == TCPCloseWait {
		sock.state = TCPLastAck
	} else {
		sock.state = TCPFinWait1
	}
	sock.mu.Unlock()
	return nil
}

func (t *TCP) sendSegment(sock *TCPSocket, flags uint8, seq, ack uint32, data []byte) error {
	return t.sendSegmentWithAck(sock, flags, seq, ack, data)
}

func (t *TCP) sendSegmentWithAck(sock *TCPSocket, flags uint8, seq, ack uint32, data []byte) error {
	sock.mu.Lock()
	dest := sock.remoteIP
	localPort := sock.localPort
	remotePort := sock.remotePort
	sock.mu.Unlock()

	seg := buildTCPSegment(t.selfIP, dest, localPort, remotePort, seq, ack, flags, data)
	return t.ip.Send(dest, ProtoTCP, seg, connectTimeout)
}

func buildTCPSegment(srcIP, dstIP IPv4, srcPort, dstPort uint16, seq, ack uint32, flags uint8, data []byte) []byte {
	h := make([]byte, tcpHeaderLen)
	copy(h[0:2], be16(srcPort))
	copy(h[2:4], be16(dstPort))
	copy(h[4:8], be32(seq))
	copy(h[8:12], be32(ack))
	h[12] = 5 << 4 // data offset 5
	h[13] = flags
	copy(h[14:16], be16(4096)) // window
	// checksum (h[16:18]) filled below, urgent pointer left zero
	seg := append(h, data...)

	pseudo := make([]byte, 12)
	copy(pseudo[0:4], srcIP[:])
	copy(pseudo[4:8], dstIP[:])
	pseudo[8] = 0
	pseudo[9] = ProtoTCP
	copy(pseudo[10:12], be16(uint16(len(seg))))
	cs := checksum16(append(pseudo, seg...))
	copy(seg[16:18], be16(cs))
	return seg
}

func parseTCPSegment(payload []byte) (srcPort, dstPort uint16, seq, ack uint32, flags uint8, data []byte, ok bool) {
	if len(payload) < tcpHeaderLen {
		return 0, 0, 0, 0, 0, nil, false
	}
	srcPort = readBE16(payload[0:2])
	dstPort = readBE16(payload[2:4])
	seq = readBE32(payload[4:8])
	ack = readBE32(payload[8:12])
	flags = payload[13]
	dataOffset := int(payload[12]>>4) * 4
	if dataOffset < tcpHeaderLen || dataOffset > len(payload) {
		dataOffset = tcpHeaderLen
	}
	data = payload[dataOffset:]
	return srcPort, dstPort, seq, ack, flags, data, true
}

// handle implements the transition table in spec.md §4.7. Unmatched
// segments are dropped silently (no RST), an explicit simplification.
func (t *TCP) handle(src IPv4, payload []byte) {
	srcPort, dstPort, seq, ack, flags, data, ok := parseTCPSegment(payload)
	if !ok {
		return
	}

	sock := t.find(dstPort, src, srcPort)
	if sock == nil {
		return
	}

	sock.mu.Lock()
	state := sock.state
	sock.mu.Unlock()

	switch state {
	case TCPListen:
		if flags&flagSYN != 0 {
			sock.mu.Lock()
			sock.remoteIP = src
			sock.remotePort = srcPort
			sock.ackNum = seq + 1
			sock.seqNum = t.nextISN()
			sock.state = TCPSynRcvd
			s := sock.seqNum
			a := sock.ackNum
			sock.mu.Unlock()
			t.sendSegmentWithAck(sock, flagSYN|flagACK, s, a, nil)
			sock.mu.Lock()
			sock.seqNum++
			sock.mu.Unlock()
		}

	case TCPSynSent:
		if flags&flagSYN != 0 && flags&flagACK != 0 {
			sock.mu.Lock()
			sock.ackNum = seq + 1
			sock.state = TCPEstablished
			s := sock.seqNum
			a := sock.ackNum
			sock.mu.Unlock()
			t.sendSegmentWithAck(sock, flagACK, s, a, nil)
		}

	case TCPSynRcvd:
		if flags&flagACK != 0 {
			sock.mu.Lock()
			sock.state = TCPEstablished
			sock.mu.Unlock()
		}

	case TCPEstablished:
		if flags&flagFIN != 0 {
			sock.mu.Lock()
			sock.ackNum = seq + 1
			sock.state = TCPCloseWait
			s := sock.seqNum
			a := sock.ackNum
			sock.mu.Unlock()
			t.sendSegmentWithAck(sock, flagACK, s, a, nil)
		} else if len(data) > 0 {
			sock.mu.Lock()
			sock.recvBuf = append(sock.recvBuf, data...)
			if len(sock.recvBuf) > tcpRecvBufSize {
				sock.recvBuf = sock.recvBuf[len(sock.recvBuf)-tcpRecvBufSize:]
			}
			sock.ackNum += uint32(len(data))
			s := sock.seqNum
			a := sock.ackNum
			sock.mu.Unlock()
			t.sendSegmentWithAck(sock, flagACK, s, a, nil)
		}

	case TCPFinWait1:
		if flags&flagFIN != 0 {
			sock.mu.Lock()
			sock.ackNum = seq + 1
			sock.state = TCPTimeWait
			s := sock.seqNum
			a := sock.ackNum
			sock.mu.Unlock()
			t.sendSegmentWithAck(sock, flagACK, s, a, nil)
		} else if flags&flagACK != 0 {
			sock.mu.Lock()
			sock.state = TCPFinWait2
			sock.mu.Unlock()
		}

	case TCPFinWait2:
		if flags&flagFIN != 0 {
			sock.mu.Lock()
			sock.ackNum = seq + 1
			sock.state = TCPTimeWait
			s := sock.seqNum
			a := sock.ackNum
			sock.mu.Unlock()
			t.sendSegmentWithAck(sock, flagACK, s, a, nil)
		}

	case TCPLastAck:
		if flags&flagACK != 0 {
			t.release(sock)
		}
	}
}

func (t *TCP) find(localPort uint16, remoteIP IPv4, remotePort uint16) *TCPSocket {
	t.mu.Lock()
	defer t.mu.Unlock()
	var listener *TCPSocket
	for _, s := range t.sockets {
		if s == nil {
			continue
		}
		s.mu.Lock()
		match := s.localPort == localPort &&
			((s.remoteIP == remoteIP && s.remotePort == remotePort) ||
				(s.state == TCPListen))
		isListener := s.state == TCPListen && s.localPort == localPort
		s.mu.Unlock()
		if match && !isListener {
			return s
		}
		if isListener {
			listener = s
		}
	}
	return listener
}

func (t *TCP) release(sock *TCPSocket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.sockets {
		if s == sock {
			sock.mu.Lock()
			sock.state = TCPClosed
			sock.mu.Unlock()
			t.sockets[i] = nil
			return
		}
	}
}
