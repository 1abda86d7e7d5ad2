package net

import (
	"sync"
	"sync/atomic"

	kerrors "nanosec-go/errors"
)

const (
	ipHeaderLen = 20
	ipVersion4  = 4
	ipTTL       = 64

	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

// ProtocolHandler processes an inbound IPv4 payload for one protocol
// number; srcIP is the packet's source address.
type ProtocolHandler func(srcIP IPv4, payload []byte)

// Stack is the IPv4 layer: it resolves destinations via ARP, builds and
// sends datagrams, and dispatches inbound ones by protocol number and
// destination address, per spec.md §4.6.
type Stack struct {
	selfIP  IPv4
	subnet  IPv4
	nic     *NE2000
	arp     *ARPCache
	nextID  uint32
	handlers struct {
		mu sync.RWMutex
		m  map[uint8]ProtocolHandler
	}
}

// NewStack creates an IPv4 layer bound to selfIP/subnet, using nic for
// transmit and arp for address resolution.
func NewStack(selfIP, subnet IPv4, nic *NE2000, arp *ARPCache) *Stack {
	s := &Stack{selfIP: selfIP, subnet: subnet, nic: nic, arp: arp}
	s.handlers.m = make(map[uint8]ProtocolHandler)
	return s
}

// RegisterHandler installs the handler for an IP protocol number (ICMP,
// UDP, TCP), overwriting any previous registration.
func (s *Stack) RegisterHandler(proto uint8, h ProtocolHandler) {
	s.handlers.mu.Lock()
	defer s.handlers.mu.Unlock()
	s.handlers.m[proto] = h
}

// Send resolves dest's MAC via ARP (with the given resolve timeout),
// builds an Ethernet+IPv4 header, and transmits proto/data.
func (s *Stack) Send(dest IPv4, proto uint8, data []byte, arpTimeoutTicks uint64) error {
	mac, err := s.arp.Resolve(dest, arpTimeoutTicks)
	if err != nil {
		return err
	}
	id := atomic.AddUint32(&s.nextID, 1)
	hdr := buildIPHeader(s.selfIP, dest, proto, uint16(ipHeaderLen+len(data)), uint16(id))
	packet := append(hdr, data...)
	frame := buildEthernet(mac, s.nic.MAC(), EtherTypeIPv4, packet)
	return s.nic.Send(frame)
}

// Handle processes one inbound IPv4 packet: drops non-matching versions,
// filters by destination (unicast match or subnet broadcast), and
// dispatches to the registered protocol handler.
func (s *Stack) Handle(payload []byte) {
	if len(payload) < ipHeaderLen {
		return
	}
	versionIHL := payload[0]
	if versionIHL>>4 != ipVersion4 {
		return
	}
	ihl := int(versionIHL&0x0F) * 4
	if ihl < ipHeaderLen || len(payload) < ihl {
		return
	}
	proto := payload[9]
	var src, dst IPv4
	copy(src[:], payload[12:16])
	copy(dst[:], payload[16:20])

	if !dst.Equal(s.selfIP) && !dst.Broadcast(s.subnet) {
		return
	}

	s.handlers.mu.RLock()
	h := s.handlers.m[proto]
	s.handlers.mu.RUnlock()
	if h != nil {
		h(src, payload[ihl:])
	}
}

func buildIPHeader(src, dst IPv4, proto uint8, totalLen uint16, id uint16) []byte {
	h := make([]byte, ipHeaderLen)
	h[0] = (ipVersion4 << 4) | 5
	h[1] = 0 // DSCP/ECN
	copy(h[2:4], be16(totalLen))
	copy(h[4:6], be16(id))
	copy(h[6:8], []byte{0, 0}) // flags/fragment offset: no fragmentation
	h[8] = ipTTL
	h[9] = proto
	copy(h[10:12], []byte{0, 0}) // checksum placeholder
	copy(h[12:16], src[:])
	copy(h[16:20], dst[:])
	cs := checksum16(h)
	copy(h[10:12], be16(cs))
	return h
}

// ErrBadPacket is returned by protocol parsers for a malformed segment.
var ErrBadPacket = kerrors.New(kerrors.KindProtocol, "ip_handle", "malformed packet")
