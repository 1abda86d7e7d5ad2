package net

import (
	"sync"

	kerrors "nanosec-go/errors"
)

const (
	arpHWEthernet  = 1
	arpOpRequest   = 1
	arpOpReply     = 2
	arpPacketLen   = 28
	arpPollRetries = 200 // cooperative polling iterations before timeout

	// arpCacheSize bounds the cache, per spec.md §3's fixed-capacity ARP
	// table.
	arpCacheSize = 16
)

// Ticker is the minimal timer surface ARP/ICMP/UDP/TCP timeouts need.
type Ticker interface {
	Ticks() uint64
}

// Yielder is the cooperative checkpoint used while spinning on net_poll,
// matching spec.md §5's "blocking network waits... poll the network".
type Yielder interface {
	Checkpoint()
}

// arpEntry is one timestamped cache row, matching spec.md §3's ARP cache
// data model of a fixed array with a timestamp/valid field per entry.
type arpEntry struct {
	ip        IPv4
	mac       MAC
	timestamp uint64
	valid     bool
}

// ARPCache resolves IPv4 addresses to MACs, redirecting off-subnet
// addresses to the configured gateway, per spec.md §4.6. The cache itself
// is a fixed array of arpCacheSize timestamped entries, evicting the
// oldest entry (by insertion/refresh timestamp) once full, per spec.md §3.
type ARPCache struct {
	mu      sync.Mutex
	entries [arpCacheSize]arpEntry

	selfIP  IPv4
	selfMAC MAC
	subnet  IPv4 // network mask
	gateway IPv4

	nic   *NE2000
	clock Ticker
	yield Yielder
}

// NewARPCache creates a cache for the given local identity and subnet.
func NewARPCache(selfIP IPv4, selfMAC MAC, subnet, gateway IPv4, nic *NE2000, clock Ticker, yield Yielder) *ARPCache {
	return &ARPCache{
		selfIP:  selfIP,
		selfMAC: selfMAC,
		subnet:  subnet,
		gateway: gateway,
		nic:     nic,
		clock:   clock,
		yield:   yield,
	}
}

// Lookup scans the cache without resolving.
func (c *ARPCache) Lookup(ip IPv4) (MAC, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].valid && c.entries[i].ip == ip {
			return c.entries[i].mac, true
		}
	}
	return MAC{}, false
}

// learn records or refreshes ip's mapping. A hit on an existing entry just
// refreshes its timestamp; a new entry takes a free slot, or evicts the
// entry with the oldest timestamp once the table is full.
func (c *ARPCache) learn(ip IPv4, mac MAC) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Ticks()

	for i := range c.entries {
		if c.entries[i].valid && c.entries[i].ip == ip {
			c.entries[i].mac = mac
			c.entries[i].timestamp = now
			return
		}
	}

	for i := range c.entries {
		if !c.entries[i].valid {
			c.entries[i] = arpEntry{ip: ip, mac: mac, timestamp: now, valid: true}
			return
		}
	}

	oldest := 0
	for i := 1; i < len(c.entries); i++ {
		if c.entries[i].timestamp < c.entries[oldest].timestamp {
			oldest = i
		}
	}
	c.entries[oldest] = arpEntry{ip: ip, mac: mac, timestamp: now, valid: true}
}

func (c *ARPCache) inSubnet(ip IPv4) bool {
	for i := 0; i < 4; i++ {
		if ip[i]&c.subnet[i] != c.selfIP[i]&c.subnet[i] {
			return false
		}
	}
	return true
}

// Resolve returns the MAC for ip, redirecting to the gateway if ip is
// outside the local subnet, broadcasting an ARP request and polling the
// network (via Poll, which callers must drive) until the cache is
// populated or timeoutTicks elapses.
func (c *ARPCache) Resolve(ip IPv4, timeoutTicks uint64) (MAC, error) {
	target := ip
	if !c.inSubnet(ip) {
		target = c.gateway
	}
	if mac, ok := c.Lookup(target); ok {
		return mac, nil
	}

	req := buildARPPacket(arpOpRequest, c.selfMAC, c.selfIP, MAC{}, target)
	frame := buildEthernet(BroadcastMAC, c.selfMAC, EtherTypeARP, req)
	if err := c.nic.Send(frame); err != nil {
		return MAC{}, kerrors.Wrap(err, kerrors.KindProtocol, "arp_resolve")
	}

	deadline := c.clock.Ticks() + timeoutTicks
	for c.clock.Ticks() < deadline {
		if mac, ok := c.Lookup(target); ok {
			return mac, nil
		}
		c.yield.Checkpoint()
	}
	return MAC{}, kerrors.Wrap(kerrors.ErrARPTimeout, kerrors.KindProtocol, "arp_resolve")
}

// HandleIncoming processes a received ARP packet: every packet (request or
// reply) updates the cache with the sender's (ip, mac); a request for our
// own IP triggers a unicast reply.
func (c *ARPCache) HandleIncoming(payload []byte) {
	op, senderMAC, senderIP, _, targetIP, ok := parseARPPacket(payload)
	if !ok {
		return
	}
	c.learn(senderIP, senderMAC)

	if op == arpOpRequest && targetIP.Equal(c.selfIP) {
		reply := buildARPPacket(arpOpReply, c.selfMAC, c.selfIP, senderMAC, senderIP)
		frame := buildEthernet(senderMAC, c.selfMAC, EtherTypeARP, reply)
		c.nic.Send(frame)
	}
}

func buildARPPacket(op uint16, srcMAC MAC, srcIP IPv4, dstMAC MAC, dstIP IPv4) []byte {
	p := make([]byte, arpPacketLen)
	copy(p[0:2], be16(arpHWEthernet))
	copy(p[2:4], be16(EtherTypeIPv4))
	p[4] = 6
	p[5] = 4
	copy(p[6:8], be16(op))
	copy(p[8:14], srcMAC[:])
	copy(p[14:18], srcIP[:])
	copy(p[18:24], dstMAC[:])
	copy(p[24:28], dstIP[:])
	return p
}

func parseARPPacket(p []byte) (op uint16, senderMAC MAC, senderIP IPv4, targetMAC MAC, targetIP IPv4, ok bool) {
	if len(p) < arpPacketLen {
		return 0, MAC{}, IPv4{}, MAC{}, IPv4{}, false
	}
	op = readBE16(p[6:8])
	copy(senderMAC[:], p[8:14])
	copy(senderIP[:], p[14:18])
	copy(targetMAC[:], p[18:24])
	copy(targetIP[:], p[24:28])
	return op, senderMAC, senderIP, targetMAC, targetIP, true
}
