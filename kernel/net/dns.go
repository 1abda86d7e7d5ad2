package net

import (
	"strings"
	"sync"

	kerrors "nanosec-go/errors"
)

// DNSPort is the standard UDP port for DNS, used for both the stub
// resolver's outbound queries and (if ever run as a server) inbound ones.
const DNSPort = 53

const dnsQueryTimeoutTicks = 300 // 3s at 100Hz

// Resolver is a minimal stub DNS client: a static hosts table plus, if a
// server IP is configured, a real (if simplified) UDP A-record query. This
// is a supplemented feature (original_source/kernel/net/dns.c has a hosts
// table and a query path the distilled spec dropped) rather than something
// spec.md's core asks for.
type Resolver struct {
	mu     sync.RWMutex
	hosts  map[string]IPv4
	server IPv4
	udp    *UDP
	clock  Ticker
	yield  Yielder
}

// NewResolver creates a resolver with a hosts table seeded from entries and
// an optional upstream server (IPv4{} to disable network queries).
func NewResolver(entries map[string]IPv4, server IPv4, udp *UDP, clock Ticker, yield Yielder) *Resolver {
	r := &Resolver{hosts: make(map[string]IPv4), server: server, udp: udp, clock: clock, yield: yield}
	for name, ip := range entries {
		r.hosts[strings.ToLower(name)] = ip
	}
	return r
}

// AddHost installs a static hosts-table entry.
func (r *Resolver) AddHost(name string, ip IPv4) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[strings.ToLower(name)] = ip
}

// Resolve looks up name in the hosts table, then (if a server is
// configured) issues a UDP DNS query.
func (r *Resolver) Resolve(name string) (IPv4, error) {
	key := strings.ToLower(name)
	r.mu.RLock()
	ip, ok := r.hosts[key]
	r.mu.RUnlock()
	if ok {
		return ip, nil
	}
	if r.server == (IPv4{}) {
		return IPv4{}, kerrors.Wrap(kerrors.ErrDNSFailure, kerrors.KindProtocol, "dns_resolve")
	}
	return r.query(name)
}

func (r *Resolver) query(name string) (IPv4, error) {
	sock, err := r.udp.Bind(0)
	if err != nil {
		return IPv4{}, err
	}
	defer r.udp.Close(sock)

	msg := encodeDNSQuery(name)
	if err := r.udp.Send(sock, r.server, DNSPort, msg, dnsQueryTimeoutTicks); err != nil {
		return IPv4{}, err
	}

	dg, err := r.udp.Recv(sock, dnsQueryTimeoutTicks)
	if err != nil {
		return IPv4{}, kerrors.Wrap(kerrors.ErrDNSFailure, kerrors.KindProtocol, "dns_resolve")
	}
	ip, ok := decodeDNSAnswer(dg.Data)
	if !ok {
		return IPv4{}, kerrors.Wrap(kerrors.ErrDNSFailure, kerrors.KindProtocol, "dns_resolve")
	}
	return ip, nil
}

// encodeDNSQuery builds a minimal DNS query message: a 12-byte header plus
// one question (QNAME/QTYPE=A/QCLASS=IN). Not a full RFC 1035 encoder —
// just enough to drive a real DNS server's A-record lookup path.
func encodeDNSQuery(name string) []byte {
	msg := make([]byte, 12)
	msg[0], msg[1] = 0x13, 0x37 // transaction id
	msg[2] = 0x01               // RD (recursion desired)
	copy(msg[4:6], be16(1))     // QDCOUNT=1

	for _, label := range strings.Split(name, ".") {
		msg = append(msg, byte(len(label)))
		msg = append(msg, label...)
	}
	msg = append(msg, 0) // root label
	msg = append(msg, be16(1)...)  // QTYPE A
	msg = append(msg, be16(1)...)  // QCLASS IN
	return msg
}

// decodeDNSAnswer extracts the first A-record's address from a response,
// skipping the echoed question section.
func decodeDNSAnswer(msg []byte) (IPv4, bool) {
	if len(msg) < 12 {
		return IPv4{}, false
	}
	ancount := readBE16(msg[6:8])
	if ancount == 0 {
		return IPv4{}, false
	}
	pos := 12
	for pos < len(msg) && msg[pos] != 0 {
		pos += int(msg[pos]) + 1
	}
	pos += 1 + 4 // root label + QTYPE + QCLASS
	if pos+10 > len(msg) {
		return IPv4{}, false
	}
	// skip NAME (assume pointer compression: 2 bytes), TYPE, CLASS, TTL
	pos += 2 + 2 + 2 + 4
	rdlength := int(readBE16(msg[pos : pos+2]))
	pos += 2
	if rdlength != 4 || pos+4 > len(msg) {
		return IPv4{}, false
	}
	var ip IPv4
	copy(ip[:], msg[pos:pos+4])
	return ip, true
}
