package net

import (
	"fmt"
	"strconv"
	"strings"
)

// MAC is a 6-byte Ethernet hardware address.
type MAC [6]byte

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// BroadcastMAC is the all-ones Ethernet broadcast address.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// IPv4 is a 4-byte IPv4 address.
type IPv4 [4]byte

func (a IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3])
}

// Broadcast reports whether a is the subnet broadcast address given mask.
func (a IPv4) Broadcast(mask IPv4) bool {
	for i := 0; i < 4; i++ {
		if a[i]&^mask[i] != 0xFF&^mask[i] {
			return false
		}
	}
	return true
}

// Equal reports byte-for-byte equality.
func (a IPv4) Equal(b IPv4) bool { return a == b }

// ParseIPv4 parses a dotted-quad string such as "10.0.2.15".
func ParseIPv4(s string) (IPv4, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return IPv4{}, fmt.Errorf("invalid IPv4 address %q", s)
	}
	var ip IPv4
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return IPv4{}, fmt.Errorf("invalid IPv4 address %q", s)
		}
		ip[i] = byte(n)
	}
	return ip, nil
}

// EtherType values this stack understands.
const (
	EtherTypeIPv4 = 0x0800
	EtherTypeARP  = 0x0806
)

const (
	ethHeaderLen = 14
	minFrameLen  = 60 // spec.md §6: pad to 60-byte frame on TX
)

// buildEthernet prepends a 14-byte Ethernet II header to payload and pads
// the result to the 60-byte minimum frame size.
func buildEthernet(dst, src MAC, etherType uint16, payload []byte) []byte {
	frame := make([]byte, 0, ethHeaderLen+len(payload))
	frame = append(frame, dst[:]...)
	frame = append(frame, src[:]...)
	frame = append(frame, be16(etherType)...)
	frame = append(frame, payload...)
	if len(frame) < minFrameLen {
		pad := make([]byte, minFrameLen-len(frame))
		frame = append(frame, pad...)
	}
	return frame
}

// parseEthernet splits a raw frame into header fields and payload. Frames
// shorter than the header are rejected.
func parseEthernet(frame []byte) (dst, src MAC, etherType uint16, payload []byte, ok bool) {
	if len(frame) < ethHeaderLen {
		return MAC{}, MAC{}, 0, nil, false
	}
	copy(dst[:], frame[0:6])
	copy(src[:], frame[6:12])
	etherType = readBE16(frame[12:14])
	payload = frame[14:]
	return dst, src, etherType, payload, true
}
