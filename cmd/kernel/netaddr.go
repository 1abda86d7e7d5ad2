package main

import (
	"fmt"
	"strconv"
	"strings"

	"nanosec-go/kernel/net"
)

// parseIPv4 parses a dotted-quad string into net.IPv4.
func parseIPv4(s string) (net.IPv4, error) {
	return net.ParseIPv4(s)
}

// parseMAC parses a colon-separated hardware address into net.MAC.
func parseMAC(s string) (net.MAC, error) {
	var mac net.MAC
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return mac, fmt.Errorf("invalid MAC address %q", s)
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return mac, fmt.Errorf("invalid MAC address %q", s)
		}
		mac[i] = byte(n)
	}
	return mac, nil
}
