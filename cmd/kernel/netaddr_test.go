package main

import "testing"

func TestParseIPv4_Valid(t *testing.T) {
	ip, err := parseIPv4("10.0.2.15")
	if err != nil {
		t.Fatalf("parseIPv4: %v", err)
	}
	if ip[0] != 10 || ip[1] != 0 || ip[2] != 2 || ip[3] != 15 {
		t.Fatalf("parseIPv4 = %v, want 10.0.2.15", ip)
	}
}

func TestParseIPv4_Invalid(t *testing.T) {
	for _, s := range []string{"10.0.2", "10.0.2.256", "not.an.ip.addr"} {
		if _, err := parseIPv4(s); err == nil {
			t.Fatalf("parseIPv4(%q) expected error", s)
		}
	}
}

func TestParseMAC_Valid(t *testing.T) {
	mac, err := parseMAC("52:54:00:12:34:56")
	if err != nil {
		t.Fatalf("parseMAC: %v", err)
	}
	want := [6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	if mac != want {
		t.Fatalf("parseMAC = %v, want %v", mac, want)
	}
}

func TestParseMAC_Invalid(t *testing.T) {
	for _, s := range []string{"52:54:00:12:34", "zz:54:00:12:34:56"} {
		if _, err := parseMAC(s); err == nil {
			t.Fatalf("parseMAC(%q) expected error", s)
		}
	}
}
