package shell

import (
	"strings"
	"testing"

	"nanosec-go/kernel/net"
)

type fakeClock struct{ ticks uint64 }

func (c *fakeClock) Ticks() uint64 { return c.ticks }

// pumpingYielder drains a NIC's RX ring into the ARP cache or IP stack on
// every Checkpoint, mirroring kernel/net's own net_poll-driving test helper
// since ping/ARP resolution need somewhere to pump incoming frames from.
type pumpingYielder struct {
	clock *fakeClock
	nic   *net.NE2000
	stack *net.Stack
	arp   *net.ARPCache
}

func (y *pumpingYielder) Checkpoint() {
	y.clock.ticks++
	y.nic.Poll(func(frame []byte) {
		if len(frame) < 14 {
			return
		}
		etherType := uint16(frame[12])<<8 | uint16(frame[13])
		payload := frame[14:]
		switch etherType {
		case net.EtherTypeARP:
			y.arp.HandleIncoming(payload)
		case net.EtherTypeIPv4:
			y.stack.Handle(payload)
		}
	})
}

// selfPingShell builds a shell wired to a loopback ICMP stack pinging its
// own address, so nping can be exercised without a real network.
func selfPingShell(t *testing.T) (*Shell, net.IPv4) {
	t.Helper()
	clock := &fakeClock{}
	selfIP := net.IPv4{10, 0, 2, 15}
	selfMAC := net.MAC{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	subnet := net.IPv4{255, 255, 255, 0}

	y := &pumpingYielder{clock: clock}
	loop := net.NewLoopback()
	nic := net.NewNE2000(nil, loop, selfMAC)
	arp := net.NewARPCache(selfIP, selfMAC, subnet, selfIP, nic, clock, y)
	stack := net.NewStack(selfIP, subnet, nic, arp)
	icmp := net.NewICMP(selfIP, stack, clock, y)
	y.nic, y.stack, y.arp = nic, stack, arp

	sh := newTestShell()
	sh.SetICMP(icmp)
	return sh, selfIP
}

func TestShell_NpingMissingTarget(t *testing.T) {
	sh := newTestShell()
	if _, err := sh.Execute("nping"); err == nil {
		t.Fatal("expected error for missing target")
	}
}

func TestShell_NpingWithoutICMPReportsUnavailable(t *testing.T) {
	sh := newTestShell()
	if _, err := sh.Execute("nping 10.0.2.15"); err == nil {
		t.Fatal("expected error when ICMP is not wired")
	}
}

func TestShell_NpingSelfReportsFourRepliesAndSummary(t *testing.T) {
	sh, selfIP := selfPingShell(t)
	out, err := sh.Execute("nping " + selfIP.String())
	if err != nil {
		t.Fatalf("Execute nping: %v", err)
	}
	if got := strings.Count(out, "Reply:"); got != 4 {
		t.Fatalf("got %d Reply: lines, want 4\noutput:\n%s", got, out)
	}
	if !strings.Contains(out, "sent=4 recv=4") {
		t.Fatalf("output missing sent=4 recv=4 summary:\n%s", out)
	}
}
