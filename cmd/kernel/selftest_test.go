package main

import (
	"testing"
	"time"

	"nanosec-go/kernel"
	"nanosec-go/kernel/security"
	"nanosec-go/kernel/shell"
)

func TestSelftestScript_RunsCleanly(t *testing.T) {
	selfIP, _ := parseIPv4("10.0.2.15")
	selfMAC, _ := parseMAC("52:54:00:12:34:56")
	subnet, _ := parseIPv4("255.255.255.0")

	k, err := kernel.New(kernel.Config{
		NetMode: kernel.NetLoopback,
		SelfIP:  selfIP,
		SelfMAC: selfMAC,
		Subnet:  subnet,
		TimerHz: 100,
	})
	if err != nil {
		t.Fatalf("kernel.New: %v", err)
	}
	k.Boot()
	defer k.Shutdown()

	sh := k.NewShell(security.Root, shell.NewHistory(time.Now))

	for _, line := range selftestScript {
		if _, err := sh.Execute(line); err != nil {
			t.Fatalf("command %q failed: %v", line, err)
		}
	}

	if k.Info().ProcsTotal == 0 {
		t.Fatalf("expected at least one tracked process after boot")
	}
}
