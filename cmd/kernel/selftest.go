package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nanosec-go/kernel"
	"nanosec-go/kernel/security"
	"nanosec-go/kernel/shell"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Boot the kernel, run a fixed shell script, and report health",
	Args:  cobra.NoArgs,
	RunE:  runSelftest,
}

func init() {
	rootCmd.AddCommand(selftestCmd)
}

// selftestScript exercises the filesystem, shell pipeline operators, and
// privileged commands without needing a real terminal, so it can run in CI.
var selftestScript = []string{
	"mkdir demo",
	"cd demo",
	"echo hello world > greeting",
	"cat greeting",
	"echo hello world | wc",
	"nping 10.0.2.15",
	"pwd",
	"cd ..",
	"rm -rf demo",
	"whoami",
}

func runSelftest(cmd *cobra.Command, args []string) error {
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
		return fmt.Errorf("boot kernel: %w", err)
	}
	k.Boot()
	defer k.Shutdown()

	history := shell.NewHistory(time.Now)
	sh := k.NewShell(security.Root, history)

	for _, line := range selftestScript {
		out, err := sh.Execute(line)
		if err != nil {
			return fmt.Errorf("selftest command %q failed: %w", line, err)
		}
		fmt.Print(out)
	}

	info := k.Info()
	fmt.Println(info.String())
	fmt.Println("selftest passed")
	return nil
}
