package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nanosec-go/kernel"
	"nanosec-go/kernel/security"
	"nanosec-go/kernel/shell"
	"nanosec-go/kernel/timer"
	"nanosec-go/logging"
	"nanosec-go/metrics"
)

var (
	runNetMode     string
	runTapName     string
	runSelfIP      string
	runSelfMAC     string
	runSubnet      string
	runTimerHz     int
	runMetricsAddr string
	runScript      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the kernel and start a shell session",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runNetMode, "net", "loop", "NIC backend: loop or tap")
	runCmd.Flags().StringVar(&runTapName, "tap-name", "nanosec0", "Linux TAP device name when --net=tap")
	runCmd.Flags().StringVar(&runSelfIP, "self-ip", "10.0.2.15", "simulated NIC's IPv4 address")
	runCmd.Flags().StringVar(&runSelfMAC, "self-mac", "52:54:00:12:34:56", "simulated NIC's MAC address")
	runCmd.Flags().StringVar(&runSubnet, "subnet", "255.255.255.0", "subnet mask for the simulated NIC")
	runCmd.Flags().IntVar(&runTimerHz, "timer-hz", timer.DefaultHz, "PIT frequency in hertz")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "address to serve /metrics on (empty disables)")
	runCmd.Flags().StringVar(&runScript, "script", "", "run shell commands from a file instead of an interactive terminal")
}

func runRun(cmd *cobra.Command, args []string) error {
	log := logging.Default()

	selfIP, err := parseIPv4(runSelfIP)
	if err != nil {
		return err
	}
	selfMAC, err := parseMAC(runSelfMAC)
	if err != nil {
		return err
	}
	subnet, err := parseIPv4(runSubnet)
	if err != nil {
		return err
	}

	netMode := kernel.NetLoopback
	if runNetMode == "tap" {
		netMode = kernel.NetTap
	}

	k, err := kernel.New(kernel.Config{
		NetMode: netMode,
		TapName: runTapName,
		SelfIP:  selfIP,
		SelfMAC: selfMAC,
		Subnet:  subnet,
		TimerHz: runTimerHz,
	})
	if err != nil {
		return fmt.Errorf("boot kernel: %w", err)
	}
	k.Boot()
	defer k.Shutdown()

	if runMetricsAddr != "" {
		collector := metrics.NewCollector(k, float64(runTimerHz))
		srv := &http.Server{Addr: runMetricsAddr, Handler: metrics.Handler(collector)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server stopped", "err", err)
			}
		}()
		defer srv.Close()
		log.Info("metrics listening", "addr", runMetricsAddr)
	}

	history := shell.NewHistory(time.Now)
	sh := k.NewShell(security.Root, history)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runScript != "" {
		k.Syscalls.SetConsole(scriptConsole{})
		return runScriptFile(ctx, sh, runScript)
	}

	term, err := shell.OpenTerminal()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	defer term.Restore()
	k.Syscalls.SetConsole(&termConsole{term: term})

	return runRepl(ctx, sh, term)
}

func runScriptFile(ctx context.Context, sh *shell.Shell, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		out, err := sh.Execute(line)
		if out != "" {
			fmt.Print(out)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", line, err)
		}
	}
	return scanner.Err()
}

func runRepl(ctx context.Context, sh *shell.Shell, term *shell.Terminal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Print("$ ")
		line, err := term.ReadLine()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if line == "" {
			continue
		}
		if line == "exit" {
			return nil
		}

		out, err := sh.Execute(line)
		if out != "" {
			fmt.Print(out)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", line, err)
		}
	}
}
