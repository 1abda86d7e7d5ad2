// Package kernel aggregates every subsystem into a single Kernel context
// value, replacing the module-level globals the original C kernel used —
// exactly the re-architecture spec.md §9 calls for.
package kernel

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"nanosec-go/kernel/fs"
	"nanosec-go/kernel/idt"
	"nanosec-go/kernel/ioport"
	"nanosec-go/kernel/ipc"
	"nanosec-go/kernel/mm"
	"nanosec-go/kernel/net"
	"nanosec-go/kernel/proc"
	"nanosec-go/kernel/security"
	"nanosec-go/kernel/shell"
	"nanosec-go/kernel/syscall"
	"nanosec-go/kernel/timer"
	"nanosec-go/logging"
)

// NetMode selects how the simulated NIC is backed.
type NetMode int

const (
	NetLoopback NetMode = iota
	NetTap
)

// Config carries cmd/kernel's boot flags into Boot.
type Config struct {
	NetMode  NetMode
	TapName  string
	SelfIP   net.IPv4
	SelfMAC  net.MAC
	Subnet   net.IPv4
	TimerHz  int
}

// Kernel is the root context struct: every subsystem's state lives here,
// reached only through this value, per spec.md §9's single-Kernel-context
// redesign.
type Kernel struct {
	Pages *mm.PageAllocator
	Paging *mm.PageDirectory
	Heap   *mm.Heap

	IDT       *idt.IDT
	Space     *ioport.Space
	Timer     *timer.Timer
	Scheduler *proc.Scheduler
	Pipes     *ipc.Table
	Syscalls  *syscall.Dispatcher

	FS       *fs.FS
	Users    *security.UserTable
	firewall int32 // atomic bool

	NIC   *net.NE2000
	ARP   *net.ARPCache
	IP    *net.Stack
	ICMP  *net.ICMP
	UDP   *net.UDP
	TCP   *net.TCP
	DNS   *net.Resolver
	tap   *net.TapDevice

	bootTime time.Time
	log      *slog.Logger
}

// New wires up every subsystem against fresh state but does not start the
// timer or any background goroutines; call Boot for that.
func New(cfg Config) (*Kernel, error) {
	k := &Kernel{
		Pages: mm.NewPageAllocator(),
		Heap:  mm.NewHeap(),
		Space: ioport.NewSpace(),
		FS:    fs.New(time.Now),
		Users: security.NewUserTable(),
		log:   logging.WithSubsystem(logging.Default(), "kernel"),
	}
	k.Paging = mm.NewPageDirectory(k.Pages)

	k.IDT = idt.New(k.Space)
	k.IDT.Init()

	k.Scheduler = proc.New()
	k.Pipes = ipc.NewTable(k.Scheduler)
	k.Syscalls = syscall.New(k.Scheduler, k.Pipes, k.Heap, nil)
	k.Syscalls.RegisterOn(k.IDT)

	k.Timer = timer.New(k.Space, k.IDT, k.Scheduler.OnTick)
	if cfg.TimerHz > 0 {
		k.Timer.Configure(cfg.TimerHz)
	}

	var backend net.Backend
	switch cfg.NetMode {
	case NetTap:
		t, err := net.OpenTap(cfg.TapName)
		if err != nil {
			return nil, err
		}
		k.tap = t
		backend = t
	default:
		backend = net.NewLoopback()
	}

	k.NIC = net.NewNE2000(k.Space, backend, cfg.SelfMAC)
	k.ARP = net.NewARPCache(cfg.SelfIP, cfg.SelfMAC, cfg.Subnet, cfg.SelfIP, k.NIC, k.Scheduler, k.Scheduler)
	k.IP = net.NewStack(cfg.SelfIP, cfg.Subnet, k.NIC, k.ARP)
	k.ICMP = net.NewICMP(cfg.SelfIP, k.IP, k.Scheduler, k.Scheduler)
	k.UDP = net.NewUDP(k.IP, k.Scheduler, k.Scheduler)
	k.TCP = net.NewTCP(cfg.SelfIP, k.IP, k.Scheduler, k.Scheduler)
	k.DNS = net.NewResolver(nil, net.IPv4{}, k.UDP, k.Scheduler, k.Scheduler)

	return k, nil
}

// Boot starts the background timer goroutine and the scheduler's idle
// task. Matches the C kernel's kmain boot sequence: pages, heap, IDT,
// scheduler, then the first tick source.
func (k *Kernel) Boot() {
	k.Scheduler.Start()
	k.Timer.Start()
	k.bootTime = time.Now()
	k.log.Info("kernel booted", "boot_time", k.bootTime)
}

// NewShell creates a shell session wired against this kernel's filesystem,
// user table, and privileged-command callbacks.
func (k *Kernel) NewShell(principal security.Principal, history *shell.History) *shell.Shell {
	sh := shell.New(k.FS, principal, history)
	sh.SetUserTable(k.Users)
	sh.SetShutdownFunc(k.Shutdown)
	sh.SetFirewallFunc(k.SetFirewall)
	sh.SetICMP(k.ICMP)
	return sh
}

// Shutdown stops the timer and, in TAP mode, closes the TAP device.
// The scheduler's own goroutines exit naturally once their entry function
// returns; Shutdown does not stop them.
func (k *Kernel) Shutdown() error {
	k.Timer.Stop()
	if k.tap != nil {
		return k.tap.Close()
	}
	return nil
}

// SetFirewall records the on/off firewall toggle reported by
// FirewallEnabled. The network stack does not consult it: incoming
// traffic is accepted whether it is on or off. This is the
// kernel.Kernel.SetFirewall collaborator SPEC_FULL.md §3 names as a
// privileged surface.
func (k *Kernel) SetFirewall(on bool) error {
	if on {
		atomic.StoreInt32(&k.firewall, 1)
	} else {
		atomic.StoreInt32(&k.firewall, 0)
	}
	return nil
}

// FirewallEnabled reports the current firewall toggle state.
func (k *Kernel) FirewallEnabled() bool {
	return atomic.LoadInt32(&k.firewall) == 1
}

// Info is the sysinfo snapshot from original_source/kernel/sysinfo.c,
// SPEC_FULL.md §3's supplemented feature.
type Info struct {
	UptimeTicks    uint64
	ProcsTotal     int
	ProcsReady     int
	ProcsBlocked   int
	HeapAllocated  uint32
	HeapBlocks     int
	PagesUsed      int
	PagesFree      int
	TCPEstablished int
}

// Info gathers a snapshot across every subsystem.
func (k *Kernel) Info() Info {
	info := Info{
		UptimeTicks:   k.Scheduler.Ticks(),
		HeapAllocated: k.Heap.Allocated(),
		HeapBlocks:    k.Heap.BlockCount(),
		PagesUsed:     k.Pages.UsedCount(),
		PagesFree:     k.Pages.FreeCount(),

		TCPEstablished: k.TCP.EstablishedCount(),
	}
	for _, tcb := range k.Scheduler.List() {
		info.ProcsTotal++
		switch tcb.State {
		case proc.StateReady, proc.StateRunning:
			info.ProcsReady++
		case proc.StateBlocked:
			info.ProcsBlocked++
		}
	}
	return info
}

// The following accessors let *Kernel satisfy metrics.Source without this
// package importing metrics.

func (k *Kernel) UptimeTicks() uint64          { return k.Scheduler.Ticks() }
func (k *Kernel) HeapAllocatedBytes() uint32   { return k.Heap.Allocated() }
func (k *Kernel) PagesUsed() int               { return k.Pages.UsedCount() }
func (k *Kernel) PagesFree() int               { return k.Pages.FreeCount() }
func (k *Kernel) TCPSocketsEstablished() int   { return k.TCP.EstablishedCount() }

func (k *Kernel) ProcsTotal() int {
	return k.Info().ProcsTotal
}

func (k *Kernel) ProcsReady() int {
	return k.Info().ProcsReady
}

func (k *Kernel) ProcsBlocked() int {
	return k.Info().ProcsBlocked
}

func (i Info) String() string {
	return fmt.Sprintf("uptime=%d ticks procs=%d (ready=%d blocked=%d) heap=%d/%d blocks pages=%d used/%d free",
		i.UptimeTicks, i.ProcsTotal, i.ProcsReady, i.ProcsBlocked, i.HeapAllocated, i.HeapBlocks, i.PagesUsed, i.PagesFree)
}
