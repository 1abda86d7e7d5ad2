package net

import (
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	kerrors "nanosec-go/errors"
)

// Linux TUN/TAP ioctl constants (linux/if_tun.h). Not exposed by
// golang.org/x/sys/unix directly, so named here the way namespace.go names
// its own raw clone-flag constants for syscalls the stdlib doesn't wrap.
const (
	iffTap      = 0x0002
	iffNoPI     = 0x1000
	tunSetIFF   = 0x400454ca
	ifNameSize  = 16
)

type ifreqFlags struct {
	name  [ifNameSize]byte
	flags uint16
	_     [22]byte // pad to the kernel's struct ifreq size
}

// TapDevice bridges the simulated NE2000 to a real Linux TAP interface,
// grounded on linux/namespace.go's raw unix.Syscall pattern (open a real
// fd, drive it with an ioctl, use it like any other file) — generalized
// from namespace-join's SYS_SETNS to TUNSETIFF.
type TapDevice struct {
	mu   sync.Mutex
	file *os.File
}

// OpenTap opens /dev/net/tun and attaches to (or creates) the named TAP
// interface in no-packet-information mode.
func OpenTap(name string) (*TapDevice, error) {
	f, err := os.OpenFile("/dev/net/tun", os.O_RDWR, 0)
	if err != nil {
		return nil, kerrors.Wrap(err, kerrors.KindInternal, "tap_open")
	}

	var req ifreqFlags
	copy(req.name[:], name)
	req.flags = iffTap | iffNoPI

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), tunSetIFF, uintptr(unsafe.Pointer(&req)))
	if errno != 0 {
		f.Close()
		return nil, kerrors.Wrap(errno, kerrors.KindInternal, "tap_ioctl_tunsetiff")
	}

	return &TapDevice{file: f}, nil
}

// Send writes frame to the TAP device verbatim.
func (t *TapDevice) Send(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := t.file.Write(frame)
	if err != nil {
		return kerrors.Wrap(err, kerrors.KindInternal, "tap_send")
	}
	return nil
}

// Recv performs one non-blocking-ish read of the TAP device. A hosted
// kernel's net_poll is expected to call this in a loop until it returns
// ok=false, same contract as Loopback.Recv.
func (t *TapDevice) Recv() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, 65536)
	if err := t.file.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return nil, false
	}
	n, err := t.file.Read(buf)
	if err != nil {
		return nil, false
	}
	return buf[:n], true
}

// Close releases the underlying fd.
func (t *TapDevice) Close() error {
	return t.file.Close()
}
