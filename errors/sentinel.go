// Package errors provides predefined sentinel errors for common kernel failures.
package errors

// Memory and resource-table exhaustion errors.
var (
	// ErrOutOfMemory indicates kmalloc could not find a large enough free block.
	ErrOutOfMemory = &KernelError{
		Kind:   KindOutOfMemory,
		Detail: "heap exhausted",
	}

	// ErrNoPhysicalPages indicates the physical page bitmap has no clear bits.
	ErrNoPhysicalPages = &KernelError{
		Kind:   KindResource,
		Detail: "no free physical pages",
	}

	// ErrNoProcessSlots indicates the TCB table is full.
	ErrNoProcessSlots = &KernelError{
		Kind:   KindResource,
		Detail: "process table full",
	}

	// ErrNoPipeSlots indicates the pipe table is full.
	ErrNoPipeSlots = &KernelError{
		Kind:   KindResource,
		Detail: "pipe table full",
	}

	// ErrNoSocketSlots indicates the UDP or TCP socket pool is full.
	ErrNoSocketSlots = &KernelError{
		Kind:   KindResource,
		Detail: "socket table full",
	}

	// ErrNoFSNodes indicates the filesystem node array is full.
	ErrNoFSNodes = &KernelError{
		Kind:   KindResource,
		Detail: "filesystem node table full",
	}
)

// Process and scheduling errors.
var (
	// ErrProcessNotFound indicates the referenced PID does not exist.
	ErrProcessNotFound = &KernelError{
		Kind:   KindNotFound,
		Detail: "process not found",
	}

	// ErrInvalidPID indicates a PID outside the valid range was used.
	ErrInvalidPID = &KernelError{
		Kind:   KindInvalidConfig,
		Detail: "invalid pid",
	}
)

// Pipe errors.
var (
	// ErrPipeNotFound indicates the pipe handle does not refer to an open pipe.
	ErrPipeNotFound = &KernelError{
		Kind:   KindNotFound,
		Detail: "pipe not found",
	}

	// ErrPipeReaderClosed indicates a read was attempted on a pipe whose read
	// end is already closed.
	ErrPipeReaderClosed = &KernelError{
		Kind:   KindInvalidState,
		Detail: "pipe reader closed",
	}

	// ErrPipeWriterClosed indicates a write was attempted after the pipe's
	// read end closed, leaving no reader for the data.
	ErrPipeWriterClosed = &KernelError{
		Kind:   KindInvalidState,
		Detail: "pipe writer closed",
	}
)

// Filesystem errors.
var (
	// ErrNodeNotFound indicates a path component did not resolve to a child.
	ErrNodeNotFound = &KernelError{
		Kind:   KindNotFound,
		Detail: "no such file or directory",
	}

	// ErrNotADirectory indicates a path component that is not a directory was traversed.
	ErrNotADirectory = &KernelError{
		Kind:   KindInvalidState,
		Detail: "not a directory",
	}

	// ErrNameExists indicates a child with that name already exists in the parent.
	ErrNameExists = &KernelError{
		Kind:   KindAlreadyExists,
		Detail: "file exists",
	}

	// ErrNameTooLong indicates a node name exceeds the fixed name buffer.
	ErrNameTooLong = &KernelError{
		Kind:   KindInvalidConfig,
		Detail: "name too long",
	}

	// ErrDataTooLarge indicates a write would exceed the fixed data slot size.
	ErrDataTooLarge = &KernelError{
		Kind:   KindInvalidConfig,
		Detail: "data exceeds file size limit",
	}
)

// Network protocol errors.
var (
	// ErrARPTimeout indicates arp_resolve did not get a reply before the deadline.
	ErrARPTimeout = &KernelError{
		Kind:   KindProtocol,
		Detail: "arp resolution timed out",
	}

	// ErrTCPConnectTimeout indicates tcp_connect did not reach ESTABLISHED in time.
	ErrTCPConnectTimeout = &KernelError{
		Kind:   KindProtocol,
		Detail: "tcp connect timed out",
	}

	// ErrTCPNotEstablished indicates tcp_send/tcp_recv was called outside ESTABLISHED.
	ErrTCPNotEstablished = &KernelError{
		Kind:   KindInvalidState,
		Detail: "tcp socket not established",
	}

	// ErrDNSFailure indicates the stub resolver got no answer record.
	ErrDNSFailure = &KernelError{
		Kind:   KindProtocol,
		Detail: "dns lookup failed",
	}

	// ErrICMPTimeout indicates icmp_ping got no reply before the deadline.
	ErrICMPTimeout = &KernelError{
		Kind:   KindProtocol,
		Detail: "icmp echo timed out",
	}

	// ErrUDPTimeout indicates udp_recv got no datagram before the deadline.
	ErrUDPTimeout = &KernelError{
		Kind:   KindProtocol,
		Detail: "udp receive timed out",
	}

	// ErrNoRoute indicates the destination is off-subnet and no gateway is configured.
	ErrNoRoute = &KernelError{
		Kind:   KindProtocol,
		Detail: "no route to host",
	}
)

// Permission errors.
var (
	// ErrPermissionDenied indicates a non-root principal attempted a privileged action.
	ErrPermissionDenied = &KernelError{
		Kind:   KindPermission,
		Detail: "permission denied",
	}

	// ErrUserNotFound indicates no user table entry matches the given name.
	ErrUserNotFound = &KernelError{
		Kind:   KindNotFound,
		Detail: "user not found",
	}
)

// Interrupt/IDT errors.
var (
	// ErrVectorOutOfRange indicates isr_register_handler was called with vector >= 256.
	ErrVectorOutOfRange = &KernelError{
		Kind:   KindInvalidConfig,
		Detail: "interrupt vector out of range",
	}
)

// Syscall errors.
var (
	// ErrInvalidSyscall indicates eax did not name a registered syscall handler.
	ErrInvalidSyscall = &KernelError{
		Kind:   KindInvalidConfig,
		Detail: "invalid syscall number",
	}
)
