// Package errors provides typed error handling for the nanosec-go kernel.
//
// This package defines domain-specific error types so that subsystem
// failures (resource exhaustion, protocol timeouts, invalid state
// transitions) can be classified and inspected by callers without string
// matching. All errors support the standard errors.Is() and errors.As()
// functions for error inspection.
package errors

import (
	"errors"
	"fmt"
)

// Kind represents the category of a kernel error.
type Kind int

const (
	// KindNotFound indicates a resource was not found (TCB, pipe, socket, fs node).
	KindNotFound Kind = iota
	// KindAlreadyExists indicates a resource already exists.
	KindAlreadyExists
	// KindInvalidState indicates an operation was attempted in an invalid state.
	KindInvalidState
	// KindInvalidConfig indicates a malformed argument or configuration.
	KindInvalidConfig
	// KindPermission indicates a privileged action was rejected.
	KindPermission
	// KindResource indicates a table (procs, pipes, sockets, fs nodes) is exhausted.
	KindResource
	// KindOutOfMemory indicates kmalloc could not satisfy an allocation.
	KindOutOfMemory
	// KindProtocol indicates a network protocol failure (ARP/TCP timeout, DNS failure).
	KindProtocol
	// KindUsage indicates malformed shell command arguments.
	KindUsage
	// KindInternal indicates an internal invariant violation.
	KindInternal
)

// Fatal reports whether an error of this kind represents a condition the
// owning process cannot recover from on its own — corrupted kernel state
// or memory exhaustion — as opposed to an ordinary failed syscall the
// process is expected to handle (a closed pipe, a bad fd, a timed-out
// connect). Dispatch paths that carry a PID use this to decide whether to
// just return the error or also terminate the process via
// proc.Scheduler.Exit, the same path a fatal signal takes.
func (k Kind) Fatal() bool {
	switch k {
	case KindOutOfMemory, KindInternal:
		return true
	default:
		return false
	}
}

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindInvalidState:
		return "invalid state"
	case KindInvalidConfig:
		return "invalid config"
	case KindPermission:
		return "permission denied"
	case KindResource:
		return "resource exhausted"
	case KindOutOfMemory:
		return "out of memory"
	case KindProtocol:
		return "protocol failure"
	case KindUsage:
		return "usage error"
	case KindInternal:
		return "internal error"
	default:
		return "unknown error"
	}
}

// KernelError represents an error that occurred in a kernel subsystem.
type KernelError struct {
	// Op is the operation that failed (e.g. "kmalloc", "tcp_connect").
	Op string
	// PID is the process that was running when the error occurred, or 0
	// for errors raised outside any process context (boot, an ISR with no
	// current task).
	PID uint32
	// Err is the underlying error.
	Err error
	// Kind is the error classification.
	Kind Kind
	// Detail provides additional context about the error.
	Detail string
}

// Error returns the error message.
func (e *KernelError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var msg string
	if e.PID != 0 {
		msg = fmt.Sprintf("pid %d: ", e.PID)
	}
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *KernelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target.
// It matches if the target is a *KernelError with the same Kind,
// or if the underlying error matches.
func (e *KernelError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*KernelError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new KernelError with the given kind.
func New(kind Kind, op string, detail string) *KernelError {
	return &KernelError{
		Op:     op,
		Kind:   kind,
		Detail: detail,
	}
}

// Wrap wraps an error with operation context.
func Wrap(err error, kind Kind, op string) *KernelError {
	return &KernelError{
		Op:   op,
		Err:  err,
		Kind: kind,
	}
}

// WrapWithPID wraps an error with the PID of the process that was running
// when it occurred, so a fatal error can be traced back to (and, by the
// caller, terminate) the right task.
func WrapWithPID(err error, kind Kind, op string, pid uint32) *KernelError {
	return &KernelError{
		Op:   op,
		PID:  pid,
		Err:  err,
		Kind: kind,
	}
}

// WrapWithDetail wraps an error with additional detail.
func WrapWithDetail(err error, kind Kind, op string, detail string) *KernelError {
	return &KernelError{
		Op:     op,
		Err:    err,
		Kind:   kind,
		Detail: detail,
	}
}

// IsKind checks if an error is of a specific kind.
func IsKind(err error, kind Kind) bool {
	var kerr *KernelError
	if errors.As(err, &kerr) {
		return kerr.Kind == kind
	}
	return false
}

// GetKind returns the error kind if the error is a KernelError.
func GetKind(err error) (Kind, bool) {
	var kerr *KernelError
	if errors.As(err, &kerr) {
		return kerr.Kind, true
	}
	return 0, false
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
