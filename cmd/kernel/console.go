package main

import (
	"fmt"
	"os"

	"nanosec-go/kernel/shell"
)

// termConsole adapts a shell.Terminal to kernel/syscall.Console, so
// syscalls 2/3 (read/write against fd 0/1/2) reach the same raw terminal
// the shell's own REPL loop reads lines from.
type termConsole struct {
	term *shell.Terminal
}

func (c *termConsole) ReadLine() (string, bool) {
	line, err := c.term.ReadLine()
	if err != nil {
		return "", false
	}
	return line, true
}

func (c *termConsole) Write(fd int, p []byte) (int, error) {
	switch fd {
	case 1:
		return os.Stdout.Write(p)
	case 2:
		return os.Stderr.Write(p)
	default:
		return 0, fmt.Errorf("console: unsupported fd %d", fd)
	}
}

// scriptConsole backs the console with no interactive keyboard; fd 0 reads
// always fail, since --script mode drives the shell directly rather than
// through syscall read/write.
type scriptConsole struct{}

func (scriptConsole) ReadLine() (string, bool) { return "", false }

func (scriptConsole) Write(fd int, p []byte) (int, error) {
	switch fd {
	case 1:
		return os.Stdout.Write(p)
	case 2:
		return os.Stderr.Write(p)
	default:
		return 0, fmt.Errorf("console: unsupported fd %d", fd)
	}
}
