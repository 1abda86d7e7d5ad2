// Package shell implements the kernel's shell pipeline engine: operator
// parsing, output capture, command dispatch, and history/audit logging,
// per spec.md §4.8.
package shell

import (
	"fmt"
	"strings"

	kerrors "nanosec-go/errors"
	"nanosec-go/kernel/fs"
	"nanosec-go/kernel/net"
	"nanosec-go/kernel/security"
)

// Shell is one interactive session: a filesystem view (cwd), a command
// table, the process-wide output capture, and the history/audit logs.
type Shell struct {
	fs        *fs.FS
	cwd       int
	commands  map[string]Command
	capture   Capture
	history   *History
	principal security.Principal

	users        *security.UserTable
	onShutdown   func() error
	onSetFirewall func(bool) error
	icmp         *net.ICMP
}

// New creates a shell rooted at the filesystem's root directory.
func New(fsys *fs.FS, principal security.Principal, history *History) *Shell {
	sh := &Shell{
		fs:        fsys,
		cwd:       fs.RootIndex,
		commands:  defaultCommandTable(),
		history:   history,
		principal: principal,
	}
	sh.commands["adduser"] = CommandFunc(sh.cmdAddUser)
	sh.commands["deluser"] = CommandFunc(sh.cmdDelUser)
	sh.commands["shutdown"] = CommandFunc(sh.cmdShutdown)
	sh.commands["firewall"] = CommandFunc(sh.cmdFirewall)
	return sh
}

// SetUserTable wires the user table the privileged adduser/deluser
// commands operate on.
func (sh *Shell) SetUserTable(ut *security.UserTable) { sh.users = ut }

// SetShutdownFunc wires the callback the privileged shutdown command
// invokes, normally kernel.Kernel.Shutdown.
func (sh *Shell) SetShutdownFunc(fn func() error) { sh.onShutdown = fn }

// SetFirewallFunc wires the callback the privileged firewall command
// invokes, normally kernel.Kernel.SetFirewall.
func (sh *Shell) SetFirewallFunc(fn func(bool) error) { sh.onSetFirewall = fn }

// SetICMP wires the ICMP engine the nping command drives.
func (sh *Shell) SetICMP(icmp *net.ICMP) { sh.icmp = icmp }

// Register installs or overrides a command in the dispatch table.
func (sh *Shell) Register(name string, cmd Command) {
	sh.commands[name] = cmd
}

func (sh *Shell) resolve(path string) (int, error) {
	return sh.fs.Resolve(sh.cwd, path)
}

// pathOf reconstructs an absolute path for idx by walking Parent links to
// the root, since nodes don't store their own path.
func (sh *Shell) pathOf(idx int) string {
	var parts []string
	for idx != fs.RootIndex {
		n := sh.fs.Node(idx)
		if n == nil {
			break
		}
		parts = append([]string{n.Name}, parts...)
		idx = n.Parent
	}
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/")
}

// Execute is shell_execute: it records the line into history and the audit
// log, then runs it.
func (sh *Shell) Execute(line string) (string, error) {
	sh.history.Record(line, sh.principal.Name)
	return sh.executeAdvanced(line)
}

// executeAdvanced is shell_execute_advanced: it scans for the leftmost
// top-level operator and dispatches per spec.md §4.8's table.
func (sh *Shell) executeAdvanced(line string) (string, error) {
	sp := scanSplit(line)
	switch sp.Op {
	case opNone:
		return sh.runLine(sp.Left, nil)

	case opPipe:
		sh.capture.Start()
		out, err := sh.runLine(sp.Left, nil)
		sh.writeCaptured(out)
		captured := sh.capture.Stop()
		if err != nil {
			return "", err
		}
		return sh.runLineWithInput(sp.Right, captured)

	case opRedirectOut:
		sh.capture.Start()
		out, err := sh.runLine(sp.Left, nil)
		sh.writeCaptured(out)
		captured := sh.capture.Stop()
		if err != nil {
			return "", err
		}
		if _, werr := sh.fs.Write(sh.cwd, strings.TrimSpace(sp.Right), captured); werr != nil {
			return "", werr
		}
		return "", nil

	case opAppendOut:
		name := strings.TrimSpace(sp.Right)
		scratch, _ := sh.readFileOrEmpty(name)
		sh.capture.Start()
		out, err := sh.runLine(sp.Left, nil)
		sh.writeCaptured(out)
		captured := sh.capture.Stop()
		if err != nil {
			return "", err
		}
		scratch = append(scratch, captured...)
		if _, werr := sh.fs.Write(sh.cwd, name, scratch); werr != nil {
			return "", werr
		}
		return "", nil

	case opRedirectIn:
		name := strings.TrimSpace(sp.Right)
		scratch, err := sh.readFileOrEmpty(name)
		if err != nil {
			return "", err
		}
		return sh.runLineWithInput(sp.Left, scratch)

	case opAnd:
		out1, _ := sh.executeAdvanced(sp.Left)
		out2, err2 := sh.executeAdvanced(sp.Right)
		return out1 + out2, err2

	case opOr:
		out, err := sh.executeAdvanced(sp.Left)
		_ = err
		return out, nil

	case opSeq:
		out1, _ := sh.executeAdvanced(sp.Left)
		out2, err2 := sh.executeAdvanced(sp.Right)
		return out1 + out2, err2

	default:
		return "", kerrors.New(kerrors.KindUsage, "shell_execute", "unrecognized operator")
	}
}

func (sh *Shell) readFileOrEmpty(name string) ([]byte, error) {
	idx, err := sh.resolve(name)
	if err != nil {
		return nil, nil
	}
	return sh.fs.Read(idx)
}

// writeCaptured is the console_write primitive's capture-aware half: while
// capture is active it appends to the buffer instead of a real sink.
func (sh *Shell) writeCaptured(s string) {
	if s == "" {
		return
	}
	sh.capture.Write([]byte(s))
}

// runLine tokenizes and dispatches a single command with no piped input.
func (sh *Shell) runLine(line string, stdin []byte) (string, error) {
	return sh.runLineWithInput(line, stdin)
}

// runLineWithInput is execute_with_pipe_input: commands named in
// stdinCommands receive stdin directly; others ignore it, per spec.md
// §4.8.
func (sh *Shell) runLineWithInput(line string, stdin []byte) (string, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return "", nil
	}
	name, args := fields[0], fields[1:]

	cmd, ok := sh.commands[name]
	if !ok {
		return "", kerrors.New(kerrors.KindUsage, "shell_execute", fmt.Sprintf("unknown command %q", name))
	}
	if !stdinCommands[name] {
		stdin = nil
	}
	return cmd.Run(sh, args, stdin)
}
