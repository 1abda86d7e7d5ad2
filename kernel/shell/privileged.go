package shell

import (
	kerrors "nanosec-go/errors"
	"nanosec-go/kernel/security"
)

// cmdAddUser is a privileged command: it requires root and creates a new
// user table entry, per SPEC_FULL.md §3's permission-tier supplement.
func (sh *Shell) cmdAddUser(_ *Shell, args []string, stdin []byte) (string, error) {
	if err := security.RequireRoot(sh.principal, "adduser"); err != nil {
		return "", err
	}
	if sh.users == nil {
		return "", kerrors.New(kerrors.KindInvalidState, "adduser", "no user table configured")
	}
	if len(args) < 2 {
		return "", kerrors.New(kerrors.KindUsage, "adduser", "usage: adduser <name> <password>")
	}
	if err := sh.users.Create(args[0], args[1], false); err != nil {
		return "", err
	}
	return "", nil
}

func (sh *Shell) cmdDelUser(_ *Shell, args []string, stdin []byte) (string, error) {
	if err := security.RequireRoot(sh.principal, "deluser"); err != nil {
		return "", err
	}
	if sh.users == nil {
		return "", kerrors.New(kerrors.KindInvalidState, "deluser", "no user table configured")
	}
	if len(args) < 1 {
		return "", kerrors.New(kerrors.KindUsage, "deluser", "usage: deluser <name>")
	}
	return "", sh.users.Remove(args[0])
}

func (sh *Shell) cmdShutdown(_ *Shell, args []string, stdin []byte) (string, error) {
	if err := security.RequireRoot(sh.principal, "shutdown"); err != nil {
		return "", err
	}
	if sh.onShutdown == nil {
		return "", nil
	}
	return "", sh.onShutdown()
}

func (sh *Shell) cmdFirewall(_ *Shell, args []string, stdin []byte) (string, error) {
	if err := security.RequireRoot(sh.principal, "firewall"); err != nil {
		return "", err
	}
	if sh.onSetFirewall == nil {
		return "", nil
	}
	if len(args) < 1 {
		return "", kerrors.New(kerrors.KindUsage, "firewall", "usage: firewall <on|off>")
	}
	return "", sh.onSetFirewall(args[0] == "on")
}
