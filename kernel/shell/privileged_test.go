package shell

import (
	"testing"

	kerrors "nanosec-go/errors"
	"nanosec-go/kernel/fs"
	"nanosec-go/kernel/security"
)

func TestShell_AddUserRequiresRoot(t *testing.T) {
	sh := newTestShell()
	sh.SetUserTable(security.NewUserTable())
	if _, err := sh.Execute("adduser bob secret"); !kerrors.IsKind(err, kerrors.KindPermission) {
		t.Fatalf("err = %v, want KindPermission", err)
	}
}

func TestShell_AddUserAsRootSucceeds(t *testing.T) {
	fsys := fs.New(fixedClock)
	h := NewHistory(fixedClock)
	sh := New(fsys, security.Root, h)
	ut := security.NewUserTable()
	sh.SetUserTable(ut)

	if _, err := sh.Execute("adduser bob secret"); err != nil {
		t.Fatalf("Execute adduser: %v", err)
	}
	if _, err := ut.Authenticate("bob", "secret"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
}

func TestShell_ShutdownInvokesCallback(t *testing.T) {
	fsys := fs.New(fixedClock)
	h := NewHistory(fixedClock)
	sh := New(fsys, security.Root, h)
	called := false
	sh.SetShutdownFunc(func() error { called = true; return nil })

	if _, err := sh.Execute("shutdown"); err != nil {
		t.Fatalf("Execute shutdown: %v", err)
	}
	if !called {
		t.Fatalf("shutdown callback was not invoked")
	}
}
