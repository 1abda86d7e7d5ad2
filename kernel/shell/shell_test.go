package shell

import (
	"strings"
	"testing"
	"time"

	kerrors "nanosec-go/errors"
	"nanosec-go/kernel/fs"
	"nanosec-go/kernel/security"
)

func fixedClock() time.Time { return time.Unix(1000, 0) }

func newTestShell() *Shell {
	fsys := fs.New(fixedClock)
	h := NewHistory(fixedClock)
	return New(fsys, security.Principal{Name: "tester"}, h)
}

func TestShell_EchoNoOperator(t *testing.T) {
	sh := newTestShell()
	out, err := sh.Execute("echo hello world")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hello world\n" {
		t.Fatalf("out = %q, want %q", out, "hello world\n")
	}
}

func TestShell_PipeEchoIntoWc(t *testing.T) {
	sh := newTestShell()
	out, err := sh.Execute("echo hello world | wc")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// captured buffer is "hello world\n" (12 bytes): 1 newline, 2 words.
	if out != "1 2 12\n" {
		t.Fatalf("out = %q, want %q", out, "1 2 12\n")
	}
}

func TestShell_RedirectOutThenCat(t *testing.T) {
	sh := newTestShell()
	if _, err := sh.Execute("echo hi > note.txt"); err != nil {
		t.Fatalf("Execute redirect: %v", err)
	}
	out, err := sh.Execute("cat note.txt")
	if err != nil {
		t.Fatalf("Execute cat: %v", err)
	}
	if out != "hi\n" {
		t.Fatalf("out = %q, want %q", out, "hi\n")
	}
}

func TestShell_AppendOutAccumulates(t *testing.T) {
	sh := newTestShell()
	sh.Execute("echo a > f.txt")
	sh.Execute("echo b >> f.txt")
	out, _ := sh.Execute("cat f.txt")
	if out != "a\nb\n" {
		t.Fatalf("out = %q, want %q", out, "a\nb\n")
	}
}

func TestShell_SemicolonRunsBoth(t *testing.T) {
	sh := newTestShell()
	out, err := sh.Execute("echo a ; echo b")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "a\nb\n" {
		t.Fatalf("out = %q, want %q", out, "a\nb\n")
	}
}

func TestShell_CdAndPwd(t *testing.T) {
	sh := newTestShell()
	sh.Execute("mkdir home")
	if _, err := sh.Execute("cd home"); err != nil {
		t.Fatalf("Execute cd: %v", err)
	}
	out, _ := sh.Execute("pwd")
	if out != "/home\n" {
		t.Fatalf("pwd = %q, want %q", out, "/home\n")
	}
}

func TestShell_MkdirThenLs(t *testing.T) {
	sh := newTestShell()
	sh.Execute("mkdir a")
	sh.Execute("mkdir b")
	out, err := sh.Execute("ls")
	if err != nil {
		t.Fatalf("Execute ls: %v", err)
	}
	if !strings.Contains(out, "a") || !strings.Contains(out, "b") {
		t.Fatalf("ls output = %q, want to contain a and b", out)
	}
}

func TestShell_RmRecursive(t *testing.T) {
	sh := newTestShell()
	sh.Execute("mkdir a")
	sh.Execute("cd a")
	sh.Execute("mkdir b")
	sh.Execute("cd /")
	if _, err := sh.Execute("rm -rf a"); err != nil {
		t.Fatalf("Execute rm: %v", err)
	}
	if _, err := sh.Execute("cd a"); err == nil {
		t.Fatalf("expected cd into removed directory to fail")
	}
}

func TestShell_UnknownCommandIsUsageError(t *testing.T) {
	sh := newTestShell()
	if _, err := sh.Execute("frobnicate"); !kerrors.IsKind(err, kerrors.KindUsage) {
		t.Fatalf("err = %v, want KindUsage", err)
	}
}

func TestShell_HistoryRecordsEveryLine(t *testing.T) {
	sh := newTestShell()
	sh.Execute("echo one")
	sh.Execute("echo two")
	hist := sh.history.History()
	if len(hist) != 2 || hist[0].Line != "echo one" || hist[1].Line != "echo two" {
		t.Fatalf("history = %+v", hist)
	}
}
