package fs

import (
	"fmt"
	"testing"
	"time"

	kerrors "nanosec-go/errors"
)

func fixedClock() time.Time { return time.Unix(1000, 0) }

func TestFS_RootExistsAfterNew(t *testing.T) {
	f := New(fixedClock)
	n := f.Node(RootIndex)
	if n == nil || n.Type != TypeDir || n.Name != "/" {
		t.Fatalf("root node = %+v, want a directory named /", n)
	}
}

func TestFS_MkdirAndResolve(t *testing.T) {
	f := New(fixedClock)
	dirIdx, err := f.Mkdir(RootIndex, "home")
	if err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	resolved, err := f.Resolve(RootIndex, "/home")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved != dirIdx {
		t.Fatalf("Resolve = %d, want %d", resolved, dirIdx)
	}
}

func TestFS_MkdirDuplicateNameFails(t *testing.T) {
	f := New(fixedClock)
	if _, err := f.Mkdir(RootIndex, "home"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := f.Mkdir(RootIndex, "home"); !kerrors.IsKind(err, kerrors.KindAlreadyExists) {
		t.Fatalf("second Mkdir err = %v, want KindAlreadyExists", err)
	}
}

func TestFS_WriteThenRead(t *testing.T) {
	f := New(fixedClock)
	idx, err := f.Write(RootIndex, "note.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := f.Read(idx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("data = %q, want %q", data, "hello")
	}
}

func TestFS_WriteOverwritesExistingFile(t *testing.T) {
	f := New(fixedClock)
	idx1, _ := f.Write(RootIndex, "note.txt", []byte("v1"))
	idx2, err := f.Write(RootIndex, "note.txt", []byte("v2"))
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if idx1 != idx2 {
		t.Fatalf("overwrite allocated a new node: %d != %d", idx1, idx2)
	}
	data, _ := f.Read(idx2)
	if string(data) != "v2" {
		t.Fatalf("data = %q, want %q", data, "v2")
	}
}

func TestFS_ResolveDotDotWalksToParent(t *testing.T) {
	f := New(fixedClock)
	a, _ := f.Mkdir(RootIndex, "a")
	b, _ := f.Mkdir(a, "b")

	resolved, err := f.Resolve(b, "..")
	if err != nil {
		t.Fatalf("Resolve ..: %v", err)
	}
	if resolved != a {
		t.Fatalf("Resolve(..) = %d, want %d", resolved, a)
	}

	resolved, err = f.Resolve(b, "../../a/b")
	if err != nil {
		t.Fatalf("Resolve ../../a/b: %v", err)
	}
	if resolved != b {
		t.Fatalf("Resolve(../../a/b) = %d, want %d", resolved, b)
	}
}

func TestFS_ResolveDotDotAtRootStaysAtRoot(t *testing.T) {
	f := New(fixedClock)
	resolved, err := f.Resolve(RootIndex, "..")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved != RootIndex {
		t.Fatalf("Resolve(..) at root = %d, want %d", resolved, RootIndex)
	}
}

func TestFS_ResolveMissingComponentFails(t *testing.T) {
	f := New(fixedClock)
	if _, err := f.Resolve(RootIndex, "/nope"); !kerrors.IsKind(err, kerrors.KindNotFound) {
		t.Fatalf("err = %v, want KindNotFound", err)
	}
}

func TestFS_RemoveNonEmptyDirWithoutRecursiveFails(t *testing.T) {
	f := New(fixedClock)
	dir, _ := f.Mkdir(RootIndex, "home")
	f.Write(dir, "file", []byte("x"))

	if err := f.Remove(dir, false); !kerrors.IsKind(err, kerrors.KindInvalidState) {
		t.Fatalf("err = %v, want KindInvalidState", err)
	}
}

func TestFS_RemoveRecursiveSweepsEveryDepth(t *testing.T) {
	f := New(fixedClock)
	a, _ := f.Mkdir(RootIndex, "a")
	b, _ := f.Mkdir(a, "b")
	c, _ := f.Mkdir(b, "c")
	fileIdx, _ := f.Write(c, "deep.txt", []byte("leaf"))

	if err := f.Remove(a, true); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	for _, idx := range []int{a, b, c, fileIdx} {
		if f.Node(idx) != nil {
			t.Fatalf("node %d survived a recursive remove of its ancestor", idx)
		}
	}
	if f.Node(RootIndex) == nil {
		t.Fatalf("root was removed along with its descendants")
	}
}

func TestFS_RemoveRootFails(t *testing.T) {
	f := New(fixedClock)
	if err := f.Remove(RootIndex, true); err == nil {
		t.Fatalf("expected an error removing root")
	}
}

func TestFS_NodeAllocationExhaustion(t *testing.T) {
	f := New(fixedClock)
	var last error
	for i := 0; i < MaxNodes+2; i++ {
		_, err := f.Write(RootIndex, fmt.Sprintf("f%d", i), []byte("x"))
		if err != nil {
			last = err
			break
		}
	}
	if !kerrors.IsKind(last, kerrors.KindResource) {
		t.Fatalf("exhaustion err = %v, want KindResource", last)
	}
}
