// Package fs implements the kernel's hierarchical RAM filesystem: a flat,
// parent-indexed node array with path resolution, per spec.md §4.9.
package fs

import (
	"strings"
	"sync"
	"time"

	kerrors "nanosec-go/errors"
)

const (
	// MaxNameLen is a node's fixed name-field size, per spec.md §3.
	MaxNameLen = 31

	// MaxNodes bounds the filesystem node array.
	MaxNodes = 256

	// MaxDataLen is a file's fixed data slot size; writes truncate here.
	MaxDataLen = 4096

	// RootIndex is the filesystem root's fixed array slot.
	RootIndex = 0

	noParent = -1
)

// NodeType is one of FREE, FILE, or DIR, per spec.md §3.
type NodeType int

const (
	TypeFree NodeType = iota
	TypeFile
	TypeDir
)

// Node is one entry in the flat, parent-indexed node array.
type Node struct {
	Name     string
	Type     NodeType
	Parent   int // -1 for the root
	Data     []byte
	Created  time.Time
	Modified time.Time
}

// FS is the node array plus a mutex, per spec.md §5's "filesystem node
// array" being one of the process-wide structures mutated without locking
// on the original single-CPU target.
type FS struct {
	mu    sync.Mutex
	nodes [MaxNodes]*Node
	clock func() time.Time
}

// New creates a filesystem with just the root directory present.
func New(clock func() time.Time) *FS {
	if clock == nil {
		clock = time.Now
	}
	f := &FS{clock: clock}
	now := clock()
	f.nodes[RootIndex] = &Node{Name: "/", Type: TypeDir, Parent: noParent, Created: now, Modified: now}
	return f
}

func (f *FS) alloc() (int, error) {
	for i := 1; i < MaxNodes; i++ {
		if f.nodes[i] == nil {
			return i, nil
		}
	}
	return 0, kerrors.Wrap(kerrors.ErrNoFSNodes, kerrors.KindResource, "fs_alloc")
}

// childNamed returns the index of dirIdx's child named name, or -1.
func (f *FS) childNamed(dirIdx int, name string) int {
	for i, n := range f.nodes {
		if n != nil && n.Parent == dirIdx && n.Name == name {
			return i
		}
	}
	return -1
}

// Resolve walks path (absolute from RootIndex, or relative from cwd) and
// returns the resolved node's index. `.` is skipped, `..` walks Parent one
// step (stopping at root), any other component must match a child name.
func (f *FS) Resolve(cwd int, path string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveLocked(cwd, path)
}

func (f *FS) resolveLocked(cwd int, path string) (int, error) {
	cur := cwd
	if strings.HasPrefix(path, "/") {
		cur = RootIndex
	}
	for _, comp := range strings.Split(path, "/") {
		if comp == "" || comp == "." {
			continue
		}
		if comp == ".." {
			if f.nodes[cur].Parent != noParent {
				cur = f.nodes[cur].Parent
			}
			continue
		}
		next := f.childNamed(cur, comp)
		if next == -1 {
			return 0, kerrors.Wrap(kerrors.ErrNodeNotFound, kerrors.KindNotFound, "fs_resolve")
		}
		cur = next
	}
	return cur, nil
}

// Mkdir creates a directory named name under the directory at dirIdx.
func (f *FS) Mkdir(dirIdx int, name string) (int, error) {
	return f.createChild(dirIdx, name, TypeDir)
}

func (f *FS) createChild(dirIdx int, name string, typ NodeType) (int, error) {
	if len(name) > MaxNameLen {
		return 0, kerrors.New(kerrors.KindInvalidConfig, "fs_create", "name too long")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	parent := f.nodes[dirIdx]
	if parent == nil || parent.Type != TypeDir {
		return 0, kerrors.Wrap(kerrors.ErrNotADirectory, kerrors.KindInvalidState, "fs_create")
	}
	if f.childNamed(dirIdx, name) != -1 {
		return 0, kerrors.Wrap(kerrors.ErrNameExists, kerrors.KindAlreadyExists, "fs_create")
	}

	idx, err := f.alloc()
	if err != nil {
		return 0, err
	}
	now := f.clock()
	f.nodes[idx] = &Node{Name: name, Type: typ, Parent: dirIdx, Created: now, Modified: now}
	return idx, nil
}

// Write creates the file named name under dirIdx if missing, then
// overwrites its data (truncated to MaxDataLen).
func (f *FS) Write(dirIdx int, name string, data []byte) (int, error) {
	f.mu.Lock()
	existing := f.childNamed(dirIdx, name)
	f.mu.Unlock()

	idx := existing
	if idx == -1 {
		var err error
		idx, err = f.createChild(dirIdx, name, TypeFile)
		if err != nil {
			return 0, err
		}
	}

	if len(data) > MaxDataLen {
		data = data[:MaxDataLen]
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nodes[idx]
	if n.Type != TypeFile {
		return 0, kerrors.New(kerrors.KindInvalidState, "fs_write", "not a file")
	}
	n.Data = append([]byte(nil), data...)
	n.Modified = f.clock()
	return idx, nil
}

// Read returns a file node's data.
func (f *FS) Read(idx int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nodes[idx]
	if n == nil || n.Type != TypeFile {
		return nil, kerrors.Wrap(kerrors.ErrNodeNotFound, kerrors.KindNotFound, "fs_read")
	}
	return append([]byte(nil), n.Data...), nil
}

// ChildNames returns the names of dirIdx's immediate children, unordered.
func (f *FS) ChildNames(dirIdx int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, n := range f.nodes {
		if n != nil && n.Parent == dirIdx {
			names = append(names, n.Name)
		}
	}
	return names
}

// Node returns a snapshot of the node at idx, or nil.
func (f *FS) Node(idx int) *Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.nodes[idx]
	if n == nil {
		return nil
	}
	cp := *n
	return &cp
}

// Remove deletes the node at idx. If it's a directory and recursive is
// true, it performs a proper DFS sweep over the node array, removing every
// descendant regardless of depth — spec.md §9's REDESIGN FLAG against the
// original's one-level sweep, fixed here rather than reproduced.
func (f *FS) Remove(idx int, recursive bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.nodes[idx]
	if n == nil {
		return kerrors.Wrap(kerrors.ErrNodeNotFound, kerrors.KindNotFound, "fs_remove")
	}
	if idx == RootIndex {
		return kerrors.New(kerrors.KindInvalidState, "fs_remove", "cannot remove root")
	}

	if n.Type == TypeDir {
		hasChildren := false
		for _, c := range f.nodes {
			if c != nil && c.Parent == idx {
				hasChildren = true
				break
			}
		}
		if hasChildren && !recursive {
			return kerrors.New(kerrors.KindInvalidState, "fs_remove", "directory not empty")
		}
		if recursive {
			f.removeSubtreeLocked(idx)
		}
	}
	f.nodes[idx] = nil
	return nil
}

// removeSubtreeLocked clears every node transitively parented under idx.
// Must be called with f.mu held.
func (f *FS) removeSubtreeLocked(idx int) {
	var stack []int
	for i, n := range f.nodes {
		if n != nil && n.Parent == idx {
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for i, n := range f.nodes {
			if n != nil && n.Parent == cur {
				stack = append(stack, i)
			}
		}
		f.nodes[cur] = nil
	}
}
