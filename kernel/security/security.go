// Package security implements the kernel's minimal permission tier: a
// principal that travels with the shell session, and a salted-hash user
// table, per SPEC_FULL.md §3's supplemented permission-tier feature.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sync"

	kerrors "nanosec-go/errors"
)

const (
	// MaxUsers bounds the user table, matching the teacher's static-table
	// resource policy carried into every kernel table.
	MaxUsers = 32

	saltLen = 16
)

// Principal identifies who is running the current shell session.
type Principal struct {
	Name   string
	IsRoot bool
}

// Root is the well-known administrative principal.
var Root = Principal{Name: "root", IsRoot: true}

// RequireRoot rejects a privileged operation for a non-root principal,
// per spec.md §7's "Permission denied" failure clause.
func RequireRoot(p Principal, op string) error {
	if !p.IsRoot {
		return kerrors.WrapWithDetail(kerrors.ErrPermissionDenied, kerrors.KindPermission, op, p.Name)
	}
	return nil
}

type userRecord struct {
	name   string
	salt   []byte
	hash   []byte
	isRoot bool
}

// UserTable is a fixed-size array of user records, password-hashed with a
// per-user salt. This is a non-cryptographic-strength choice by design: the
// Non-goal excludes claiming cryptographic strength, not hashing itself.
type UserTable struct {
	mu    sync.Mutex
	users [MaxUsers]*userRecord
}

// NewUserTable creates an empty table.
func NewUserTable() *UserTable {
	return &UserTable{}
}

func (t *UserTable) indexOf(name string) int {
	for i, u := range t.users {
		if u != nil && u.name == name {
			return i
		}
	}
	return -1
}

// Create adds a new user with the given password, hashed with a fresh
// random salt. Rejects a duplicate name or a full table.
func (t *UserTable) Create(name, password string, isRoot bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.indexOf(name) != -1 {
		return kerrors.Wrap(kerrors.ErrNameExists, kerrors.KindAlreadyExists, "security_create_user")
	}

	slot := -1
	for i, u := range t.users {
		if u == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		return kerrors.New(kerrors.KindResource, "security_create_user", "user table full")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return kerrors.Wrap(err, kerrors.KindInternal, "security_create_user")
	}

	t.users[slot] = &userRecord{
		name:   name,
		salt:   salt,
		hash:   hashPassword(salt, password),
		isRoot: isRoot,
	}
	return nil
}

// Authenticate checks a name/password pair and returns the matching
// Principal on success.
func (t *UserTable) Authenticate(name, password string) (Principal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.indexOf(name)
	if idx == -1 {
		return Principal{}, kerrors.Wrap(kerrors.ErrPermissionDenied, kerrors.KindPermission, "security_authenticate")
	}
	u := t.users[idx]
	got := hashPassword(u.salt, password)
	if subtle.ConstantTimeCompare(got, u.hash) != 1 {
		return Principal{}, kerrors.Wrap(kerrors.ErrPermissionDenied, kerrors.KindPermission, "security_authenticate")
	}
	return Principal{Name: u.name, IsRoot: u.isRoot}, nil
}

// Remove deletes a user by name.
func (t *UserTable) Remove(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx := t.indexOf(name)
	if idx == -1 {
		return kerrors.Wrap(kerrors.ErrUserNotFound, kerrors.KindNotFound, "security_remove_user")
	}
	t.users[idx] = nil
	return nil
}

func hashPassword(salt []byte, password string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	sum := h.Sum(nil)
	return []byte(hex.EncodeToString(sum))
}
