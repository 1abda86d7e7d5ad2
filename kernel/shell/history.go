package shell

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// historySize and auditSize are the bounded ring capacities, per
// SPEC_FULL.md §3's supplemented audit log (distinct from interactive
// history, per original_source/kernel/history.c).
const (
	historySize = 256
	auditSize   = 256
)

// Entry is one recorded command, interactive or audited.
type Entry struct {
	ID        xid.ID
	Line      string
	Principal string
	Time      time.Time
}

// History holds the interactive command history and the separate audit
// log, both bounded rings. Each entry gets an xid.ID, returned by Record
// and printed by the audit command; nothing else in the shell refers to
// it. This is ambient tooling the original never had, not a protocol
// requirement.
type History struct {
	mu      sync.Mutex
	history []Entry
	audit   []Entry
	now     func() time.Time
}

// NewHistory creates an empty history/audit log pair.
func NewHistory(now func() time.Time) *History {
	if now == nil {
		now = time.Now
	}
	return &History{now: now}
}

// Record appends line to both the interactive history and the audit log,
// per spec.md §4.8's "records... into history and the audit log".
func (h *History) Record(line, principal string) xid.ID {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := Entry{ID: xid.New(), Line: line, Principal: principal, Time: h.now()}
	h.history = appendBounded(h.history, e, historySize)
	h.audit = appendBounded(h.audit, e, auditSize)
	return e.ID
}

func appendBounded(ring []Entry, e Entry, max int) []Entry {
	ring = append(ring, e)
	if len(ring) > max {
		ring = ring[len(ring)-max:]
	}
	return ring
}

// History returns a snapshot of the interactive history, oldest first.
func (h *History) History() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.history))
	copy(out, h.history)
	return out
}

// Audit returns a snapshot of the audit log, oldest first.
func (h *History) Audit() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.audit))
	copy(out, h.audit)
	return out
}
