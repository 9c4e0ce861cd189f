package audit

import (
	"context"
	"sync"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// MemorySink keeps entries in process memory. Used in tests and for the
// local development server.
type MemorySink struct {
	mu      sync.RWMutex
	entries []*types.AuditEntry
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append stores a copy of the entry
func (s *MemorySink) Append(_ context.Context, entry *types.AuditEntry) error {
	assignID(entry)
	cp := copyEntry(entry)

	s.mu.Lock()
	s.entries = append(s.entries, cp)
	s.mu.Unlock()
	return nil
}

// Entries returns all entries in append order
func (s *MemorySink) Entries() []*types.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.AuditEntry, len(s.entries))
	for i, e := range s.entries {
		out[i] = copyEntry(e)
	}
	return out
}

// Len returns the number of stored entries
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Count returns how many entries carry action
func (s *MemorySink) Count(action types.AuditAction) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if e.Action == action {
			n++
		}
	}
	return n
}

// Query returns matching entries, most recent first
func (s *MemorySink) Query(_ context.Context, q *types.AuditQuery) ([]*types.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !q.Matches(e) {
			continue
		}
		out = append(out, copyEntry(e))
		if q != nil && q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// LastHash returns the hash of the most recent entry
func (s *MemorySink) LastHash(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 {
		return "", nil
	}
	return s.entries[len(s.entries)-1].Hash, nil
}

func copyEntry(e *types.AuditEntry) *types.AuditEntry {
	cp := *e
	if e.Details != nil {
		cp.Details = make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			cp.Details[k] = v
		}
	}
	return &cp
}
