package emergency

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// MemoryStore keeps tokens in process memory. Issuance holds the store lock
// for the whole check-then-create; updates hold a per-token lock so callbacks
// never run under the store lock.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*types.EmergencyToken
	// newest token id per (requester, patient) pair
	latest map[string]string

	tokenLocks *keyedMutex
}

// NewMemoryStore creates an empty in-memory token store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:     make(map[string]*types.EmergencyToken),
		latest:     make(map[string]string),
		tokenLocks: newKeyedMutex(),
	}
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, candidate *types.EmergencyToken, now time.Time) (*types.EmergencyToken, bool, error) {
	key := pairKey(candidate.RequestedBy, candidate.PatientID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.latest[key]; ok {
		if existing := s.tokens[id]; existing != nil && existing.IsValidAt(now) {
			return existing.Clone(), false, nil
		}
	}

	s.tokens[candidate.ID] = candidate.Clone()
	s.latest[key] = candidate.ID
	return candidate.Clone(), true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*types.EmergencyToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return tok.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*types.EmergencyToken) error) (*types.EmergencyToken, error) {
	unlock := s.tokenLocks.Lock(id)
	defer unlock()

	s.mu.RLock()
	current, ok := s.tokens[id]
	s.mu.RUnlock()
	if !ok {
		return nil, types.ErrNotFound
	}

	next, changed, err := applyUpdate(current, fn)
	if err != nil {
		return nil, err
	}
	if changed {
		s.mu.Lock()
		s.tokens[id] = next.Clone()
		s.mu.Unlock()
	}
	return next, nil
}

func (s *MemoryStore) ListByRequester(_ context.Context, requester string) ([]*types.EmergencyToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.EmergencyToken
	for _, tok := range s.tokens {
		if tok.RequestedBy == requester {
			out = append(out, tok.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(tokens []*types.EmergencyToken) {
	sort.SliceStable(tokens, func(i, j int) bool {
		if tokens[i].IssuedAt.Equal(tokens[j].IssuedAt) {
			return tokens[i].ID > tokens[j].ID
		}
		return tokens[i].IssuedAt.After(tokens[j].IssuedAt)
	})
}
