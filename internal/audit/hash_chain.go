package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// LastHasher is implemented by sinks that can report the hash of their most
// recent entry, so a chain can resume after restart
type LastHasher interface {
	LastHash(ctx context.Context) (string, error)
}

// ComputeEntryHash computes the SHA-256 hash of an entry over its content and
// PrevHash
// Hash = SHA256(timestamp + action + actor + resource + granted + emergency + origin + details + prev_hash)
func ComputeEntryHash(e *types.AuditEntry) (string, error) {
	hashInput := struct {
		ID           string                 `json:"id"`
		Timestamp    string                 `json:"timestamp"`
		Action       string                 `json:"action"`
		Actor        string                 `json:"actor"`
		ResourceType string                 `json:"resource_type"`
		ResourceID   string                 `json:"resource_id"`
		Granted      bool                   `json:"granted"`
		Emergency    bool                   `json:"emergency"`
		Origin       string                 `json:"origin,omitempty"`
		Details      map[string]interface{} `json:"details,omitempty"`
		PrevHash     string                 `json:"prev_hash"`
	}{
		ID:           e.ID,
		Timestamp:    e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		Action:       string(e.Action),
		Actor:        e.Actor,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Granted:      e.Granted,
		Emergency:    e.Emergency,
		Origin:       e.Origin,
		Details:      e.Details,
		PrevHash:     e.PrevHash,
	}

	// map keys are sorted by encoding/json, so the encoding is deterministic
	jsonData, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry for hashing: %w", err)
	}

	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// ChainedSink links every appended entry to its predecessor by hash before
// passing it on. Appends are serialized so the chain has a single order.
type ChainedSink struct {
	mu       sync.Mutex
	next     Sink
	lastHash string
}

// NewChainedSink wraps next. If next can report its last hash the chain
// continues from it.
func NewChainedSink(ctx context.Context, next Sink) (*ChainedSink, error) {
	s := &ChainedSink{next: next}
	if lh, ok := next.(LastHasher); ok {
		hash, err := lh.LastHash(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load last audit hash: %w", err)
		}
		s.lastHash = hash
	}
	return s, nil
}

// Append sets PrevHash and Hash on the entry and forwards it. The chain only
// advances when the inner sink accepts the entry.
func (s *ChainedSink) Append(ctx context.Context, entry *types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignID(entry)
	entry.PrevHash = s.lastHash
	hash, err := ComputeEntryHash(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrAuditWrite, err)
	}
	entry.Hash = hash

	if err := s.next.Append(ctx, entry); err != nil {
		return err
	}
	s.lastHash = hash
	return nil
}

// LastHash returns the hash of the last accepted entry
func (s *ChainedSink) LastHash(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHash, nil
}

// Close closes the inner sink
func (s *ChainedSink) Close() error {
	return Close(s.next)
}

// VerifyChain verifies the integrity of entries in append order. The first
// entry may link to any predecessor.
func VerifyChain(entries []*types.AuditEntry) error {
	prev := ""
	for i, e := range entries {
		computed, err := ComputeEntryHash(e)
		if err != nil {
			return fmt.Errorf("failed to verify entry %d: %w", i, err)
		}
		if computed != e.Hash {
			return fmt.Errorf("entry %d (%s) has invalid hash", i, e.ID)
		}
		if i > 0 && e.PrevHash != prev {
			return fmt.Errorf("entry %d (%s) has broken chain: expected prev_hash %s, got %s",
				i, e.ID, prev, e.PrevHash)
		}
		prev = e.Hash
	}
	return nil
}
