// Package emergency implements the emergency access token lifecycle: issue,
// validate, revoke and the read-only check used to upgrade a request to
// emergency status
package emergency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// ErrUnchanged may be returned from an Update callback to leave the token as
// it is. Update then returns the current token and a nil error.
var ErrUnchanged = errors.New("token unchanged")

// Store persists emergency tokens. Implementations serialize read-modify-write
// sequences per token id, and issuance per (requester, patient) pair.
type Store interface {
	// CreateIfAbsent stores candidate unless the requester already holds a
	// token for the same patient that is valid at now. In that case the
	// existing token is returned and created is false.
	CreateIfAbsent(ctx context.Context, candidate *types.EmergencyToken, now time.Time) (tok *types.EmergencyToken, created bool, err error)

	// Get returns the token or types.ErrNotFound
	Get(ctx context.Context, id string) (*types.EmergencyToken, error)

	// Update applies fn to a copy of the token under the token's lock and
	// persists the result if fn returns nil
	Update(ctx context.Context, id string, fn func(*types.EmergencyToken) error) (*types.EmergencyToken, error)

	// ListByRequester returns every token issued to requester, newest first
	ListByRequester(ctx context.Context, requester string) ([]*types.EmergencyToken, error)
}

// checkTransition rejects updates that would break token monotonicity
func checkTransition(before, after *types.EmergencyToken) error {
	if after.ID != before.ID || after.RequestedBy != before.RequestedBy || after.PatientID != before.PatientID {
		return fmt.Errorf("token identity cannot change")
	}
	if after.TimesUsed < before.TimesUsed {
		return fmt.Errorf("times_used cannot decrease (%d -> %d)", before.TimesUsed, after.TimesUsed)
	}
	if before.Status == after.Status {
		return nil
	}
	switch {
	case before.Status == types.TokenActive:
		return nil
	case before.Status == types.TokenExpired && after.Status == types.TokenRevoked:
		return nil
	default:
		return fmt.Errorf("invalid status transition %s -> %s", before.Status, after.Status)
	}
}

// applyUpdate runs fn on a copy of current and validates the result. The
// returned bool is false when fn left the token unchanged.
func applyUpdate(current *types.EmergencyToken, fn func(*types.EmergencyToken) error) (*types.EmergencyToken, bool, error) {
	next := current.Clone()
	if err := fn(next); err != nil {
		if errors.Is(err, ErrUnchanged) {
			return current.Clone(), false, nil
		}
		return nil, false, err
	}
	if err := checkTransition(current, next); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

func pairKey(requester, patientID string) string {
	return requester + "\x00" + patientID
}

// keyedMutex hands out one mutex per key and forgets it once unused
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock locks key and returns the matching unlock function
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
