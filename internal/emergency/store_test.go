package emergency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

var storeEpoch = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

func newCandidate(id, requester, patientID string, issuedAt time.Time) *types.EmergencyToken {
	return &types.EmergencyToken{
		ID:          id,
		RequestedBy: requester,
		PatientID:   patientID,
		Reason:      "trauma",
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt.Add(DefaultValidity),
		Status:      types.TokenActive,
		Scope:       types.FullScope(),
	}
}

// runStoreContract exercises behaviour every Store implementation shares
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CreateIfAbsent creates then reuses", func(t *testing.T) {
		s := newStore(t)

		tok, created, err := s.CreateIfAbsent(ctx, newCandidate("t1", "U1", "P1", storeEpoch), storeEpoch)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "t1", tok.ID)

		tok, created, err = s.CreateIfAbsent(ctx, newCandidate("t2", "U1", "P1", storeEpoch.Add(time.Second)), storeEpoch.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "t1", tok.ID)

		_, err = s.Get(ctx, "t2")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("CreateIfAbsent replaces an expired token", func(t *testing.T) {
		s := newStore(t)

		_, _, err := s.CreateIfAbsent(ctx, newCandidate("t1", "U1", "P1", storeEpoch), storeEpoch)
		require.NoError(t, err)

		later := storeEpoch.Add(DefaultValidity)
		tok, created, err := s.CreateIfAbsent(ctx, newCandidate("t2", "U1", "P1", later), later)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "t2", tok.ID)
	})

	t.Run("CreateIfAbsent replaces a revoked token", func(t *testing.T) {
		s := newStore(t)

		_, _, err := s.CreateIfAbsent(ctx, newCandidate("t1", "U1", "P1", storeEpoch), storeEpoch)
		require.NoError(t, err)
		_, err = s.Update(ctx, "t1", func(tok *types.EmergencyToken) error {
			tok.Status = types.TokenRevoked
			return nil
		})
		require.NoError(t, err)

		tok, created, err := s.CreateIfAbsent(ctx, newCandidate("t2", "U1", "P1", storeEpoch), storeEpoch)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "t2", tok.ID)
	})

	t.Run("Get round trips", func(t *testing.T) {
		s := newStore(t)
		want := newCandidate("t1", "U1", "P1", storeEpoch)

		_, _, err := s.CreateIfAbsent(ctx, want, storeEpoch)
		require.NoError(t, err)

		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, want.RequestedBy, got.RequestedBy)
		assert.Equal(t, want.PatientID, got.PatientID)
		assert.Equal(t, want.Reason, got.Reason)
		assert.True(t, want.IssuedAt.Equal(got.IssuedAt))
		assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
		assert.Equal(t, types.TokenActive, got.Status)
		assert.Equal(t, types.FullScope(), got.Scope)
		assert.Nil(t, got.LastUsedAt)
	})

	t.Run("Get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("Update persists", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.CreateIfAbsent(ctx, newCandidate("t1", "U1", "P1", storeEpoch), storeEpoch)
		require.NoError(t, err)

		used := storeEpoch.Add(time.Minute)
		tok, err := s.Update(ctx, "t1", func(tok *types.EmergencyToken) error {
			tok.TimesUsed++
			tok.LastUsedAt = &used
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, tok.TimesUsed)

		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.TimesUsed)
		require.NotNil(t, got.LastUsedAt)
		assert.True(t, used.Equal(*got.LastUsedAt))
	})

	t.Run("Update with ErrUnchanged leaves token", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.CreateIfAbsent(ctx, newCandidate("t1", "U1", "P1", storeEpoch), storeEpoch)
		require.NoError(t, err)

		tok, err := s.Update(ctx, "t1", func(tok *types.EmergencyToken) error {
			tok.TimesUsed = 99
			return ErrUnchanged
		})
		require.NoError(t, err)
		assert.Equal(t, 0, tok.TimesUsed)

		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, 0, got.TimesUsed)
	})

	t.Run("Update rejects reactivation", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.CreateIfAbsent(ctx, newCandidate("t1", "U1", "P1", storeEpoch), storeEpoch)
		require.NoError(t, err)

		_, err = s.Update(ctx, "t1", func(tok *types.EmergencyToken) error {
			tok.Status = types.TokenExpired
			return nil
		})
		require.NoError(t, err)

		_, err = s.Update(ctx, "t1", func(tok *types.EmergencyToken) error {
			tok.Status = types.TokenActive
			return nil
		})
		assert.Error(t, err)

		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, types.TokenExpired, got.Status)
	})

	t.Run("Update missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Update(ctx, "nope", func(*types.EmergencyToken) error { return nil })
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("ListByRequester newest first", func(t *testing.T) {
		s := newStore(t)
		for i, pid := range []string{"P1", "P2", "P3"} {
			at := storeEpoch.Add(time.Duration(i) * time.Minute)
			_, _, err := s.CreateIfAbsent(ctx, newCandidate("t"+pid, "U1", pid, at), at)
			require.NoError(t, err)
		}
		_, _, err := s.CreateIfAbsent(ctx, newCandidate("other", "U2", "P1", storeEpoch), storeEpoch)
		require.NoError(t, err)

		tokens, err := s.ListByRequester(ctx, "U1")
		require.NoError(t, err)
		require.Len(t, tokens, 3)
		assert.Equal(t, "tP3", tokens[0].ID)
		assert.Equal(t, "tP2", tokens[1].ID)
		assert.Equal(t, "tP1", tokens[2].ID)

		empty, err := s.ListByRequester(ctx, "U9")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("concurrent updates are serialized", func(t *testing.T) {
		s := newStore(t)
		_, _, err := s.CreateIfAbsent(ctx, newCandidate("t1", "U1", "P1", storeEpoch), storeEpoch)
		require.NoError(t, err)

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Update(ctx, "t1", func(tok *types.EmergencyToken) error {
					tok.TimesUsed++
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, workers, got.TimesUsed)
	})

	t.Run("concurrent issuance creates one token", func(t *testing.T) {
		s := newStore(t)

		const workers = 20
		var wg sync.WaitGroup
		var mu sync.Mutex
		created := 0
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := "t" + string(rune('a'+i))
				_, ok, err := s.CreateIfAbsent(ctx, newCandidate(id, "U1", "P1", storeEpoch), storeEpoch)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, created)
		tokens, err := s.ListByRequester(ctx, "U1")
		require.NoError(t, err)
		assert.Len(t, tokens, 1)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	candidate := newCandidate("t1", "U1", "P1", storeEpoch)
	tok, _, err := s.CreateIfAbsent(ctx, candidate, storeEpoch)
	require.NoError(t, err)

	tok.TimesUsed = 42
	candidate.Status = types.TokenRevoked

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.TimesUsed)
	assert.Equal(t, types.TokenActive, got.Status)
}

func TestCheckTransition(t *testing.T) {
	base := newCandidate("t1", "U1", "P1", storeEpoch)

	tests := []struct {
		name    string
		mutate  func(*types.EmergencyToken)
		from    types.TokenStatus
		wantErr bool
	}{
		{"no change", func(*types.EmergencyToken) {}, types.TokenActive, false},
		{"usage increment", func(t *types.EmergencyToken) { t.TimesUsed++ }, types.TokenActive, false},
		{"active to expired", func(t *types.EmergencyToken) { t.Status = types.TokenExpired }, types.TokenActive, false},
		{"active to revoked", func(t *types.EmergencyToken) { t.Status = types.TokenRevoked }, types.TokenActive, false},
		{"expired to revoked", func(t *types.EmergencyToken) { t.Status = types.TokenRevoked }, types.TokenExpired, false},
		{"expired to active", func(t *types.EmergencyToken) { t.Status = types.TokenActive }, types.TokenExpired, true},
		{"revoked to active", func(t *types.EmergencyToken) { t.Status = types.TokenActive }, types.TokenRevoked, true},
		{"revoked to expired", func(t *types.EmergencyToken) { t.Status = types.TokenExpired }, types.TokenRevoked, true},
		{"usage decrement", func(t *types.EmergencyToken) { t.TimesUsed = -1 }, types.TokenActive, true},
		{"identity change", func(t *types.EmergencyToken) { t.PatientID = "P2" }, types.TokenActive, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := base.Clone()
			before.Status = tt.from
			after := before.Clone()
			tt.mutate(after)

			err := checkTransition(before, after)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("a")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
	assert.Empty(t, k.locks)

	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
	unlockA()
}
