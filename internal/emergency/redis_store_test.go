package emergency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// setupMiniredisStore creates a RedisStore backed by an in-process server
func setupMiniredisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	s.SetTime(storeEpoch)

	// Disable CLIENT SETINFO for miniredis compatibility
	client := redis.NewClient(&redis.Options{
		Addr:             s.Addr(),
		DisableIndentity: true,
	})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, "test:", 1000), s
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		store, _ := setupMiniredisStore(t)
		return store
	})
}

func TestRedisStore_Keys(t *testing.T) {
	ctx := context.Background()
	store, s := setupMiniredisStore(t)

	_, _, err := store.CreateIfAbsent(ctx, newCandidate("t1", "U1", "P1", storeEpoch), storeEpoch)
	require.NoError(t, err)

	assert.True(t, s.Exists("test:eat:token:t1"))
	members, err := s.Members("test:eat:requester:U1")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, members)

	active, err := s.Get("test:eat:active:U1:P1")
	require.NoError(t, err)
	assert.Equal(t, "t1", active)
	assert.Equal(t, DefaultValidity, s.TTL("test:eat:active:U1:P1"))

	// the pointer key lapses with the token; the token itself stays
	s.FastForward(DefaultValidity + time.Second)
	assert.False(t, s.Exists("test:eat:active:U1:P1"))
	assert.True(t, s.Exists("test:eat:token:t1"))
}

func TestRedisStore_ActiveKeyIgnoresServerClockSkew(t *testing.T) {
	tests := []struct {
		name string
		skew time.Duration
	}{
		{name: "server ahead", skew: time.Hour},
		{name: "server behind", skew: -time.Hour},
		{name: "server slightly ahead", skew: 9 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, s := setupMiniredisStore(t)
			s.SetTime(storeEpoch.Add(tt.skew))

			_, created, err := store.CreateIfAbsent(ctx, newCandidate("t1", "U1", "P1", storeEpoch), storeEpoch)
			require.NoError(t, err)
			require.True(t, created)
			assert.Equal(t, DefaultValidity, s.TTL("test:eat:active:U1:P1"))

			later := storeEpoch.Add(5 * time.Minute)
			tok, created, err := store.CreateIfAbsent(ctx, newCandidate("t2", "U1", "P1", later), later)
			require.NoError(t, err)
			assert.False(t, created, "a still-valid token must be reused")
			assert.Equal(t, "t1", tok.ID)
		})
	}
}

func TestRedisStore_CorruptToken(t *testing.T) {
	ctx := context.Background()
	store, s := setupMiniredisStore(t)

	require.NoError(t, s.Set("test:eat:token:bad", "{not json"))

	_, err := store.Get(ctx, "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrNotFound)
}

func TestRedisStore_ConnectionErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")

	tests := []struct {
		name      string
		setupMock func(mock redismock.ClientMock)
		run       func(s *RedisStore) error
	}{
		{
			name: "get",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectGet("ehr:eat:token:t1").SetErr(boom)
			},
			run: func(s *RedisStore) error {
				_, err := s.Get(ctx, "t1")
				return err
			},
		},
		{
			name: "list members",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectSMembers("ehr:eat:requester:U1").SetErr(boom)
			},
			run: func(s *RedisStore) error {
				_, err := s.ListByRequester(ctx, "U1")
				return err
			},
		},
		{
			name: "list load",
			setupMock: func(mock redismock.ClientMock) {
				mock.ExpectSMembers("ehr:eat:requester:U1").SetVal([]string{"t1"})
				mock.ExpectMGet("ehr:eat:token:t1").SetErr(boom)
			},
			run: func(s *RedisStore) error {
				_, err := s.ListByRequester(ctx, "U1")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := redismock.NewClientMock()
			tt.setupMock(mock)

			err := tt.run(NewRedisStore(client, "ehr:", 3))
			assert.ErrorIs(t, err, boom)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedisStore_GetMissingIsNotFound(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectGet("ehr:eat:token:t1").RedisNil()

	_, err := NewRedisStore(client, "ehr:", 3).Get(context.Background(), "t1")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RedisConfig)
		wantErr bool
	}{
		{"defaults", func(*RedisConfig) {}, false},
		{"missing addr", func(c *RedisConfig) { c.Addr = "" }, true},
		{"negative pool", func(c *RedisConfig) { c.PoolSize = -1 }, true},
		{"zero retries", func(c *RedisConfig) { c.MaxRetries = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRedisConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
