package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var limiterEpoch = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time           { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DefaultRPS = 4
	cfg.EmergencyRPS = 1
	cfg.BurstFactor = 2
	return cfg
}

func newRedisLimiter(t *testing.T, clock *fakeClock) *RedisLimiter {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:             s.Addr(),
		DisableIndentity: true,
	})
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, testConfig()).WithClock(clock.Now)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "disabled ignores values", modify: func(c *Config) { c.Enabled = false; c.Backend = "bogus" }},
		{name: "unknown backend", modify: func(c *Config) { c.Backend = "bogus" }, wantErr: true},
		{name: "zero rate", modify: func(c *Config) { c.EmergencyRPS = 0 }, wantErr: true},
		{name: "zero burst factor", modify: func(c *Config) { c.BurstFactor = 0 }, wantErr: true},
		{name: "zero window", modify: func(c *Config) { c.Window = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Limits(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, 1, cfg.GetLimit(PrefixEmergency+"U1"))
	assert.Equal(t, 4, cfg.GetLimit(PrefixUser+"U1"))
	assert.Equal(t, 2, cfg.GetBurst(PrefixEmergency+"U1"))
	assert.Equal(t, 8, cfg.GetBurst(PrefixUser+"U1"))
}

// runLimiterContract checks bucket behavior shared by every backend
func runLimiterContract(t *testing.T, newLimiter func(t *testing.T, clock *fakeClock) Limiter) {
	ctx := context.Background()

	t.Run("burst then deny", func(t *testing.T) {
		clock := &fakeClock{now: limiterEpoch}
		l := newLimiter(t, clock)
		key := PrefixEmergency + "U1"

		for i := 0; i < 2; i++ {
			allowed, _, _, err := l.Allow(ctx, key)
			require.NoError(t, err)
			assert.True(t, allowed, "request %d", i)
		}

		allowed, remaining, reset, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)
		assert.True(t, reset.After(clock.Now()))
	})

	t.Run("refills over time", func(t *testing.T) {
		clock := &fakeClock{now: limiterEpoch}
		l := newLimiter(t, clock)
		key := PrefixEmergency + "U2"

		for i := 0; i < 2; i++ {
			allowed, _, _, err := l.Allow(ctx, key)
			require.NoError(t, err)
			require.True(t, allowed)
		}
		allowed, _, _, err := l.Allow(ctx, key)
		require.NoError(t, err)
		require.False(t, allowed)

		clock.Advance(time.Second)
		allowed, _, _, err = l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("keys are independent", func(t *testing.T) {
		clock := &fakeClock{now: limiterEpoch}
		l := newLimiter(t, clock)

		for i := 0; i < 2; i++ {
			_, _, _, err := l.Allow(ctx, PrefixEmergency+"U3")
			require.NoError(t, err)
		}
		allowed, _, _, err := l.Allow(ctx, PrefixEmergency+"U4")
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("remaining counts down", func(t *testing.T) {
		clock := &fakeClock{now: limiterEpoch}
		l := newLimiter(t, clock)
		key := PrefixUser + "U5"

		_, remaining, _, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 7, remaining)
		_, remaining, _, err = l.Allow(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 6, remaining)
	})

	t.Run("reset refills the bucket", func(t *testing.T) {
		clock := &fakeClock{now: limiterEpoch}
		l := newLimiter(t, clock)
		key := PrefixEmergency + "U6"

		for i := 0; i < 3; i++ {
			_, _, _, err := l.Allow(ctx, key)
			require.NoError(t, err)
		}
		require.NoError(t, l.Reset(ctx, key))

		allowed, _, _, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, allowed)
	})
}

func TestMemoryLimiter(t *testing.T) {
	runLimiterContract(t, func(t *testing.T, clock *fakeClock) Limiter {
		return NewMemoryLimiter(testConfig()).WithClock(clock.Now)
	})
}

func TestRedisLimiter(t *testing.T) {
	runLimiterContract(t, func(t *testing.T, clock *fakeClock) Limiter {
		return newRedisLimiter(t, clock)
	})
}

func TestRedisLimiter_BackendFailure(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		failOpen    bool
		wantAllowed bool
		wantErr     bool
	}{
		{name: "fail open", failOpen: true, wantAllowed: true},
		{name: "fail closed", failOpen: false, wantAllowed: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{
				Addr:             s.Addr(),
				DisableIndentity: true,
				MaxRetries:       -1,
			})
			t.Cleanup(func() { client.Close() })
			s.Close()

			cfg := testConfig()
			cfg.FailOpen = tt.failOpen
			l := NewRedisLimiter(client, cfg)

			allowed, _, _, err := l.Allow(ctx, PrefixUser+"U1")
			assert.Equal(t, tt.wantAllowed, allowed)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedisLimiter_ResetError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cfg := testConfig()
	l := NewRedisLimiter(client, cfg)

	mock.ExpectDel(cfg.KeyPrefix + ":" + PrefixUser + "U1").SetErr(assert.AnError)
	err := l.Reset(context.Background(), PrefixUser+"U1")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
