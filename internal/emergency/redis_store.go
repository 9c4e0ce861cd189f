package emergency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// RedisConfig contains Redis connection configuration for the token store
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`

	// Key prefix for namespacing
	KeyPrefix string `mapstructure:"key_prefix"`

	// MaxRetries bounds optimistic transaction retries on contention
	MaxRetries int `mapstructure:"max_retries"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultRedisConfig returns a configuration with sensible defaults
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		KeyPrefix:    "ehr:",
		MaxRetries:   10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Validate checks the configuration for validity
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("redis pool_size must be non-negative")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("redis max_retries must be greater than 0")
	}
	return nil
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisStore keeps tokens in Redis. Read-modify-write sequences run as
// WATCH/MULTI transactions and are retried when a watched key changes.
//
// Keys:
//
//	{prefix}eat:token:{id}                 token JSON, no TTL
//	{prefix}eat:requester:{requester}      set of token ids
//	{prefix}eat:active:{requester}:{pid}   id of the newest token for the pair, expires with it
type RedisStore struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

// NewRedisStore creates a store over an existing client
func NewRedisStore(client redis.UniversalClient, keyPrefix string, maxRetries int) *RedisStore {
	if maxRetries <= 0 {
		maxRetries = 10
	}
	return &RedisStore{client: client, prefix: keyPrefix, maxRetries: maxRetries}
}

func (s *RedisStore) tokenKey(id string) string {
	return s.prefix + "eat:token:" + id
}

func (s *RedisStore) requesterKey(requester string) string {
	return s.prefix + "eat:requester:" + requester
}

func (s *RedisStore) activeKey(requester, patientID string) string {
	return s.prefix + "eat:active:" + requester + ":" + patientID
}

// watch runs fn in a WATCH transaction, retrying on contention
func (s *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("token store transaction failed after %d attempts: %w", s.maxRetries, redis.TxFailedErr)
}

func (s *RedisStore) CreateIfAbsent(ctx context.Context, candidate *types.EmergencyToken, now time.Time) (*types.EmergencyToken, bool, error) {
	activeKey := s.activeKey(candidate.RequestedBy, candidate.PatientID)

	var (
		result  *types.EmergencyToken
		created bool
	)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		existingID, err := tx.Get(ctx, activeKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read active token: %w", err)
		}
		if existingID != "" {
			existing, err := s.load(ctx, tx, existingID)
			if err != nil && !errors.Is(err, types.ErrNotFound) {
				return err
			}
			if existing != nil && existing.IsValidAt(now) {
				result, created = existing, false
				return nil
			}
		}

		data, err := json.Marshal(candidate)
		if err != nil {
			return fmt.Errorf("failed to marshal token: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.tokenKey(candidate.ID), data, 0)
			pipe.SAdd(ctx, s.requesterKey(candidate.RequestedBy), candidate.ID)
			// relative TTL; the server clock may differ from now
			pipe.Set(ctx, activeKey, candidate.ID, activeTTL(candidate, now))
			return nil
		})
		if err != nil {
			return err
		}
		result, created = candidate.Clone(), true
		return nil
	}, activeKey)
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// activeTTL is the token's remaining validity at now. A non-positive value
// leaves the pointer without expiry; IsValidAt still guards reuse.
func activeTTL(tok *types.EmergencyToken, now time.Time) time.Duration {
	if ttl := tok.ExpiresAt.Sub(now); ttl > 0 {
		return ttl
	}
	return 0
}

func (s *RedisStore) Get(ctx context.Context, id string) (*types.EmergencyToken, error) {
	return s.load(ctx, s.client, id)
}

// getter is satisfied by both clients and transactions
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c getter, id string) (*types.EmergencyToken, error) {
	data, err := c.Get(ctx, s.tokenKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var tok types.EmergencyToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token %s: %w", id, err)
	}
	return &tok, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*types.EmergencyToken) error) (*types.EmergencyToken, error) {
	key := s.tokenKey(id)

	var result *types.EmergencyToken
	err := s.watch(ctx, func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}

		next, changed, err := applyUpdate(current, fn)
		if err != nil {
			return err
		}
		if !changed {
			result = next
			return nil
		}

		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal token: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *RedisStore) ListByRequester(ctx context.Context, requester string) ([]*types.EmergencyToken, error) {
	ids, err := s.client.SMembers(ctx, s.requesterKey(requester)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.tokenKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}

	out := make([]*types.EmergencyToken, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var tok types.EmergencyToken
		if err := json.Unmarshal([]byte(str), &tok); err != nil {
			return nil, fmt.Errorf("failed to unmarshal token %s: %w", ids[i], err)
		}
		out = append(out, &tok)
	}
	sortNewestFirst(out)
	return out, nil
}
