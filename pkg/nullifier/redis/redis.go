package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/subset-labs/zk-membership-go/pkg/nullifier"
)

const (
	// defaultKeyPrefix namespaces all registry keys
	defaultKeyPrefix = "zkmembership:nullifier:"

	// opTimeout bounds every Redis round trip
	opTimeout = 5 * time.Second
)

// RedisRegistry is a replay guard backed by Redis, suitable when several
// verifier instances must share one nullifier set. The test-and-set in
// Use is a single SETNX, which Redis executes atomically.
type RedisRegistry struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string
	mu        sync.RWMutex
	closed    bool
}

var _ nullifier.Registry = (*RedisRegistry)(nil)

// RedisConfig holds the connection settings for the registry.
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix optionally overrides the default key namespace, e.g.
	// for multi-tenant deployments.
	KeyPrefix string
}

// NewRedisRegistry connects to Redis and verifies the connection.
func NewRedisRegistry(cfg *RedisConfig, logger *zap.Logger) (*RedisRegistry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to Redis at %s", cfg.Address)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	logger.Sugar().Infow("redis nullifier registry initialized", "address", cfg.Address, "db", cfg.DB)

	return &RedisRegistry{
		client:    client,
		logger:    logger,
		keyPrefix: keyPrefix,
	}, nil
}

func (r *RedisRegistry) key(n fr.Element) string {
	nb := n.Bytes()
	return fmt.Sprintf("%s%x", r.keyPrefix, nb[:])
}

// Use marks a nullifier as spent via SETNX.
func (r *RedisRegistry) Use(n fr.Element) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("nullifier registry is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Nullifiers are spent forever, so no TTL.
	set, err := r.client.SetNX(ctx, r.key(n), "1", 0).Result()
	if err != nil {
		return errors.Wrap(err, "failed to mark nullifier")
	}
	if !set {
		return nullifier.ErrAlreadyUsed
	}
	return nil
}

// IsUsed reports whether a nullifier has been spent.
func (r *RedisRegistry) IsUsed(n fr.Element) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return false, fmt.Errorf("nullifier registry is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	count, err := r.client.Exists(ctx, r.key(n)).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to check nullifier")
	}
	return count > 0, nil
}

// Close shuts down the Redis connection. Idempotent.
func (r *RedisRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.client.Close(); err != nil {
		return errors.Wrap(err, "failed to close redis client")
	}
	return nil
}

// HealthCheck pings the server.
func (r *RedisRegistry) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("nullifier registry is closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "redis health check failed")
	}
	return nil
}
