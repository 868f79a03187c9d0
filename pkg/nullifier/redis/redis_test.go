package redis

import (
	"os"
	"sync"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subset-labs/zk-membership-go/pkg/logger"
	"github.com/subset-labs/zk-membership-go/pkg/nullifier"
)

// getTestRedisAddress returns the Redis address for testing.
// Uses REDIS_TEST_ADDRESS env var if set, otherwise defaults to localhost:6379.
func getTestRedisAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// requireRedis skips the test if Redis is not reachable.
func requireRedis(t *testing.T) *RedisRegistry {
	t.Helper()

	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15, // Use DB 15 for tests to avoid conflicts
		KeyPrefix: "zkmembership-test:nullifier:",
	}

	rr, err := NewRedisRegistry(cfg, testLogger)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return nil
	}
	t.Cleanup(func() { _ = rr.Close() })
	return rr
}

// randomNullifier avoids collisions with leftovers from previous runs
func randomNullifier(t *testing.T) fr.Element {
	t.Helper()
	var n fr.Element
	_, err := n.SetRandom()
	require.NoError(t, err)
	return n
}

func TestRedisRegistry_UseOnce(t *testing.T) {
	rr := requireRedis(t)

	n := randomNullifier(t)

	used, err := rr.IsUsed(n)
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, rr.Use(n))

	used, err = rr.IsUsed(n)
	require.NoError(t, err)
	assert.True(t, used)

	require.ErrorIs(t, rr.Use(n), nullifier.ErrAlreadyUsed)
}

func TestRedisRegistry_ConcurrentUse(t *testing.T) {
	rr := requireRedis(t)

	n := randomNullifier(t)
	const racers = 16

	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- rr.Use(n)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, nullifier.ErrAlreadyUsed)
		}
	}
	assert.Equal(t, 1, wins, "exactly one Use must win the race")
}

func TestRedisRegistry_HealthCheck(t *testing.T) {
	rr := requireRedis(t)
	require.NoError(t, rr.HealthCheck())

	require.NoError(t, rr.Close())
	require.Error(t, rr.HealthCheck())
}

func TestRedisRegistry_InvalidConfig(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	_, err := NewRedisRegistry(nil, testLogger)
	require.Error(t, err)

	_, err = NewRedisRegistry(&RedisConfig{}, testLogger)
	require.Error(t, err)
}

func TestRedisRegistry_NilLogger(t *testing.T) {
	cfg := &RedisConfig{
		Address:   getTestRedisAddress(),
		DB:        15,
		KeyPrefix: "zkmembership-test:nullifier:",
	}

	rr, err := NewRedisRegistry(cfg, nil)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", cfg.Address, err)
		return
	}
	defer func() { _ = rr.Close() }()

	require.NoError(t, rr.Use(randomNullifier(t)))
}
