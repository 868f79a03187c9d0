package memory

import (
	"sync"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subset-labs/zk-membership-go/pkg/nullifier"
)

func TestMemoryRegistry_UseOnce(t *testing.T) {
	m := NewMemoryRegistry()
	defer func() { _ = m.Close() }()

	n := fr.NewElement(12345)

	used, err := m.IsUsed(n)
	require.NoError(t, err)
	assert.False(t, used)

	require.NoError(t, m.Use(n))

	used, err = m.IsUsed(n)
	require.NoError(t, err)
	assert.True(t, used)

	require.ErrorIs(t, m.Use(n), nullifier.ErrAlreadyUsed)
}

func TestMemoryRegistry_DistinctNullifiers(t *testing.T) {
	m := NewMemoryRegistry()
	defer func() { _ = m.Close() }()

	require.NoError(t, m.Use(fr.NewElement(1)))
	require.NoError(t, m.Use(fr.NewElement(2)))
	require.NoError(t, m.Use(fr.NewElement(3)))
}

// TestMemoryRegistry_ConcurrentUse races many goroutines on the same
// nullifier: exactly one must win.
func TestMemoryRegistry_ConcurrentUse(t *testing.T) {
	m := NewMemoryRegistry()
	defer func() { _ = m.Close() }()

	n := fr.NewElement(777)
	const racers = 32

	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.Use(n)
		}()
	}
	wg.Wait()
	close(results)

	wins, replays := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		default:
			require.ErrorIs(t, err, nullifier.ErrAlreadyUsed)
			replays++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, replays)
}

func TestMemoryRegistry_Closed(t *testing.T) {
	m := NewMemoryRegistry()
	require.NoError(t, m.Close())

	require.Error(t, m.Use(fr.NewElement(1)))
	_, err := m.IsUsed(fr.NewElement(1))
	require.Error(t, err)
	require.Error(t, m.HealthCheck())

	// Close is idempotent
	require.NoError(t, m.Close())
}
