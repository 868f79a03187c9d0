package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/subset-labs/zk-membership-go/pkg/nullifier"
)

// Key prefixes for namespacing
const (
	keyPrefixNullifier   = "nullifier:"
	keySchemaVersion     = "metadata:schema_version"
	currentSchemaVersion = "v1"
)

// BadgerRegistry is a durable replay guard backed by Badger. The
// test-and-set in Use runs inside a single read-write transaction, which
// Badger serializes against conflicting writers, so two concurrent Use
// calls for the same nullifier cannot both succeed.
type BadgerRegistry struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

var _ nullifier.Registry = (*BadgerRegistry)(nil)

// dbLogger routes Badger's internal logging through zap so database
// noise lands in the same stream as the rest of the process.
type dbLogger struct {
	z *zap.Logger
}

var _ badgerdb.Logger = dbLogger{}

func (l dbLogger) Errorf(format string, args ...interface{}) {
	l.z.Error(fmt.Sprintf(format, args...))
}

func (l dbLogger) Warningf(format string, args ...interface{}) {
	l.z.Warn(fmt.Sprintf(format, args...))
}

func (l dbLogger) Infof(format string, args ...interface{}) {
	l.z.Info(fmt.Sprintf(format, args...))
}

func (l dbLogger) Debugf(format string, args ...interface{}) {
	l.z.Debug(fmt.Sprintf(format, args...))
}

// NewBadgerRegistry opens a Badger-backed replay guard at dataPath.
// SyncWrites is enabled: a spent nullifier must survive a crash, or the
// same proof could be replayed after restart.
func NewBadgerRegistry(dataPath string, logger *zap.Logger) (*BadgerRegistry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = dbLogger{z: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	br := &BadgerRegistry{
		db:     db,
		logger: logger,
	}

	if err := br.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	br.gcCancel = cancel
	br.gcWg.Add(1)
	go br.runGC(ctx)

	logger.Sugar().Infow("badger nullifier registry initialized", "path", absPath)

	return br, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerRegistry) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if err == badgerdb.ErrKeyNotFound {
			return txn.Set([]byte(keySchemaVersion), []byte(currentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existing string
		if err := item.Value(func(val []byte) error {
			existing = string(val)
			return nil
		}); err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existing != currentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existing, currentSchemaVersion)
		}
		return nil
	})
}

// runGC runs periodic value-log garbage collection in the background
func (b *BadgerRegistry) runGC(ctx context.Context) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(0.5)
			if err != nil && err != badgerdb.ErrNoRewrite {
				b.logger.Sugar().Warnw("badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func nullifierKey(n fr.Element) []byte {
	nb := n.Bytes()
	key := make([]byte, 0, len(keyPrefixNullifier)+len(nb))
	key = append(key, keyPrefixNullifier...)
	key = append(key, nb[:]...)
	return key
}

// Use marks a nullifier as spent inside one transaction.
func (b *BadgerRegistry) Use(n fr.Element) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("nullifier registry is closed")
	}

	key := nullifierKey(n)
	for {
		err := b.db.Update(func(txn *badgerdb.Txn) error {
			_, err := txn.Get(key)
			if err == nil {
				return nullifier.ErrAlreadyUsed
			}
			if err != badgerdb.ErrKeyNotFound {
				return fmt.Errorf("failed to check nullifier: %w", err)
			}
			return txn.Set(key, []byte{1})
		})
		// Badger uses optimistic concurrency: a racing writer surfaces
		// as ErrConflict. Retrying re-reads the key, so the loser of
		// the race lands on ErrAlreadyUsed.
		if err == badgerdb.ErrConflict {
			continue
		}
		return err
	}
}

// IsUsed reports whether a nullifier has been spent.
func (b *BadgerRegistry) IsUsed(n fr.Element) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, fmt.Errorf("nullifier registry is closed")
	}

	var used bool
	err := b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(nullifierKey(n))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		used = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check nullifier: %w", err)
	}
	return used, nil
}

// Close stops background GC and closes the database. Idempotent.
func (b *BadgerRegistry) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	b.gcCancel()
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}
	return nil
}

// HealthCheck verifies the database is operational.
func (b *BadgerRegistry) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("nullifier registry is closed")
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if err != nil && err != badgerdb.ErrKeyNotFound {
			return fmt.Errorf("health check read failed: %w", err)
		}
		return nil
	})
}
