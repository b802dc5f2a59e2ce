package repo

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/axiomesh/moloch/state"
	"github.com/pkg/errors"
)

const (
	openStoreAttempts = 5

	sqliteFileName = "moloch.db"
)

// OpenStoreRetryBase is the first backoff step while the store is locked by
// another process.
var OpenStoreRetryBase = 500 * time.Millisecond

// Store is a state store that owns an underlying database handle.
type Store interface {
	state.Store
	Close() error
}

// StoragePath resolves the configured storage path against the repo root.
func (c *Config) StoragePath() string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(c.RepoRoot, c.Storage.Path)
}

// OpenStore opens the configured backend, retrying while it is busy.
func OpenStore(c *Config) (Store, error) {
	var open func() (Store, error)
	switch c.Storage.Backend {
	case StorageLevelDB, "":
		open = func() (Store, error) {
			return leveldb.New(filepath.Join(c.StoragePath(), "leveldb"))
		}
	case StorageSQLite:
		open = func() (Store, error) {
			return state.OpenSQLite(filepath.Join(c.StoragePath(), sqliteFileName))
		}
	default:
		return nil, errors.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}

	if err := os.MkdirAll(c.StoragePath(), 0755); err != nil {
		return nil, errors.Wrap(err, "create storage dir")
	}

	var store Store
	action := func(attempt uint) error {
		var err error
		store, err = open()
		return err
	}
	if err := retry.Retry(action, strategy.Limit(openStoreAttempts), strategy.Backoff(backoff.Fibonacci(OpenStoreRetryBase))); err != nil {
		return nil, errors.Wrapf(err, "open %s store", c.Storage.Backend)
	}
	return store, nil
}
