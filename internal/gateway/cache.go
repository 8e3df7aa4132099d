package gateway

import (
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Cache keeps gateway lookups (device catalog, intent answers) in badger
// with a time to live.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenCache opens an on-disk cache in dir, or an in-memory one when dir is
// empty.
func OpenCache(dir string, ttl time.Duration, log zerolog.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{log: log.With().Str("component", "cache").Logger()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the cached value for key. Expired entries are misses.
func (c *Cache) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value under key for the cache TTL.
func (c *Cache) Set(key string, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(c.ttl))
	})
}

// Delete drops key if present.
func (c *Cache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger's logging into zerolog. Info and debug chatter
// is demoted to debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log.Trace().Msgf(format, args...)
}
