package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/ehrlich-b/trackembed/internal/logger"
	"github.com/vmihailenco/msgpack/v5"
)

const cacheKeySep = "\x00"

// Cached remembers successful extractions in a BadgerDB keyed by extractor
// name, absolute path, file size and modification time. Replacing a file
// therefore misses the cache. Failed extractions are never cached.
type Cached struct {
	inner Extractor
	db    *badger.DB
}

// CacheOptions configures the extraction cache.
type CacheOptions struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory keeps the cache in memory only (tests).
	InMemory bool
}

// NewCached wraps inner with a BadgerDB-backed cache.
func NewCached(inner Extractor, opts CacheOptions) (*Cached, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("extract: cache dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(badgerLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("extract: open cache: %w", err)
	}
	return &Cached{inner: inner, db: db}, nil
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Extract(ctx context.Context, path string) (*Extraction, error) {
	key, err := c.key(path)
	if err != nil {
		return c.inner.Extract(ctx, path)
	}

	if out, ok := c.get(key); ok {
		logger.Debug("extraction cache hit", "path", path)
		return out, nil
	}

	out, err := c.inner.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := c.put(key, out); err != nil {
		logger.Warn("extraction cache write failed", "path", path, "error", err)
	}
	return out, nil
}

// Check delegates to the wrapped extractor.
func (c *Cached) Check(ctx context.Context) error {
	if ch, ok := c.inner.(Checker); ok {
		return ch.Check(ctx)
	}
	return nil
}

func (c *Cached) Close() error {
	return c.db.Close()
}

func (c *Cached) key(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	parts := []string{
		c.inner.Name(),
		abs,
		strconv.FormatInt(info.Size(), 10),
		strconv.FormatInt(info.ModTime().UnixNano(), 10),
	}
	return []byte(strings.Join(parts, cacheKeySep)), nil
}

func (c *Cached) get(key []byte) (*Extraction, bool) {
	var val []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logger.Warn("extraction cache read failed", "error", err)
		}
		return nil, false
	}
	var out Extraction
	if err := msgpack.Unmarshal(val, &out); err != nil {
		logger.Warn("extraction cache entry corrupt", "error", err)
		return nil, false
	}
	return &out, true
}

func (c *Cached) put(key []byte, out *Extraction) error {
	val, err := msgpack.Marshal(out)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// badgerLogger routes badger's warnings and errors to the process logger and
// drops its chatter.
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...interface{}) {
	logger.Error("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Warningf(f string, v ...interface{}) {
	logger.Warn("badger: " + strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}
