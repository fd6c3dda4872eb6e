package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zegnqin/seatunnel/iceberg"
	"github.com/zegnqin/seatunnel/metrics"
)

// DefaultCacheExpiration is how long a loaded table stays cached.
const DefaultCacheExpiration = 30 * time.Second

// ErrNotSupported is returned by a decorator when the wrapped catalog lacks
// the requested capability.
var ErrNotSupported = errors.New("operation not supported by catalog")

type cacheEntry struct {
	table    *iceberg.Table
	loadedAt time.Time
}

// CachingCatalog is a read-through cache of loaded tables. Safe for
// concurrent use.
type CachingCatalog struct {
	inner      Catalog
	expiration time.Duration
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// CacheOption configures a CachingCatalog.
type CacheOption func(*CachingCatalog)

// WithExpiration sets the entry lifetime. Zero or negative keeps entries
// until invalidated.
func WithExpiration(d time.Duration) CacheOption {
	return func(c *CachingCatalog) { c.expiration = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *CachingCatalog) { c.now = now }
}

// NewCachingCatalog wraps inner.
func NewCachingCatalog(inner Catalog, opts ...CacheOption) *CachingCatalog {
	c := &CachingCatalog{
		inner:      inner,
		expiration: DefaultCacheExpiration,
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Unwrap returns the wrapped catalog.
func (c *CachingCatalog) Unwrap() Catalog { return c.inner }

func (c *CachingCatalog) get(key string) (*iceberg.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.expiration > 0 && c.now().Sub(e.loadedAt) > c.expiration {
		delete(c.entries, key)
		return nil, false
	}
	return e.table, true
}

func (c *CachingCatalog) set(key string, t *iceberg.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{table: t, loadedAt: c.now()}
}

// Invalidate drops the cached handle for id.
func (c *CachingCatalog) Invalidate(id iceberg.Identifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id.String())
}

func (c *CachingCatalog) TableExists(ctx context.Context, id iceberg.Identifier) (bool, error) {
	if _, ok := c.get(id.String()); ok {
		return true, nil
	}
	return c.inner.TableExists(ctx, id)
}

func (c *CachingCatalog) LoadTable(ctx context.Context, id iceberg.Identifier) (*iceberg.Table, error) {
	key := id.String()
	if t, ok := c.get(key); ok {
		metrics.CatalogCacheHits.Inc()
		return t, nil
	}
	t, err := c.inner.LoadTable(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(key, t)
	return t, nil
}

func (c *CachingCatalog) CreateTable(ctx context.Context, id iceberg.Identifier, schema *iceberg.Schema, spec *iceberg.PartitionSpec, props map[string]string) (*iceberg.Table, error) {
	creator, ok := c.inner.(TableCreator)
	if !ok {
		return nil, fmt.Errorf("create table %s: %w", id, ErrNotSupported)
	}
	c.Invalidate(id)
	t, err := creator.CreateTable(ctx, id, schema, spec, props)
	if err != nil {
		return nil, err
	}
	c.set(id.String(), t)
	return t, nil
}

func (c *CachingCatalog) CommitTable(ctx context.Context, id iceberg.Identifier, baseLocation string, updated *iceberg.TableMetadata) (string, error) {
	committer, ok := c.inner.(MetadataCommitter)
	if !ok {
		return "", fmt.Errorf("commit table %s: %w", id, ErrNotSupported)
	}
	defer c.Invalidate(id)
	return committer.CommitTable(ctx, id, baseLocation, updated)
}

// Close releases the wrapped catalog if it holds resources.
func (c *CachingCatalog) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

type unwrapper interface {
	Unwrap() Catalog
}

func innermost(c Catalog) Catalog {
	for {
		u, ok := c.(unwrapper)
		if !ok {
			return c
		}
		c = u.Unwrap()
	}
}

// AsCommitter returns c as a MetadataCommitter when the catalog at the end of
// the decorator chain supports commits.
func AsCommitter(c Catalog) (MetadataCommitter, bool) {
	if _, ok := innermost(c).(MetadataCommitter); !ok {
		return nil, false
	}
	m, ok := c.(MetadataCommitter)
	return m, ok
}

// AsCreator is AsCommitter for TableCreator.
func AsCreator(c Catalog) (TableCreator, bool) {
	if _, ok := innermost(c).(TableCreator); !ok {
		return nil, false
	}
	m, ok := c.(TableCreator)
	return m, ok
}
