package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docshelf/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docshelf/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/tracing"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "catalog:"

// Source produces the full record set and the domain list.
type Source interface {
	Load(ctx context.Context) ([]Record, error)
	Domains(ctx context.Context) ([]string, error)
	Key() string
}

// SnapshotStore is the subset of the Redis client the catalog caches through.
type SnapshotStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Catalog serves records to request handlers. Concurrent loads of the same
// feed list share one fetch, and when a store is configured the loaded set is
// kept there for ttl. A shared fetch is detached from the callers that
// started it: one caller giving up never fails the others.
type Catalog struct {
	source  Source
	store   SnapshotStore
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	status Status
}

// Status describes the outcome of the most recent Records call that reached
// the cache or the feeds.
type Status struct {
	// LastSuccess is zero until records have been served once.
	LastSuccess time.Time
	Documents   int
	// Err is the last load failure, cleared by the next success.
	Err error
}

// New wires a catalog. store may be nil, in which case every call that is not
// collapsed into an in-flight load fetches the feeds again.
func New(source Source, store SnapshotStore, ttl time.Duration, m *metrics.Metrics) *Catalog {
	return &Catalog{
		source:  source,
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "catalog"),
	}
}

// Records returns the current record set and whether it came from the
// cache. On failure the error is returned and callers render an empty set.
func (c *Catalog) Records(ctx context.Context) ([]Record, bool, error) {
	key := c.snapshotKey()
	if records, ok := c.cached(ctx, key); ok {
		c.metrics.ObserveCache(true)
		c.setStatus(len(records), nil)
		return records, true, nil
	}
	c.metrics.ObserveCache(false)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		if records, ok := c.cached(loadCtx, key); ok {
			return records, nil
		}
		_, span := tracing.StartChildSpan(loadCtx, "catalog.load")
		records, err := c.source.Load(loadCtx)
		span.End()
		c.setStatus(len(records), err)
		if err != nil {
			return nil, err
		}
		c.save(loadCtx, key, records)
		return records, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			c.logger.Error("catalog load failed", "error", res.Err, "shared", res.Shared)
			return nil, false, res.Err
		}
		return res.Val.([]Record), false, nil
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%w: waiting for catalog: %w", apperrors.ErrTimeout, ctx.Err())
	}
}

// Domains returns the mirror domain list. It is not cached, but like
// Records a shared fetch outlives the caller that started it.
func (c *Catalog) Domains(ctx context.Context) ([]string, error) {
	ch := c.group.DoChan("domains", func() (interface{}, error) {
		return c.source.Domains(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			c.logger.Error("domain list load failed", "error", res.Err)
			return nil, res.Err
		}
		domains, _ := res.Val.([]string)
		return domains, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for domain list: %w", apperrors.ErrTimeout, ctx.Err())
	}
}

// Status reports the latest load outcome without touching the feeds.
func (c *Catalog) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Catalog) setStatus(documents int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.status.Err = err
		return
	}
	c.status = Status{LastSuccess: time.Now(), Documents: documents}
}

// Invalidate drops cached snapshots so the next call refetches the feeds.
func (c *Catalog) Invalidate(ctx context.Context) (int64, error) {
	if c.store == nil {
		return 0, nil
	}
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating catalog cache: %w", err)
	}
	c.logger.Info("catalog cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Cached reports whether snapshots are kept in a store.
func (c *Catalog) Cached() bool {
	return c.store != nil
}

func (c *Catalog) cached(ctx context.Context, key string) ([]Record, bool) {
	if c.store == nil {
		return nil, false
	}
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var records []Record
	if err := json.Unmarshal([]byte(data), &records); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	c.logger.Debug("cache hit", "key", key, "documents", len(records))
	return records, true
}

func (c *Catalog) save(ctx context.Context, key string, records []Record) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(records)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *Catalog) snapshotKey() string {
	hash := sha256.Sum256([]byte(c.source.Key()))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
