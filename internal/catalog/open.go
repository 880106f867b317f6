package catalog

import (
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docshelf/pkg/redis"
)

// Open wires an HTTP-backed catalog from cfg. When caching is enabled and
// Redis answers, snapshots are cached there and the client is returned for
// health checks; otherwise the catalog runs uncached and the client is nil.
// The close func is always safe to call.
func Open(cfg *config.Config, m *metrics.Metrics) (*Catalog, *pkgredis.Client, func()) {
	loader := NewLoader(NewHTTPFetcher(cfg.Feeds.ClientTimeout), cfg.Feeds, m)
	if !cfg.Cache.Enabled {
		slog.Info("catalog cache disabled")
		return New(loader, nil, 0, m), nil, func() {}
	}

	client, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, catalog caching disabled", "error", err)
		return New(loader, nil, 0, m), nil, func() {}
	}
	slog.Info("catalog cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	return New(loader, client, cfg.Redis.CacheTTL, m), client, func() { client.Close() }
}
