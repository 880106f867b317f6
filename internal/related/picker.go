// Package related picks random documents for the index page, the
// "related documents" section and the no-results fallback. The random source
// is injected so tests can fix the selection.
package related

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docshelf/internal/catalog"
)

// Picker draws uniform random selections. It is safe for concurrent use.
type Picker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a picker drawing from src.
func New(src rand.Source) *Picker {
	return &Picker{rng: rand.New(src)}
}

// NewSeeded returns a picker seeded from the clock.
func NewSeeded() *Picker {
	seed := uint64(time.Now().UnixNano())
	return New(rand.NewPCG(seed, seed>>1|1))
}

// Pick returns up to n records chosen uniformly without replacement,
// skipping any whose trimmed ID equals excludeID. An empty excludeID skips
// nothing. The input slice is not modified.
func (p *Picker) Pick(records []catalog.Record, excludeID string, n int) []catalog.Record {
	excludeID = strings.TrimSpace(excludeID)
	pool := make([]catalog.Record, 0, len(records))
	for _, r := range records {
		if excludeID != "" && strings.TrimSpace(r.ID) == excludeID {
			continue
		}
		pool = append(pool, r)
	}
	if n <= 0 || len(pool) == 0 {
		return []catalog.Record{}
	}

	p.mu.Lock()
	// Partial Fisher-Yates: only the first n positions need settling.
	limit := min(n, len(pool))
	for i := 0; i < limit; i++ {
		j := i + p.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	p.mu.Unlock()

	return pool[:limit]
}

// Domain returns a uniformly chosen domain, or "" when there are none.
func (p *Picker) Domain(domains []string) string {
	if len(domains) == 0 {
		return ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return domains[p.rng.IntN(len(domains))]
}
