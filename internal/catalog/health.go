package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/health"
)

// HealthCheck reports readiness from the last load. The feeds are fetched
// only until the first load succeeds; after that page traffic keeps Status
// current and a probe never downloads anything.
func (c *Catalog) HealthCheck() health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		st := c.Status()
		if st.LastSuccess.IsZero() {
			if _, _, err := c.Records(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			st = c.Status()
		}
		age := time.Since(st.LastSuccess).Round(time.Second)
		if st.Err != nil {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("last load failed: %v (previous load: %d documents, %s ago)", st.Err, st.Documents, age),
			}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, loaded %s ago", st.Documents, age),
		}
	}
}
