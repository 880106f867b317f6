// Package analytics publishes search and view events to Kafka and
// aggregates them back into running statistics.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docshelf/pkg/kafka"
)

// Publisher is the subset of kafka.Producer the collector needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers events and publishes them from a background goroutine.
// Track never blocks; events are dropped when the buffer is full.
type Collector struct {
	publisher Publisher
	eventCh   chan Event
	maxBatch  int
	dropped   atomic.Int64
	started   atomic.Bool
	closed    atomic.Bool
	logger    *slog.Logger
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewCollector creates a Collector with room for bufferSize pending events.
func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan Event, bufferSize),
		maxBatch:  100,
		logger:    slog.Default().With("component", "analytics-collector"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the publish loop. Cancelling ctx or calling Close drains
// what is buffered and stops the loop.
func (c *Collector) Start(ctx context.Context) {
	c.started.Store(true)
	go func() {
		defer close(c.done)
		for {
			select {
			case event := <-c.eventCh:
				c.publish(ctx, c.batchFrom(event))
			case <-c.stop:
				c.drainRemaining()
				return
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues event. It is safe to call on a nil Collector and after
// Close, when the event is counted as dropped.
func (c *Collector) Track(event Event) {
	if c == nil {
		return
	}
	if c.closed.Load() {
		c.dropped.Add(1)
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", n)
		}
	}
}

// Dropped reports how many events Track discarded.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the loop to flush. eventCh is
// never closed, so a Track racing with Close cannot panic.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stop)
	})
	if c.started.Load() {
		<-c.done
	}
}

// batchFrom collects first plus whatever else is already buffered.
func (c *Collector) batchFrom(first Event) []kafka.Event {
	batch := []kafka.Event{{Key: first.EventKey(), Value: first}}
	for len(batch) < c.maxBatch {
		select {
		case event := <-c.eventCh:
			batch = append(batch, kafka.Event{Key: event.EventKey(), Value: event})
		default:
			return batch
		}
	}
	return batch
}

func (c *Collector) publish(ctx context.Context, batch []kafka.Event) {
	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
	}
}

func (c *Collector) drainRemaining() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case event := <-c.eventCh:
			c.publish(ctx, c.batchFrom(event))
		default:
			return
		}
	}
}
