// Package consumer drains the intake queue through the detection engine.
// A malformed or failing entry is counted and skipped; the stream never
// stops for one bad entry.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"livesec/internal/config"
	"livesec/internal/detection"
	"livesec/internal/queue"
	"livesec/internal/schema"
)

// Consumer reads entries from the queue and runs them through detection.
type Consumer struct {
	queue  *queue.EntryQueue
	engine *detection.Engine
	cfg    config.ConsumerConfig
	logger *slog.Logger

	wg   sync.WaitGroup
	done chan struct{}

	consumed  uint64
	malformed uint64
	errors    uint64
}

// New creates a Consumer.
func New(q *queue.EntryQueue, engine *detection.Engine, cfg config.ConsumerConfig, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		queue:  q,
		engine: engine,
		cfg:    cfg,
		logger: logger.With("component", "consumer"),
		done:   make(chan struct{}),
	}
}

// Start launches the worker pool. Workers pull entries concurrently; the
// engine serializes entries that share a baseline key.
func (c *Consumer) Start(ctx context.Context) {
	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
	c.logger.Info("queue consumer started", "workers", c.cfg.Workers)
}

func (c *Consumer) worker(ctx context.Context, id int) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
			entry, err := c.queue.PopWithTimeout(c.cfg.PollInterval)
			if err != nil {
				if errors.Is(err, queue.ErrQueueEmpty) {
					continue
				}
				if errors.Is(err, queue.ErrQueueClosed) {
					return
				}
				c.logger.Warn("unexpected queue error", "worker_id", id, "error", err)
				atomic.AddUint64(&c.errors, 1)
				continue
			}

			if _, err := c.engine.Process(ctx, entry); err != nil {
				if errors.Is(err, schema.ErrMalformedEntry) {
					atomic.AddUint64(&c.malformed, 1)
					c.logger.Warn("malformed entry skipped",
						"worker_id", id,
						"entry_id", entry.EntryID,
						"error", err,
					)
				} else {
					atomic.AddUint64(&c.errors, 1)
					c.logger.Error("entry processing failed",
						"worker_id", id,
						"entry_id", entry.EntryID,
						"error", err,
					)
				}
				continue
			}

			atomic.AddUint64(&c.consumed, 1)
		}
	}
}

// Stop drains workers, waiting up to the configured shutdown window.
func (c *Consumer) Stop() {
	close(c.done)

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("queue consumer stopped gracefully")
	case <-time.After(c.cfg.ShutdownWait):
		c.logger.Warn("queue consumer shutdown timed out")
	}
}

// Metrics holds consumer counters.
type Metrics struct {
	Consumed  uint64 `json:"consumed"`
	Malformed uint64 `json:"malformed"`
	Errors    uint64 `json:"errors"`
}

func (c *Consumer) Metrics() Metrics {
	return Metrics{
		Consumed:  atomic.LoadUint64(&c.consumed),
		Malformed: atomic.LoadUint64(&c.malformed),
		Errors:    atomic.LoadUint64(&c.errors),
	}
}
