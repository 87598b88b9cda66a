package consumer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"livesec/internal/baseline"
	"livesec/internal/config"
	"livesec/internal/detection"
	"livesec/internal/queue"
	"livesec/internal/schema"
)

func testConfig() config.ConsumerConfig {
	return config.ConsumerConfig{
		Workers:      2,
		PollInterval: 5 * time.Millisecond,
		ShutdownWait: time.Second,
	}
}

func newEngine(t *testing.T) *detection.Engine {
	t.Helper()
	eng, err := detection.NewEngine(config.DefaultConfig().Detection, baseline.NewStore(), nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func loginAt(user string, success bool, ts time.Time) *schema.Entry {
	return &schema.Entry{
		EntryID:   uuid.New(),
		Timestamp: ts,
		Category:  schema.CategoryLogin,
		Login: &schema.Login{
			Username:   user,
			SourceIP:   "10.0.0.1",
			GeoCountry: "USA",
			Success:    success,
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestConsumer_DrainsQueueThroughEngine(t *testing.T) {
	q := queue.New(100)
	eng := newEngine(t)

	var emitted atomic.Uint64
	eng.AddHandler(func(ctx context.Context, rec *schema.AnomalyRecord) error {
		emitted.Add(1)
		return nil
	})

	// Off-hours logins so every entry yields an anomaly.
	ts := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		if err := q.Push(loginAt("alice", true, ts.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	c := New(q, eng, testConfig(), nil)
	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, func() bool { return c.Metrics().Consumed == 10 })
	if got := emitted.Load(); got != 10 {
		t.Errorf("emitted = %d, want 10", got)
	}
	if q.Len() != 0 {
		t.Errorf("queue depth = %d, want 0", q.Len())
	}
}

func TestConsumer_MalformedEntrySkippedStreamContinues(t *testing.T) {
	q := queue.New(100)
	eng := newEngine(t)

	ts := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	q.Push(loginAt("bob", true, ts))
	q.Push(&schema.Entry{EntryID: uuid.New(), Timestamp: ts, Category: "dns"})
	q.Push(loginAt("bob", true, ts.Add(time.Minute)))

	c := New(q, eng, testConfig(), nil)
	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, func() bool {
		m := c.Metrics()
		return m.Consumed == 2 && m.Malformed == 1
	})
	if m := c.Metrics(); m.Errors != 0 {
		t.Errorf("errors = %d, want 0", m.Errors)
	}
}

func TestConsumer_StopDrainsGracefully(t *testing.T) {
	q := queue.New(100)
	c := New(q, newEngine(t), testConfig(), nil)

	c.Start(context.Background())
	c.Stop()

	// Stop is idempotent against an already-drained queue and must not hang.
	if m := c.Metrics(); m.Consumed != 0 {
		t.Errorf("consumed = %d, want 0", m.Consumed)
	}
}
