package detection

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"livesec/internal/baseline"
	"livesec/internal/config"
	"livesec/internal/schema"
)

const keyLockShards = 64

// Handler receives each anomaly record the engine emits. Handlers run
// synchronously after the entry's key lock is released; a handler error is
// logged and does not stop delivery to the remaining handlers.
type Handler func(ctx context.Context, rec *schema.AnomalyRecord) error

// Engine is the detection orchestrator. For every entry it snapshots the
// key's baseline, folds the entry into the baseline, evaluates the category's
// rules against the pre-update snapshot, scores the candidates, and emits
// anomaly records. Entries sharing a baseline key are processed strictly one
// at a time; entries with different keys proceed in parallel.
type Engine struct {
	cfg    config.DetectionConfig
	store  *baseline.Store
	scorer *Scorer
	logger *slog.Logger

	mu       sync.Mutex
	handlers []Handler

	keyLocks [keyLockShards]sync.Mutex

	processed atomic.Uint64
	emitted   atomic.Uint64
	malformed atomic.Uint64
}

// NewEngine builds an engine and validates that every anomaly type the
// evaluators can emit has a severity mapping. A coverage gap is a
// configuration defect and fails construction.
func NewEngine(cfg config.DetectionConfig, store *baseline.Store, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	scorer := NewScorer(cfg.Escalation)
	if err := scorer.ValidateCoverage(schema.AllAnomalyTypes()); err != nil {
		return nil, fmt.Errorf("severity coverage: %w", err)
	}
	return &Engine{
		cfg:    cfg,
		store:  store,
		scorer: scorer,
		logger: logger.With("component", "detection_engine"),
	}, nil
}

// AddHandler registers a sink for emitted anomaly records.
func (e *Engine) AddHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// Process runs one entry through the full pipeline and returns the anomaly
// records it produced. Malformed entries are rejected without touching the
// baseline. A handler failure never fails the entry.
func (e *Engine) Process(ctx context.Context, entry *schema.Entry) ([]schema.AnomalyRecord, error) {
	if err := checkShape(entry); err != nil {
		e.malformed.Add(1)
		return nil, err
	}
	e.processed.Add(1)

	key := entry.Key()
	lock := e.keyLock(key)
	lock.Lock()
	snap := e.snapshot(entry, key)
	e.observe(entry, key)
	lock.Unlock()

	candidates := e.evaluate(entry, snap)
	if len(candidates) == 0 {
		return nil, nil
	}

	records := make([]schema.AnomalyRecord, 0, len(candidates))
	for _, c := range candidates {
		sev, err := e.scorer.Score(c)
		if err != nil {
			// Unreachable once coverage validation passed, but a scoring
			// failure must not drop the remaining candidates silently.
			e.logger.Error("scoring failed", "type", c.Type, "error", err)
			continue
		}
		records = append(records, schema.AnomalyRecord{
			RecordID:  uuid.New(),
			Timestamp: entry.Timestamp,
			Category:  entry.Category,
			Type:      c.Type,
			Severity:  sev,
			Message:   c.Message,
			Metrics:   c.Metrics,
		})
	}

	e.emitted.Add(uint64(len(records)))
	for i := range records {
		e.dispatch(ctx, &records[i])
	}
	return records, nil
}

func (e *Engine) dispatch(ctx context.Context, rec *schema.AnomalyRecord) {
	e.mu.Lock()
	handlers := e.handlers
	e.mu.Unlock()
	for _, h := range handlers {
		if err := h(ctx, rec); err != nil {
			e.logger.Error("anomaly handler failed",
				"record_id", rec.RecordID,
				"type", rec.Type,
				"error", err)
		}
	}
}

// snapshot freezes the evaluator-visible baseline state for the entry's key
// before the entry itself is recorded. Must hold the key lock.
func (e *Engine) snapshot(entry *schema.Entry, key string) *Snapshot {
	snap := &Snapshot{
		Key:   key,
		Stats: make(map[string]baseline.Stats, 3),
	}
	switch entry.Category {
	case schema.CategoryLogin:
		login := entry.Login
		snap.SeenCountries = e.store.Categories(key, "country")
		snap.CountrySeen = e.store.HasCategory(key, "country", login.GeoCountry)
		snap.IPFailures = e.store.FailureCount(login.SourceIP, e.cfg.BruteForceWindow, entry.Timestamp)
		snap.LastCountry, snap.LastSeenAt, snap.HasLastLocation = e.store.LastLocation(key)
	case schema.CategoryNetwork:
		snap.Stats[MetricBytesSent] = e.store.Stats(key, MetricBytesSent)
		snap.Stats[MetricBytesReceived] = e.store.Stats(key, MetricBytesReceived)
		snap.Stats[MetricConnectionCount] = e.store.Stats(key, MetricConnectionCount)
	case schema.CategoryFileTransfer:
		snap.Stats[MetricFileSizeBytes] = e.store.Stats(key, MetricFileSizeBytes)
	}
	return snap
}

// observe folds the entry into the baseline. Must hold the key lock.
func (e *Engine) observe(entry *schema.Entry, key string) {
	switch entry.Category {
	case schema.CategoryLogin:
		login := entry.Login
		e.store.RecordCategory(key, "country", login.GeoCountry)
		e.store.SetLastLocation(key, login.GeoCountry, entry.Timestamp)
		if !login.Success {
			e.store.RecordFailure(login.SourceIP, entry.Timestamp, e.cfg.BruteForceWindow)
		}
	case schema.CategoryNetwork:
		flow := entry.Network
		e.store.Observe(key, MetricBytesSent, float64(flow.BytesSent))
		e.store.Observe(key, MetricBytesReceived, float64(flow.BytesReceived))
		e.store.Observe(key, MetricConnectionCount, float64(flow.ConnectionCount))
	case schema.CategoryFileTransfer:
		e.store.Observe(key, MetricFileSizeBytes, float64(entry.FileTransfer.FileSizeBytes))
	}
}

func (e *Engine) evaluate(entry *schema.Entry, snap *Snapshot) []Candidate {
	switch entry.Category {
	case schema.CategoryLogin:
		return evaluateLogin(entry, snap, &e.cfg)
	case schema.CategoryNetwork:
		return evaluateNetwork(entry, snap, &e.cfg)
	case schema.CategoryFileTransfer:
		return evaluateFileTransfer(entry, snap, &e.cfg)
	}
	return nil
}

func (e *Engine) keyLock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &e.keyLocks[h.Sum32()%keyLockShards]
}

func checkShape(entry *schema.Entry) error {
	if entry == nil {
		return fmt.Errorf("%w: nil entry", schema.ErrMalformedEntry)
	}
	if !entry.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", schema.ErrMalformedEntry, entry.Category)
	}
	if entry.Key() == "" {
		return fmt.Errorf("%w: missing %s payload", schema.ErrMalformedEntry, entry.Category)
	}
	if entry.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", schema.ErrMalformedEntry)
	}
	return nil
}

// Metrics reports engine counters for the metrics endpoint.
type Metrics struct {
	Processed uint64
	Emitted   uint64
	Malformed uint64
}

func (e *Engine) Metrics() Metrics {
	return Metrics{
		Processed: e.processed.Load(),
		Emitted:   e.emitted.Load(),
		Malformed: e.malformed.Load(),
	}
}
