package explainer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"livesec/internal/config"
	"livesec/internal/schema"
)

// modelAPI is the explanation source behind the Explainer. Satisfied by
// *Client; swapped out in tests.
type modelAPI interface {
	Explain(ctx context.Context, rec *schema.AnomalyRecord) (string, error)
}

// Explainer produces a human-readable explanation for each anomaly record.
// When the model API fails or is disabled, the canned per-type explanation
// is used so every record always gets some explanation.
type Explainer struct {
	api    modelAPI
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New builds an Explainer. api may be nil, in which case only fallback
// explanations are produced. cache may be nil to disable caching.
func New(api modelAPI, cache Cache, cfg config.ExplainerConfig, logger *slog.Logger) *Explainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Explainer{
		api:    api,
		cache:  cache,
		ttl:    cfg.Cache.TTL,
		logger: logger.With("component", "explainer"),
	}
}

// FromConfig wires an Explainer from configuration: the chat client when
// enabled, the Redis cache when configured, a memory cache otherwise.
func FromConfig(cfg config.ExplainerConfig, logger *slog.Logger) (*Explainer, error) {
	var api modelAPI
	if cfg.Enabled {
		api = NewClient(cfg)
	}
	var cache Cache
	if cfg.Cache.Enabled {
		redisCache, err := NewRedisCache(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("explanation cache: %w", err)
		}
		cache = redisCache
	} else {
		cache = NewMemoryCache()
	}
	return New(api, cache, cfg, logger), nil
}

// Explain returns the explanation for a record, from cache when possible.
func (e *Explainer) Explain(ctx context.Context, rec *schema.AnomalyRecord) string {
	key := cacheKey(rec)
	if e.cache != nil {
		if cached, err := e.cache.Get(ctx, key); err == nil {
			return cached
		}
	}

	explanation := e.generate(ctx, rec)

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, explanation, e.ttl); err != nil {
			e.logger.Warn("failed to cache explanation", "key", key, "error", err)
		}
	}
	return explanation
}

// ExplainAll annotates a batch of records, pausing between API calls to stay
// under provider rate limits.
func (e *Explainer) ExplainAll(ctx context.Context, recs []schema.AnomalyRecord) []string {
	out := make([]string, len(recs))
	for i := range recs {
		out[i] = e.Explain(ctx, &recs[i])
		if e.api != nil && i < len(recs)-1 {
			select {
			case <-ctx.Done():
				for j := i + 1; j < len(recs); j++ {
					out[j] = FallbackExplanation(&recs[j])
				}
				return out
			case <-time.After(retryAfter):
			}
		}
	}
	return out
}

func (e *Explainer) generate(ctx context.Context, rec *schema.AnomalyRecord) string {
	if e.api == nil {
		return FallbackExplanation(rec)
	}
	explanation, err := e.api.Explain(ctx, rec)
	if err != nil {
		e.logger.Warn("model API failed, using fallback",
			"type", rec.Type,
			"error", err)
		return FallbackExplanation(rec)
	}
	return explanation
}

// Close releases the cache connection.
func (e *Explainer) Close() error {
	if e.cache != nil {
		return e.cache.Close()
	}
	return nil
}

// cacheKey fingerprints a record by type, severity, and metrics so repeated
// anomalies of the same shape share one explanation.
func cacheKey(rec *schema.AnomalyRecord) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|", rec.Type, rec.Severity)
	if data, err := json.Marshal(rec.Metrics); err == nil {
		h.Write(data)
	}
	return "livesec:explain:" + hex.EncodeToString(h.Sum(nil))[:32]
}
