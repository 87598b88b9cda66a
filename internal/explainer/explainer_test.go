package explainer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"livesec/internal/config"
	"livesec/internal/schema"
)

type stubAPI struct {
	calls int
	reply string
	err   error
}

func (s *stubAPI) Explain(ctx context.Context, rec *schema.AnomalyRecord) (string, error) {
	s.calls++
	return s.reply, s.err
}

func record(typ schema.AnomalyType, sev schema.Severity, metrics map[string]any) *schema.AnomalyRecord {
	return &schema.AnomalyRecord{
		RecordID: uuid.New(),
		Category: schema.CategoryLogin,
		Type:     typ,
		Severity: sev,
		Message:  "test anomaly",
		Metrics:  metrics,
	}
}

func TestFallbackExplanation(t *testing.T) {
	tests := []struct {
		name string
		rec  *schema.AnomalyRecord
		want []string
	}{
		{
			name: "high risk country includes origin and urgency",
			rec: record(schema.AnomalySuspiciousGeoLocation, schema.SeverityHigh,
				map[string]any{"country": "Russia"}),
			want: []string{"high-risk geographic location", "Login originated from Russia", "IMMEDIATE INVESTIGATION REQUIRED"},
		},
		{
			name: "travel distance",
			rec: record(schema.AnomalyGeoInconsistency, schema.SeverityMedium,
				map[string]any{"distance_km": 8123.4}),
			want: []string{"8123km from the previous login", "Monitor closely"},
		},
		{
			name: "traffic spike zscore",
			rec: record(schema.AnomalyTrafficSpikeSent, schema.SeverityMedium,
				map[string]any{"zscore": 4.2}),
			want: []string{"outbound network traffic spike", "4.2 standard deviations"},
		},
		{
			name: "large transfer size",
			rec: record(schema.AnomalyLargeFileTransfer, schema.SeverityHigh,
				map[string]any{"file_size_bytes": int64(200 * 1024 * 1024)}),
			want: []string{"File size: 200.0MB"},
		},
		{
			name: "unknown type gets generic text",
			rec:  record("something_new", schema.SeverityLow, nil),
			want: []string{"requires investigation", "Document for trend analysis"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FallbackExplanation(tt.rec)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("explanation %q missing %q", got, want)
				}
			}
		})
	}
}

func TestExplain_CachesByFingerprint(t *testing.T) {
	api := &stubAPI{reply: "model explanation"}
	exp := New(api, NewMemoryCache(), config.DefaultConfig().Explainer, nil)
	ctx := context.Background()

	rec := record(schema.AnomalySuspiciousPort, schema.SeverityHigh, map[string]any{"dest_port": 4444})
	first := exp.Explain(ctx, rec)
	second := exp.Explain(ctx, rec)

	if first != "model explanation" || second != first {
		t.Errorf("explanations = %q, %q", first, second)
	}
	if api.calls != 1 {
		t.Errorf("api calls = %d, want 1 (second hit cached)", api.calls)
	}

	// A record with different metrics is a different fingerprint.
	other := record(schema.AnomalySuspiciousPort, schema.SeverityHigh, map[string]any{"dest_port": 31337})
	exp.Explain(ctx, other)
	if api.calls != 2 {
		t.Errorf("api calls = %d, want 2 for a new fingerprint", api.calls)
	}
}

func TestExplain_FallsBackOnAPIError(t *testing.T) {
	api := &stubAPI{err: errors.New("rate limited")}
	exp := New(api, nil, config.DefaultConfig().Explainer, nil)

	rec := record(schema.AnomalyBruteForcePattern, schema.SeverityMedium, map[string]any{"failure_count": 7})
	got := exp.Explain(context.Background(), rec)
	if !strings.Contains(got, "brute force") {
		t.Errorf("expected fallback text, got %q", got)
	}
}

func TestExplain_NoAPIUsesFallback(t *testing.T) {
	exp := New(nil, NewMemoryCache(), config.DefaultConfig().Explainer, nil)

	rec := record(schema.AnomalyOffhoursMovement, schema.SeverityMedium, nil)
	got := exp.Explain(context.Background(), rec)
	if !strings.Contains(got, "outside normal business hours") {
		t.Errorf("expected fallback text, got %q", got)
	}
}

func TestExplainAll(t *testing.T) {
	exp := New(nil, NewMemoryCache(), config.DefaultConfig().Explainer, nil)

	recs := []schema.AnomalyRecord{
		*record(schema.AnomalySensitiveFileAccess, schema.SeverityHigh, nil),
		*record(schema.AnomalyExternalTransfer, schema.SeverityMedium, nil),
	}
	got := exp.ExplainAll(context.Background(), recs)
	if len(got) != 2 {
		t.Fatalf("got %d explanations, want 2", len(got))
	}
	for i, g := range got {
		if g == "" {
			t.Errorf("explanation %d empty", i)
		}
	}
}

func TestMemoryCacheEvictsExpiredEntries(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	if err := cache.Set(ctx, "k1", "stale", time.Nanosecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(time.Millisecond)

	if _, err := cache.Get(ctx, "k1"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("Get after expiry = %v, want ErrCacheMiss", err)
	}

	cache.mu.RLock()
	_, dataHeld := cache.data["k1"]
	_, expiryHeld := cache.expiry["k1"]
	cache.mu.RUnlock()
	if dataHeld || expiryHeld {
		t.Error("expired entry still held after Get")
	}
}

func TestMemoryCacheSetWithoutTTLClearsExpiry(t *testing.T) {
	cache := NewMemoryCache()
	ctx := context.Background()

	if err := cache.Set(ctx, "k1", "v1", time.Nanosecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cache.Set(ctx, "k1", "v2", 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(time.Millisecond)

	got, err := cache.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get = %v, want hit", err)
	}
	if got != "v2" {
		t.Errorf("Get = %q, want v2", got)
	}
}
