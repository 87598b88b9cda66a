package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultRetentionConfig(t *testing.T) {
	cfg := DefaultRetentionConfig()
	if cfg.AnomaliesTTL != 90*24*time.Hour {
		t.Errorf("AnomaliesTTL = %v, want 90 days", cfg.AnomaliesTTL)
	}
	if cfg.RollupTTL != 365*24*time.Hour {
		t.Errorf("RollupTTL = %v, want 365 days", cfg.RollupTTL)
	}
}

func TestApplyTTLs(t *testing.T) {
	var queries []string
	conn := &mockConn{
		execFunc: func(_ context.Context, query string, _ ...any) error {
			queries = append(queries, query)
			return nil
		},
	}

	rm := NewRetentionManager(newMockClient(conn), DefaultRetentionConfig())
	if err := rm.ApplyTTLs(context.Background()); err != nil {
		t.Fatalf("ApplyTTLs failed: %v", err)
	}

	if len(queries) != 2 {
		t.Fatalf("got %d statements, want 2", len(queries))
	}
	if !strings.Contains(queries[0], "ALTER TABLE anomalies MODIFY TTL") ||
		!strings.Contains(queries[0], "INTERVAL 90 DAY DELETE") {
		t.Errorf("anomalies TTL statement = %q", queries[0])
	}
	if !strings.Contains(queries[1], "ALTER TABLE anomalies_hourly MODIFY TTL") ||
		!strings.Contains(queries[1], "INTERVAL 365 DAY DELETE") {
		t.Errorf("rollup TTL statement = %q", queries[1])
	}
}

func TestApplyTTLsSkipsZeroTTL(t *testing.T) {
	var queries []string
	conn := &mockConn{
		execFunc: func(_ context.Context, query string, _ ...any) error {
			queries = append(queries, query)
			return nil
		},
	}

	rm := NewRetentionManager(newMockClient(conn), RetentionConfig{
		AnomaliesTTL: 30 * 24 * time.Hour,
	})
	if err := rm.ApplyTTLs(context.Background()); err != nil {
		t.Fatalf("ApplyTTLs failed: %v", err)
	}

	if len(queries) != 1 {
		t.Fatalf("got %d statements, want 1", len(queries))
	}
	if !strings.Contains(queries[0], "ALTER TABLE anomalies ") {
		t.Errorf("statement = %q, want anomalies table only", queries[0])
	}
}

func TestApplyTTLsContinuesOnMissingTable(t *testing.T) {
	var queries []string
	conn := &mockConn{
		execFunc: func(_ context.Context, query string, _ ...any) error {
			queries = append(queries, query)
			if strings.Contains(query, "anomalies_hourly") {
				return errors.New("table anomalies_hourly does not exist")
			}
			return nil
		},
	}

	rm := NewRetentionManager(newMockClient(conn), DefaultRetentionConfig())
	if err := rm.ApplyTTLs(context.Background()); err != nil {
		t.Fatalf("ApplyTTLs should warn and continue, got: %v", err)
	}
	if len(queries) != 2 {
		t.Errorf("got %d statements, want 2 (error must not stop the walk)", len(queries))
	}
}

func TestDropPartitionSanitizesTable(t *testing.T) {
	var got string
	conn := &mockConn{
		execFunc: func(_ context.Context, query string, _ ...any) error {
			got = query
			return nil
		},
	}

	rm := NewRetentionManager(newMockClient(conn), DefaultRetentionConfig())
	if err := rm.DropPartition(context.Background(), "anomalies; DROP TABLE x", "202601"); err != nil {
		t.Fatalf("DropPartition failed: %v", err)
	}
	if !strings.Contains(got, "ALTER TABLE anomaliesDROPTABLEx DROP PARTITION '202601'") {
		t.Errorf("statement = %q", got)
	}
}
