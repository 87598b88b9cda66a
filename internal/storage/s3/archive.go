package s3

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"livesec/internal/schema"
)

// ArchiverConfig configures the anomaly archiver.
type ArchiverConfig struct {
	// BatchSize is the number of records per archive object.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// FlushInterval bounds how long records wait before being archived.
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`

	// Compress writes gzip objects when true.
	Compress bool `json:"compress" yaml:"compress"`
}

// DefaultArchiverConfig returns the default archiver configuration.
func DefaultArchiverConfig() *ArchiverConfig {
	return &ArchiverConfig{
		BatchSize:     5000,
		FlushInterval: 5 * time.Minute,
		Compress:      true,
	}
}

// Archiver batches anomaly records and uploads them as JSONL objects,
// one record per line, keyed by date.
type Archiver struct {
	client *Client
	config *ArchiverConfig
	logger *slog.Logger

	mu     sync.Mutex
	buffer []*schema.AnomalyRecord
	closed bool

	flushTimer *time.Timer

	recordsArchived atomic.Int64
	objectsWritten  atomic.Int64
	archiveErrors   atomic.Int64
}

// NewArchiver creates an Archiver and starts its flush timer.
func NewArchiver(client *Client, cfg *ArchiverConfig, logger *slog.Logger) *Archiver {
	a := &Archiver{
		client: client,
		config: cfg,
		logger: logger,
		buffer: make([]*schema.AnomalyRecord, 0, cfg.BatchSize),
	}
	a.flushTimer = time.AfterFunc(cfg.FlushInterval, a.timerFlush)
	return a
}

// Add buffers a record, uploading a batch when the buffer fills.
func (a *Archiver) Add(ctx context.Context, rec *schema.AnomalyRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return fmt.Errorf("s3: archiver is closed")
	}

	a.buffer = append(a.buffer, rec)
	if len(a.buffer) >= a.config.BatchSize {
		return a.flushLocked(ctx)
	}
	return nil
}

func (a *Archiver) timerFlush() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	if len(a.buffer) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), a.client.config.Timeout)
		if err := a.flushLocked(ctx); err != nil {
			a.logger.Error("archive timer flush failed", "error", err)
		}
		cancel()
	}
	a.flushTimer.Reset(a.config.FlushInterval)
}

// flushLocked uploads the buffered records as one object. Caller holds the lock.
func (a *Archiver) flushLocked(ctx context.Context) error {
	if len(a.buffer) == 0 {
		return nil
	}

	records := a.buffer
	a.buffer = make([]*schema.AnomalyRecord, 0, a.config.BatchSize)

	data, err := encodeJSONL(records, a.config.Compress)
	if err != nil {
		a.archiveErrors.Add(1)
		return fmt.Errorf("s3: failed to encode archive batch: %w", err)
	}

	key := a.objectKey(records[0].Timestamp)
	contentType := "application/x-ndjson"
	if a.config.Compress {
		contentType = "application/gzip"
	}

	if _, err := a.client.Upload(ctx, key, contentType, bytes.NewReader(data)); err != nil {
		a.archiveErrors.Add(1)
		return err
	}

	a.recordsArchived.Add(int64(len(records)))
	a.objectsWritten.Add(1)

	a.logger.Info("archived anomaly batch",
		"key", key,
		"records", len(records),
		"bytes", len(data),
	)
	return nil
}

// objectKey builds a date-partitioned key like 2026/08/31/<uuid>.jsonl.gz.
func (a *Archiver) objectKey(ts time.Time) string {
	ext := ".jsonl"
	if a.config.Compress {
		ext = ".jsonl.gz"
	}
	return fmt.Sprintf("%s/%s%s", ts.UTC().Format("2006/01/02"), uuid.New(), ext)
}

// Flush uploads any buffered records immediately.
func (a *Archiver) Flush(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushLocked(ctx)
}

// Close stops the flush timer and uploads the remaining buffer.
func (a *Archiver) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	a.flushTimer.Stop()
	return a.flushLocked(ctx)
}

// Restore reads the records back from one archive object.
func (a *Archiver) Restore(ctx context.Context, key string) ([]*schema.AnomalyRecord, error) {
	body, err := a.client.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, fmt.Errorf("s3: failed to read archive object %s: %w", key, err)
	}

	compressed := bytes.HasSuffix([]byte(key), []byte(".gz"))
	records, err := decodeJSONL(buf.Bytes(), compressed)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to decode archive object %s: %w", key, err)
	}

	a.logger.Info("restored archive object", "key", key, "records", len(records))
	return records, nil
}

// ArchiverMetrics contains archiver counters.
type ArchiverMetrics struct {
	RecordsArchived int64
	ObjectsWritten  int64
	Errors          int64
}

func (a *Archiver) Metrics() ArchiverMetrics {
	return ArchiverMetrics{
		RecordsArchived: a.recordsArchived.Load(),
		ObjectsWritten:  a.objectsWritten.Load(),
		Errors:          a.archiveErrors.Load(),
	}
}

func encodeJSONL(records []*schema.AnomalyRecord, compress bool) ([]byte, error) {
	var buf bytes.Buffer

	if compress {
		gz := gzip.NewWriter(&buf)
		enc := json.NewEncoder(gz)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return nil, err
			}
		}
		if err := gz.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	enc := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodeJSONL(data []byte, compressed bool) ([]*schema.AnomalyRecord, error) {
	reader := bytes.NewReader(data)

	var scanner *bufio.Scanner
	if compressed {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		scanner = bufio.NewScanner(gz)
	} else {
		scanner = bufio.NewScanner(reader)
	}
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var records []*schema.AnomalyRecord
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec schema.AnomalyRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
