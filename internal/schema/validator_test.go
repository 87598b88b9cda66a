package schema

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func validLoginEntry() *Entry {
	return &Entry{
		EntryID:   uuid.New(),
		Timestamp: time.Now().UTC(),
		Category:  CategoryLogin,
		Login: &Login{
			Username:   "alice",
			SourceIP:   "10.0.0.5",
			GeoCountry: "USA",
			Success:    true,
		},
	}
}

func TestValidator_Validate(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		mutate  func(*Entry)
		wantErr bool
		wantMal bool
	}{
		{
			name:   "valid login entry",
			mutate: func(e *Entry) {},
		},
		{
			name: "valid network entry",
			mutate: func(e *Entry) {
				e.Category = CategoryNetwork
				e.Login = nil
				e.Network = &NetworkFlow{Host: "h1", BytesSent: 100, BytesReceived: 50, DestPort: 443, ConnectionCount: 3}
			},
		},
		{
			name: "valid file transfer entry",
			mutate: func(e *Entry) {
				e.Category = CategoryFileTransfer
				e.Login = nil
				e.FileTransfer = &FileTransfer{User: "bob", FilePath: "/srv/report.pdf", FileSizeBytes: 2048, Destination: "fileserver01"}
			},
		},
		{
			name:    "unknown category",
			mutate:  func(e *Entry) { e.Category = "telemetry" },
			wantErr: true,
			wantMal: true,
		},
		{
			name:    "category payload mismatch",
			mutate:  func(e *Entry) { e.Category = CategoryNetwork },
			wantErr: true,
			wantMal: true,
		},
		{
			name: "two payloads set",
			mutate: func(e *Entry) {
				e.Network = &NetworkFlow{Host: "h1"}
			},
			wantErr: true,
			wantMal: true,
		},
		{
			name:    "missing username",
			mutate:  func(e *Entry) { e.Login.Username = "" },
			wantErr: true,
			wantMal: true,
		},
		{
			name:    "invalid source ip",
			mutate:  func(e *Entry) { e.Login.SourceIP = "not-an-ip" },
			wantErr: true,
			wantMal: true,
		},
		{
			name:    "zero timestamp",
			mutate:  func(e *Entry) { e.Timestamp = time.Time{} },
			wantErr: true,
		},
		{
			name:    "timestamp too old",
			mutate:  func(e *Entry) { e.Timestamp = time.Now().UTC().Add(-30 * 24 * time.Hour) },
			wantErr: true,
		},
		{
			name:    "timestamp in future",
			mutate:  func(e *Entry) { e.Timestamp = time.Now().UTC().Add(time.Hour) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := validLoginEntry()
			tt.mutate(entry)

			err := v.Validate(entry)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantMal && !IsMalformed(err) {
				t.Errorf("IsMalformed(%v) = false, want true", err)
			}
		})
	}
}

func TestEntry_Key(t *testing.T) {
	tests := []struct {
		name  string
		entry *Entry
		want  string
	}{
		{
			name:  "login keys by username",
			entry: &Entry{Category: CategoryLogin, Login: &Login{Username: "alice"}},
			want:  "alice",
		},
		{
			name:  "network keys by host",
			entry: &Entry{Category: CategoryNetwork, Network: &NetworkFlow{Host: "h1"}},
			want:  "h1",
		},
		{
			name:  "file transfer keys by user",
			entry: &Entry{Category: CategoryFileTransfer, FileTransfer: &FileTransfer{User: "bob"}},
			want:  "bob",
		},
		{
			name:  "missing payload yields empty key",
			entry: &Entry{Category: CategoryLogin},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSeverity_Escalate(t *testing.T) {
	if got := SeverityLow.Escalate(); got != SeverityMedium {
		t.Errorf("Low.Escalate() = %v, want Medium", got)
	}
	if got := SeverityMedium.Escalate(); got != SeverityHigh {
		t.Errorf("Medium.Escalate() = %v, want High", got)
	}
	if got := SeverityHigh.Escalate(); got != SeverityHigh {
		t.Errorf("High.Escalate() = %v, want High", got)
	}
}
