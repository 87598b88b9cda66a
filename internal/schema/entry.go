// Package schema defines the canonical log entry and anomaly record shapes
// for LiveSec. All ingested entries are validated against this structure
// before they reach the detection engine.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// Category identifies which kind of log stream an entry belongs to.
type Category string

const (
	CategoryLogin        Category = "login"
	CategoryNetwork      Category = "network"
	CategoryFileTransfer Category = "file_transfer"
)

// IsValid checks if the category is a known value.
func (c Category) IsValid() bool {
	switch c {
	case CategoryLogin, CategoryNetwork, CategoryFileTransfer:
		return true
	}
	return false
}

// Entry is a single log entry of a known category. Exactly one of the
// category payloads must be set, matching the Category tag. Entries are
// immutable once created.
type Entry struct {
	EntryID   uuid.UUID `json:"entry_id" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Category  Category  `json:"category" validate:"required,oneof=login network file_transfer"`

	Login        *Login        `json:"login,omitempty"`
	Network      *NetworkFlow  `json:"network,omitempty"`
	FileTransfer *FileTransfer `json:"file_transfer,omitempty"`

	// Set by the system at intake.
	ReceivedAt time.Time `json:"received_at"`
}

// Login holds the fields of an authentication attempt.
type Login struct {
	Username   string `json:"username" validate:"required,max=256"`
	SourceIP   string `json:"source_ip" validate:"required,ip"`
	GeoCountry string `json:"geo_country" validate:"required,max=64"`
	Success    bool   `json:"success"`
}

// NetworkFlow holds the fields of a network flow summary.
type NetworkFlow struct {
	Host            string `json:"host" validate:"required,max=256"`
	BytesSent       int64  `json:"bytes_sent" validate:"min=0"`
	BytesReceived   int64  `json:"bytes_received" validate:"min=0"`
	DestPort        int    `json:"dest_port" validate:"min=0,max=65535"`
	ConnectionCount int    `json:"connection_count" validate:"min=0"`
}

// FileTransfer holds the fields of a file transfer record.
type FileTransfer struct {
	User          string `json:"user" validate:"required,max=256"`
	FilePath      string `json:"file_path" validate:"required,max=1024"`
	FileSizeBytes int64  `json:"file_size_bytes" validate:"min=0"`
	Destination   string `json:"destination" validate:"required,max=256"`
}

// Key returns the baseline key for the entry: the identity whose history
// this entry contributes to (username for logins, host for network flows,
// user for file transfers).
func (e *Entry) Key() string {
	switch e.Category {
	case CategoryLogin:
		if e.Login != nil {
			return e.Login.Username
		}
	case CategoryNetwork:
		if e.Network != nil {
			return e.Network.Host
		}
	case CategoryFileTransfer:
		if e.FileTransfer != nil {
			return e.FileTransfer.User
		}
	}
	return ""
}

// SchemaVersionCurrent is the current version of the entry schema.
const SchemaVersionCurrent = "1.0.0"
