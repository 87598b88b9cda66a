package schema

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedEntry marks an entry whose shape does not match its declared
// category. Malformed entries are rejected at intake and never reach the
// baseline store.
var ErrMalformedEntry = errors.New("schema: malformed entry")

// Validator validates entries against the canonical schema.
type Validator struct {
	validate  *validator.Validate
	maxAge    time.Duration
	maxFuture time.Duration
}

// ValidatorConfig holds configuration for the validator.
type ValidatorConfig struct {
	MaxAge    time.Duration
	MaxFuture time.Duration
}

// DefaultValidatorConfig returns the default validator configuration.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxAge:    7 * 24 * time.Hour,
		MaxFuture: 5 * time.Minute,
	}
}

// NewValidator creates a new Validator with default configuration.
func NewValidator() *Validator {
	return NewValidatorWithConfig(DefaultValidatorConfig())
}

// NewValidatorWithConfig creates a new Validator with the specified configuration.
func NewValidatorWithConfig(cfg ValidatorConfig) *Validator {
	return &Validator{
		validate:  validator.New(),
		maxAge:    cfg.MaxAge,
		maxFuture: cfg.MaxFuture,
	}
}

// Validate validates an entry against the canonical schema. A shape mismatch
// between the declared category and the populated payload wraps
// ErrMalformedEntry so callers can classify the rejection.
func (v *Validator) Validate(entry *Entry) error {
	if !entry.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", ErrMalformedEntry, entry.Category)
	}

	if err := v.checkShape(entry); err != nil {
		return err
	}

	if err := v.validate.Struct(entry); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEntry, err)
	}

	now := time.Now().UTC()

	if entry.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrMalformedEntry)
	}

	if entry.Timestamp.Before(now.Add(-v.maxAge)) {
		return fmt.Errorf("timestamp too old: %v (max age: %v)", entry.Timestamp, v.maxAge)
	}

	if entry.Timestamp.After(now.Add(v.maxFuture)) {
		return fmt.Errorf("timestamp in future: %v (max future: %v)", entry.Timestamp, v.maxFuture)
	}

	return nil
}

// checkShape verifies exactly the payload matching the declared category is set.
func (v *Validator) checkShape(entry *Entry) error {
	var want int
	set := 0
	if entry.Login != nil {
		set++
	}
	if entry.Network != nil {
		set++
	}
	if entry.FileTransfer != nil {
		set++
	}
	want = 1
	if set != want {
		return fmt.Errorf("%w: %d category payloads set, want exactly one", ErrMalformedEntry, set)
	}

	switch entry.Category {
	case CategoryLogin:
		if entry.Login == nil {
			return fmt.Errorf("%w: category %q with no login payload", ErrMalformedEntry, entry.Category)
		}
	case CategoryNetwork:
		if entry.Network == nil {
			return fmt.Errorf("%w: category %q with no network payload", ErrMalformedEntry, entry.Category)
		}
	case CategoryFileTransfer:
		if entry.FileTransfer == nil {
			return fmt.Errorf("%w: category %q with no file_transfer payload", ErrMalformedEntry, entry.Category)
		}
	}

	return nil
}

// IsMalformed reports whether an error is a malformed-entry rejection.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedEntry)
}
