// Package journal persists a diagnostics record of forced composition passes
// and animating-flag changes as JSON lines.
package journal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind classifies a journal event.
type Kind string

const (
	// KindForcedPass records one forced pass and how its wait ended.
	KindForcedPass Kind = "forced_pass"
	// KindAnimating records an animating flag reported to the display-control service.
	KindAnimating Kind = "animating"
	// KindDisplayRemoved records the eviction of a display.
	KindDisplayRemoved Kind = "display_removed"
)

// Event is one journal record.
type Event struct {
	ID        string        `json:"id" yaml:"id"`
	Kind      Kind          `json:"kind" yaml:"kind"`
	TxnID     string        `json:"txn_id,omitempty" yaml:"txn_id,omitempty"`
	Display   int32         `json:"display" yaml:"display"`
	Outcome   string        `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Elapsed   time.Duration `json:"elapsed_ns,omitempty" yaml:"elapsed,omitempty"`
	Animating bool          `json:"animating,omitempty" yaml:"animating,omitempty"`
	Timestamp int64         `json:"timestamp" yaml:"timestamp"` // Unix milliseconds
}

// Validation errors.
var (
	ErrEmptyID     = errors.New("event id cannot be empty")
	ErrUnknownKind = errors.New("unknown event kind")
)

// NewID returns a fresh ULID string.
func NewID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate ULID: %w", err)
	}
	return id.String(), nil
}

// NewEvent creates an Event with a generated ULID and the current time.
func NewEvent(kind Kind, display int32) (*Event, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        id,
		Kind:      kind,
		Display:   display,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Time returns the event timestamp.
func (e *Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Validate checks that the event has the required fields.
func (e *Event) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	switch e.Kind {
	case KindForcedPass, KindAnimating, KindDisplayRemoved:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
}
