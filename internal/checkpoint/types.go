// Package checkpoint provides session snapshotting and restoration so
// conversations survive process restarts.
package checkpoint

import (
	"time"

	"github.com/google/uuid"

	"github.com/freshalert/freshagent/internal/ledger"
	"github.com/freshalert/freshagent/internal/session"
)

// Trigger describes what caused a checkpoint to be created.
type Trigger string

const (
	TriggerManual   Trigger = "manual"   // Explicit API call
	TriggerPeriodic Trigger = "periodic" // Timer-driven
	TriggerShutdown Trigger = "shutdown" // Graceful shutdown
)

// Checkpoint represents a point-in-time snapshot of all sessions.
type Checkpoint struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Trigger   Trigger   `json:"trigger"`
	Note      string    `json:"note,omitempty"`

	// Captured state; nil on listings.
	State *State `json:"state,omitempty"`

	// Metadata
	ByteSize     int64 `json:"byte_size"` // Compressed size
	SessionCount int   `json:"session_count"`
	TurnCount    int   `json:"turn_count"`
}

// State holds the restorable data.
type State struct {
	Sessions []SessionSnapshot `json:"sessions"`
}

// SessionSnapshot pairs a session with its ledger records, which do not
// serialize with the session itself.
type SessionSnapshot struct {
	Session *session.Session `json:"session"`
	Ledger  []ledger.Record  `json:"ledger,omitempty"`
}
