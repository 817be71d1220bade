// Package ledger records tool-call lifecycle events for observability.
// The ledger is a fixed-capacity FIFO ring: it never influences routing
// decisions and tolerates records evicted before they complete.
package ledger

import (
	"time"
)

// Capacity is the number of records the ring retains. Older records are
// evicted FIFO once the ring is full.
const Capacity = 5

// previewLimit bounds ResultPreview length.
const previewLimit = 200

// Status is the lifecycle state of a tracked tool call. Transitions only
// ever move forward: Initiated → Executing → {Completed, Failed}.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one tool-call lifecycle entry.
type Record struct {
	ToolCallID    string         `json:"tool_call_id"`
	Name          string         `json:"name"`
	Args          map[string]any `json:"args,omitempty"`
	Status        Status         `json:"status"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   time.Time      `json:"completed_at,omitzero"`
	ResultPreview string         `json:"result_preview,omitempty"`
}

// Ring is the bounded ledger. It is owned by a single session and mutated
// only by the engine goroutine running that session's invocation, so it
// needs no internal locking.
type Ring struct {
	records []Record
}

// New creates an empty ring.
func New() *Ring {
	return &Ring{}
}

// NewFromRecords rebuilds a ring from persisted records, keeping at most
// the newest Capacity entries. Used when restoring a checkpoint.
func NewFromRecords(records []Record) *Ring {
	if len(records) > Capacity {
		records = records[len(records)-Capacity:]
	}
	r := &Ring{records: make([]Record, len(records))}
	copy(r.records, records)
	return r
}

// Track appends an Initiated record for the given call, evicting the
// oldest record if the ring is at capacity.
func (r *Ring) Track(callID, name string, args map[string]any) {
	r.records = append(r.records, Record{
		ToolCallID: callID,
		Name:       name,
		Args:       args,
		Status:     StatusInitiated,
		StartedAt:  time.Now().UTC(),
	})
	if len(r.records) > Capacity {
		r.records = r.records[len(r.records)-Capacity:]
	}
}

// MarkExecuting transitions the record for callID to Executing. A miss is
// silent: the record may already have been evicted.
func (r *Ring) MarkExecuting(callID string) {
	if rec := r.find(callID); rec != nil && rec.Status == StatusInitiated {
		rec.Status = StatusExecuting
	}
}

// MarkCompleted finalizes the record for callID with a truncated preview
// of the result. A miss is silent.
func (r *Ring) MarkCompleted(callID, result string) {
	r.finalize(callID, StatusCompleted, result)
}

// MarkFailed finalizes the record for callID as failed, with the error
// text as preview. A miss is silent.
func (r *Ring) MarkFailed(callID, reason string) {
	r.finalize(callID, StatusFailed, reason)
}

func (r *Ring) finalize(callID string, status Status, preview string) {
	rec := r.find(callID)
	if rec == nil {
		return
	}
	// Completed/Failed are terminal; never reverse a finalized record.
	if rec.Status == StatusCompleted || rec.Status == StatusFailed {
		return
	}
	rec.Status = status
	rec.CompletedAt = time.Now().UTC()
	rec.ResultPreview = truncate(preview, previewLimit)
}

// ReconcileStale marks records that have been non-terminal for longer
// than maxAge as failed. This covers invocations cancelled mid-batch,
// where Initiated entries would otherwise linger forever. Returns the
// number of records reconciled.
func (r *Ring) ReconcileStale(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)
	n := 0
	for i := range r.records {
		rec := &r.records[i]
		if (rec.Status == StatusInitiated || rec.Status == StatusExecuting) && rec.StartedAt.Before(cutoff) {
			rec.Status = StatusFailed
			rec.CompletedAt = time.Now().UTC()
			rec.ResultPreview = "presumed failed: no result observed"
			n++
		}
	}
	return n
}

// Records returns a copy of the ring contents, oldest first.
func (r *Ring) Records() []Record {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of retained records.
func (r *Ring) Len() int {
	return len(r.records)
}

// find returns the most recent record for callID, or nil. Searching from
// the end matters when an evicted-and-retracked id appears twice.
func (r *Ring) find(callID string) *Record {
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].ToolCallID == callID {
			return &r.records[i]
		}
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
