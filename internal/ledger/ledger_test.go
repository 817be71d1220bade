package ledger

import (
	"testing"
	"time"
)

func TestTrackAndComplete(t *testing.T) {
	r := New()
	r.Track("c1", "get_user_products", nil)
	r.MarkExecuting("c1")
	r.MarkCompleted("c1", "3 products")

	records := r.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", rec.Status)
	}
	if rec.ResultPreview != "3 products" {
		t.Errorf("unexpected preview: %q", rec.ResultPreview)
	}
	if rec.CompletedAt.IsZero() {
		t.Error("expected completed_at to be set")
	}
}

func TestFIFOEviction(t *testing.T) {
	r := New()
	ids := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	for _, id := range ids {
		r.Track(id, "search_product", nil)
	}

	if r.Len() != Capacity {
		t.Fatalf("expected %d records, got %d", Capacity, r.Len())
	}
	records := r.Records()
	if records[0].ToolCallID != "c3" {
		t.Errorf("expected oldest surviving record c3, got %s", records[0].ToolCallID)
	}
	if records[len(records)-1].ToolCallID != "c7" {
		t.Errorf("expected newest record c7, got %s", records[len(records)-1].ToolCallID)
	}
}

func TestEvictedRecordToleratedOnCompletion(t *testing.T) {
	r := New()
	r.Track("old", "get_user_products", nil)
	for i := 0; i < Capacity; i++ {
		r.Track("new", "search_product", nil)
	}

	// "old" is gone; finalizing it must be a silent no-op.
	r.MarkCompleted("old", "result")
	for _, rec := range r.Records() {
		if rec.ToolCallID == "old" {
			t.Fatal("evicted record reappeared")
		}
	}
}

func TestTerminalStatusNeverReversed(t *testing.T) {
	r := New()
	r.Track("c1", "get_recipe_information", nil)
	r.MarkFailed("c1", "timeout")
	r.MarkCompleted("c1", "late result")

	rec := r.Records()[0]
	if rec.Status != StatusFailed {
		t.Errorf("terminal status was reversed: %s", rec.Status)
	}
	if rec.ResultPreview != "timeout" {
		t.Errorf("preview overwritten: %q", rec.ResultPreview)
	}
}

func TestPreviewTruncation(t *testing.T) {
	r := New()
	r.Track("c1", "get_user_products", nil)

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	r.MarkCompleted("c1", string(long))

	preview := r.Records()[0].ResultPreview
	if len(preview) != previewLimit+len("...") {
		t.Errorf("expected truncated preview of %d chars, got %d", previewLimit+3, len(preview))
	}
	if preview[len(preview)-3:] != "..." {
		t.Error("expected preview to end with ellipsis")
	}
}

func TestReconcileStale(t *testing.T) {
	r := New()
	r.Track("stuck", "find_recipes_by_ingredients", nil)
	r.records[0].StartedAt = time.Now().UTC().Add(-time.Hour)
	r.Track("fresh", "search_recipes", nil)

	n := r.ReconcileStale(10 * time.Minute)
	if n != 1 {
		t.Fatalf("expected 1 reconciled record, got %d", n)
	}

	records := r.Records()
	if records[0].Status != StatusFailed {
		t.Errorf("stale record not failed: %s", records[0].Status)
	}
	if records[0].ResultPreview != "presumed failed: no result observed" {
		t.Errorf("unexpected preview: %q", records[0].ResultPreview)
	}
	if records[1].Status != StatusInitiated {
		t.Errorf("fresh record should be untouched: %s", records[1].Status)
	}
}

func TestNewFromRecordsCapped(t *testing.T) {
	var records []Record
	for i := 0; i < 8; i++ {
		records = append(records, Record{ToolCallID: string(rune('a' + i)), Status: StatusCompleted})
	}

	r := NewFromRecords(records)
	if r.Len() != Capacity {
		t.Fatalf("expected %d records after restore, got %d", Capacity, r.Len())
	}
	if r.Records()[0].ToolCallID != "d" {
		t.Errorf("expected oldest surviving record d, got %s", r.Records()[0].ToolCallID)
	}
}
