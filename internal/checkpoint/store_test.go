package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/freshalert/freshagent/internal/ledger"
	"github.com/freshalert/freshagent/internal/session"
	"github.com/freshalert/freshagent/internal/turn"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleState(turns int) *State {
	sess := &session.Session{ID: "conv-1", ImageDescriptions: map[string]string{}}
	for i := 0; i < turns; i++ {
		sess.Turns = append(sess.Turns, turn.NewHuman("msg"))
	}
	return &State{Sessions: []SessionSnapshot{{
		Session: sess,
		Ledger:  []ledger.Record{{ToolCallID: "c1", Name: "search_product", Status: ledger.StatusCompleted}},
	}}}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	st := openTestStore(t)

	created, err := st.Create(TriggerManual, "before upgrade", sampleState(3))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.SessionCount != 1 || created.TurnCount != 3 {
		t.Errorf("metadata wrong: %+v", created)
	}
	if created.ByteSize <= 0 {
		t.Error("byte size not recorded")
	}

	got, err := st.Get(created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Note != "before upgrade" || got.Trigger != TriggerManual {
		t.Errorf("metadata lost: %+v", got)
	}
	if got.State == nil || len(got.State.Sessions) != 1 {
		t.Fatal("state not restored")
	}
	snap := got.State.Sessions[0]
	if snap.Session.ID != "conv-1" || len(snap.Session.Turns) != 3 {
		t.Errorf("session lost: %+v", snap.Session)
	}
	if len(snap.Ledger) != 1 || snap.Ledger[0].ToolCallID != "c1" {
		t.Errorf("ledger lost: %+v", snap.Ledger)
	}
}

func TestLatestEmpty(t *testing.T) {
	st := openTestStore(t)

	cp, err := st.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if cp != nil {
		t.Errorf("expected nil for empty store, got %+v", cp)
	}
}

func TestListOmitsState(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.Create(TriggerPeriodic, "", sampleState(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Create(TriggerManual, "second", sampleState(2)); err != nil {
		t.Fatal(err)
	}

	list, err := st.List(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 checkpoints, got %d", len(list))
	}
	for _, cp := range list {
		if cp.State != nil {
			t.Error("listing should not carry full state")
		}
	}
}

func TestDelete(t *testing.T) {
	st := openTestStore(t)
	cp, err := st.Create(TriggerManual, "", sampleState(1))
	if err != nil {
		t.Fatal(err)
	}

	if err := st.Delete(cp.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Delete(cp.ID); err == nil {
		t.Error("expected error deleting missing checkpoint")
	}
}

func TestPruneKeepsMinimum(t *testing.T) {
	st := openTestStore(t)
	for i := 0; i < 4; i++ {
		if _, err := st.Create(TriggerPeriodic, "", sampleState(1)); err != nil {
			t.Fatal(err)
		}
	}

	// Cutoff in the future so age never protects anything; only minKeep does.
	deleted, err := st.Prune(-time.Hour, 1)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted %d, want 3", deleted)
	}

	list, err := st.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 survivor, got %d", len(list))
	}

	// Below minKeep nothing is pruned regardless of age.
	deleted, err = st.Prune(-time.Hour, 1)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 0 {
		t.Errorf("pruned below minimum: %d", deleted)
	}
}

func TestCheckpointerRoundTrip(t *testing.T) {
	st := openTestStore(t)

	sessions := session.NewStore()
	s, release := sessions.Acquire("conv-42")
	s.Append(turn.NewHuman("remember the milk"))
	s.Append(turn.NewAssistant("noted", nil))
	s.SetImageDescription("t1", "a fridge shelf")
	s.Ledger.Track("c1", "get_user_products", nil)
	s.Ledger.MarkCompleted("c1", "2 products")
	release()

	c := NewCheckpointer(st, sessions, Config{}, nil)
	cp, err := c.Create(TriggerShutdown, "graceful shutdown")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cp.SessionCount != 1 || cp.TurnCount != 2 {
		t.Errorf("snapshot metadata: %+v", cp)
	}

	// Boot a fresh store and restore into it.
	restored := session.NewStore()
	c2 := NewCheckpointer(st, restored, Config{}, nil)
	n, err := c2.RestoreLatest()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if n != 1 {
		t.Fatalf("restored %d sessions, want 1", n)
	}

	got := restored.Peek("conv-42")
	if got == nil {
		t.Fatal("session missing after restore")
	}
	if len(got.Turns) != 2 || got.Turns[0].TextContent() != "remember the milk" {
		t.Errorf("turns lost: %+v", got.Turns)
	}
	if desc, ok := got.ImageDescription("t1"); !ok || desc != "a fridge shelf" {
		t.Errorf("image cache lost: %q %v", desc, ok)
	}
	records := got.Ledger.Records()
	if len(records) != 1 || records[0].Status != ledger.StatusCompleted {
		t.Errorf("ledger lost: %+v", records)
	}
}

func TestPeriodicSkipsEmptyStore(t *testing.T) {
	st := openTestStore(t)
	c := NewCheckpointer(st, session.NewStore(), Config{}, nil)

	cp, err := c.Create(TriggerPeriodic, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cp != nil {
		t.Error("empty periodic checkpoint should be skipped")
	}

	list, err := st.List(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("empty checkpoint written: %d rows", len(list))
	}
}

func TestRestoreLatestEmpty(t *testing.T) {
	st := openTestStore(t)
	c := NewCheckpointer(st, session.NewStore(), Config{}, nil)

	n, err := c.RestoreLatest()
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if n != 0 {
		t.Errorf("restored %d from empty store", n)
	}
}
