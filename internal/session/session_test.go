package session

import (
	"sync"
	"testing"

	"github.com/freshalert/freshagent/internal/turn"
)

func TestWatermarkMonotonic(t *testing.T) {
	s := newSession("test")
	for i := 0; i < 10; i++ {
		s.Append(turn.NewHuman("hello"))
	}

	if err := s.AdvanceWatermark(8); err != nil {
		t.Fatalf("advance to 8: %v", err)
	}
	if err := s.AdvanceWatermark(5); err == nil {
		t.Error("expected error moving watermark backward")
	}
	if s.Watermark != 8 {
		t.Errorf("watermark changed on rejected move: %d", s.Watermark)
	}
	if err := s.AdvanceWatermark(11); err == nil {
		t.Error("expected error moving watermark past end")
	}
	if err := s.AdvanceWatermark(8); err != nil {
		t.Errorf("same-position advance should be allowed: %v", err)
	}
}

func TestWindow(t *testing.T) {
	s := newSession("test")
	for i := 0; i < 6; i++ {
		s.Append(turn.NewHuman("msg"))
	}
	if err := s.AdvanceWatermark(4); err != nil {
		t.Fatal(err)
	}

	if got := s.WindowLen(); got != 2 {
		t.Errorf("expected window of 2, got %d", got)
	}
	if got := len(s.Window()); got != 2 {
		t.Errorf("expected 2 window turns, got %d", got)
	}
}

func TestRollback(t *testing.T) {
	s := newSession("test")
	for i := 0; i < 6; i++ {
		s.Append(turn.NewHuman("msg"))
	}
	if err := s.AdvanceWatermark(4); err != nil {
		t.Fatal(err)
	}
	s.Append(turn.NewHuman("uncommitted"))
	s.Append(turn.NewHuman("uncommitted"))

	s.Rollback(6)
	if len(s.Turns) != 6 {
		t.Errorf("expected 6 turns after rollback, got %d", len(s.Turns))
	}

	// A mark behind the watermark clamps: summarized turns survive.
	s.Rollback(2)
	if len(s.Turns) != 4 {
		t.Errorf("expected clamp at watermark, got %d turns", len(s.Turns))
	}
	if s.Watermark != 4 {
		t.Errorf("watermark moved by rollback: %d", s.Watermark)
	}

	// Out-of-range marks are ignored.
	s.Rollback(99)
	if len(s.Turns) != 4 {
		t.Errorf("out-of-range rollback mutated turns: %d", len(s.Turns))
	}
}

func TestImageDescriptionCache(t *testing.T) {
	s := newSession("test")
	s.SetImageDescription("t1", "a carton of milk")

	if desc, ok := s.ImageDescription("t1"); !ok || desc != "a carton of milk" {
		t.Errorf("cache miss: %q %v", desc, ok)
	}
	if _, ok := s.ImageDescription("t2"); ok {
		t.Error("unexpected cache hit")
	}
}

func TestStoreAcquireCreatesOnce(t *testing.T) {
	st := NewStore()

	s1, release1 := st.Acquire("conv-1")
	release1()
	s2, release2 := st.Acquire("conv-1")
	release2()

	if s1 != s2 {
		t.Error("expected same session instance for same id")
	}
	if st.Len() != 1 {
		t.Errorf("expected 1 session, got %d", st.Len())
	}
}

func TestStoreSingleWriter(t *testing.T) {
	st := NewStore()

	// Two goroutines appending under ownership must serialize.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, release := st.Acquire("conv-1")
			defer release()
			for j := 0; j < 100; j++ {
				s.Append(turn.NewHuman("x"))
			}
		}()
	}
	wg.Wait()

	s := st.Peek("conv-1")
	if len(s.Turns) != 1000 {
		t.Errorf("lost appends under contention: %d", len(s.Turns))
	}
}

func TestStoreView(t *testing.T) {
	st := NewStore()

	if st.View("missing", func(*Session) {}) {
		t.Error("expected false for unknown session")
	}

	s, release := st.Acquire("conv-1")
	s.Append(turn.NewHuman("hi"))
	release()

	var n int
	if !st.View("conv-1", func(s *Session) { n = len(s.Turns) }) {
		t.Fatal("expected session to exist")
	}
	if n != 1 {
		t.Errorf("view saw %d turns, want 1", n)
	}
}

func TestStoreRestore(t *testing.T) {
	st := NewStore()
	s := newSession("restored")
	s.Append(turn.NewHuman("old message"))
	st.Restore(s)

	got, release := st.Acquire("restored")
	defer release()
	if len(got.Turns) != 1 {
		t.Errorf("restored session lost turns: %d", len(got.Turns))
	}
}
