// Package session holds per-conversation state: the ordered turn
// sequence, the compaction watermark, the rolling summary, the
// image-description cache, and the tool-call ledger.
package session

import (
	"fmt"
	"time"

	"github.com/freshalert/freshagent/internal/ledger"
	"github.com/freshalert/freshagent/internal/turn"
)

// Session is the complete state of one conversation. A session is
// exclusively owned by one in-flight engine invocation at a time; see
// [Store.Acquire].
type Session struct {
	ID string `json:"id"`

	// Turns is append-only across committed invocations. Existing turns
	// are never edited; compaction only advances the watermark past them.
	// A failed invocation rolls back its own uncommitted suffix (see
	// [Session.Rollback]).
	Turns []turn.Turn `json:"turns"`

	// Watermark marks how many leading turns have been folded into
	// RollingSummary. Monotonically non-decreasing.
	Watermark int `json:"watermark"`

	// RollingSummary is the bounded natural-language compression of all
	// turns before the watermark. Replaced, never appended to.
	RollingSummary string `json:"rolling_summary"`

	// ImageDescriptions caches vision sub-call output, keyed by turn ID.
	ImageDescriptions map[string]string `json:"image_descriptions,omitempty"`

	// Ledger tracks tool-call lifecycles for observability only.
	Ledger *ledger.Ring `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// newSession creates an empty session.
func newSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:                id,
		ImageDescriptions: make(map[string]string),
		Ledger:            ledger.New(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Append adds turns to the end of the sequence.
func (s *Session) Append(turns ...turn.Turn) {
	s.Turns = append(s.Turns, turns...)
	s.UpdatedAt = time.Now().UTC()
}

// AdvanceWatermark moves the watermark forward. Moving it backward or
// past the end of the turn sequence is a programming error and is
// rejected so the invariant survives bugs in callers.
func (s *Session) AdvanceWatermark(to int) error {
	if to < s.Watermark {
		return fmt.Errorf("watermark cannot decrease: %d < %d", to, s.Watermark)
	}
	if to > len(s.Turns) {
		return fmt.Errorf("watermark %d past end of %d turns", to, len(s.Turns))
	}
	s.Watermark = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Rollback discards all turns after mark, undoing an invocation that
// failed before committing. Marks behind the watermark are clamped so
// summarized turns are never discarded, and out-of-range marks are a
// no-op.
func (s *Session) Rollback(mark int) {
	if mark < s.Watermark {
		mark = s.Watermark
	}
	if mark < 0 || mark > len(s.Turns) {
		return
	}
	s.Turns = s.Turns[:mark]
	s.UpdatedAt = time.Now().UTC()
}

// Window returns the turns past the watermark. The returned slice aliases
// the session's backing array; callers must not retain it across appends.
func (s *Session) Window() []turn.Turn {
	return s.Turns[s.Watermark:]
}

// WindowLen returns the number of turns past the watermark.
func (s *Session) WindowLen() int {
	return len(s.Turns) - s.Watermark
}

// SetImageDescription caches the description for a turn.
func (s *Session) SetImageDescription(turnID, description string) {
	if s.ImageDescriptions == nil {
		s.ImageDescriptions = make(map[string]string)
	}
	s.ImageDescriptions[turnID] = description
	s.UpdatedAt = time.Now().UTC()
}

// ImageDescription returns the cached description for a turn, if any.
func (s *Session) ImageDescription(turnID string) (string, bool) {
	d, ok := s.ImageDescriptions[turnID]
	return d, ok
}
