package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/freshalert/freshagent/internal/ledger"
	"github.com/freshalert/freshagent/internal/session"
	"github.com/freshalert/freshagent/internal/turn"
)

// Checkpointer manages automatic and manual checkpointing of the session
// store.
type Checkpointer struct {
	store    *Store
	sessions *session.Store
	log      *slog.Logger

	interval time.Duration
	maxAge   time.Duration
	minKeep  int
}

// Config for the checkpointer.
type Config struct {
	Interval time.Duration // Checkpoint period (0 = manual only)
	MaxAge   time.Duration // Prune checkpoints older than this
	MinKeep  int           // Never prune below this many
}

// NewCheckpointer creates a checkpointer over the given stores.
func NewCheckpointer(store *Store, sessions *session.Store, cfg Config, log *slog.Logger) *Checkpointer {
	if log == nil {
		log = slog.Default()
	}
	return &Checkpointer{
		store:    store,
		sessions: sessions,
		log:      log.With("component", "checkpoint"),
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		minKeep:  cfg.MinKeep,
	}
}

// Run drives periodic checkpointing until ctx is cancelled, then writes a
// final shutdown checkpoint. Intended to run in its own goroutine.
func (c *Checkpointer) Run(ctx context.Context) {
	if c.interval <= 0 {
		<-ctx.Done()
		c.shutdown()
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-ticker.C:
			if _, err := c.Create(TriggerPeriodic, ""); err != nil {
				c.log.Error("periodic checkpoint failed", "error", err)
			}
			if c.maxAge > 0 {
				if n, err := c.store.Prune(c.maxAge, c.minKeep); err != nil {
					c.log.Error("prune failed", "error", err)
				} else if n > 0 {
					c.log.Info("pruned old checkpoints", "count", n)
				}
			}
		}
	}
}

func (c *Checkpointer) shutdown() {
	if _, err := c.Create(TriggerShutdown, "graceful shutdown"); err != nil {
		c.log.Error("shutdown checkpoint failed", "error", err)
	}
}

// Create snapshots every session and persists a new checkpoint.
func (c *Checkpointer) Create(trigger Trigger, note string) (*Checkpoint, error) {
	state := c.collectState()
	if len(state.Sessions) == 0 && trigger == TriggerPeriodic {
		// Nothing to save; skip the write rather than stack empty rows.
		return nil, nil
	}

	cp, err := c.store.Create(trigger, note, state)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	c.log.Info("checkpoint created",
		"id", cp.ID.String()[:8],
		"trigger", trigger,
		"sessions", cp.SessionCount,
		"turns", cp.TurnCount,
		"bytes", cp.ByteSize,
	)
	return cp, nil
}

// collectState snapshots each session under its ownership lock, so every
// captured session is internally consistent. Turns are immutable once
// appended, so copying the slice headers is enough.
func (c *Checkpointer) collectState() *State {
	state := &State{}
	c.sessions.ForEach(func(s *session.Session) {
		snap := *s
		snap.Turns = append([]turn.Turn(nil), s.Turns...)
		snap.ImageDescriptions = maps.Clone(s.ImageDescriptions)
		snap.Ledger = nil
		state.Sessions = append(state.Sessions, SessionSnapshot{
			Session: &snap,
			Ledger:  s.Ledger.Records(),
		})
	})
	return state
}

// List returns checkpoint metadata, newest first.
func (c *Checkpointer) List(limit int) ([]*Checkpoint, error) {
	return c.store.List(limit)
}

// RestoreLatest loads the most recent checkpoint into the session store.
// Call at boot, before accepting traffic. A missing checkpoint is not an
// error; the store simply starts empty.
func (c *Checkpointer) RestoreLatest() (int, error) {
	cp, err := c.store.Latest()
	if err != nil {
		return 0, fmt.Errorf("load latest: %w", err)
	}
	if cp == nil || cp.State == nil {
		return 0, nil
	}

	for _, snap := range cp.State.Sessions {
		s := snap.Session
		s.Ledger = ledger.NewFromRecords(snap.Ledger)
		c.sessions.Restore(s)
	}

	c.log.Info("restored checkpoint",
		"id", cp.ID.String()[:8],
		"created_at", cp.CreatedAt,
		"sessions", cp.SessionCount,
	)
	return len(cp.State.Sessions), nil
}
