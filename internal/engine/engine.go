// Package engine implements the turn orchestration state machine: it
// routes each inbound message through optional image preprocessing,
// response generation, concurrent tool dispatch with ledger bookkeeping,
// and periodic history compaction.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/freshalert/freshagent/internal/compact"
	"github.com/freshalert/freshagent/internal/config"
	"github.com/freshalert/freshagent/internal/llm"
	"github.com/freshalert/freshagent/internal/session"
	"github.com/freshalert/freshagent/internal/tools"
	"github.com/freshalert/freshagent/internal/turn"
	"github.com/freshalert/freshagent/internal/vision"
)

// State identifies a router state. One invocation walks these states from
// StateReceiveInput to StateTerminate.
type State int

const (
	StateReceiveInput State = iota
	StatePreprocessImage
	StateGenerateResponse
	StateExecuteTools
	StateLogToolCalls
	StateCheckCompaction
	StateSummarize
	StateTerminate
)

// String implements fmt.Stringer for state-transition logging.
func (s State) String() string {
	switch s {
	case StateReceiveInput:
		return "receive_input"
	case StatePreprocessImage:
		return "preprocess_image"
	case StateGenerateResponse:
		return "generate_response"
	case StateExecuteTools:
		return "execute_tools"
	case StateLogToolCalls:
		return "log_tool_calls"
	case StateCheckCompaction:
		return "check_compaction"
	case StateSummarize:
		return "summarize"
	case StateTerminate:
		return "terminate"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// staleAfter is how long a ledger record may sit non-terminal before the
// reconciliation pass at the start of an invocation presumes it failed.
// Covers invocations cancelled mid-batch.
const staleAfter = 10 * time.Minute

// Engine runs one router invocation per inbound turn. The caller must hold
// exclusive ownership of the session (see session.Store.Acquire); all
// session mutation happens on the calling goroutine.
type Engine struct {
	client    llm.Client
	model     string
	registry  *tools.Registry
	vision    *vision.Preprocessor
	compactor *compact.Compactor
	cfg       config.EngineConfig
	system    string
	logger    *slog.Logger
}

// New creates an engine. The vision preprocessor and compactor share the
// provider client but may target cheaper models.
func New(client llm.Client, model string, registry *tools.Registry, vp *vision.Preprocessor, cp *compact.Compactor, cfg config.EngineConfig, systemPrompt string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:    client,
		model:     model,
		registry:  registry,
		vision:    vp,
		compactor: cp,
		cfg:       cfg,
		system:    systemPrompt,
		logger:    logger.With("component", "engine"),
	}
}

// Result reports the outcome of one invocation.
type Result struct {
	Reply        string `json:"reply"`
	ToolRounds   int    `json:"tool_rounds,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
}

// Run appends the inbound turn and walks the state machine until
// termination. On a generation failure the error propagates and every
// turn this invocation appended is rolled back, so the caller can retry
// the same message without duplicating it; tool and image failures are
// absorbed into conversational content instead.
func (e *Engine) Run(ctx context.Context, s *session.Session, input turn.Turn) (*Result, error) {
	if n := s.Ledger.ReconcileStale(staleAfter); n > 0 {
		e.logger.Warn("reconciled stale ledger records", "session_id", s.ID, "count", n)
	}

	mark := len(s.Turns)
	s.Append(input)

	result := &Result{}
	state := StateReceiveInput
	for state != StateTerminate {
		e.logger.Debug("router state", "session_id", s.ID, "state", state.String())

		switch state {
		case StateReceiveInput:
			if input.Kind == turn.Human && input.HasImages() {
				state = StatePreprocessImage
			} else {
				state = StateGenerateResponse
			}

		case StatePreprocessImage:
			// Best-effort: failures become inline placeholders and the
			// turn proceeds regardless.
			if _, ok := s.ImageDescription(input.ID); !ok {
				if desc := e.vision.Describe(ctx, &input); desc != "" {
					s.SetImageDescription(input.ID, desc)
				}
			}
			state = StateGenerateResponse

		case StateGenerateResponse:
			assistant, resp, err := e.generate(ctx, s)
			if err != nil {
				// The invocation never committed; discard its turns so the
				// caller can resend the same message. Rollback clamps at the
				// watermark in case a compaction ran earlier this invocation.
				s.Rollback(mark)
				return nil, err
			}
			s.Append(assistant)
			result.Reply = assistant.TextContent()
			result.InputTokens += resp.InputTokens
			result.OutputTokens += resp.OutputTokens

			if len(assistant.ToolCalls) > 0 {
				result.ToolRounds++
				if result.ToolRounds > e.maxToolRounds() {
					s.Rollback(mark)
					return nil, fmt.Errorf("session %s: exceeded %d tool rounds in one invocation", s.ID, e.maxToolRounds())
				}
				state = StateExecuteTools
			} else {
				state = StateCheckCompaction
			}

		case StateExecuteTools:
			e.dispatch(ctx, s, turn.PendingCalls(s.Turns))
			state = StateLogToolCalls

		case StateLogToolCalls:
			e.logToolCalls(s)
			state = StateGenerateResponse

		case StateCheckCompaction:
			if compact.ShouldCompact(s, e.threshold()) {
				state = StateSummarize
			} else {
				state = StateTerminate
			}

		case StateSummarize:
			// Compaction failure is recoverable: the watermark and summary
			// are untouched and the next trigger retries. The user still
			// gets the reply that was already generated.
			if err := e.compactor.Compact(ctx, s); err != nil {
				e.logger.Warn("compaction failed, will retry on next trigger", "session_id", s.ID, "error", err)
				state = StateTerminate
				break
			}
			if len(turn.PendingCalls(s.Window())) > 0 {
				state = StateExecuteTools
			} else {
				state = StateTerminate
			}
		}
	}

	return result, nil
}

func (e *Engine) threshold() int {
	if e.cfg.CompactionThreshold > 0 {
		return e.cfg.CompactionThreshold
	}
	return 8
}

func (e *Engine) maxToolRounds() int {
	if e.cfg.MaxToolRounds > 0 {
		return e.cfg.MaxToolRounds
	}
	return 25
}

func (e *Engine) toolTimeout() time.Duration {
	if e.cfg.ToolTimeoutSec > 0 {
		return time.Duration(e.cfg.ToolTimeoutSec) * time.Second
	}
	return 30 * time.Second
}

// logToolCalls emits the ledger state after a dispatch batch. Observational
// only; it never influences routing.
func (e *Engine) logToolCalls(s *session.Session) {
	records := s.Ledger.Records()
	for _, rec := range records {
		e.logger.Debug("tool call record",
			"session_id", s.ID,
			"tool_call_id", rec.ToolCallID,
			"tool", rec.Name,
			"status", string(rec.Status),
			"preview", rec.ResultPreview,
		)
	}
	e.logger.Info("tool batch logged", "session_id", s.ID, "ledger_len", len(records))
}
