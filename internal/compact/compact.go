// Package compact folds older conversation turns into a rolling summary so
// the provider prompt stays bounded on long sessions.
package compact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/freshalert/freshagent/internal/llm"
	"github.com/freshalert/freshagent/internal/prompts"
	"github.com/freshalert/freshagent/internal/session"
	"github.com/freshalert/freshagent/internal/turn"
)

// KeepRecentTurns is how many trailing turns stay verbatim after a
// compaction. Two keeps the latest exchange intact for the next prompt.
const KeepRecentTurns = 2

// Compactor summarizes session history with a provider sub-call.
type Compactor struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// NewCompactor creates a compactor using the given provider client and
// summarization model.
func NewCompactor(client llm.Client, model string, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{
		client: client,
		model:  model,
		logger: logger.With("component", "compact"),
	}
}

// ShouldCompact reports whether the unsummarized window has grown past the
// threshold.
func ShouldCompact(s *session.Session, threshold int) bool {
	return s.WindowLen() >= threshold
}

// Compact folds all but the last KeepRecentTurns window turns into the
// session's rolling summary, then advances the watermark. The new summary
// REPLACES the old one; the prompt instructs the model to carry prior
// content forward. On any failure the session is left untouched so the
// next invocation can retry.
func (c *Compactor) Compact(ctx context.Context, s *session.Session) error {
	fold := len(s.Turns) - KeepRecentTurns
	if fold <= s.Watermark {
		return nil
	}

	transcript := renderTranscript(s, s.Turns[s.Watermark:fold])
	if transcript == "" {
		// Nothing renderable (e.g. only an incomplete tool group). Leave
		// the watermark alone; the group completes on a later invocation.
		return nil
	}

	prompt := prompts.CompactionPrompt(transcript, s.RollingSummary)
	resp, err := c.client.Chat(ctx, c.model, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return fmt.Errorf("summarize session %s: %w", s.ID, err)
	}
	if resp.Message.Content == "" {
		return fmt.Errorf("summarize session %s: model returned empty summary", s.ID)
	}

	s.RollingSummary = resp.Message.Content
	if err := s.AdvanceWatermark(fold); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}

	c.logger.Info("compacted session",
		"session_id", s.ID,
		"folded_through", fold,
		"summary_chars", len(s.RollingSummary),
	)
	return nil
}

// renderTranscript narrates the given turns for the summary prompt. Tool
// calls and results become short natural-language phrases, and human turns
// with images use the cached vision descriptions. Incomplete tool groups
// are excluded entirely.
func renderTranscript(s *session.Session, turns []turn.Turn) string {
	var lines []string
	for _, t := range turn.FilterComplete(turns) {
		switch t.Kind {
		case turn.Human:
			text := t.TextContent()
			if t.HasImages() {
				if desc, ok := s.ImageDescription(t.ID); ok {
					text = desc
				}
			}
			if text != "" {
				lines = append(lines, "User: "+text)
			}

		case turn.Assistant:
			if len(t.ToolCalls) > 0 {
				actions := make([]string, 0, len(t.ToolCalls))
				for _, call := range t.ToolCalls {
					actions = append(actions, callPhrase(call.Name, call.Arguments))
				}
				lines = append(lines, "Assistant: "+strings.Join(actions, ", "))
			}
			if text := t.TextContent(); text != "" {
				lines = append(lines, "Assistant: "+text)
			}

		case turn.ToolResult:
			lines = append(lines, resultPhrase(t.ToolName, t.TextContent()))

		case turn.System:
			// The preamble is regenerated per prompt; summarizing it
			// would only pollute the summary.
		}
	}
	return strings.Join(lines, "\n")
}
