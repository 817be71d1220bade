package engine

import (
	"context"

	"github.com/freshalert/freshagent/internal/llm"
	"github.com/freshalert/freshagent/internal/session"
	"github.com/freshalert/freshagent/internal/turn"
)

// generate invokes the provider with the current prompt and converts the
// reply into an assistant turn. Errors are not recovered here: faking a
// generation would drop user-visible content.
func (e *Engine) generate(ctx context.Context, s *session.Session) (turn.Turn, *llm.ChatResponse, error) {
	resp, err := e.client.Chat(ctx, e.model, e.buildMessages(s), e.registry.List())
	if err != nil {
		return turn.Turn{}, nil, err
	}

	calls := make([]turn.ToolCall, 0, len(resp.Message.ToolCalls))
	for _, c := range resp.Message.ToolCalls {
		calls = append(calls, turn.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}

	return turn.NewAssistant(resp.Message.Content, calls), resp, nil
}

// buildMessages renders the prompt: system preamble, rolling summary when
// present, then the post-watermark window with incomplete tool groups
// filtered out. Human turns that carried images are replaced by their
// cached descriptions so the main conversation stays text-only.
func (e *Engine) buildMessages(s *session.Session) []llm.Message {
	window := turn.FilterComplete(s.Window())

	messages := make([]llm.Message, 0, len(window)+2)
	messages = append(messages, llm.Message{Role: "system", Content: e.system})
	if s.RollingSummary != "" {
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: "Summary of the conversation so far:\n" + s.RollingSummary,
		})
	}

	for _, t := range window {
		switch t.Kind {
		case turn.Human:
			content := t.TextContent()
			if t.HasImages() {
				if desc, ok := s.ImageDescription(t.ID); ok {
					content = desc
				}
			}
			messages = append(messages, llm.Message{Role: "user", Content: content})

		case turn.Assistant:
			m := llm.Message{Role: "assistant", Content: t.TextContent()}
			for _, c := range t.ToolCalls {
				m.ToolCalls = append(m.ToolCalls, llm.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
			}
			messages = append(messages, m)

		case turn.ToolResult:
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    t.TextContent(),
				ToolCallID: t.ToolCallID,
			})

		case turn.System:
			messages = append(messages, llm.Message{Role: "system", Content: t.TextContent()})
		}
	}

	return messages
}
