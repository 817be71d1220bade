package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/freshalert/freshagent/internal/session"
	"github.com/freshalert/freshagent/internal/turn"
)

// toolFailureTemplate is what the model sees when a tool call fails. The
// raw error goes to the ledger and logs, not the conversation.
const toolFailureTemplate = "There was an error executing the tool: %s. Please try again with a different approach."

// dispatch executes one batch of tool calls concurrently and appends
// exactly one tool-result turn per call, in call order. A failed call
// yields a synthetic apologetic result instead of aborting its siblings.
// Ledger mutation stays on this goroutine; workers only compute.
func (e *Engine) dispatch(ctx context.Context, s *session.Session, calls []turn.ToolCall) {
	if len(calls) == 0 {
		return
	}

	for _, call := range calls {
		s.Ledger.Track(call.ID, call.Name, call.Arguments)
		s.Ledger.MarkExecuting(call.ID)
	}

	type outcome struct {
		content string
		err     error
	}
	outcomes := make([]outcome, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, e.toolTimeout())
			defer cancel()
			content, err := e.registry.Execute(callCtx, call.Name, call.Arguments)
			if err == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("tool timed out")
			}
			outcomes[i] = outcome{content: content, err: err}
			return nil
		})
	}
	g.Wait() // workers never return errors

	for i, call := range calls {
		out := outcomes[i]
		if out.err != nil {
			e.logger.Warn("tool call failed",
				"session_id", s.ID,
				"tool", call.Name,
				"tool_call_id", call.ID,
				"error", out.err,
			)
			s.Ledger.MarkFailed(call.ID, out.err.Error())
			s.Append(turn.NewToolResult(call.ID, call.Name, fmt.Sprintf(toolFailureTemplate, out.err)))
			continue
		}
		s.Ledger.MarkCompleted(call.ID, out.content)
		s.Append(turn.NewToolResult(call.ID, call.Name, out.content))
	}
}
