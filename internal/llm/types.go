// Package llm defines the model-provider contract and wire bindings.
package llm

import (
	"fmt"
	"time"
)

// Message represents a chat message for the provider.
type Message struct {
	Role    string `json:"role"` // system, user, assistant, tool
	Content string `json:"content"`

	// Images attaches image payloads to a user message. Only the vision
	// sub-call uses this; the main conversation is text-only.
	Images []ImagePayload `json:"images,omitempty"`

	// ToolCalls is set on assistant messages that request tool use.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set on tool messages carrying a call's result.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ImagePayload is one image attached to a message. Either Data (with
// MediaType) or URL is set.
type ImagePayload struct {
	MediaType string `json:"media_type,omitempty"`
	Data      []byte `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the provider-neutral response. Wire format conversion
// happens at the provider boundary (openai.go).
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message

	InputTokens  int
	OutputTokens int
}

// UpstreamError reports a failed provider call. Generation and
// summarization failures are never swallowed: the engine propagates them
// with session state unchanged so a retry is safe.
type UpstreamError struct {
	Provider string
	Status   int // HTTP status, 0 for transport errors
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: upstream call failed: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
