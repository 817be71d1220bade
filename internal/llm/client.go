package llm

import "context"

// Client is the provider contract the engine depends on. Tools use the
// JSON-schema definitions produced by the tool registry; pass nil for
// sub-calls that must not bind tools (vision, summarization).
type Client interface {
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)
}
