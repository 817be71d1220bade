// Package turn defines the conversation data model: the tagged union of
// turn kinds, content blocks, and tool calls that the engine routes.
package turn

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the variant of a Turn. Exactly one of the kind-specific
// fields below is meaningful for each value.
type Kind string

const (
	// Human is an inbound user message: text plus zero or more images.
	Human Kind = "human"

	// Assistant is a model response: text and/or tool calls.
	Assistant Kind = "assistant"

	// ToolResult carries the outcome of a single tool call.
	ToolResult Kind = "tool_result"

	// System is a fixed preamble turn.
	System Kind = "system"
)

// BlockType identifies the variant of a content Block.
type BlockType string

const (
	// BlockText is a plain text segment.
	BlockText BlockType = "text"

	// BlockImage references an image payload.
	BlockImage BlockType = "image"
)

// ImageRef is an image attachment. Either Data (raw bytes) or URL is set.
type ImageRef struct {
	MediaType string `json:"media_type,omitempty"` // e.g. image/jpeg
	Data      []byte `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Block is one element of a turn's content: text or an image reference.
// Representing content as a block list replaces the original's shape
// sniffing (string vs list-of-dicts) with an explicit sum type.
type Block struct {
	Type  BlockType `json:"type"`
	Text  string    `json:"text,omitempty"`
	Image *ImageRef `json:"image,omitempty"`
}

// Text returns a text block.
func Text(s string) Block {
	return Block{Type: BlockText, Text: s}
}

// Image returns an image block.
func Image(ref ImageRef) Block {
	return Block{Type: BlockImage, Image: &ref}
}

// ToolCall is a structured request from the assistant to invoke a named
// tool with arguments.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Turn is one message-equivalent unit in a session. Turns are immutable
// once appended; the engine never edits history, it only appends.
type Turn struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Content   []Block   `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Assistant only.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResult only.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

// NewHuman creates a human turn from text plus optional image attachments.
func NewHuman(text string, images ...ImageRef) Turn {
	content := []Block{}
	if text != "" {
		content = append(content, Text(text))
	}
	for _, img := range images {
		content = append(content, Image(img))
	}
	return Turn{
		ID:        uuid.NewString(),
		Kind:      Human,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewAssistant creates an assistant turn with optional tool calls.
func NewAssistant(text string, calls []ToolCall) Turn {
	var content []Block
	if text != "" {
		content = []Block{Text(text)}
	}
	return Turn{
		ID:        uuid.NewString(),
		Kind:      Assistant,
		Content:   content,
		ToolCalls: calls,
		Timestamp: time.Now().UTC(),
	}
}

// NewToolResult creates a tool-result turn for the given call.
func NewToolResult(callID, toolName, content string) Turn {
	return Turn{
		ID:         uuid.NewString(),
		Kind:       ToolResult,
		Content:    []Block{Text(content)},
		ToolCallID: callID,
		ToolName:   toolName,
		Timestamp:  time.Now().UTC(),
	}
}

// NewSystem creates a system turn.
func NewSystem(text string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Kind:      System,
		Content:   []Block{Text(text)},
		Timestamp: time.Now().UTC(),
	}
}

// TextContent returns the concatenated text blocks of the turn.
// Image blocks are never rendered here.
func (t Turn) TextContent() string {
	var parts []string
	for _, b := range t.Content {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Images returns the image blocks of the turn, in order.
func (t Turn) Images() []ImageRef {
	var refs []ImageRef
	for _, b := range t.Content {
		if b.Type == BlockImage && b.Image != nil {
			refs = append(refs, *b.Image)
		}
	}
	return refs
}

// HasImages reports whether the turn carries at least one image block.
func (t Turn) HasImages() bool {
	for _, b := range t.Content {
		if b.Type == BlockImage {
			return true
		}
	}
	return false
}
