// File: api/schemas/streaming.go
package schemas

import "time"

// ChunkType identifies one typed chunk in the turn's output sequence.
type ChunkType string

const (
	ChunkTextDelta ChunkType = "text-delta"
	ChunkToolStart ChunkType = "tool_start"
	ChunkToolEnd   ChunkType = "tool_end"
	ChunkMetadata  ChunkType = "metadata"
	ChunkError     ChunkType = "error"
	ChunkEnd       ChunkType = "end"
)

// ToolEvent describes an action invocation boundary on the stream.
type ToolEvent struct {
	Name   string     `json:"name"`
	Args   ActionArgs `json:"args,omitempty"`
	Result any        `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// StreamError is the in-band error payload. It carries only templated,
// user-safe text, never internal detail.
type StreamError struct {
	Kind       string   `json:"kind"`
	Message    string   `json:"message"`
	Severity   Severity `json:"severity,omitempty"`
	RetryAfter int      `json:"retry_after,omitempty"`
}

// StreamChunk is one element of the asynchronous output sequence a turn
// produces. Exactly one payload field is populated, selected by Type.
type StreamChunk struct {
	Type       ChunkType          `json:"type"`
	Text       string             `json:"text,omitempty"`
	Tool       *ToolEvent         `json:"tool,omitempty"`
	Metadata   map[string]any     `json:"metadata,omitempty"`
	Error      *StreamError       `json:"error,omitempty"`
	FinalState *ConversationState `json:"final_state,omitempty"`
	At         time.Time          `json:"at"`
}

// TextDelta builds a text-delta chunk.
func TextDelta(text string) StreamChunk {
	return StreamChunk{Type: ChunkTextDelta, Text: text, At: time.Now().UTC()}
}

// ToolStart builds a tool_start chunk.
func ToolStart(name string, args ActionArgs) StreamChunk {
	return StreamChunk{Type: ChunkToolStart, Tool: &ToolEvent{Name: name, Args: args}, At: time.Now().UTC()}
}

// ToolEnd builds a tool_end chunk.
func ToolEnd(name string, result any, errMsg string) StreamChunk {
	return StreamChunk{Type: ChunkToolEnd, Tool: &ToolEvent{Name: name, Result: result, Error: errMsg}, At: time.Now().UTC()}
}

// Metadata builds a metadata chunk.
func Metadata(kv map[string]any) StreamChunk {
	return StreamChunk{Type: ChunkMetadata, Metadata: kv, At: time.Now().UTC()}
}

// ErrorChunk builds an in-band error chunk.
func ErrorChunk(e StreamError) StreamChunk {
	return StreamChunk{Type: ChunkError, Error: &e, At: time.Now().UTC()}
}

// EndChunk terminates the sequence with the committed final state.
func EndChunk(final *ConversationState) StreamChunk {
	return StreamChunk{Type: ChunkEnd, FinalState: final, At: time.Now().UTC()}
}
