// File: internal/engine/streamer.go
package engine

import (
	"context"
	"strings"
	"unicode"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
)

// emitter pushes chunks onto the turn's output channel, giving up silently
// once the consumer has gone away. Commands already applied before a
// cancellation stay committed; only emission stops.
type emitter struct {
	ctx context.Context
	ch  chan<- schemas.StreamChunk
}

// emit delivers one chunk. It reports false when the consumer is gone.
func (e *emitter) emit(chunk schemas.StreamChunk) bool {
	select {
	case e.ch <- chunk:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// BoundaryBuffer accumulates text deltas and releases them only at word or
// punctuation boundaries, so consumers never render a half word and flicker.
type BoundaryBuffer struct {
	pending strings.Builder
}

// Add appends a delta and returns any text that is safe to flush.
func (b *BoundaryBuffer) Add(delta string) string {
	b.pending.WriteString(delta)
	text := b.pending.String()

	cut := lastBoundary(text)
	if cut <= 0 {
		return ""
	}
	out := text[:cut]
	rest := text[cut:]
	b.pending.Reset()
	b.pending.WriteString(rest)
	return out
}

// Flush drains whatever is left, boundary or not. Call at end of stream.
func (b *BoundaryBuffer) Flush() string {
	out := b.pending.String()
	b.pending.Reset()
	return out
}

// lastBoundary finds the byte offset just past the last space or punctuation
// rune in text, or 0 when there is none.
func lastBoundary(text string) int {
	cut := 0
	for i, r := range text {
		if unicode.IsSpace(r) || isPunct(r) {
			cut = i + len(string(r))
		}
	}
	return cut
}

func isPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', ')', ']', '"', '\'':
		return true
	}
	return false
}
