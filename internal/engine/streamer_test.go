// File: internal/engine/streamer_test.go
package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
)

func TestBoundaryBufferFlushesAtWordBoundaries(t *testing.T) {
	var b BoundaryBuffer

	assert.Equal(t, "", b.Add("Hel"), "no boundary yet")
	assert.Equal(t, "Hello ", b.Add("lo wor"))
	assert.Equal(t, "", b.Add("ld"))
	assert.Equal(t, "world", b.Flush())
	assert.Equal(t, "", b.Flush(), "flush drains")
}

func TestBoundaryBufferPunctuation(t *testing.T) {
	var b BoundaryBuffer

	out := b.Add("Done!Next")
	assert.Equal(t, "Done!", out)
	assert.Equal(t, "Next", b.Flush())
}

func TestBoundaryBufferWholeBoundaryInput(t *testing.T) {
	var b BoundaryBuffer
	assert.Equal(t, "One two. ", b.Add("One two. "))
	assert.Equal(t, "", b.Flush())
}

func TestEmitterStopsWhenConsumerGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan schemas.StreamChunk) // unbuffered, nobody reading

	e := &emitter{ctx: ctx, ch: ch}
	cancel()

	ok := e.emit(schemas.TextDelta("lost"))
	assert.False(t, ok)
}

func TestEmitterDelivers(t *testing.T) {
	ch := make(chan schemas.StreamChunk, 1)
	e := &emitter{ctx: context.Background(), ch: ch}

	require.True(t, e.emit(schemas.TextDelta("hi")))
	chunk := <-ch
	assert.Equal(t, schemas.ChunkTextDelta, chunk.Type)
	assert.Equal(t, "hi", chunk.Text)
}

func TestKeywordIntent(t *testing.T) {
	available := []schemas.ActionDefinition{
		{ID: "search_products"}, {ID: "checkout"}, {ID: "apply_coupon"},
		{ID: "add_to_cart"}, {ID: "remove_from_cart"}, {ID: "compare_products"},
	}

	tests := []struct {
		content string
		want    string
	}{
		{"I'm looking for winter boots", "search_products"},
		{"please checkout now", "checkout"},
		{"use coupon SAVE20 please", "apply_coupon"},
		{"add the red one to my cart", "add_to_cart"},
		{"remove the boots from my cart", "remove_from_cart"},
		{"compare these two", "compare_products"},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			plan := keywordIntent(tt.content, available)
			require.Len(t, plan, 1)
			assert.Equal(t, tt.want, plan[0].ID)
		})
	}

	t.Run("chat produces no plan", func(t *testing.T) {
		assert.Empty(t, keywordIntent("hello, how are you?", available))
	})

	t.Run("unavailable actions are never planned", func(t *testing.T) {
		plan := keywordIntent("please checkout now", []schemas.ActionDefinition{{ID: "search_products"}})
		assert.Empty(t, plan)
	})
}

func TestExtractCouponCode(t *testing.T) {
	assert.Equal(t, "SAVE20", extractCouponCode("use coupon SAVE20 please"))
	assert.Equal(t, "XY-9", extractCouponCode("promo code: XY-9"))
	assert.Empty(t, extractCouponCode("do you have any coupons?"))
}
