// File: internal/server/handlers.go
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// chatRequest is the POST /api/chat/stream body.
type chatRequest struct {
	ThreadID string `json:"thread_id"`
	Mode     string `json:"mode"`
	Message  string `json:"message"`
}

// handleChatStream runs one turn and relays its chunk sequence as SSE. The
// connection stays open for the whole turn; closing it cancels the turn's
// context, and commands already applied stay committed.
func (s *Server) handleChatStream(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request body"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message is required"})
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}
	mode := schemas.ActionMode(req.Mode)
	if mode == "" {
		mode = schemas.ModeB2C
	}
	if !mode.IsValid() || mode == schemas.ModeBoth {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "mode must be b2c or b2b"})
	}

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Thread-ID", req.ThreadID)
	resp.WriteHeader(http.StatusOK)

	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "streaming not supported")
	}

	// The opening frame tells the client which thread the stream belongs to
	// before any turn output arrives.
	if _, err := fmt.Fprintf(resp.Writer, "event: connection\ndata: {\"thread_id\":%q}\n\n", req.ThreadID); err != nil {
		return nil
	}
	flusher.Flush()

	ctx := c.Request().Context()
	chunks := s.engine.ExecuteTurn(ctx, engine.TurnRequest{
		ThreadID: req.ThreadID,
		Identity: c.Get(ctxIdentity).(string),
		Tier:     c.Get(ctxTier).(string),
		Mode:     mode,
		Content:  req.Message,
	})

	keepAlive := s.cfg.KeepAliveInterval
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Client disconnected mid-stream",
				zap.String("thread_id", req.ThreadID))
			return nil
		case <-ticker.C:
			// Comment frames keep intermediaries from collapsing idle
			// connections during slow model turns.
			if _, err := fmt.Fprint(resp.Writer, ": ping\n\n"); err != nil {
				return nil
			}
			flusher.Flush()
		case chunk, open := <-chunks:
			if !open {
				return nil
			}
			if err := writeEvent(resp.Writer, chunk); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

// writeEvent frames one chunk as an SSE event. Internal chunk-type names are
// mapped onto the public event vocabulary: clients see `message` frames for
// text and a final `done` frame.
func writeEvent(w http.ResponseWriter, chunk schemas.StreamChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName(chunk.Type), data)
	return err
}

func eventName(t schemas.ChunkType) string {
	switch t {
	case schemas.ChunkTextDelta:
		return "message"
	case schemas.ChunkEnd:
		return "done"
	}
	return string(t)
}
