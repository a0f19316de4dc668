// Package stream mirrors a session's visible message list over
// Server-Sent Events, for clients without websocket support.
package stream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/model/chat"
	chatservice "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/chat"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/pkg/utils"
)

// Handler streams visible-list snapshots as SSE data events.
type Handler struct {
	chatSvc *chatservice.Service
}

func New(chatSvc *chatservice.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

type snapshot struct {
	SessionID string         `json:"sessionId"`
	Messages  []chat.Message `json:"messages"`
}

// HandleStreamRequest pushes the current list immediately, then every
// update until the client disconnects or the session is deleted.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, sessionID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	current, err := h.chatSvc.Visible(sessionID)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}

	updates, cancel, err := h.chatSvc.Subscribe(sessionID)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer cancel()

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, snapshot{SessionID: sessionID, Messages: current})

	for {
		select {
		case <-ctx.Done():
			return nil
		case messages, open := <-updates:
			if !open {
				return nil
			}
			utils.SendSSEChunk(w, flusher, snapshot{SessionID: sessionID, Messages: messages})
		}
	}
}
