package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	chatservice "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/chat"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/storage/memory"
)

func TestHandleStreamRequestUnknownSession(t *testing.T) {
	chatSvc := chatservice.NewService(memory.NewStore())
	handler := New(chatSvc)

	resp := httptest.NewRecorder()
	if err := handler.HandleStreamRequest(context.Background(), resp, "missing"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestHandleStreamRequestSendsInitialSnapshot(t *testing.T) {
	chatSvc := chatservice.NewService(memory.NewStore())
	handler := New(chatSvc)

	session, err := chatSvc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	// Pre-canceled context: the handler must still flush the current list
	// before returning.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp := httptest.NewRecorder()
	if err := handler.HandleStreamRequest(ctx, resp, session.ID); err != nil {
		t.Fatalf("HandleStreamRequest err: %v", err)
	}

	if ct := resp.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", ct)
	}
	body := resp.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("expected sse data event, got %q", body)
	}
	if !strings.Contains(body, session.ID) {
		t.Fatalf("snapshot should carry the session id, got %q", body)
	}
}
