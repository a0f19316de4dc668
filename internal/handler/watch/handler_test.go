package watch

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/model/chat"
	chatservice "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/chat"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/storage/memory"
)

func TestWatchUnknownSession(t *testing.T) {
	chatSvc := chatservice.NewService(memory.NewStore())
	handler := New(chatSvc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	req := httptest.NewRequest("GET", "/watch/missing", nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	if resp.Code != 404 {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestWatchForwardsSnapshots(t *testing.T) {
	chatSvc := chatservice.NewService(memory.NewStore())
	handler := New(chatSvc)

	session, err := chatSvc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	server := httptest.NewServer(r)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/watch/" + session.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var initial snapshot
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("failed to read initial snapshot: %v", err)
	}
	if initial.SessionID != session.ID || len(initial.Messages) != 0 {
		t.Fatalf("unexpected initial snapshot: %+v", initial)
	}

	messages := []chat.Message{chat.NewUserMessage(session.ID, "안녕하세요")}
	if err := chatSvc.SetVisible(session.ID, messages); err != nil {
		t.Fatalf("SetVisible err: %v", err)
	}

	var update snapshot
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("failed to read update snapshot: %v", err)
	}
	if len(update.Messages) != 1 || update.Messages[0].Text != "안녕하세요" {
		t.Fatalf("unexpected update snapshot: %+v", update)
	}
}
