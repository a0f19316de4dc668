package turn_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/model/chat"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/provider"
	chatservice "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/chat"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/turn"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/storage/memory"
)

type fakeStream struct {
	fragments []string
	sources   []chat.GroundingSource
	recvErr   error
	idx       int
}

func (f *fakeStream) Recv() (string, error) {
	if f.idx < len(f.fragments) {
		fragment := f.fragments[f.idx]
		f.idx++
		return fragment, nil
	}
	if f.recvErr != nil {
		return "", f.recvErr
	}
	return "", io.EOF
}

func (f *fakeStream) Sources() []chat.GroundingSource { return f.sources }
func (f *fakeStream) Close()                          {}

type fakeAdapter struct {
	stream  *fakeStream
	sendErr error
	gate    chan struct{}
}

func (f *fakeAdapter) SendTurn(_ context.Context, _ provider.Handle, _ string) (provider.Stream, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.sendErr != nil {
		return nil, &provider.Error{Err: f.sendErr}
	}
	return f.stream, nil
}

type countingSleeper struct {
	mu    sync.Mutex
	calls int
}

func (c *countingSleeper) sleep(context.Context, time.Duration) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingSleeper) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func setup(t *testing.T, adapter provider.Adapter) (*turn.Runner, *chatservice.Service, *memory.Store, string, *countingSleeper) {
	t.Helper()

	store := memory.NewStore()
	chatSvc := chatservice.NewService(store)
	session, err := chatSvc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	sleeper := &countingSleeper{}
	runner := turn.NewRunner(adapter, chatSvc, turn.WithSleeper(sleeper.sleep))
	return runner, chatSvc, store, session.ID, sleeper
}

func TestTwoParagraphAnswerRevealsTwoChunks(t *testing.T) {
	adapter := &fakeAdapter{stream: &fakeStream{
		fragments: []string{"Hello world.", "\n\nSecond paragraph."},
		sources: []chat.GroundingSource{
			{URI: "https://a.example", Title: "A"},
		},
	}}
	runner, chatSvc, _, sessionID, sleeper := setup(t, adapter)

	runner.SendMessage(sessionID, "안녕하세요")
	runner.Wait()

	visible, err := chatSvc.Visible(sessionID)
	if err != nil {
		t.Fatalf("Visible err: %v", err)
	}

	if len(visible) != 3 {
		t.Fatalf("expected user + 2 chunks, got %d messages", len(visible))
	}
	if visible[1].Text != "Hello world." || visible[2].Text != "Second paragraph." {
		t.Fatalf("unexpected chunk texts: %q %q", visible[1].Text, visible[2].Text)
	}
	if visible[1].Sources != nil {
		t.Fatalf("only the last chunk may carry sources, got %v", visible[1].Sources)
	}
	if len(visible[2].Sources) != 1 {
		t.Fatalf("expected sources on last chunk, got %v", visible[2].Sources)
	}
	if sleeper.count() != 1 {
		t.Fatalf("expected exactly 1 reveal delay, got %d", sleeper.count())
	}
	if _, active := runner.Active(sessionID); active {
		t.Fatal("turn should be forgotten after settling")
	}
}

func TestFollowUpQuestionsArriveAsTrailingMessage(t *testing.T) {
	adapter := &fakeAdapter{stream: &fakeStream{
		fragments: []string{"Answer here.\n---\n", "추천 질문: What is X?\n추천 질문: What is Y?"},
	}}
	runner, chatSvc, _, sessionID, sleeper := setup(t, adapter)

	runner.SendMessage(sessionID, "안녕하세요")
	runner.Wait()

	visible, err := chatSvc.Visible(sessionID)
	if err != nil {
		t.Fatalf("Visible err: %v", err)
	}

	if len(visible) != 3 {
		t.Fatalf("expected user + chunk + follow-up, got %d messages", len(visible))
	}
	if visible[1].Text != "Answer here." {
		t.Fatalf("unexpected answer chunk: %q", visible[1].Text)
	}
	last := visible[2]
	if last.Kind != chat.KindFollowUp || last.Text != "" {
		t.Fatalf("expected empty-text follow-up message, got %+v", last)
	}
	if len(last.FollowUpQuestions) != 2 ||
		last.FollowUpQuestions[0] != "What is X?" ||
		last.FollowUpQuestions[1] != "What is Y?" {
		t.Fatalf("unexpected follow-ups: %v", last.FollowUpQuestions)
	}
	// single chunk: no inter-chunk delay, one delay before the follow-ups
	if sleeper.count() != 1 {
		t.Fatalf("expected 1 delay, got %d", sleeper.count())
	}
}

func TestEmptyResponseYieldsFallbackMessage(t *testing.T) {
	adapter := &fakeAdapter{stream: &fakeStream{}}
	runner, chatSvc, store, sessionID, sleeper := setup(t, adapter)

	runner.SendMessage(sessionID, "안녕하세요")
	runner.Wait()

	visible, err := chatSvc.Visible(sessionID)
	if err != nil {
		t.Fatalf("Visible err: %v", err)
	}

	if len(visible) != 2 {
		t.Fatalf("expected user + fallback, got %d messages", len(visible))
	}
	if visible[1].Text != "이 질문에 대한 답변을 찾지 못했습니다." {
		t.Fatalf("unexpected fallback text: %q", visible[1].Text)
	}
	if visible[1].FollowUpQuestions != nil {
		t.Fatalf("fallback must not carry follow-ups: %v", visible[1].FollowUpQuestions)
	}
	if sleeper.count() != 0 {
		t.Fatalf("fallback should settle without delays, got %d", sleeper.count())
	}

	persisted, err := store.LoadMessages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("LoadMessages err: %v", err)
	}
	if len(persisted) != len(visible) {
		t.Fatalf("persisted list diverges from visible list: %d vs %d", len(persisted), len(visible))
	}
}

func TestProviderFailureReplacesPlaceholderInPlace(t *testing.T) {
	adapter := &fakeAdapter{sendErr: errors.New("network unreachable")}
	runner, chatSvc, store, sessionID, _ := setup(t, adapter)

	runner.SendMessage(sessionID, "안녕하세요")
	runner.Wait()

	visible, err := chatSvc.Visible(sessionID)
	if err != nil {
		t.Fatalf("Visible err: %v", err)
	}

	if len(visible) != 2 {
		t.Fatalf("expected user + error message, got %d messages", len(visible))
	}
	errMsg := visible[1]
	if errMsg.Kind != chat.KindError || errMsg.IsLoading {
		t.Fatalf("expected finalized error message, got %+v", errMsg)
	}
	if !strings.Contains(errMsg.Text, "network unreachable") {
		t.Fatalf("error text should carry the failure reason: %q", errMsg.Text)
	}
	for _, msg := range visible {
		if msg.Kind == chat.KindAnswerChunk {
			t.Fatal("no chunk messages may exist on the error path")
		}
	}

	persisted, err := store.LoadMessages(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("LoadMessages err: %v", err)
	}
	if len(persisted) != 2 || persisted[1].Kind != chat.KindError {
		t.Fatalf("error message should be committed, got %+v", persisted)
	}
}

func TestMidStreamFailureDiscardsPartialFragments(t *testing.T) {
	adapter := &fakeAdapter{stream: &fakeStream{
		fragments: []string{"partial "},
		recvErr:   &provider.Error{Err: errors.New("connection reset")},
	}}
	runner, chatSvc, _, sessionID, _ := setup(t, adapter)

	runner.SendMessage(sessionID, "안녕하세요")
	runner.Wait()

	visible, err := chatSvc.Visible(sessionID)
	if err != nil {
		t.Fatalf("Visible err: %v", err)
	}
	if len(visible) != 2 || visible[1].Kind != chat.KindError {
		t.Fatalf("partial output must not survive a failed stream: %+v", visible)
	}
}

func TestSecondSendIsNoOpWhileTurnActive(t *testing.T) {
	gate := make(chan struct{})
	adapter := &fakeAdapter{
		stream: &fakeStream{fragments: []string{"ok"}},
		gate:   gate,
	}
	runner, chatSvc, _, sessionID, _ := setup(t, adapter)

	runner.SendMessage(sessionID, "첫 번째 질문")
	runner.SendMessage(sessionID, "두 번째 질문")

	visible, err := chatSvc.Visible(sessionID)
	if err != nil {
		t.Fatalf("Visible err: %v", err)
	}
	if len(visible) != 2 {
		t.Fatalf("second send must be a no-op, got %d messages", len(visible))
	}
	placeholders := 0
	for _, msg := range visible {
		if msg.Kind == chat.KindPlaceholder {
			placeholders++
		}
	}
	if placeholders != 1 {
		t.Fatalf("expected exactly one placeholder, got %d", placeholders)
	}

	close(gate)
	runner.Wait()
}

func TestSendToUnknownSessionIsNoOp(t *testing.T) {
	adapter := &fakeAdapter{stream: &fakeStream{fragments: []string{"ok"}}}
	runner, _, store, _, _ := setup(t, adapter)

	runner.SendMessage("missing-session", "안녕하세요")
	runner.Wait()

	if _, err := store.LoadMessages(context.Background(), "missing-session"); err == nil {
		t.Fatal("nothing should be persisted for an unknown session")
	}
}

func TestPlaceholderShownWhileAwaitingResponse(t *testing.T) {
	gate := make(chan struct{})
	adapter := &fakeAdapter{
		stream: &fakeStream{fragments: []string{"ok"}},
		gate:   gate,
	}
	runner, chatSvc, _, sessionID, _ := setup(t, adapter)

	runner.SendMessage(sessionID, "안녕하세요")

	visible, err := chatSvc.Visible(sessionID)
	if err != nil {
		t.Fatalf("Visible err: %v", err)
	}
	if len(visible) != 2 {
		t.Fatalf("user message and placeholder must appear synchronously, got %d", len(visible))
	}
	placeholder := visible[1]
	if placeholder.Kind != chat.KindPlaceholder || !placeholder.IsLoading {
		t.Fatalf("expected loading placeholder, got %+v", placeholder)
	}
	if placeholder.Text != "생각 중..." {
		t.Fatalf("unexpected placeholder text: %q", placeholder.Text)
	}
	if state, ok := runner.Active(sessionID); !ok || state != turn.StateAwaitingResponse {
		t.Fatalf("expected awaiting_response state, got %v (%v)", state, ok)
	}

	close(gate)
	runner.Wait()

	final, _ := chatSvc.Visible(sessionID)
	for _, msg := range final {
		if msg.Kind == chat.KindPlaceholder {
			t.Fatal("placeholder must be superseded after the turn settles")
		}
	}
}
