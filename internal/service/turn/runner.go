// Package turn drives one conversation turn from submitted text to settled
// history: provider call, reassembly, paced chunk reveal and the final
// durable commit.
package turn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/model/chat"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/provider"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/reassembly"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/refine"
	chatservice "github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/service/chat"
)

// State tracks a turn through its lifecycle. Settled and Errored are
// terminal; the runner forgets the turn once it reaches either.
type State string

const (
	StateAwaitingResponse   State = "awaiting_response"
	StateRevealingChunks    State = "revealing_chunks"
	StateRevealingFollowUps State = "revealing_follow_ups"
	StateSettled            State = "settled"
	StateErrored            State = "errored"
)

// DefaultRevealDelay paces the progressive disclosure of answer chunks.
const DefaultRevealDelay = time.Second

const (
	placeholderText = "생각 중..."
	emptyAnswerText = "이 질문에 대한 답변을 찾지 못했습니다."
	errorTemplate   = "죄송합니다. 답변 생성 중 오류가 발생했습니다: %s"
)

// Sleeper suspends between chunk reveals. Tests inject a no-op so turns run
// deterministically without wall-clock waits.
type Sleeper func(ctx context.Context, d time.Duration)

func sleepFor(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Option customizes a Runner.
type Option func(*Runner)

// WithRevealDelay overrides the inter-chunk delay.
func WithRevealDelay(d time.Duration) Option {
	return func(r *Runner) { r.delay = d }
}

// WithSleeper overrides how the runner waits between reveals.
func WithSleeper(s Sleeper) Option {
	return func(r *Runner) { r.sleep = s }
}

// Runner owns every in-flight turn. At most one turn per session may be
// active; the visible message list is written only from here.
type Runner struct {
	adapter provider.Adapter
	chatSvc *chatservice.Service
	delay   time.Duration
	sleep   Sleeper

	mu     sync.Mutex
	active map[string]State

	wg conc.WaitGroup
}

// NewRunner wires the turn pipeline together.
func NewRunner(adapter provider.Adapter, chatSvc *chatservice.Service, opts ...Option) *Runner {
	r := &Runner{
		adapter: adapter,
		chatSvc: chatSvc,
		delay:   DefaultRevealDelay,
		sleep:   sleepFor,
		active:  make(map[string]State),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendMessage starts a turn for the session. Fire-and-forget: the UI
// observes progress through the visible message list. The call is a no-op
// when the session is unknown or already has a non-terminal turn.
func (r *Runner) SendMessage(sessionID, text string) {
	base, err := r.chatSvc.Visible(sessionID)
	if err != nil {
		log.Printf("[turn] rejected send for unknown session=%s", sessionID)
		return
	}

	r.mu.Lock()
	if state, ok := r.active[sessionID]; ok {
		r.mu.Unlock()
		log.Printf("[turn] rejected send: session=%s already has a turn in state=%s", sessionID, state)
		return
	}
	r.active[sessionID] = StateAwaitingResponse
	r.mu.Unlock()

	userMsg := chat.NewUserMessage(sessionID, text)
	placeholder := chat.NewPlaceholder(sessionID, placeholderText)

	visible := make([]chat.Message, 0, len(base)+2)
	visible = append(visible, base...)
	visible = append(visible, userMsg, placeholder)
	if err := r.chatSvc.SetVisible(sessionID, visible); err != nil {
		r.forget(sessionID)
		log.Printf("[turn] failed to show placeholder for session=%s: %v", sessionID, err)
		return
	}

	r.wg.Go(func() {
		defer r.forget(sessionID)
		r.runTurn(sessionID, base, userMsg, placeholder)
	})
}

// Active reports the state of the session's in-flight turn, if any.
func (r *Runner) Active(sessionID string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.active[sessionID]
	return state, ok
}

// Wait blocks until every in-flight turn finishes. Used on shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) runTurn(sessionID string, base []chat.Message, userMsg, placeholder chat.Message) {
	// No user-facing cancellation exists: a turn runs to completion or
	// failure even if the submitting request has long since returned.
	ctx := context.Background()

	handle := provider.Handle{SessionID: sessionID, History: base}
	raw, rawSources, err := r.collect(ctx, handle, userMsg.Text)
	if err != nil {
		r.fail(ctx, sessionID, base, userMsg, placeholder, err)
		return
	}

	grounded := reassembly.Reassemble(raw, rawSources)

	recent := make([]chat.Message, 0, len(base)+1)
	recent = append(recent, base...)
	recent = append(recent, userMsg)
	followUps := refine.Refine(grounded.FollowUpQuestions, recent)

	// Every reveal recomputes the full visible sequence from this prefix;
	// the placeholder is superseded, never mutated, on the success path.
	visible := make([]chat.Message, 0, len(base)+2+len(grounded.AnswerChunks))
	visible = append(visible, base...)
	visible = append(visible, userMsg)

	if len(grounded.AnswerChunks) == 0 {
		visible = append(visible, chat.NewAnswerChunk(sessionID, emptyAnswerText, grounded.Sources))
		r.reveal(sessionID, visible)
		r.settle(ctx, sessionID, visible)
		return
	}

	r.setState(sessionID, StateRevealingChunks)
	for i, text := range grounded.AnswerChunks {
		var sources []chat.GroundingSource
		if i == len(grounded.AnswerChunks)-1 {
			sources = grounded.Sources
		}
		visible = append(visible, chat.NewAnswerChunk(sessionID, text, sources))
		r.reveal(sessionID, visible)
		if i < len(grounded.AnswerChunks)-1 {
			r.sleep(ctx, r.delay)
		}
	}

	if len(followUps) > 0 {
		r.setState(sessionID, StateRevealingFollowUps)
		r.sleep(ctx, r.delay)
		visible = append(visible, chat.NewFollowUp(sessionID, followUps))
		r.reveal(sessionID, visible)
	}

	r.settle(ctx, sessionID, visible)
}

// collect drains the provider stream. Fragments received before a failure
// are discarded: a failed call produced no usable output.
func (r *Runner) collect(ctx context.Context, handle provider.Handle, text string) (string, []chat.GroundingSource, error) {
	stream, err := r.adapter.SendTurn(ctx, handle, text)
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		fragment, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", nil, recvErr
		}
		builder.WriteString(fragment)
	}
	return builder.String(), stream.Sources(), nil
}

// fail rewrites the placeholder in place into the turn's error message and
// commits the list as-is, so the failure stays part of the history.
func (r *Runner) fail(ctx context.Context, sessionID string, base []chat.Message, userMsg, placeholder chat.Message, cause error) {
	r.setState(sessionID, StateErrored)
	log.Printf("[turn] errored session=%s: %v", sessionID, cause)

	errMsg := placeholder.AsError(fmt.Sprintf(errorTemplate, cause.Error()))

	final := make([]chat.Message, 0, len(base)+2)
	final = append(final, base...)
	final = append(final, userMsg, errMsg)

	r.reveal(sessionID, final)
	r.commit(ctx, sessionID, final)
}

func (r *Runner) settle(ctx context.Context, sessionID string, final []chat.Message) {
	r.setState(sessionID, StateSettled)
	r.commit(ctx, sessionID, final)
	log.Printf("[turn] settled session=%s with %d message(s)", sessionID, len(final))
}

func (r *Runner) commit(ctx context.Context, sessionID string, final []chat.Message) {
	if err := r.chatSvc.CommitTurn(ctx, sessionID, final); err != nil {
		log.Printf("[turn] commit failed for session=%s: %v", sessionID, err)
	}
}

func (r *Runner) reveal(sessionID string, visible []chat.Message) {
	if err := r.chatSvc.SetVisible(sessionID, visible); err != nil {
		log.Printf("[turn] failed to update visible list for session=%s: %v", sessionID, err)
	}
}

func (r *Runner) setState(sessionID string, state State) {
	r.mu.Lock()
	r.active[sessionID] = state
	r.mu.Unlock()
}

func (r *Runner) forget(sessionID string) {
	r.mu.Lock()
	delete(r.active, sessionID)
	r.mu.Unlock()
}
