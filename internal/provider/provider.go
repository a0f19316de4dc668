// Package provider wraps the single streaming call to the generative
// backend behind a small adapter contract, so the turn pipeline never
// touches the model SDK directly.
package provider

import (
	"context"
	"fmt"

	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/model/chat"
)

// Handle binds one outstanding provider call to a session's conversation
// context. The adapter owns it only for the duration of that call.
type Handle struct {
	SessionID string
	History   []chat.Message
}

// Stream is a lazy, finite, non-restartable sequence of text fragments.
// Fragments arrive in emission order; their concatenation is the full raw
// model output. Sources is only meaningful after Recv returned io.EOF.
type Stream interface {
	Recv() (string, error)
	Sources() []chat.GroundingSource
	Close()
}

// Adapter sends one user turn to the generative backend and returns its
// incremental output. Implementations have no side effects beyond the
// outbound call and never write to persistence.
type Adapter interface {
	SendTurn(ctx context.Context, handle Handle, promptText string) (Stream, error)
}

// Error wraps a failed provider call. Fragments received before the failure
// carry no meaning; callers treat the turn as having produced nothing.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider call failed: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
