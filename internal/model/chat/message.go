package chat

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the message variants a conversation can hold, so the
// turn state machine can switch over them exhaustively.
type Kind string

const (
	KindUser        Kind = "user"
	KindPlaceholder Kind = "placeholder"
	KindAnswerChunk Kind = "answer_chunk"
	KindFollowUp    Kind = "follow_up"
	KindError       Kind = "error"
)

// Sender distinguishes user-authored messages from model-authored ones.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderModel Sender = "model"
)

// GroundingSource is one citation backing a model answer. Only the last
// answer chunk of a turn carries sources.
type GroundingSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is one displayed unit of conversation. IDs are generated on the
// serving side at creation time, never assigned by storage; messages are
// immutable once revealed, except the loading placeholder which may be
// rewritten into an error.
type Message struct {
	ID                string            `json:"id"`
	SessionID         string            `json:"sessionId"`
	Kind              Kind              `json:"kind"`
	Sender            Sender            `json:"sender"`
	Text              string            `json:"text"`
	IsLoading         bool              `json:"isLoading,omitempty"`
	Sources           []GroundingSource `json:"sources,omitempty"`
	FollowUpQuestions []string          `json:"followUpQuestions,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// NewUserMessage builds the message appended when the user submits text.
func NewUserMessage(sessionID, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      KindUser,
		Sender:    SenderUser,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// NewPlaceholder builds the transient "thinking" message shown while the
// first output of a turn is outstanding.
func NewPlaceholder(sessionID, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      KindPlaceholder,
		Sender:    SenderModel,
		Text:      text,
		IsLoading: true,
		CreatedAt: time.Now().UTC(),
	}
}

// NewAnswerChunk builds one revealed answer chunk. Sources stay nil for
// every chunk except the last one of the turn.
func NewAnswerChunk(sessionID, text string, sources []GroundingSource) Message {
	return Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      KindAnswerChunk,
		Sender:    SenderModel,
		Text:      text,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}
}

// NewFollowUp builds the trailing message that carries only suggested
// questions, never answer text.
func NewFollowUp(sessionID string, questions []string) Message {
	return Message{
		ID:                uuid.NewString(),
		SessionID:         sessionID,
		Kind:              KindFollowUp,
		Sender:            SenderModel,
		FollowUpQuestions: questions,
		CreatedAt:         time.Now().UTC(),
	}
}

// AsError rewrites a placeholder in place into the turn's terminal error
// message, keeping its identity and position in the list.
func (m Message) AsError(text string) Message {
	m.Kind = KindError
	m.Text = text
	m.IsLoading = false
	return m
}
