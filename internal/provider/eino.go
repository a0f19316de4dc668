package provider

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/config"
	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/model/chat"
)

const historyLimit = 10

// Service is the production Adapter backed by an eino chain over an Ark
// chat model.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the prompt template + chat model chain once at
// startup.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chain: runnable}, nil
}

// SendTurn starts the streaming call for one turn. Failure to open the
// stream is a provider error; the caller owns the returned stream and must
// Close it.
func (s *Service) SendTurn(ctx context.Context, handle Handle, promptText string) (Stream, error) {
	input := map[string]any{
		"system":  systemInstructions,
		"history": historyMessages(handle.History),
		"query":   promptText,
	}

	reader, err := s.chain.Stream(ctx, input)
	if err != nil {
		return nil, &Error{Err: err}
	}

	return &einoStream{reader: reader}, nil
}

// historyMessages converts the most recent visible messages into model
// history. Placeholders, follow-up carriers and error messages never reach
// the model.
func historyMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	start := 0
	if len(messages) > historyLimit {
		start = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		switch msg.Kind {
		case chat.KindUser:
			history = append(history, schema.UserMessage(msg.Text))
		case chat.KindAnswerChunk:
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return history
}

// einoStream adapts the eino StreamReader to the adapter contract and
// collects grounding metadata once the stream drains.
type einoStream struct {
	reader  *schema.StreamReader[*schema.Message]
	chunks  []*schema.Message
	sources []chat.GroundingSource
}

func (s *einoStream) Recv() (string, error) {
	for {
		msg, err := s.reader.Recv()
		if errors.Is(err, io.EOF) {
			s.sources = collectSources(s.chunks)
			return "", io.EOF
		}
		if err != nil {
			return "", &Error{Err: err}
		}
		if msg == nil {
			continue
		}
		s.chunks = append(s.chunks, msg)
		return msg.Content, nil
	}
}

func (s *einoStream) Sources() []chat.GroundingSource {
	return s.sources
}

func (s *einoStream) Close() {
	s.reader.Close()
}

// collectSources pulls grounding chunks out of the concatenated response
// metadata. Shape: extra["grounding_chunks"] = [{"web": {"uri","title"}}].
// Backends without grounding simply yield no sources.
func collectSources(chunks []*schema.Message) []chat.GroundingSource {
	if len(chunks) == 0 {
		return nil
	}

	full, err := schema.ConcatMessages(chunks)
	if err != nil || full == nil || full.Extra == nil {
		return nil
	}

	raw, ok := full.Extra["grounding_chunks"].([]any)
	if !ok {
		return nil
	}

	sources := make([]chat.GroundingSource, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		web, ok := m["web"].(map[string]any)
		if !ok {
			continue
		}
		uri, _ := web["uri"].(string)
		title, _ := web["title"].(string)
		sources = append(sources, chat.GroundingSource{URI: uri, Title: title})
	}
	if len(sources) == 0 {
		return nil
	}
	return sources
}
