// Package redis persists sessions and their committed message lists as
// JSON values, one key per session plus an index key for listings.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/model/chat"
)

var ErrSessionDoesNotExist = errors.New("session does not exist")

const (
	sessionKeyPrefix  = "chat:session:"
	messagesKeyPrefix = "chat:messages:"
	indexKey          = "chat:sessions"
)

type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func sessionKey(id string) string  { return sessionKeyPrefix + id }
func messagesKey(id string) string { return messagesKeyPrefix + id }

func (s *Store) SaveSession(ctx context.Context, session chat.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", session.ID, err)
	}
	if err := s.rdb.Set(ctx, sessionKey(session.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	// Re-append so the index stays ordered by last update, newest last.
	if err := s.rdb.LRem(ctx, indexKey, 0, session.ID).Err(); err != nil {
		return fmt.Errorf("failed to unindex session %s: %w", session.ID, err)
	}
	if err := s.rdb.RPush(ctx, indexKey, session.ID).Err(); err != nil {
		return fmt.Errorf("failed to index session %s: %w", session.ID, err)
	}
	return nil
}

func (s *Store) SaveMessages(ctx context.Context, sessionID string, messages []chat.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages for %s: %w", sessionID, err)
	}
	if err := s.rdb.Set(ctx, messagesKey(sessionID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save messages for %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) LoadSession(ctx context.Context, sessionID string) (chat.Session, error) {
	data, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return chat.Session{}, ErrSessionDoesNotExist
	}
	if err != nil {
		return chat.Session{}, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var session chat.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return chat.Session{}, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}
	return session, nil
}

func (s *Store) LoadMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	data, err := s.rdb.Get(ctx, messagesKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		// A session committed no turn yet; an empty list is valid.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load messages for %s: %w", sessionID, err)
	}

	var messages []chat.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages for %s: %w", sessionID, err)
	}
	return messages, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]chat.Session, error) {
	ids, err := s.rdb.LRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session ids: %w", err)
	}

	sessions := make([]chat.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.LoadSession(ctx, id)
		if errors.Is(err, ErrSessionDoesNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, sessionKey(sessionID), messagesKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	if err := s.rdb.LRem(ctx, indexKey, 0, sessionID).Err(); err != nil {
		return fmt.Errorf("failed to unindex session %s: %w", sessionID, err)
	}
	return nil
}
