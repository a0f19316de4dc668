package chat

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Miningpickery/knowledge-explorer-frontend-sub001/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	titleRuneLimit   = 40
	commitRetryDelay = 500 * time.Millisecond
	watcherBuffer    = 8
)

// Store is the durable session backend behind the service.
type Store interface {
	SaveSession(ctx context.Context, session chat.Session) error
	SaveMessages(ctx context.Context, sessionID string, messages []chat.Message) error
	LoadSession(ctx context.Context, sessionID string) (chat.Session, error)
	LoadMessages(ctx context.Context, sessionID string) ([]chat.Message, error)
	ListSessions(ctx context.Context) ([]chat.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Service owns the visible message list of every session and synchronizes
// completed turns to the durable store. The visible list is single-writer
// (the turn runner); the store is only written at turn boundaries, so the
// display state runs ahead of durable state while a turn is revealing.
type Service struct {
	mu          sync.RWMutex
	store       Store
	sessions    map[string]chat.Session
	visible     map[string][]chat.Message
	index       []chat.Session
	watchers    map[string]map[int]chan []chat.Message
	nextWatcher int
}

// NewService wires the service to a store. Call Restore to rehydrate
// previously persisted sessions.
func NewService(store Store) *Service {
	return &Service{
		store:    store,
		sessions: make(map[string]chat.Session),
		visible:  make(map[string][]chat.Message),
		watchers: make(map[string]map[int]chan []chat.Message),
	}
}

// Restore loads persisted sessions and their committed message lists into
// memory, rebuilding the sidebar index.
func (s *Service) Restore(ctx context.Context) error {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range sessions {
		messages, err := s.store.LoadMessages(ctx, session.ID)
		if err != nil {
			log.Printf("[chat] failed to load messages for session=%s: %v", session.ID, err)
			messages = nil
		}
		s.sessions[session.ID] = session
		s.visible[session.ID] = messages
	}
	s.index = sessions
	return nil
}

// CreateSession provisions an empty conversation.
func (s *Service) CreateSession(ctx context.Context) (chat.Session, error) {
	now := time.Now().UTC()
	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.SaveSession(ctx, session); err != nil {
		return chat.Session{}, err
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.visible[session.ID] = make([]chat.Message, 0, 16)
	s.index = append(s.index, session)
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves session metadata by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Sessions returns the denormalized sidebar index.
func (s *Service) Sessions() []chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chat.Session(nil), s.index...)
}

// Visible returns a copy of the session's current display list.
func (s *Service) Visible(sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.visible[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// SetVisible replaces the session's display list and fans the new snapshot
// out to watchers. Only the turn runner calls this.
func (s *Service) SetVisible(sessionID string, messages []chat.Message) error {
	snapshot := make([]chat.Message, len(messages))
	copy(snapshot, messages)

	s.mu.Lock()
	if _, ok := s.visible[sessionID]; !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	s.visible[sessionID] = snapshot

	// Sends are non-blocking, so fanning out under the lock is safe and
	// serializes them against DeleteSession closing the same channels.
	for _, ch := range s.watchers[sessionID] {
		select {
		case ch <- snapshot:
		default:
			// slow watcher, drop the snapshot; the next one supersedes it
		}
	}
	s.mu.Unlock()
	return nil
}

// Subscribe registers a watcher for the session's display list. The cancel
// func must be called when the watcher goes away.
func (s *Service) Subscribe(sessionID string) (<-chan []chat.Message, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.visible[sessionID]; !ok {
		return nil, nil, ErrSessionNotFound
	}

	id := s.nextWatcher
	s.nextWatcher++

	ch := make(chan []chat.Message, watcherBuffer)
	if s.watchers[sessionID] == nil {
		s.watchers[sessionID] = make(map[int]chan []chat.Message)
	}
	s.watchers[sessionID][id] = ch

	cancel := func() {
		s.mu.Lock()
		if watchers, ok := s.watchers[sessionID]; ok {
			delete(watchers, id)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

// CommitTurn durably writes the full message list produced by a settled or
// errored turn, then refreshes the session index from the same source of
// truth. Called exactly once per turn; a failed write is retried once after
// a short backoff before giving up.
func (s *Service) CommitTurn(ctx context.Context, sessionID string, finalMessages []chat.Message) error {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	err := s.store.SaveMessages(ctx, sessionID, finalMessages)
	if err != nil {
		log.Printf("[chat] commit failed for session=%s, retrying once: %v", sessionID, err)
		time.Sleep(commitRetryDelay)
		err = s.store.SaveMessages(ctx, sessionID, finalMessages)
	}
	if err != nil {
		// Display state stays authoritative; durable state catches up on the
		// next successful commit.
		log.Printf("[chat] commit retry failed for session=%s: %v", sessionID, err)
		return err
	}

	session.Title = deriveTitle(session.Title, finalMessages)
	session.UpdatedAt = time.Now().UTC()
	if err := s.store.SaveSession(ctx, session); err != nil {
		log.Printf("[chat] failed to update session metadata for session=%s: %v", sessionID, err)
	}

	s.refreshIndex(ctx, session)
	return nil
}

// DeleteSession removes the conversation and its messages everywhere.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.visible, sessionID)
	for _, ch := range s.watchers[sessionID] {
		close(ch)
	}
	delete(s.watchers, sessionID)
	filtered := s.index[:0]
	for _, session := range s.index {
		if session.ID != sessionID {
			filtered = append(filtered, session)
		}
	}
	s.index = filtered
	s.mu.Unlock()

	return s.store.DeleteSession(ctx, sessionID)
}

// refreshIndex re-reads the index from the store so the sidebar never
// drifts from durable state; falls back to patching memory when the store
// read fails.
func (s *Service) refreshIndex(ctx context.Context, updated chat.Session) {
	sessions, err := s.store.ListSessions(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[updated.ID] = updated
	if err != nil {
		log.Printf("[chat] failed to refresh session index: %v", err)
		for i := range s.index {
			if s.index[i].ID == updated.ID {
				s.index[i] = updated
			}
		}
		return
	}
	s.index = sessions
	for _, session := range sessions {
		s.sessions[session.ID] = session
	}
}

// deriveTitle keeps an existing title, otherwise trims the first user
// message to a sidebar-sized label.
func deriveTitle(current string, messages []chat.Message) string {
	if current != "" {
		return current
	}
	for _, msg := range messages {
		if msg.Kind != chat.KindUser {
			continue
		}
		runes := []rune(msg.Text)
		if len(runes) > titleRuneLimit {
			return string(runes[:titleRuneLimit])
		}
		return msg.Text
	}
	return current
}
