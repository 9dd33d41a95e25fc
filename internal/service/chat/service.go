package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/lucid-weaver/backend/internal/model/chat"
)

var (
	ErrRecordRequired  = errors.New("record id is required")
	ErrSessionNotFound = errors.New("session not found")
)

// Service stores conversation transcripts in memory.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	turns    map[string][]chat.Turn
}

// NewService bootstraps the in-memory transcript store.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
		turns:    make(map[string][]chat.Turn),
	}
}

// CreateSession provisions an empty transcript bound to a dream record.
func (s *Service) CreateSession(_ context.Context, recordID string) (chat.Session, error) {
	if recordID == "" {
		return chat.Session{}, ErrRecordRequired
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		RecordID:  recordID,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.turns[session.ID] = make([]chat.Turn, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// SaveTurn appends a turn to the session transcript.
func (s *Service) SaveTurn(_ context.Context, turn chat.Turn) (chat.Turn, error) {
	if turn.SessionID == "" {
		return chat.Turn{}, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[turn.SessionID]; !ok {
		return chat.Turn{}, ErrSessionNotFound
	}

	turn.ID = uuid.NewString()
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return turn, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// LoadTranscript returns a copy of the stored turns for the session.
func (s *Service) LoadTranscript(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.turns[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Turn, len(turns))
	copy(copied, turns)
	return copied, nil
}

// DeleteSession drops the session and its transcript.
func (s *Service) DeleteSession(_ context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	delete(s.turns, sessionID)
	s.mu.Unlock()
}
