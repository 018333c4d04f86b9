package store

import (
	"context"
	"sync"
	"time"
)

type sessionKey struct {
	userID string
	mode   Mode
}

// MemoryStore keeps everything in process memory. Used by tests and local
// development runs with DATABASE_URL=memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*Session
	consents map[string]ConsentRecord
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[sessionKey]*Session),
		consents: make(map[string]ConsentRecord),
		now:      time.Now,
	}
}

func (s *MemoryStore) FindSession(_ context.Context, userID string, mode Mode) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionKey{userID, mode}]
	if !ok {
		return nil, nil
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) UpsertSession(_ context.Context, userID string, mode Mode) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneSession(s.upsertLocked(userID, mode)), nil
}

func (s *MemoryStore) upsertLocked(userID string, mode Mode) *Session {
	key := sessionKey{userID, mode}
	sess, ok := s.sessions[key]
	if !ok {
		now := s.now()
		sess = &Session{UserID: userID, Mode: mode, Messages: []Message{}, CreatedAt: now, UpdatedAt: now}
		s.sessions[key] = sess
	}
	return sess
}

func (s *MemoryStore) AppendMessage(_ context.Context, userID string, mode Mode, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.upsertLocked(userID, mode)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = msg.Timestamp
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, userID string, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionKey{userID, mode})
	return nil
}

func (s *MemoryStore) GetConsent(_ context.Context, userID string) (*ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.consents[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) UpsertConsent(_ context.Context, rec ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now()
	}
	s.consents[rec.UserID] = rec
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func cloneSession(sess *Session) *Session {
	out := *sess
	out.Messages = append([]Message(nil), sess.Messages...)
	if out.Messages == nil {
		out.Messages = []Message{}
	}
	return &out
}
