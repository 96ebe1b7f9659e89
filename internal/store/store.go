package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/davidbond17/pingpro/pkg/types"
)

// ErrSessionNotFound signals the absence of a stored session.
var ErrSessionNotFound = errors.New("session not found")

// Store durably holds completed sessions and their samples. Saving an ID that
// already exists replaces the stored copy.
type Store interface {
	SaveSession(ctx context.Context, session types.Session) error
	// ListSessions returns sessions ordered by start time, newest first. A
	// limit of zero or less returns every session.
	ListSessions(ctx context.Context, limit int) ([]types.Session, error)
	GetSession(ctx context.Context, id string) (types.Session, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) error
	// PurgeBefore deletes sessions that started before cutoff and reports how
	// many were removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

func validate(session types.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if session.StartTime.IsZero() {
		return fmt.Errorf("session %s has no start time", session.ID)
	}
	return nil
}

// NewMemoryStore returns a Store that keeps sessions in process memory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]types.Session{}}
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]types.Session
}

func (m *MemoryStore) SaveSession(ctx context.Context, session types.Session) error {
	if err := validate(session); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, limit int) ([]types.Session, error) {
	m.mu.RLock()
	out := make([]types.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return types.Session{}, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteAll(ctx context.Context) error {
	m.mu.Lock()
	m.sessions = map[string]types.Session{}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.StartTime.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }

func sortNewestFirst(sessions []types.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
}
