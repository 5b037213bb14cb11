package storage

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/lehigh-university-libraries/platereader/internal/models"
)

// DefaultMaxSessions bounds the store when no explicit limit is given.
const DefaultMaxSessions = 20

// SessionStore keeps the most recent sessions in memory. Once MaxSessions is
// reached the oldest session by CreatedAt is evicted on each Set.
type SessionStore struct {
	sessions    map[string]*models.PlateSession
	maxSessions int
	mu          sync.RWMutex
}

func New(maxSessions int) *SessionStore {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &SessionStore{
		sessions:    make(map[string]*models.PlateSession),
		maxSessions: maxSessions,
	}
}

func (s *SessionStore) Get(sessionID string) (*models.PlateSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, exists := s.sessions[sessionID]
	return session, exists
}

func (s *SessionStore) Set(sessionID string, session *models.PlateSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = session

	for len(s.sessions) > s.maxSessions {
		oldest := s.oldestLocked(sessionID)
		if oldest == "" {
			return
		}
		delete(s.sessions, oldest)
		slog.Debug("Evicted session", "session_id", oldest)
	}
}

// oldestLocked returns the oldest session id other than keep.
func (s *SessionStore) oldestLocked(keep string) string {
	var oldest *models.PlateSession
	oldestID := ""
	for id, session := range s.sessions {
		if id == keep {
			continue
		}
		if oldest == nil || session.CreatedAt.Before(oldest.CreatedAt) ||
			(session.CreatedAt.Equal(oldest.CreatedAt) && id < oldestID) {
			oldest, oldestID = session, id
		}
	}
	return oldestID
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// List returns all sessions, newest first.
func (s *SessionStore) List() []*models.PlateSession {
	s.mu.RLock()
	result := make([]*models.PlateSession, 0, len(s.sessions))
	for _, v := range s.sessions {
		result = append(result, v)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
