// File: internal/engine/session.go
package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
)

// session is one conversation thread. Its mutex is held for the whole of a
// turn, which is what makes turns within a thread strictly sequential while
// independent threads run fully concurrently.
type session struct {
	mu         sync.Mutex
	state      *schemas.ConversationState
	lastActive time.Time
}

// sessionManager owns the thread map and expires idle sessions.
type sessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
	idleTTL  time.Duration
	logger   *zap.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func newSessionManager(idleTTL time.Duration, logger *zap.Logger) *sessionManager {
	m := &sessionManager{
		sessions: make(map[string]*session),
		idleTTL:  idleTTL,
		logger:   logger.Named("sessions"),
		done:     make(chan struct{}),
	}
	go m.runSweep()
	return m
}

// get returns the thread's session, creating it on the first turn.
func (m *sessionManager) get(threadID string, mode schemas.ActionMode) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[threadID]
	if !ok {
		s = &session{
			state:      schemas.NewConversationState(threadID, mode),
			lastActive: time.Now(),
		}
		m.sessions[threadID] = s
		m.logger.Debug("Session created", zap.String("thread_id", threadID), zap.String("mode", string(mode)))
	}
	s.lastActive = time.Now()
	return s
}

// count reports live sessions. Used by tests and the health endpoint.
func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// close stops the sweep goroutine and drops all sessions.
func (m *sessionManager) close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.mu.Lock()
		m.sessions = make(map[string]*session)
		m.mu.Unlock()
	})
}

func (m *sessionManager) runSweep() {
	interval := m.idleTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *sessionManager) sweep() {
	cutoff := time.Now().Add(-m.idleTTL)

	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if s.lastActive.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Info("Expired idle sessions", zap.Int("removed", removed))
	}
}
