package biz

import (
	"sync"
	"time"

	"github.com/ray729alp/mqa-chatbot/internal/model"
)

// MemoryConfig bounds per-session conversation history.
type MemoryConfig struct {
	// MaxTurns is the number of question/answer turns kept per session and
	// category. Older turns are dropped first.
	MaxTurns int

	// SessionTTL expires sessions that have not appended a turn recently.
	SessionTTL time.Duration
}

// DefaultMemoryConfig returns the standard history bounds.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		MaxTurns:   10,
		SessionTTL: 30 * time.Minute,
	}
}

type session struct {
	turns    []model.Turn
	lastSeen time.Time
}

// ConversationMemory keeps bounded chat history per session and category.
// Sessions for different categories never share turns, so switching category
// mid-conversation starts from a clean history.
type ConversationMemory struct {
	mu       sync.RWMutex
	sessions map[string]*session
	config   *MemoryConfig
}

// NewConversationMemory creates an in-process conversation memory.
func NewConversationMemory(config *MemoryConfig) *ConversationMemory {
	if config == nil {
		config = DefaultMemoryConfig()
	}
	return &ConversationMemory{
		sessions: make(map[string]*session),
		config:   config,
	}
}

func sessionKey(sessionID, category string) string {
	return sessionID + "\x00" + category
}

// History returns a copy of the stored turns for the session and category,
// oldest first. An empty session ID means stateless operation and always
// yields nil.
func (m *ConversationMemory) History(sessionID, category string) []model.Turn {
	if sessionID == "" {
		return nil
	}
	key := sessionKey(sessionID, category)

	m.mu.RLock()
	s, ok := m.sessions[key]
	if ok && time.Since(s.lastSeen) <= m.config.SessionTTL {
		turns := make([]model.Turn, len(s.turns))
		copy(turns, s.turns)
		m.mu.RUnlock()
		return turns
	}
	m.mu.RUnlock()

	if !ok {
		return nil
	}

	// Expired: drop the session under the write lock. Recheck, another
	// goroutine may have appended in the meantime.
	m.mu.Lock()
	if s, ok := m.sessions[key]; ok && time.Since(s.lastSeen) > m.config.SessionTTL {
		delete(m.sessions, key)
	} else if ok {
		turns := make([]model.Turn, len(s.turns))
		copy(turns, s.turns)
		m.mu.Unlock()
		return turns
	}
	m.mu.Unlock()
	return nil
}

// Append records a completed turn for the session and category. Only answered
// turns are recorded; callers skip fallbacks. Appending bumps the session's
// expiry. An empty session ID is a no-op.
func (m *ConversationMemory) Append(sessionID, category, question, answer string) {
	if sessionID == "" {
		return
	}
	key := sessionKey(sessionID, category)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(now)

	s, ok := m.sessions[key]
	if !ok {
		s = &session{}
		m.sessions[key] = s
	}
	s.turns = append(s.turns, model.Turn{Question: question, Answer: answer})
	if len(s.turns) > m.config.MaxTurns {
		trimmed := make([]model.Turn, m.config.MaxTurns)
		copy(trimmed, s.turns[len(s.turns)-m.config.MaxTurns:])
		s.turns = trimmed
	}
	s.lastSeen = now
}

// sweepLocked removes expired sessions. Callers hold the write lock.
func (m *ConversationMemory) sweepLocked(now time.Time) {
	for key, s := range m.sessions {
		if now.Sub(s.lastSeen) > m.config.SessionTTL {
			delete(m.sessions, key)
		}
	}
}

// Sessions reports the number of live sessions.
func (m *ConversationMemory) Sessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
