package chat

import (
	"sync"
	"time"
)

// Session cache lifecycle defaults, used when NewMemory is given
// non-positive limits.
const (
	DefaultMaxSessions = 1000
	DefaultSessionTTL  = time.Hour
)

// session is one in-memory conversation entry. started is tracked explicitly
// rather than inferred from len(turns), so an entry rebuilt after a cache
// eviction mid-session does not re-trigger context injection.
type session struct {
	mu       sync.Mutex
	turns    []Turn
	started  bool
	lastSeen time.Time
}

// Memory is the process-local cache of recent turns, keyed by session id.
// Entries are created lazily on first use and evicted once idle past the TTL
// or, least recently used first, when the session count reaches capacity.
// Evicting an entry is never a correctness problem: the log remains the
// source of truth for history, and the orchestrator rebuilds a missing entry
// from it on the session's next message.
type Memory struct {
	mu          sync.Mutex
	sessions    map[string]*session
	maxSessions int
	idleTTL     time.Duration
	now         func() time.Time
}

// NewMemory creates a session memory bounded to maxSessions entries, each
// expiring after idleTTL without use. Non-positive limits fall back to the
// defaults.
func NewMemory(maxSessions int, idleTTL time.Duration) *Memory {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if idleTTL <= 0 {
		idleTTL = DefaultSessionTTL
	}
	return &Memory{
		sessions:    make(map[string]*session),
		maxSessions: maxSessions,
		idleTTL:     idleTTL,
		now:         time.Now,
	}
}

func (m *Memory) session(sessionID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.evict(now, sessionID)
		s = &session{}
		m.sessions[sessionID] = s
	}
	s.lastSeen = now
	return s
}

// evict runs with m.mu held before a new entry is inserted: idle entries go
// first, then least-recently-used ones until the new entry fits. keep is the
// id being created and is never evicted.
func (m *Memory) evict(now time.Time, keep string) {
	for id, s := range m.sessions {
		if id != keep && now.Sub(s.lastSeen) > m.idleTTL {
			delete(m.sessions, id)
		}
	}
	for len(m.sessions) >= m.maxSessions {
		oldestID := ""
		var oldestSeen time.Time
		for id, s := range m.sessions {
			if id == keep {
				continue
			}
			if oldestID == "" || s.lastSeen.Before(oldestSeen) {
				oldestID = id
				oldestSeen = s.lastSeen
			}
		}
		if oldestID == "" {
			return
		}
		delete(m.sessions, oldestID)
	}
}

// Lock acquires the per-session lock and returns the unlock function.
// Two channels that somehow share one session id serialize here instead of
// interleaving cache mutations.
func (m *Memory) Lock(sessionID string) func() {
	s := m.session(sessionID)
	s.mu.Lock()
	return s.mu.Unlock
}

// GetOrCreate returns a copy of the current turn sequence for the session,
// creating an empty entry if absent. Never fails.
func (m *Memory) GetOrCreate(sessionID string) []Turn {
	s := m.session(sessionID)
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Append adds a turn to the session's sequence. No capacity check is
// performed here; bounding is the caller's responsibility.
func (m *Memory) Append(sessionID string, turn Turn) {
	s := m.session(sessionID)
	s.turns = append(s.turns, turn)
}

// TrimFront drops turns from the front of the sequence until its length is
// at most max.
func (m *Memory) TrimFront(sessionID string, max int) {
	if max < 0 {
		max = 0
	}
	s := m.session(sessionID)
	if len(s.turns) <= max {
		return
	}
	keep := s.turns[len(s.turns)-max:]
	trimmed := make([]Turn, len(keep))
	copy(trimmed, keep)
	s.turns = trimmed
}

// Started reports whether the session has completed at least one message.
func (m *Memory) Started(sessionID string) bool {
	return m.session(sessionID).started
}

// MarkStarted records that the session has completed its first message.
func (m *Memory) MarkStarted(sessionID string) {
	m.session(sessionID).started = true
}
