// Package dialog owns the conversation state machine: per-user sessions,
// repeat detection and the transitions that turn inbound messages into
// replies and, on terminal transitions, into persistence rows.
package dialog

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State enumerates the dialog states.
type State int

const (
	StateStart State = iota
	StateAwaitingChoice
	StateConsultation
	StateConsultationMenu
	StateRepair
	StateSoftware
	StateContactEngineer
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateAwaitingChoice:
		return "awaiting_choice"
	case StateConsultation:
		return "consultation"
	case StateConsultationMenu:
		return "consultation_menu"
	case StateRepair:
		return "repair"
	case StateSoftware:
		return "software"
	case StateContactEngineer:
		return "contact_engineer"
	default:
		return "unknown"
	}
}

// Speaker identifies who produced a transcript turn.
type Speaker int

const (
	SpeakerUser Speaker = iota
	SpeakerBot
)

func (s Speaker) label() string {
	if s == SpeakerBot {
		return "Бот"
	}
	return "Пользователь"
}

// Turn is one transcript entry. The transcript is append-only for the
// lifetime of the session.
type Turn struct {
	Speaker Speaker
	Text    string
}

// Session is the working memory for one user's dialog. It lives only in the
// Store; nothing survives a process restart. Fields are read and mutated
// only while the engine's lock for its user is held.
type Session struct {
	ID          string
	UserID      string
	DisplayName string
	SourceTag   string

	State State
	Turns []Turn

	// Repeat detection over the user's last question.
	LastFingerprint string
	RepeatCount     int
	// LastAnswer is the most recent bot answer, fed to the alternative
	// strategy when the user repeats a question.
	LastAnswer string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Session) appendTurn(sp Speaker, text string) {
	s.Turns = append(s.Turns, Turn{Speaker: sp, Text: text})
	s.UpdatedAt = time.Now()
}

// Transcript renders the turns as the flat text written to the sink.
func (s *Session) Transcript() string {
	lines := make([]string, 0, len(s.Turns))
	for _, t := range s.Turns {
		lines = append(lines, t.Speaker.label()+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}

// Store is the in-memory conversation store, keyed by user identifier.
// One coarse mutex guards the map; contention is expected to be low (at
// most one in-flight handler per user in the common case), and the engine
// never holds this lock across a Responder call.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns the tracked session for userID, if any.
func (st *Store) Get(userID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[userID]
	return s, ok
}

// Create tracks a fresh session for userID, replacing any previous one.
func (st *Store) Create(userID, displayName, sourceTag string) *Session {
	now := time.Now()
	s := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		SourceTag:   sourceTag,
		State:       StateStart,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	st.mu.Lock()
	st.sessions[userID] = s
	st.mu.Unlock()
	return s
}

// Remove evicts the session for userID only if it is still the same session
// instance, and reports whether it did. The pointer check keeps termination
// exactly-once when a handler races the idle sweeper.
func (st *Store) Remove(userID string, s *Session) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if cur, ok := st.sessions[userID]; ok && cur == s {
		delete(st.sessions, userID)
		return true
	}
	return false
}

// Len reports the number of tracked sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// UserIDs snapshots the identifiers of all tracked sessions. The snapshot
// deliberately carries no session fields: callers inspect each session under
// the engine's per-user lock.
func (st *Store) UserIDs() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	return ids
}
