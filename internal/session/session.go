// Package session keeps per-browser chat state: the selected document and
// page and the message history.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Source is a retrieved chunk shown under an answer. Page is 0-based.
type Source struct {
	Name string `json:"name"`
	Page int    `json:"page"`
	Text string `json:"text"`
}

// DisplayPage is the 1-based page shown on the source button.
func (s Source) DisplayPage() int { return s.Page + 1 }

type Message struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	Sources []Source  `json:"sources,omitempty"`
	Time    time.Time `json:"time"`
}

// Turn is one completed question and answer.
type Turn struct {
	User      string
	Assistant string
}

// Session is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id        string
	document  string
	page      int
	history   []Message
	updatedAt time.Time
}

// State is a JSON-safe copy of a session.
type State struct {
	ID       string    `json:"session_id"`
	Document string    `json:"document"`
	Page     int       `json:"page"`
	History  []Message `json:"history"`
}

func newSession(id, document string) *Session {
	return &Session{
		id:        id,
		document:  document,
		page:      1,
		updatedAt: time.Now(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) touchLocked() { s.updatedAt = time.Now() }

// SelectDocument switches the viewer to name. Switching to a different
// document resets the page to 1.
func (s *Session) SelectDocument(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != s.document {
		s.document = name
		s.page = 1
	}
	s.touchLocked()
}

// SelectPage sets the 1-based page clamped to [1, pageCount] and returns it.
func (s *Session) SelectPage(page, pageCount int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = clamp(page, pageCount)
	s.touchLocked()
	return s.page
}

// SelectSource handles a click on a source button: it shows the source's
// document at page0+1.
func (s *Session) SelectSource(name string, page0, pageCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.document = name
	s.page = clamp(page0+1, pageCount)
	s.touchLocked()
}

func clamp(page, pageCount int) int {
	if pageCount > 0 && page > pageCount {
		page = pageCount
	}
	if page < 1 {
		page = 1
	}
	return page
}

// AppendTurn records a question and its answer together.
func (s *Session) AppendTurn(question, answer string, sources []Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.history = append(s.history,
		Message{Role: RoleUser, Content: question, Time: now},
		Message{Role: RoleAssistant, Content: answer, Sources: sources, Time: now},
	)
	s.touchLocked()
}

// History returns a copy of the messages in chronological order.
func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}

// Turns pairs each user message with the assistant reply that follows it.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var turns []Turn
	for i := 0; i+1 < len(s.history); i += 2 {
		if s.history[i].Role != RoleUser || s.history[i+1].Role != RoleAssistant {
			continue
		}
		turns = append(turns, Turn{User: s.history[i].Content, Assistant: s.history[i+1].Content})
	}
	return turns
}

// Reset clears the history and returns the viewer to document at page 1.
func (s *Session) Reset(document string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.document = document
	s.page = 1
	s.touchLocked()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]Message, len(s.history))
	copy(history, s.history)
	return State{ID: s.id, Document: s.document, Page: s.page, History: history}
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Store is a thread-safe in-memory session registry with TTL eviction.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration

	// defaultDocument names the document a new session starts on.
	defaultDocument func() string
}

func NewStore(ttl time.Duration, defaultDocument func() string) *Store {
	if defaultDocument == nil {
		defaultDocument = func() string { return "" }
	}
	return &Store{
		sessions:        make(map[string]*Session),
		ttl:             ttl,
		defaultDocument: defaultDocument,
	}
}

// DefaultDocument is the document new and reset sessions show.
func (s *Store) DefaultDocument() string { return s.defaultDocument() }

// Get returns a live session. Expired sessions are dropped and not returned.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.expired(sess, time.Now()) {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

// Create starts a session with a fresh random ID.
func (s *Store) Create() *Session {
	sess := newSession(uuid.NewString(), s.defaultDocument())
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

// GetOrCreate returns the session for id, creating one when id is unknown
// or expired. created reports whether a new session was made.
func (s *Store) GetOrCreate(id string) (sess *Session, created bool) {
	if id != "" {
		if sess, ok := s.Get(id); ok {
			return sess, false
		}
	}
	return s.Create(), true
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup removes expired sessions and returns how many were dropped.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

func (s *Store) expired(sess *Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.idleSince()) > s.ttl
}
