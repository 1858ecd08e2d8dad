package service

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrCodeInvalid means the one-time authorization code is unknown or
	// was already consumed.
	ErrCodeInvalid = errors.New("service: invalid or consumed authorization code")

	// ErrSessionUnknown means no session exists with the given id.
	ErrSessionUnknown = errors.New("service: unknown session")

	// ErrTokenUnknown means the invite token is not on the session's
	// allow-list (revoked or never issued).
	ErrTokenUnknown = errors.New("service: unknown invite token")
)

// AdminIdentity is the display identity shown to joining team members.
type AdminIdentity struct {
	Name  string
	Email string
}

// Session is one established admin session: the durable handle standing in
// for the admin's storage credentials.
type Session struct {
	ID        string
	FolderID  string
	Admin     AdminIdentity
	CreatedAt time.Time

	tokens map[string]time.Time
}

// State holds the service's authoritative session and code state. The
// in-process maps are the allow-lists the contract describes; the reference
// service keeps them in memory and guards them with one RW mutex since
// every request touches them briefly.
type State struct {
	mu       sync.RWMutex
	codes    map[string]AdminIdentity
	sessions map[string]*Session
}

// NewState creates empty service state.
func NewState() *State {
	return &State{
		codes:    make(map[string]AdminIdentity),
		sessions: make(map[string]*Session),
	}
}

// RegisterCode makes a one-time authorization code exchangeable, bound to
// the admin identity that will own the resulting session.
func (s *State) RegisterCode(code string, admin AdminIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[code] = admin
}

// Exchange consumes a one-time code and creates a session bound to the
// given root folder. A second exchange of the same code fails with
// ErrCodeInvalid.
func (s *State) Exchange(code, folderID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	admin, ok := s.codes[code]
	if !ok {
		return nil, ErrCodeInvalid
	}

	delete(s.codes, code)

	sess := &Session{
		ID:        uuid.NewString(),
		FolderID:  folderID,
		Admin:     admin,
		CreatedAt: time.Now().UTC(),
		tokens:    make(map[string]time.Time),
	}
	s.sessions[sess.ID] = sess

	return sess, nil
}

// Get returns the session with the given id.
func (s *State) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionUnknown
	}

	return sess, nil
}

// AddToken puts a token on the session's allow-list. Idempotent.
func (s *State) AddToken(sessionID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionUnknown
	}

	if _, exists := sess.tokens[token]; !exists {
		sess.tokens[token] = time.Now().UTC()
	}

	return nil
}

// RemoveToken revokes a token. Removal is a hard delete from the
// authoritative list; a later validation of the same token fails.
func (s *State) RemoveToken(sessionID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionUnknown
	}

	if _, exists := sess.tokens[token]; !exists {
		return ErrTokenUnknown
	}

	delete(sess.tokens, token)

	return nil
}

// ValidateToken checks a (session, token) pair, performed on every
// team-member upload request.
func (s *State) ValidateToken(sessionID, token string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionUnknown
	}

	if _, exists := sess.tokens[token]; !exists {
		return ErrTokenUnknown
	}

	return nil
}
