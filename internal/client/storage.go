package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"taskchat/internal/types"
)

const sessionStateKey = "state"

// Session is the persisted authentication state.
type Session struct {
	User            types.User       `json:"user"`
	IsAuthenticated bool             `json:"isAuthenticated"`
	Tokens          *types.TokenPair `json:"tokens,omitempty"`
}

// SessionStore persists the session under one key of a JSON file shared with
// other client state. Writes are read-modify-write so sibling keys survive,
// and go through a temp file rename so a crash never leaves a torn file.
type SessionStore struct {
	path string

	mu      sync.Mutex
	session Session
	subs    []func(Session)
}

func NewSessionStore(path string) (*SessionStore, error) {
	s := &SessionStore{path: path}

	session, err := s.load()
	if err != nil {
		return nil, err
	}
	s.session = session

	return s, nil
}

// Current returns a snapshot of the session.
func (s *SessionStore) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session
}

// Subscribe registers a listener invoked after every session change. The
// callback runs outside the store lock.
func (s *SessionStore) Subscribe(fn func(Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = append(s.subs, fn)
}

// SetSession records a successful login.
func (s *SessionStore) SetSession(user types.User, tokens types.TokenPair) error {
	return s.update(func(session *Session) {
		session.User = user
		session.IsAuthenticated = true
		session.Tokens = &tokens
	})
}

// UpdateTokens swaps in a rotated pair without touching the user.
func (s *SessionStore) UpdateTokens(tokens types.TokenPair) error {
	return s.update(func(session *Session) {
		session.Tokens = &tokens
	})
}

// Logout clears the session. It is idempotent: clearing an already-empty
// session changes nothing and notifies nobody.
func (s *SessionStore) Logout() error {
	s.mu.Lock()
	if !s.session.IsAuthenticated && s.session.Tokens == nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	return s.update(func(session *Session) {
		*session = Session{}
	})
}

func (s *SessionStore) update(fn func(*Session)) error {
	s.mu.Lock()

	next := s.session
	fn(&next)
	s.session = next

	if err := s.persist(next); err != nil {
		s.mu.Unlock()
		return err
	}

	subs := make([]func(Session), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}

	return nil
}

func (s *SessionStore) load() (Session, error) {
	raw, err := s.readFile()
	if err != nil {
		return Session{}, err
	}

	stateRaw, ok := raw[sessionStateKey]
	if !ok {
		return Session{}, nil
	}

	var session Session
	if err := json.Unmarshal(stateRaw, &session); err != nil {
		return Session{}, fmt.Errorf("unmarshal session state: %w", err)
	}

	return session, nil
}

// persist rewrites only the session key, leaving whatever else lives in the
// file untouched.
func (s *SessionStore) persist(session Session) error {
	raw, err := s.readFile()
	if err != nil {
		return err
	}

	stateRaw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	raw[sessionStateKey] = stateRaw

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session file: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}

	return nil
}

func (s *SessionStore) readFile() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	raw := make(map[string]json.RawMessage)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse session file: %w", err)
		}
	}

	return raw, nil
}
