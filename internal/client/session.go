package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Profile is the client-held snapshot of the user's profile.
type Profile struct {
	Name    string `json:"name"`
	Picture string `json:"picture,omitempty"`
}

// Session is the client-held proof of a successful login: the user identity,
// the bearer for the API, and a profile snapshot. It lives in one file and is
// the only state that survives process restarts.
type Session struct {
	UserID  string  `json:"user_id"`
	Token   string  `json:"token"`
	Profile Profile `json:"profile"`
}

// SessionStore persists the session under a single key: one JSON file.
type SessionStore struct {
	path string
}

func NewSessionStore(path string) *SessionStore {
	return &SessionStore{path: path}
}

// DefaultSessionStore places the session file under the user config dir.
func DefaultSessionStore() (*SessionStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config dir: %w", err)
	}
	return NewSessionStore(filepath.Join(dir, "parlor", "session.json")), nil
}

// Restore reads the persisted session. Missing or unparsable state means
// unauthenticated, not an error.
func (s *SessionStore) Restore() *Session {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil
	}
	if sess.Token == "" {
		return nil
	}
	return &sess
}

// Persist writes the session, overwriting any prior value.
func (s *SessionStore) Persist(sess *Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// Clear erases the persisted session. Clearing an absent session is fine;
// local logout must always succeed.
func (s *SessionStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
