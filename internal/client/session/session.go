// Package session keeps the portal client's single durable session slot: one
// JSON blob holding the raw token and the decoded user summary. Absence of
// the blob means logged out.
package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

const fileName = "session.json"

// Session is the persisted blob. Shape mirrors the server's auth response so
// a login reply can be saved verbatim.
type Session struct {
	Token       string      `json:"token"`
	AccountKind string      `json:"accountKind"`
	Role        string      `json:"role"`
	User        UserSummary `json:"user"`
}

type UserSummary struct {
	ID        string  `json:"id"`
	TenantID  string  `json:"tenantId"`
	SchoolID  *string `json:"schoolId,omitempty"`
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
}

type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore uses an explicit path; empty selects the default slot under the
// user config directory.
func NewStore(path string) (*Store, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "school-portal", fileName)
	}
	return &Store{path: path}, nil
}

func (s *Store) Save(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	// Write-then-rename keeps the slot whole even if another tab/process
	// reads mid-save.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load returns ok=false when no session is stored. A slot cleared by another
// process between calls is reported the same way, so callers fail closed.
func (s *Store) Load() (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		// A corrupt slot is treated as logged out rather than an error loop.
		return Session{}, false, nil
	}
	if session.Token == "" {
		return Session{}, false, nil
	}
	return session, true, nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
