// Package undo keeps the pending "undo delete" for the command-line client.
//
// Deleting an expense removes it on the server at once; the client then holds a
// copy for a short window during which undo re-creates it. The pending entry is
// mirrored to a file so the window survives between CLI invocations.
package undo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/crucial707/spendflow/internal/models"
)

// DefaultWindow is how long a deleted expense stays restorable.
const DefaultWindow = 5 * time.Second

// State of a pending undo.
type State int

const (
	Cleared State = iota
	Active
	Expired
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Expired:
		return "expired"
	default:
		return "cleared"
	}
}

// Pending is a deleted expense that can still be restored until ExpiresAt.
type Pending struct {
	Expense   models.Expense `json:"expense"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// StateAt reports whether p can still be restored at now. A nil Pending is Cleared.
func (p *Pending) StateAt(now time.Time) State {
	if p == nil {
		return Cleared
	}
	if now.Before(p.ExpiresAt) {
		return Active
	}
	return Expired
}

// Remaining returns how long p stays restorable, never negative.
func (p *Pending) Remaining(now time.Time) time.Duration {
	if p == nil || !now.Before(p.ExpiresAt) {
		return 0
	}
	return p.ExpiresAt.Sub(now)
}

// Store persists at most one pending undo in a JSON file.
type Store struct {
	path string
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Begin records e as restorable for window, replacing any earlier entry.
func (s *Store) Begin(e models.Expense, window time.Duration) (Pending, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	p := Pending{Expense: e, ExpiresAt: s.now().Add(window)}

	data, err := json.Marshal(p)
	if err != nil {
		return Pending{}, err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return Pending{}, fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return Pending{}, fmt.Errorf("write undo state: %w", err)
	}
	return p, nil
}

// Current returns the active pending undo, or nil. Expired or unreadable entries are cleared.
func (s *Store) Current() (*Pending, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read undo state: %w", err)
	}

	var p Pending
	if err := json.Unmarshal(data, &p); err != nil || p.ExpiresAt.IsZero() {
		return nil, s.Clear()
	}
	if p.StateAt(s.now()) != Active {
		return nil, s.Clear()
	}
	return &p, nil
}

// Take returns the active pending undo and clears it, so it can be applied only once.
func (s *Store) Take() (*Pending, error) {
	p, err := s.Current()
	if err != nil || p == nil {
		return nil, err
	}
	if err := s.Clear(); err != nil {
		return nil, err
	}
	return p, nil
}

// Clear drops any pending undo.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear undo state: %w", err)
	}
	return nil
}
