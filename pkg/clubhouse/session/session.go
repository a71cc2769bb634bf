// Package session stores server-side session records. A session carries
// the authenticated user id (zero for anonymous visitors) and any flash
// messages waiting to be shown on the next page.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Flash kinds
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

var ErrNotFound = errors.New("session not found")

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Session is a server-side session record.
type Session struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"user_id"`
	Flashes   []Flash   `json:"flashes,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticated reports whether the session belongs to a logged-in user.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != 0
}

// AddFlash queues a message for the next page.
func (s *Session) AddFlash(kind, message string) {
	s.Flashes = append(s.Flashes, Flash{Kind: kind, Message: message})
}

// PopFlashes returns and clears the queued messages.
func (s *Session) PopFlashes() []Flash {
	flashes := s.Flashes
	s.Flashes = nil
	return flashes
}

// Store persists sessions.
type Store interface {
	// Create starts a new session for userID (zero for anonymous).
	Create(ctx context.Context, userID uint) (*Session, error)
	// Get returns a live session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Save writes back the session's flashes. The expiry is unchanged.
	Save(ctx context.Context, s *Session) error
	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
}

// Purger is implemented by stores that need expired records removed
// explicitly.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

func newSession(userID uint, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
	}
}
