// Package session holds the signed-in identity and keeps it on disk between runs.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"luminate/backend/client"
	"luminate/backend/utils"
)

var ErrMissingCredentials = errors.New("email and password are required")

// Session is the identity the client acts as.
type Session struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	Token       string    `json:"token"`
}

// Authenticator verifies credentials against the identity endpoints.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (client.AuthResult, error)
	Register(ctx context.Context, email, password, name string) (client.AuthResult, error)
}

// Store owns the current session. All methods are safe for concurrent use.
type Store struct {
	storage Storage
	auth    Authenticator
	log     *utils.Logger
	now     func() time.Time

	mu      sync.RWMutex
	current *Session
	ready   bool
	loading int
	subs    map[int]func(*Session)
	nextSub int
}

func NewStore(storage Storage, auth Authenticator, log *utils.Logger) *Store {
	return &Store{
		storage: storage,
		auth:    auth,
		log:     log.With("component", "session"),
		now:     func() time.Time { return time.Now().UTC() },
		subs:    map[int]func(*Session){},
	}
}

// RestoreSession adopts a previously saved session, if any, and marks the store ready.
// A missing or unreadable file leaves the store signed out.
func (s *Store) RestoreSession() {
	saved, err := s.storage.Load()
	if err != nil {
		s.log.Warn("restore session failed", "error", err)
		saved = nil
	}

	s.mu.Lock()
	s.current = saved
	s.ready = true
	s.mu.Unlock()

	s.publish(saved)
}

// Login verifies credentials and persists the resulting session.
func (s *Store) Login(ctx context.Context, email, password string) (Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}
	return s.authenticate(email, func() (client.AuthResult, error) {
		return s.auth.Login(ctx, email, password)
	})
}

// Signup creates the account and signs in as it. An empty name falls back to the
// email local part.
func (s *Store) Signup(ctx context.Context, email, password, name string) (Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return Session{}, ErrMissingCredentials
	}
	return s.authenticate(email, func() (client.AuthResult, error) {
		return s.auth.Register(ctx, email, password, strings.TrimSpace(name))
	})
}

// authenticate keeps the email as the user typed it; the API matches it case-insensitively.
func (s *Store) authenticate(email string, call func() (client.AuthResult, error)) (Session, error) {
	s.setLoading(1)
	defer s.setLoading(-1)

	res, err := call()
	if err != nil {
		return Session{}, err
	}

	sess := Session{
		ID:          res.User.ID,
		Email:       strings.TrimSpace(email),
		DisplayName: res.User.Name,
		CreatedAt:   s.now(),
		Token:       res.Token,
	}
	if sess.DisplayName == "" {
		sess.DisplayName, _, _ = strings.Cut(sess.Email, "@")
	}

	if err := s.storage.Save(sess); err != nil {
		s.log.Error("save session failed", "error", err)
		return Session{}, err
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()

	s.log.Info("signed in", "user_id", sess.ID)
	s.publish(&sess)
	return sess, nil
}

// Logout forgets the session in memory and on disk. Calling it while signed out is a no-op
// apart from clearing storage.
func (s *Store) Logout() error {
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	s.mu.Unlock()

	err := s.storage.Clear()
	if err != nil {
		s.log.Warn("clear session failed", "error", err)
	}
	if had {
		s.publish(nil)
	}
	return err
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil
}

func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Token returns the bearer token of the current session, or "".
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// Ready reports whether RestoreSession has run.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// Subscribe registers fn to run after every session change, with nil on sign-out.
// The returned func removes it.
func (s *Store) Subscribe(fn func(*Session)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) publish(sess *Session) {
	s.mu.RLock()
	fns := make([]func(*Session), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		if sess == nil {
			fn(nil)
			continue
		}
		cp := *sess
		fn(&cp)
	}
}

func (s *Store) setLoading(delta int) {
	s.mu.Lock()
	s.loading += delta
	s.mu.Unlock()
}
