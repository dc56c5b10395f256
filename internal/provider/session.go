package provider

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// session is one issued bearer token plus its expiry.
type session struct {
	token     string
	expiresAt time.Time
}

func (s *session) active(now time.Time) bool {
	if s == nil {
		return false
	}
	// Refresh a little early so a token never expires mid-call.
	return now.Add(30 * time.Second).Before(s.expiresAt)
}

// SessionStore owns the provider sessions for this process: one app-level
// session and one per user. It is created at startup, refreshed on expiry
// and torn down with the process; nothing else caches tokens.
type SessionStore struct {
	issuer string
	secret []byte
	ttl    time.Duration

	mu    sync.Mutex
	app   *session
	users map[string]*session
}

func NewSessionStore(issuer, secret string, ttl time.Duration) (*SessionStore, error) {
	if issuer == "" || secret == "" {
		return nil, fmt.Errorf("provider: issuer and secret are required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionStore{
		issuer: issuer,
		secret: []byte(secret),
		ttl:    ttl,
		users:  make(map[string]*session),
	}, nil
}

// UserToken returns an active bearer token for userID, issuing a fresh one
// when the cached session is missing or expired.
func (s *SessionStore) UserToken(userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if sess := s.users[userID]; sess.active(now) {
		return sess.token, nil
	}

	token, err := s.issue(userID, now)
	if err != nil {
		return "", err
	}
	s.users[userID] = &session{token: token, expiresAt: now.Add(s.ttl)}
	return token, nil
}

// AppToken returns an active application-level token used for calls that
// are not scoped to a user (e.g. provider catalog lookups).
func (s *SessionStore) AppToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.app.active(now) {
		return s.app.token, nil
	}

	token, err := s.issue("", now)
	if err != nil {
		return "", err
	}
	s.app = &session{token: token, expiresAt: now.Add(s.ttl)}
	return token, nil
}

// Invalidate drops the cached session for userID. Called when the provider
// rejects a token so the next call re-issues.
func (s *SessionStore) Invalidate(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

func (s *SessionStore) issue(userID string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": s.issuer,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl).Unix(),
	}
	if userID != "" {
		claims["sub"] = userID
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign provider token: %w", err)
	}
	return token, nil
}
