package main

import (
	"sync"
	"time"
)

type sessionAction string

const (
	actionAddClient            sessionAction = "adding_client"
	actionAddClientWithProxies sessionAction = "adding_client_with_proxies"
	actionAddClientPurchase    sessionAction = "add_client_with_purchase"
	actionBuyProxy             sessionAction = "buying_proxy"
	actionAddProxy             sessionAction = "adding_proxy"
	actionManageAdmins         sessionAction = "managing_admins"
)

const (
	stepWaitingUsername    = "waiting_username"
	stepWaitingPassword    = "waiting_password"
	stepConfirmingPurchase = "confirming_purchase"
	stepWaitingClientName  = "waiting_client_name"
	stepConfirmingBuy      = "confirming_buy"
)

// Session is one user's in-progress multi-step operation. It is ephemeral
// process state, never persisted.
type Session struct {
	Action sessionAction
	Step   string

	Username   string
	Password   string
	ClientName string
	AdminID    int64

	Count    int
	Period   int
	Country  string
	Version  int
	Price    float64
	Currency string

	touched time.Time
}

// SessionStore keys pending operations by user ID. Sessions idle past the
// TTL are evicted by Reap so an abandoned flow cannot wedge a user's
// command handling forever.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[int64]*Session
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[int64]*Session),
	}
}

// Get returns the user's live session and refreshes its idle timer.
func (s *SessionStore) Get(userID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	sess.touched = time.Now()
	return sess, true
}

// Set replaces whatever operation the user had pending.
func (s *SessionStore) Set(userID int64, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.touched = time.Now()
	s.sessions[userID] = sess
}

// Clear is a no-op when the user has no pending operation.
func (s *SessionStore) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Reap evicts sessions idle past the TTL and reports how many were dropped.
func (s *SessionStore) Reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.ttl)
	evicted := 0
	for userID, sess := range s.sessions {
		if sess.touched.Before(cutoff) {
			delete(s.sessions, userID)
			evicted++
		}
	}
	return evicted
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
