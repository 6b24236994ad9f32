package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionStoreSetGetClear(t *testing.T) {
	s := NewSessionStore(time.Minute)

	_, ok := s.Get(42)
	require.False(t, ok)

	s.Set(42, &Session{Action: actionAddClient})
	sess, ok := s.Get(42)
	require.True(t, ok)
	require.Equal(t, actionAddClient, sess.Action)

	// Mutations through the returned pointer stick.
	sess.Step = stepWaitingPassword
	sess, _ = s.Get(42)
	require.Equal(t, stepWaitingPassword, sess.Step)

	s.Set(42, &Session{Action: actionBuyProxy})
	sess, _ = s.Get(42)
	require.Equal(t, actionBuyProxy, sess.Action, "Set replaces the pending operation")

	s.Clear(42)
	_, ok = s.Get(42)
	require.False(t, ok)
	s.Clear(42) // clearing an absent session is a no-op
	require.Zero(t, s.Len())
}

func TestSessionStoreReapEvictsIdle(t *testing.T) {
	s := NewSessionStore(50 * time.Millisecond)
	s.Set(1, &Session{Action: actionAddClient})
	s.Set(2, &Session{Action: actionAddProxy})

	require.Zero(t, s.Reap())
	require.Equal(t, 2, s.Len())

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, 2, s.Reap())
	require.Zero(t, s.Len())
}

func TestSessionStoreGetRefreshesIdleTimer(t *testing.T) {
	s := NewSessionStore(100 * time.Millisecond)
	s.Set(1, &Session{Action: actionAddClient})

	time.Sleep(60 * time.Millisecond)
	_, ok := s.Get(1)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	require.Zero(t, s.Reap(), "a session touched within the TTL must survive")
	require.Equal(t, 1, s.Len())
}
