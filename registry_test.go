package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClientStore(t *testing.T) *ClientStore {
	t.Helper()
	return NewClientStore(filepath.Join(t.TempDir(), "clients.json"))
}

func TestClientStoreNamespaceIsolation(t *testing.T) {
	s := newTestClientStore(t)
	require.NoError(t, s.Create(100, "alice", ClientRecord{Password: "secret1"}, true))

	_, _, found := s.FindByName("alice", 200)
	require.False(t, found, "alice must not be visible from another namespace")

	rec, adminID, found := s.FindByName("alice", 100)
	require.True(t, found)
	require.EqualValues(t, 100, adminID)
	require.Equal(t, "secret1", rec.Password)
	require.Empty(t, rec.Proxies)
}

func TestClientStoreCreateDuplicate(t *testing.T) {
	s := newTestClientStore(t)
	require.NoError(t, s.Create(100, "alice", ClientRecord{Password: "a"}, true))

	err := s.Create(100, "alice", ClientRecord{Password: "b"}, false)
	require.ErrorIs(t, err, ErrDuplicateClient)

	err = s.Create(200, "alice", ClientRecord{Password: "c"}, true)
	require.ErrorIs(t, err, ErrDuplicateClient, "global check must reject cross-namespace collisions")

	require.NoError(t, s.Create(200, "alice", ClientRecord{Password: "c"}, false))
}

func TestClientStoreFindByNameUnscoped(t *testing.T) {
	s := newTestClientStore(t)
	require.NoError(t, s.Create(100, "bob", ClientRecord{Password: "pw"}, true))

	rec, adminID, found := s.FindByName("bob", 0)
	require.True(t, found)
	require.EqualValues(t, 100, adminID)
	require.Equal(t, "pw", rec.Password)

	_, _, found = s.FindByName("nobody", 0)
	require.False(t, found)
}

func TestClientStoreDeleteIdempotent(t *testing.T) {
	s := newTestClientStore(t)
	require.NoError(t, s.Create(100, "alice", ClientRecord{Password: "pw"}, true))

	s.Delete(100, "alice")
	_, ok := s.Get(100, "alice")
	require.False(t, ok)

	s.Delete(100, "alice")
	s.Delete(999, "ghost")
	require.Zero(t, s.TotalClients())
}

func TestClientStoreAppendProxiesKeepsOrder(t *testing.T) {
	s := newTestClientStore(t)
	first := []string{"1.1.1.1:8080:u:p"}
	require.NoError(t, s.Create(100, "alice", ClientRecord{Password: "pw", Proxies: first}, true))

	total, err := s.AppendProxies(100, "alice", []string{"2.2.2.2:8081:u:p", "1.1.1.1:8080:u:p"})
	require.NoError(t, err)
	require.Equal(t, 3, total)

	rec, ok := s.Get(100, "alice")
	require.True(t, ok)
	require.Equal(t, []string{"1.1.1.1:8080:u:p", "2.2.2.2:8081:u:p", "1.1.1.1:8080:u:p"}, rec.Proxies,
		"append keeps order and never deduplicates")

	_, err = s.AppendProxies(100, "ghost", []string{"3.3.3.3:1:u:p"})
	require.ErrorIs(t, err, ErrClientNotFound)
}

func TestClientStoreAllFlattened(t *testing.T) {
	s := newTestClientStore(t)
	require.NoError(t, s.Create(100, "alice", ClientRecord{Password: "a"}, false))
	require.NoError(t, s.Create(200, "alice", ClientRecord{Password: "b"}, false))
	require.NoError(t, s.Create(200, "bob", ClientRecord{Password: "c"}, false))

	all := s.AllFlattened()
	require.Len(t, all, 3)

	fc, ok := all["alice_100"]
	require.True(t, ok)
	require.Equal(t, "alice", fc.OriginalName)
	require.EqualValues(t, 100, fc.AdminID)
	require.Equal(t, "a", fc.Password)

	fc, ok = all["alice_200"]
	require.True(t, ok)
	require.Equal(t, "b", fc.Password)
}

func TestClientStorePersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.json")
	s := NewClientStore(path)
	rec := ClientRecord{
		Password:       "pw",
		Proxies:        []string{"1.1.1.1:8080:u:p"},
		OrderID:        "100500",
		OrderDescr:     "user_alice",
		CreatedAt:      "2026-08-01T10:00:00Z",
		ProxyExpiresAt: "2026-08-15T10:00:00Z",
	}
	require.NoError(t, s.Create(100, "alice", rec, true))

	// The on-disk document is keyed by the admin ID as a string.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]map[string]ClientRecord
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Contains(t, doc, "100")
	require.Equal(t, "100500", doc["100"]["alice"].OrderID)

	reopened := NewClientStore(path)
	got, ok := reopened.Get(100, "alice")
	require.True(t, ok)
	require.Equal(t, rec, got)
}

func TestClientStoreToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.json")
	require.NoError(t, os.WriteFile(path, []byte("{this is not json"), 0o644))

	s := NewClientStore(path)
	require.Zero(t, s.TotalClients())
	require.NoError(t, s.Create(100, "alice", ClientRecord{Password: "pw"}, true))
}

func TestClientStoreRecordPurchase(t *testing.T) {
	s := newTestClientStore(t)
	require.NoError(t, s.Create(100, "alice", ClientRecord{Password: "pw"}, true))

	expires := time.Date(2026, 9, 13, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordPurchase(100, "alice", "42", "user_alice", expires))

	rec, ok := s.Get(100, "alice")
	require.True(t, ok)
	require.Equal(t, "42", rec.OrderID)
	require.Equal(t, "user_alice", rec.OrderDescr)
	require.Equal(t, "2026-09-13T12:00:00Z", rec.ProxyExpiresAt)

	require.ErrorIs(t, s.RecordPurchase(100, "ghost", "1", "d", expires), ErrClientNotFound)
}

func TestClientStoreSnapshotScoped(t *testing.T) {
	s := newTestClientStore(t)
	require.NoError(t, s.Create(100, "alice", ClientRecord{Password: "a"}, false))
	require.NoError(t, s.Create(200, "bob", ClientRecord{Password: "b"}, false))

	all := s.Snapshot(0)
	require.Len(t, all, 2)

	one := s.Snapshot(100)
	require.Len(t, one, 1)
	require.Contains(t, one[100], "alice")

	counts := s.CountsByAdmin()
	require.Equal(t, 1, counts[100])
	require.Equal(t, 1, counts[200])
	require.Equal(t, 2, s.TotalClients())
}

func TestAdminStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admins.json")
	s := NewAdminStore(path, 1)

	require.True(t, s.IsSuperAdmin(1))
	require.True(t, s.IsAuthorized(1))
	require.False(t, s.IsAuthorized(2))

	require.True(t, s.Add(2))
	require.False(t, s.Add(2), "adding an existing admin must report false")
	require.True(t, s.IsAuthorized(2))
	require.False(t, s.IsSuperAdmin(2))
	require.Equal(t, []int64{2}, s.List())
	require.Equal(t, 1, s.Count())

	reopened := NewAdminStore(path, 1)
	require.True(t, reopened.IsAuthorized(2))

	require.True(t, s.Remove(2))
	require.False(t, s.Remove(2))
	require.False(t, s.IsAuthorized(2))
	require.Zero(t, s.Count())
}

func TestAdminStoreToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admins.json")
	require.NoError(t, os.WriteFile(path, []byte("oops"), 0o644))

	s := NewAdminStore(path, 1)
	require.Zero(t, s.Count())
	require.True(t, s.Add(5))
}
