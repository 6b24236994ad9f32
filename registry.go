package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrDuplicateClient = errors.New("client already exists")
)

// ClientRecord is one provisioned proxy-access identity. Proxies keep
// acquisition order and are never deduplicated.
type ClientRecord struct {
	Password       string   `json:"password"`
	Proxies        []string `json:"proxies"`
	OrderID        string   `json:"proxy6_order_id,omitempty"`
	OrderDescr     string   `json:"proxy6_descr,omitempty"`
	CreatedAt      string   `json:"created_at,omitempty"`
	ProxyExpiresAt string   `json:"proxy_expires_at,omitempty"`
}

// FlatClient is a registry entry annotated with its owner, as produced by
// AllFlattened.
type FlatClient struct {
	ClientRecord
	AdminID      int64
	OriginalName string
}

// ClientStore maps admin ID -> client name -> record. Every mutation is
// followed by a full rewrite of the backing JSON document.
type ClientStore struct {
	mu      sync.Mutex
	path    string
	clients map[int64]map[string]ClientRecord
}

// NewClientStore loads the store from path. A missing or unparsable file
// starts the registry empty rather than failing startup.
func NewClientStore(path string) *ClientStore {
	s := &ClientStore{
		path:    path,
		clients: make(map[int64]map[string]ClientRecord),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to read clients file", "path", path, "error", err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.clients); err != nil {
		slog.Error("failed to parse clients file, starting empty", "path", path, "error", err)
		s.clients = make(map[int64]map[string]ClientRecord)
	}
	return s
}

// save writes the whole document via a temp file and rename so a crash
// mid-write cannot corrupt the previous state. Callers must hold s.mu.
func (s *ClientStore) save() {
	data, err := json.MarshalIndent(s.clients, "", "  ")
	if err != nil {
		slog.Error("failed to serialize clients", "error", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Error("failed to write clients file", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		slog.Error("failed to replace clients file", "path", s.path, "error", err)
		return
	}
	slog.Debug("clients saved", "path", s.path)
}

// Namespace returns a copy of the admin's client map, creating an empty
// namespace if the admin has none yet.
func (s *ClientStore) Namespace(adminID int64) map[string]ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.clients[adminID]
	if !ok {
		ns = make(map[string]ClientRecord)
		s.clients[adminID] = ns
	}
	out := make(map[string]ClientRecord, len(ns))
	for name, rec := range ns {
		out[name] = cloneRecord(rec)
	}
	return out
}

// AllFlattened produces an owner-annotated view across every namespace,
// keyed by "name_adminID" so same-named clients under different admins
// cannot collide in the flattened space.
func (s *ClientStore) AllFlattened() map[string]FlatClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make(map[string]FlatClient)
	for adminID, ns := range s.clients {
		for name, rec := range ns {
			all[fmt.Sprintf("%s_%d", name, adminID)] = FlatClient{
				ClientRecord: cloneRecord(rec),
				AdminID:      adminID,
				OriginalName: name,
			}
		}
	}
	return all
}

// FindByName resolves a client name to its record and owning admin. With
// adminID zero every namespace is scanned and the first match wins;
// otherwise only that admin's namespace is searched.
func (s *ClientStore) FindByName(name string, adminID int64) (ClientRecord, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if adminID != 0 {
		if rec, ok := s.clients[adminID][name]; ok {
			return cloneRecord(rec), adminID, true
		}
		return ClientRecord{}, 0, false
	}
	for aID, ns := range s.clients {
		if rec, ok := ns[name]; ok {
			return cloneRecord(rec), aID, true
		}
	}
	return ClientRecord{}, 0, false
}

// Get returns the record for a client in one admin's namespace.
func (s *ClientStore) Get(adminID int64, name string) (ClientRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.clients[adminID][name]
	if !ok {
		return ClientRecord{}, false
	}
	return cloneRecord(rec), true
}

// Create adds a new client under adminID. The name must be free in that
// namespace and, with global set, in every other namespace as well.
func (s *ClientStore) Create(adminID int64, name string, rec ClientRecord, global bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[adminID][name]; ok {
		return fmt.Errorf("%w in your namespace", ErrDuplicateClient)
	}
	if global {
		for aID, ns := range s.clients {
			if _, ok := ns[name]; ok {
				return fmt.Errorf("%w under admin %d", ErrDuplicateClient, aID)
			}
		}
	}
	if s.clients[adminID] == nil {
		s.clients[adminID] = make(map[string]ClientRecord)
	}
	if rec.Proxies == nil {
		rec.Proxies = []string{}
	}
	s.clients[adminID][name] = cloneRecord(rec)
	s.save()
	return nil
}

// Delete removes a client. Deleting an absent client is a no-op.
func (s *ClientStore) Delete(adminID int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.clients[adminID]
	if !ok {
		return
	}
	if _, ok := ns[name]; !ok {
		return
	}
	delete(ns, name)
	s.save()
}

// AppendProxies appends to the client's proxy sequence in order, without
// dedup, and returns the new total.
func (s *ClientStore) AppendProxies(adminID int64, name string, proxies []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.clients[adminID][name]
	if !ok {
		return 0, ErrClientNotFound
	}
	rec.Proxies = append(rec.Proxies, proxies...)
	s.clients[adminID][name] = rec
	s.save()
	return len(rec.Proxies), nil
}

// RecordPurchase stores the latest reseller order references on a client.
func (s *ClientStore) RecordPurchase(adminID int64, name, orderID, descr string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.clients[adminID][name]
	if !ok {
		return ErrClientNotFound
	}
	rec.OrderID = orderID
	rec.OrderDescr = descr
	rec.ProxyExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	s.clients[adminID][name] = rec
	s.save()
	return nil
}

// Snapshot copies the whole registry, optionally restricted to one admin.
func (s *ClientStore) Snapshot(adminID int64) map[int64]map[string]ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]map[string]ClientRecord)
	for aID, ns := range s.clients {
		if adminID != 0 && aID != adminID {
			continue
		}
		cp := make(map[string]ClientRecord, len(ns))
		for name, rec := range ns {
			cp[name] = cloneRecord(rec)
		}
		out[aID] = cp
	}
	return out
}

// TotalClients counts clients across all namespaces.
func (s *ClientStore) TotalClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, ns := range s.clients {
		total += len(ns)
	}
	return total
}

// CountsByAdmin reports how many clients each admin owns.
func (s *ClientStore) CountsByAdmin() map[int64]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[int64]int, len(s.clients))
	for aID, ns := range s.clients {
		counts[aID] = len(ns)
	}
	return counts
}

func cloneRecord(rec ClientRecord) ClientRecord {
	rec.Proxies = append([]string(nil), rec.Proxies...)
	return rec
}

// AdminStore is the persisted set of authorized admin IDs. The super-admin
// is configured out of band and is never part of the list.
type AdminStore struct {
	mu         sync.Mutex
	path       string
	superAdmin int64
	admins     []int64
}

func NewAdminStore(path string, superAdmin int64) *AdminStore {
	s := &AdminStore{path: path, superAdmin: superAdmin}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("failed to read admins file", "path", path, "error", err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.admins); err != nil {
		slog.Error("failed to parse admins file, starting empty", "path", path, "error", err)
		s.admins = nil
	}
	return s
}

func (s *AdminStore) save() {
	list := s.admins
	if list == nil {
		list = []int64{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		slog.Error("failed to serialize admins", "error", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		slog.Error("failed to write admins file", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		slog.Error("failed to replace admins file", "path", s.path, "error", err)
	}
}

func (s *AdminStore) IsSuperAdmin(userID int64) bool {
	return userID == s.superAdmin
}

func (s *AdminStore) IsAuthorized(userID int64) bool {
	if userID == s.superAdmin {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.admins, userID)
}

// Add returns false if the ID is already in the set.
func (s *AdminStore) Add(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.admins, userID) {
		return false
	}
	s.admins = append(s.admins, userID)
	s.save()
	return true
}

// Remove returns false if the ID is not in the set.
func (s *AdminStore) Remove(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.Index(s.admins, userID)
	if idx < 0 {
		return false
	}
	s.admins = slices.Delete(s.admins, idx, idx+1)
	s.save()
	return true
}

func (s *AdminStore) List() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.admins...)
}

func (s *AdminStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.admins)
}

// ensure the configured files live in creatable directories at startup
func ensureParentDir(path string) {
	dir := filepath.Dir(path)
	if dir == "." {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Error("failed to create data directory", "dir", dir, "error", err)
	}
}
