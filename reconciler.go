package main

import (
	"errors"
	"fmt"
	"log/slog"
)

// SyncResult reports a best-effort reconciliation run. Partial success is
// expected and reported, never rolled back.
type SyncResult struct {
	Success int
	Failed  int
	Errors  []string
}

// Reconciler pushes local registry state to the proxy-auth server, treating
// "already exists" as convergence.
type Reconciler struct {
	clients *ClientStore
	server  *SyncClient
}

func NewReconciler(clients *ClientStore, server *SyncClient) *Reconciler {
	return &Reconciler{clients: clients, server: server}
}

// SyncAll reconciles one admin's namespace, or every namespace when adminID
// is zero. Per client: try add-client; on conflict re-send the full proxy
// set through add-proxy (the server is assumed tolerant of duplicate adds);
// any other failure is recorded and the walk continues.
func (r *Reconciler) SyncAll(adminID int64) SyncResult {
	var result SyncResult
	for aID, ns := range r.clients.Snapshot(adminID) {
		for name, rec := range ns {
			slog.Debug("syncing client", "client", name, "admin", aID)
			proxies := translateProxies(rec.Proxies)

			err := r.server.AddClient(name, rec.Password, proxies)
			if err == nil {
				result.Success++
				continue
			}
			if errors.Is(err, errClientExists) {
				if len(proxies) > 0 {
					res := r.server.AddProxies(name, proxies)
					slog.Info("synced existing client via add-proxy",
						"client", name, "added", res.Added, "failed", res.Failed)
				}
				result.Success++
				continue
			}

			slog.Error("client sync failed", "client", name, "admin", aID, "error", err)
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, err))
		}
	}
	return result
}
