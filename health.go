package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type healthResponse struct {
	Status             string           `json:"status"`
	Timestamp          string           `json:"timestamp"`
	TotalClients       int              `json:"total_clients"`
	AdminsCount        int              `json:"admins_count"`
	ProxyServer        string           `json:"proxy_server"`
	ResellerConfigured bool             `json:"reseller_configured"`
	PurchaseDefaults   purchaseDefaults `json:"purchase_defaults"`
	ClientsByAdmin     map[string]int   `json:"clients_by_admin"`
}

type purchaseDefaults struct {
	Count   int    `json:"count"`
	Period  int    `json:"period"`
	Country string `json:"country"`
	Version int    `json:"version"`
}

// startHealthServer serves the operational summary endpoint. It blocks, so
// main runs it in a goroutine.
func (a *App) startHealthServer() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", a.handleHealth)

	addr := ":" + strconv.Itoa(a.cfg.Port)
	slog.Info("health endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("health server stopped", "error", err)
	}
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	byAdmin := make(map[string]int)
	for adminID, count := range a.clients.CountsByAdmin() {
		byAdmin[strconv.FormatInt(adminID, 10)] = count
	}

	resp := healthResponse{
		Status:             "ok",
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		TotalClients:       a.clients.TotalClients(),
		AdminsCount:        a.admins.Count(),
		ProxyServer:        a.cfg.ProxyServerURL,
		ResellerConfigured: a.reseller.Configured(),
		PurchaseDefaults: purchaseDefaults{
			Count:   a.cfg.BuyCount,
			Period:  a.cfg.BuyPeriod,
			Country: a.cfg.BuyCountry,
			Version: a.cfg.BuyVersion,
		},
		ClientsByAdmin: byAdmin,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("health response encoding failed", "error", err)
	}
}
