// Package adminapi exposes a minimal, read-mostly HTTP surface for
// inspecting and reloading the authoritative resolver's zone data, and
// for scraping this server's Prometheus metrics.
package adminapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alir32a/mydns/internal/dnscache"
)

// ZoneReloader reloads zone data from whatever backend(s) the
// authoritative resolver was configured with (zone files, and
// optionally Postgres) and re-seeds the cache.
type ZoneReloader interface {
	Reload() error
}

// Handler serves /health, /metrics and the read-only zone inspection
// routes.
type Handler struct {
	cache    *dnscache.Cache
	reloader ZoneReloader
	logger   *slog.Logger
}

// NewHandler constructs a Handler. reloader may be nil when running in a
// mode with no reloadable zone source (recursive/forwarding).
func NewHandler(cache *dnscache.Cache, reloader ZoneReloader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cache: cache, reloader: reloader, logger: logger}
}

// RegisterRoutes wires this handler's routes into mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /zones/{origin}/records", h.ListRecords)
	mux.HandleFunc("POST /zones/reload", h.Reload)
}

// Health reports a static OK: this resolver has no external dependency
// whose outage should fail the health check on its own.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "UP"})
}

// ListRecords returns the records cached under a zone's origin — the
// cache doubles as zone storage for the authoritative resolver, so this
// is a direct read of it.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	origin := r.PathValue("origin")
	recs, ok := h.cache.Get(origin)
	if !ok {
		http.Error(w, "zone not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(recs); err != nil {
		h.logger.Error("failed to encode records response", "error", err)
	}
}

// Reload triggers a full reload of zone data from the configured
// source(s).
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		http.Error(w, "no reloadable zone source configured", http.StatusNotImplemented)
		return
	}
	if err := h.reloader.Reload(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
