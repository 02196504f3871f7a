package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks a backing service.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports service readiness.
type HealthHandler struct {
	Engine Matcher
	Firms  FirmLookup
	DB     Pinger
}

// Health returns the registry size, active tiers and database state.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	database := "disabled"
	status := http.StatusOK
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			database = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			database = "ok"
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"status":   http.StatusText(status),
		"firms":    h.Firms.Len(),
		"tiers":    h.Engine.TierNames(),
		"database": database,
	})
}
