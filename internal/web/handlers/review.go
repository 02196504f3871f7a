package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/firm-crd-matching/internal/audit"
	"github.com/firm-crd-matching/internal/debug"
	"github.com/firm-crd-matching/internal/match"
)

// ReviewHandler serves reviewer actions. Accepted overrides take effect the
// next time an engine is built from the store.
type ReviewHandler struct {
	Store  ResultStore
	Audit  AuditTrail
	Firms  FirmLookup
	Config *Config
}

// AcceptRequest pins a raw name to a registry firm.
type AcceptRequest struct {
	RawName  string `json:"raw_name"`
	CRD      string `json:"crd"`
	Reason   string `json:"reason"`
	Reviewer string `json:"reviewer"`
}

// UnlockRequest releases a known-good decision for the next run.
type UnlockRequest struct {
	RawName  string `json:"raw_name"`
	Reason   string `json:"reason"`
	Reviewer string `json:"reviewer"`
}

// Accept records a manual override.
func (h *ReviewHandler) Accept(w http.ResponseWriter, r *http.Request) {
	if !h.Config.Features.ManualOverrideEnabled {
		http.Error(w, "Feature disabled", http.StatusForbidden)
		return
	}

	var req AcceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	req.RawName = strings.TrimSpace(req.RawName)
	req.CRD = strings.TrimSpace(req.CRD)
	if req.RawName == "" {
		http.Error(w, "raw_name is required", http.StatusBadRequest)
		return
	}
	firm, ok := h.Firms.Firm(req.CRD)
	if !ok {
		http.Error(w, "Unknown CRD", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	override := match.Override{RawName: req.RawName, Identifier: firm.Identifier, Reason: req.Reason}
	if err := h.Store.SaveOverride(ctx, h.Config.Debug, override, req.Reviewer); err != nil {
		debug.Logger().Error("failed to save override", zap.String("raw_name", req.RawName), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	h.recordReview(r, audit.ReviewDecision{
		RawName:    req.RawName,
		Event:      audit.EventReviewAccept,
		Identifier: firm.Identifier,
		Reason:     req.Reason,
		DecidedBy:  req.Reviewer,
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "accepted",
		"raw_name":       req.RawName,
		"crd":            firm.Identifier,
		"canonical_name": firm.CanonicalName,
	})
}

// Unlock marks a raw name as reviewed so the next run may change it.
func (h *ReviewHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	if !h.Config.Features.ManualOverrideEnabled {
		http.Error(w, "Feature disabled", http.StatusForbidden)
		return
	}

	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	req.RawName = strings.TrimSpace(req.RawName)
	if req.RawName == "" {
		http.Error(w, "raw_name is required", http.StatusBadRequest)
		return
	}

	n, err := h.Store.Unlock(r.Context(), h.Config.Debug, req.RawName)
	if err != nil {
		debug.Logger().Error("failed to unlock", zap.String("raw_name", req.RawName), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	if n == 0 {
		http.Error(w, "Raw name not found", http.StatusNotFound)
		return
	}
	h.recordReview(r, audit.ReviewDecision{
		RawName:   req.RawName,
		Event:     audit.EventReviewUnlock,
		Reason:    req.Reason,
		DecidedBy: req.Reviewer,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "unlocked", "rows": n})
}

// History lists the audit trail of ?raw_name=.
func (h *ReviewHandler) History(w http.ResponseWriter, r *http.Request) {
	rawName := strings.TrimSpace(r.URL.Query().Get("raw_name"))
	if rawName == "" {
		http.Error(w, "raw_name is required", http.StatusBadRequest)
		return
	}
	if h.Audit == nil {
		http.Error(w, "Audit disabled", http.StatusServiceUnavailable)
		return
	}

	history, err := h.Audit.History(r.Context(), h.Config.Debug, rawName)
	if err != nil {
		debug.Logger().Error("failed to load history", zap.String("raw_name", rawName), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"raw_name": rawName, "history": history})
}

// recordReview writes the audit row. A failure is logged but does not undo
// the reviewer action.
func (h *ReviewHandler) recordReview(r *http.Request, decision audit.ReviewDecision) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.RecordReview(r.Context(), h.Config.Debug, decision); err != nil {
		debug.Logger().Warn("failed to audit review", zap.String("raw_name", decision.RawName), zap.Error(err))
	}
}
