package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/firm-crd-matching/internal/debug"
	"github.com/firm-crd-matching/internal/match"
	"github.com/firm-crd-matching/internal/store"
)

// MatchHandler serves matching requests.
type MatchHandler struct {
	Engine     Matcher
	Store      ResultStore
	Audit      AuditTrail
	Thresholds map[string]float64
	Config     *Config
}

// BatchRequest is the body of POST /api/match/batch.
type BatchRequest struct {
	Records []match.InputRecord `json:"records"`
	Label   string              `json:"label"`
	Persist bool                `json:"persist"`
}

// BatchResponse is returned for a batch. RunID identifies the run even when
// it was not persisted.
type BatchResponse struct {
	RunID       string              `json:"run_id"`
	Persisted   bool                `json:"persisted"`
	Results     []match.MatchResult `json:"results"`
	Divergences []match.Divergence  `json:"divergences,omitempty"`
	Stats       match.BatchStats    `json:"stats"`
	ElapsedMS   int64               `json:"elapsed_ms"`
}

// MatchOne resolves a single record.
func (h *MatchHandler) MatchOne(w http.ResponseWriter, r *http.Request) {
	var rec match.InputRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, h.Engine.Match(h.Config.Debug, rec))
}

// MatchBatch resolves a list of records, optionally storing the run.
func (h *MatchHandler) MatchBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if h.Config.BatchLimit > 0 && len(req.Records) > h.Config.BatchLimit {
		http.Error(w, "Too many records", http.StatusRequestEntityTooLarge)
		return
	}
	persist := req.Persist && h.Config.Features.PersistBatches
	if req.Persist && (!persist || h.Store == nil) {
		http.Error(w, "Persistence disabled", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	if persist {
		// Persisted runs are decided against stored priors only.
		if err := h.applyStoredPriors(r, req.Records); err != nil {
			debug.Logger().Error("failed to load stored priors", zap.Error(err))
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
	}

	result, err := h.Engine.MatchAll(ctx, h.Config.Debug, req.Records)
	if err != nil {
		http.Error(w, "Batch cancelled", http.StatusServiceUnavailable)
		return
	}

	resp := BatchResponse{
		RunID:       uuid.NewString(),
		Results:     result.Results(),
		Divergences: result.Divergences(),
		Stats:       result.Stats,
		ElapsedMS:   result.Elapsed.Milliseconds(),
	}

	if persist {
		runID, err := h.persist(r, req.Label, result)
		if err != nil {
			debug.Logger().Error("failed to persist batch", zap.Error(err))
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		resp.RunID = runID
		resp.Persisted = true
	}

	writeJSON(w, http.StatusOK, resp)
}

// applyStoredPriors replaces any client supplied prior and unlock mark with
// the stored ones.
func (h *MatchHandler) applyStoredPriors(r *http.Request, records []match.InputRecord) error {
	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec.RawName
	}
	states, err := h.Store.LoadPriors(r.Context(), h.Config.Debug, names)
	if err != nil {
		return err
	}
	for i := range records {
		state := states[records[i].RawName]
		records[i].Prior = state.Prior
		records[i].Unlocked = state.Unlocked
	}
	return nil
}

func (h *MatchHandler) persist(r *http.Request, label string, result *match.BatchResult) (string, error) {
	ctx := r.Context()
	runID, err := h.Store.CreateRun(ctx, h.Config.Debug, label, h.Thresholds)
	if err != nil {
		return "", err
	}
	if err := h.Store.SaveResults(ctx, h.Config.Debug, runID, result.Outcomes); err != nil {
		return "", err
	}
	if h.Audit != nil {
		if err := h.Audit.RecordDivergences(ctx, h.Config.Debug, runID, result.Divergences()); err != nil {
			return "", err
		}
	}
	if err := h.Store.CompleteRun(ctx, h.Config.Debug, runID, result.Stats); err != nil {
		return "", err
	}
	return runID, nil
}

// ListResults returns a stored run's results. ?review=true limits the list
// to results needing review.
func (h *MatchHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		http.Error(w, "Persistence disabled", http.StatusServiceUnavailable)
		return
	}

	runID := mux.Vars(r)["run"]
	reviewOnly := r.URL.Query().Get("review") == "true"

	results, err := h.Store.ListResults(r.Context(), h.Config.Debug, runID, reviewOnly)
	if errors.Is(err, store.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		debug.Logger().Error("failed to list results", zap.String("run_id", runID), zap.Error(err))
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  runID,
		"count":   len(results),
		"results": results,
	})
}
