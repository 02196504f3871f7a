package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/firm-crd-matching/internal/audit"
	"github.com/firm-crd-matching/internal/match"
	"github.com/firm-crd-matching/internal/registry"
	"github.com/firm-crd-matching/internal/store"
)

// Config carries the feature switches the handlers need.
type Config struct {
	Features struct {
		ManualOverrideEnabled bool `json:"manual_override_enabled"`
		PersistBatches        bool `json:"persist_batches"`
	} `json:"features"`
	BatchLimit int `json:"batch_limit"`
	Debug      bool
}

// Matcher resolves firm names.
type Matcher interface {
	Match(localDebug bool, rec match.InputRecord) match.Outcome
	MatchAll(ctx context.Context, localDebug bool, inputs []match.InputRecord) (*match.BatchResult, error)
	TierNames() []string
}

// ResultStore persists runs and reviewer decisions.
type ResultStore interface {
	LoadPriors(ctx context.Context, localDebug bool, rawNames []string) (map[string]store.PriorState, error)
	CreateRun(ctx context.Context, localDebug bool, label string, thresholds map[string]float64) (string, error)
	SaveResults(ctx context.Context, localDebug bool, runID string, outcomes []match.Outcome) error
	CompleteRun(ctx context.Context, localDebug bool, runID string, stats match.BatchStats) error
	ListResults(ctx context.Context, localDebug bool, runID string, reviewOnly bool) ([]match.MatchResult, error)
	SaveOverride(ctx context.Context, localDebug bool, o match.Override, reviewer string) error
	Unlock(ctx context.Context, localDebug bool, rawName string) (int64, error)
}

// AuditTrail records divergences and reviewer actions.
type AuditTrail interface {
	RecordDivergences(ctx context.Context, localDebug bool, runID string, divergences []match.Divergence) error
	RecordReview(ctx context.Context, localDebug bool, decision audit.ReviewDecision) error
	History(ctx context.Context, localDebug bool, rawName string) ([]audit.HistoryEntry, error)
}

// FirmLookup finds registry firms by identifier.
type FirmLookup interface {
	Len() int
	Firm(identifier string) (*registry.ReferenceFirm, bool)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
