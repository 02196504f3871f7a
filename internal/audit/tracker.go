package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/firm-crd-matching/internal/debug"
	"github.com/firm-crd-matching/internal/match"
)

// Audit event types.
const (
	EventDivergence   = "divergence"
	EventReviewAccept = "review_accept"
	EventReviewUnlock = "review_unlock"
)

// Tracker keeps the audit trail of decisions the matcher did not make on
// its own: kept priors and reviewer actions.
type Tracker struct {
	db *sql.DB
}

// NewTracker creates a new audit tracker
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db}
}

// ReviewDecision is a reviewer action on one raw name.
type ReviewDecision struct {
	RawName    string
	Event      string // EventReviewAccept or EventReviewUnlock
	Identifier string
	Reason     string
	DecidedBy  string
	DecidedAt  time.Time
}

// HistoryEntry is one row of a raw name's audit trail.
type HistoryEntry struct {
	AuditID            int64     `json:"audit_id"`
	RunID              string    `json:"run_id,omitempty"`
	Event              string    `json:"event"`
	PriorIdentifier    string    `json:"prior_identifier,omitempty"`
	PriorMethod        string    `json:"prior_method,omitempty"`
	PriorConfidence    float64   `json:"prior_confidence,omitempty"`
	ComputedIdentifier string    `json:"computed_identifier,omitempty"`
	ComputedMethod     string    `json:"computed_method,omitempty"`
	ComputedConfidence float64   `json:"computed_confidence,omitempty"`
	DecidedBy          string    `json:"decided_by,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// MethodStats summarises one method's results within a run.
type MethodStats struct {
	Method      string  `json:"method"`
	Count       int64   `json:"count"`
	NeedsReview int64   `json:"needs_review"`
	AvgScore    float64 `json:"avg_score"`
	MinScore    float64 `json:"min_score"`
	MaxScore    float64 `json:"max_score"`
}

// RecordDivergences stores every divergence of a run in one transaction.
func (t *Tracker) RecordDivergences(ctx context.Context, localDebug bool, runID string, divergences []match.Divergence) error {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	if len(divergences) == 0 {
		return nil
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO match_audit (
			run_id, raw_name, event, prior_crd, prior_method, prior_confidence,
			computed_crd, computed_method, computed_confidence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range divergences {
		_, err := stmt.ExecContext(ctx,
			runID, d.RawName, EventDivergence,
			d.PriorIdentifier, d.PriorMethod.String(), d.PriorConfidence,
			nullString(d.ComputedIdentifier), d.ComputedMethod.String(), d.ComputedConfidence,
		)
		if err != nil {
			return fmt.Errorf("failed to record divergence for %q: %w", d.RawName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	debug.DebugOutput(localDebug, "Recorded %d divergences for run %s", len(divergences), runID)
	return nil
}

// RecordReview records a reviewer action.
func (t *Tracker) RecordReview(ctx context.Context, localDebug bool, decision ReviewDecision) error {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	switch decision.Event {
	case EventReviewAccept, EventReviewUnlock:
	default:
		return fmt.Errorf("unknown review event %q", decision.Event)
	}
	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now()
	}

	debug.DebugOutput(localDebug, "Recording %s for %q by %s", decision.Event, decision.RawName, decision.DecidedBy)

	_, err := t.db.ExecContext(ctx, `
		INSERT INTO match_audit (raw_name, event, computed_crd, decided_by, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, decision.RawName, decision.Event, nullString(decision.Identifier),
		decision.DecidedBy, decision.Reason, decision.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to record review: %w", err)
	}
	return nil
}

// History returns the audit trail of a raw name, newest first.
func (t *Tracker) History(ctx context.Context, localDebug bool, rawName string) ([]HistoryEntry, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	rows, err := t.db.QueryContext(ctx, `
		SELECT
			audit_id,
			COALESCE(run_id::text, ''),
			event,
			COALESCE(prior_crd, ''),
			COALESCE(prior_method, ''),
			COALESCE(prior_confidence, 0),
			COALESCE(computed_crd, ''),
			COALESCE(computed_method, ''),
			COALESCE(computed_confidence, 0),
			decided_by,
			reason,
			created_at
		FROM match_audit
		WHERE raw_name = $1
		ORDER BY created_at DESC, audit_id DESC
	`, rawName)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit history: %w", err)
	}
	defer rows.Close()

	var history []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		err := rows.Scan(
			&e.AuditID,
			&e.RunID,
			&e.Event,
			&e.PriorIdentifier,
			&e.PriorMethod,
			&e.PriorConfidence,
			&e.ComputedIdentifier,
			&e.ComputedMethod,
			&e.ComputedConfidence,
			&e.DecidedBy,
			&e.Reason,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debug.DebugOutput(localDebug, "Retrieved %d audit entries for %q", len(history), rawName)
	return history, nil
}

// MethodBreakdown summarises a run's results per method.
func (t *Tracker) MethodBreakdown(ctx context.Context, localDebug bool, runID string) ([]MethodStats, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	rows, err := t.db.QueryContext(ctx, `
		SELECT
			method,
			COUNT(*) AS count,
			COUNT(*) FILTER (WHERE needs_review) AS needs_review,
			AVG(confidence) AS avg_score,
			MIN(confidence) AS min_score,
			MAX(confidence) AS max_score
		FROM firm_match
		WHERE run_id = $1
		GROUP BY method
		ORDER BY method
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query method stats: %w", err)
	}
	defer rows.Close()

	var stats []MethodStats
	for rows.Next() {
		var s MethodStats
		if err := rows.Scan(&s.Method, &s.Count, &s.NeedsReview, &s.AvgScore, &s.MinScore, &s.MaxScore); err != nil {
			return nil, fmt.Errorf("failed to scan method stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
