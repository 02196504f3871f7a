package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/firm-crd-matching/internal/debug"
	"github.com/firm-crd-matching/internal/match"
	"github.com/firm-crd-matching/internal/registry"
)

//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned for an unknown run identifier.
var ErrRunNotFound = errors.New("match run not found")

// Store reads the registry and filings from Postgres and persists runs.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates any missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// ExecuteSQLFile executes SQL commands from a file, such as a registry
// load script.
func (s *Store) ExecuteSQLFile(ctx context.Context, filename string) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read SQL file: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute %s: %w", filename, err)
	}
	return nil
}

// LoadReferenceFirms returns every registry firm ordered by identifier.
func (s *Store) LoadReferenceFirms(ctx context.Context, localDebug bool) ([]registry.FirmRecord, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	rows, err := s.db.QueryContext(ctx, `SELECT crd, firm_name FROM reference_firm ORDER BY crd`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference firms: %w", err)
	}
	defer rows.Close()

	var firms []registry.FirmRecord
	for rows.Next() {
		var f registry.FirmRecord
		if err := rows.Scan(&f.Identifier, &f.Name); err != nil {
			return nil, fmt.Errorf("failed to scan reference firm: %w", err)
		}
		firms = append(firms, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debug.DebugOutput(localDebug, "Loaded %d reference firms", len(firms))
	return firms, nil
}

// LoadAliases returns former and trading names of registry firms.
func (s *Store) LoadAliases(ctx context.Context, localDebug bool) ([]registry.Alias, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	rows, err := s.db.QueryContext(ctx, `
		SELECT crd, alias_name, alias_kind
		FROM reference_alias
		ORDER BY crd, alias_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}
	defer rows.Close()

	var aliases []registry.Alias
	for rows.Next() {
		var a registry.Alias
		if err := rows.Scan(&a.Identifier, &a.Name, &a.Kind); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debug.DebugOutput(localDebug, "Loaded %d aliases", len(aliases))
	return aliases, nil
}

// LoadOverrides returns the manual override table.
func (s *Store) LoadOverrides(ctx context.Context, localDebug bool) ([]match.Override, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	rows, err := s.db.QueryContext(ctx, `
		SELECT raw_name, crd, reason
		FROM match_override
		ORDER BY raw_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	var overrides []match.Override
	for rows.Next() {
		var o match.Override
		if err := rows.Scan(&o.RawName, &o.Identifier, &o.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debug.DebugOutput(localDebug, "Loaded %d manual overrides", len(overrides))
	return overrides, nil
}

// LoadInputs returns the filing's firm names together with the most recent
// stored decision for each name. An empty filingID loads every filing.
func (s *Store) LoadInputs(ctx context.Context, localDebug bool, filingID string) ([]match.InputRecord, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.raw_name, b.former_names, b.dbas, b.unlocked,
			p.crd, p.confidence, p.method, p.canonical_name
		FROM broker_firm b
		LEFT JOIN LATERAL (
			SELECT m.crd, m.confidence, m.method, m.canonical_name
			FROM firm_match m
			WHERE m.raw_name = b.raw_name
			ORDER BY m.created_at DESC, m.match_id DESC
			LIMIT 1
		) p ON true
		WHERE $1 = '' OR b.filing_id = $1
		ORDER BY b.broker_firm_id
	`, filingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query broker firms: %w", err)
	}
	defer rows.Close()

	var inputs []match.InputRecord
	for rows.Next() {
		var rec match.InputRecord
		var formers, dbas pq.StringArray
		var crd, method, canonical sql.NullString
		var confidence sql.NullFloat64

		if err := rows.Scan(&rec.RawName, &formers, &dbas, &rec.Unlocked,
			&crd, &confidence, &method, &canonical); err != nil {
			return nil, fmt.Errorf("failed to scan broker firm: %w", err)
		}
		rec.FormerNames = formers
		rec.DBAs = dbas

		rec.Prior = storedPrior(localDebug, rec.RawName, crd, confidence, method, canonical)
		inputs = append(inputs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debug.DebugOutput(localDebug, "Loaded %d input records", len(inputs))
	return inputs, nil
}

// PriorState is the stored decision and reviewer unlock mark of a raw name.
type PriorState struct {
	Prior    *match.PriorResult
	Unlocked bool
}

// LoadPriors returns the latest stored decision and unlock mark for each of
// rawNames. Names never decided or filed are absent from the map.
func (s *Store) LoadPriors(ctx context.Context, localDebug bool, rawNames []string) (map[string]PriorState, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	states := make(map[string]PriorState, len(rawNames))
	if len(rawNames) == 0 {
		return states, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT n.raw_name,
			COALESCE((SELECT bool_or(b.unlocked) FROM broker_firm b WHERE b.raw_name = n.raw_name), false),
			p.crd, p.confidence, p.method, p.canonical_name
		FROM (SELECT DISTINCT unnest($1::text[]) AS raw_name) n
		LEFT JOIN LATERAL (
			SELECT m.crd, m.confidence, m.method, m.canonical_name
			FROM firm_match m
			WHERE m.raw_name = n.raw_name
			ORDER BY m.created_at DESC, m.match_id DESC
			LIMIT 1
		) p ON true
	`, pq.Array(rawNames))
	if err != nil {
		return nil, fmt.Errorf("failed to query priors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		var state PriorState
		var crd, method, canonical sql.NullString
		var confidence sql.NullFloat64

		if err := rows.Scan(&raw, &state.Unlocked, &crd, &confidence, &method, &canonical); err != nil {
			return nil, fmt.Errorf("failed to scan prior: %w", err)
		}
		state.Prior = storedPrior(localDebug, raw, crd, confidence, method, canonical)
		if state.Prior != nil || state.Unlocked {
			states[raw] = state
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debug.DebugOutput(localDebug, "Loaded %d stored priors for %d names", len(states), len(rawNames))
	return states, nil
}

// storedPrior converts a firm_match row into a prior. Rows without a CRD or
// with an unknown method are ignored.
func storedPrior(localDebug bool, raw string, crd sql.NullString, confidence sql.NullFloat64, method, canonical sql.NullString) *match.PriorResult {
	if !crd.Valid || crd.String == "" {
		return nil
	}
	m, err := match.ParseMethod(method.String)
	if err != nil {
		debug.DebugOutput(localDebug, "Ignoring prior for %q: %v", raw, err)
		return nil
	}
	return &match.PriorResult{
		Identifier:    crd.String,
		Confidence:    confidence.Float64,
		Method:        m,
		CanonicalName: canonical.String,
	}
}

// CreateRun starts a run and returns its identifier.
func (s *Store) CreateRun(ctx context.Context, localDebug bool, label string, thresholds map[string]float64) (string, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	thresholdsJSON, err := json.Marshal(thresholds)
	if err != nil {
		return "", fmt.Errorf("failed to encode thresholds: %w", err)
	}

	runID := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO match_run (run_id, label, thresholds, started_at)
		VALUES ($1, $2, $3, $4)
	`, runID, label, thresholdsJSON, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to create match run: %w", err)
	}

	debug.DebugOutput(localDebug, "Created match run %s (%s)", runID, label)
	return runID, nil
}

// SaveResults stores every outcome of a run in one transaction and clears
// the unlock mark of the names it decided.
func (s *Store) SaveResults(ctx context.Context, localDebug bool, runID string, outcomes []match.Outcome) error {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO firm_match (
			run_id, raw_name, crd, canonical_name, confidence, method,
			confidence_margin, needs_review, ambiguous, matched_on_variant, failed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	names := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		r := o.Result
		_, err := stmt.ExecContext(ctx,
			runID, r.RawName, nullString(r.Identifier), nullString(r.MatchedCanonicalName),
			r.Confidence, r.Method.String(), nullFloat(r.ConfidenceMargin),
			r.NeedsReview, r.Ambiguous, nullString(r.MatchedOnVariant), o.Failed,
		)
		if err != nil {
			return fmt.Errorf("failed to insert result for %q: %w", r.RawName, err)
		}
		names = append(names, r.RawName)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE broker_firm SET unlocked = false
		WHERE unlocked AND raw_name = ANY($1)
	`, pq.Array(names)); err != nil {
		return fmt.Errorf("failed to clear unlock marks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	debug.DebugOutput(localDebug, "Saved %d results for run %s", len(outcomes), runID)
	return nil
}

// CompleteRun records the run summary.
func (s *Store) CompleteRun(ctx context.Context, localDebug bool, runID string, stats match.BatchStats) error {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	res, err := s.db.ExecContext(ctx, `
		UPDATE match_run
		SET completed_at = $2, total = $3, matched = $4, needs_review = $5,
			divergences = $6, failed = $7
		WHERE run_id = $1
	`, runID, time.Now(), stats.Total, stats.Matched, stats.NeedsReview,
		stats.Divergences, stats.Failed)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// ListResults returns a run's results in insertion order, optionally only
// those needing review.
func (s *Store) ListResults(ctx context.Context, localDebug bool, runID string, reviewOnly bool) ([]match.MatchResult, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM match_run WHERE run_id = $1)`, runID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT raw_name, COALESCE(crd, ''), COALESCE(canonical_name, ''), confidence, method,
			confidence_margin, needs_review, ambiguous, COALESCE(matched_on_variant, '')
		FROM firm_match
		WHERE run_id = $1 AND (NOT $2 OR needs_review)
		ORDER BY match_id
	`, runID, reviewOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []match.MatchResult
	for rows.Next() {
		var r match.MatchResult
		var method string
		var margin sql.NullFloat64

		if err := rows.Scan(&r.RawName, &r.Identifier, &r.MatchedCanonicalName, &r.Confidence,
			&method, &margin, &r.NeedsReview, &r.Ambiguous, &r.MatchedOnVariant); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if r.Method, err = match.ParseMethod(method); err != nil {
			return nil, err
		}
		if margin.Valid {
			m := margin.Float64
			r.ConfidenceMargin = &m
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debug.DebugOutput(localDebug, "Retrieved %d results for run %s", len(results), runID)
	return results, nil
}

// SaveOverride pins a raw name to a registry firm, replacing any earlier
// override for the same name.
func (s *Store) SaveOverride(ctx context.Context, localDebug bool, o match.Override, reviewer string) error {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_override (raw_name, crd, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (raw_name) DO UPDATE SET
			crd = EXCLUDED.crd,
			reason = EXCLUDED.reason,
			created_by = EXCLUDED.created_by,
			created_at = EXCLUDED.created_at
	`, o.RawName, o.Identifier, o.Reason, reviewer, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save override: %w", err)
	}

	debug.DebugOutput(localDebug, "Saved override %q -> %s", o.RawName, o.Identifier)
	return nil
}

// Unlock marks every filing row with rawName as reviewed so the next run
// may replace its known-good decision. It returns the rows affected.
func (s *Store) Unlock(ctx context.Context, localDebug bool, rawName string) (int64, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	res, err := s.db.ExecContext(ctx, `UPDATE broker_firm SET unlocked = true WHERE raw_name = $1`, rawName)
	if err != nil {
		return 0, fmt.Errorf("failed to unlock %q: %w", rawName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to unlock %q: %w", rawName, err)
	}

	debug.DebugOutput(localDebug, "Unlocked %d rows for %q", n, rawName)
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
