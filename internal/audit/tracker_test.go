package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firm-crd-matching/internal/match"
)

func newMock(t *testing.T) (*Tracker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTracker(db), mock
}

func TestRecordDivergences(t *testing.T) {
	tr, mock := newMock(t)
	divs := []match.Divergence{
		{RawName: "Wells Fargo Advisors, LLC", PriorIdentifier: "2001", PriorMethod: match.MethodExact, PriorConfidence: 1,
			ComputedIdentifier: "19616", ComputedMethod: match.MethodNormalizedExact, ComputedConfidence: 0.95},
		{RawName: "Acme Wealth Mgmt", PriorIdentifier: "3001", PriorMethod: match.MethodTokenFuzzy, PriorConfidence: 0.96,
			ComputedMethod: match.MethodNone},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO match_audit")
	prep.ExpectExec().
		WithArgs("run-1", "Wells Fargo Advisors, LLC", EventDivergence, "2001", "exact", 1.0, "19616", "normalized_exact", 0.95).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs("run-1", "Acme Wealth Mgmt", EventDivergence, "3001", "token_fuzzy", 0.96, nil, "none", 0.0).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, tr.RecordDivergences(context.Background(), false, "run-1", divs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDivergencesEmpty(t *testing.T) {
	tr, mock := newMock(t)
	require.NoError(t, tr.RecordDivergences(context.Background(), false, "run-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordDivergencesRollback(t *testing.T) {
	tr, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO match_audit").ExpectExec().WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err := tr.RecordDivergences(context.Background(), false, "run-1", []match.Divergence{{RawName: "x"}})
	assert.ErrorContains(t, err, "constraint")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordReview(t *testing.T) {
	tr, mock := newMock(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO match_audit").
		WithArgs("Acme Wealth Mgmt", EventReviewAccept, "3001", "alice", "same firm", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := tr.RecordReview(context.Background(), false, ReviewDecision{
		RawName: "Acme Wealth Mgmt", Event: EventReviewAccept, Identifier: "3001",
		Reason: "same firm", DecidedBy: "alice", DecidedAt: at,
	})
	require.NoError(t, err)

	err = tr.RecordReview(context.Background(), false, ReviewDecision{RawName: "x", Event: "delete"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory(t *testing.T) {
	tr, mock := newMock(t)
	now := time.Now()
	cols := []string{"audit_id", "run_id", "event", "prior_crd", "prior_method", "prior_confidence",
		"computed_crd", "computed_method", "computed_confidence", "decided_by", "reason", "created_at"}

	mock.ExpectQuery("FROM match_audit").WithArgs("Acme Wealth Mgmt").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2, "", EventReviewUnlock, "", "", 0.0, "", "", 0.0, "alice", "", now).
			AddRow(1, "run-1", EventDivergence, "3001", "token_fuzzy", 0.96, "", "none", 0.0, "", "", now.Add(-time.Hour)))

	history, err := tr.History(context.Background(), false, "Acme Wealth Mgmt")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, EventReviewUnlock, history[0].Event)
	assert.Equal(t, "3001", history[1].PriorIdentifier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMethodBreakdown(t *testing.T) {
	tr, mock := newMock(t)
	mock.ExpectQuery("GROUP BY method").WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows([]string{"method", "count", "needs_review", "avg_score", "min_score", "max_score"}).
			AddRow("exact", 10, 0, 1.0, 1.0, 1.0).
			AddRow("token_fuzzy", 4, 4, 0.8, 0.65, 0.97))

	stats, err := tr.MethodBreakdown(context.Background(), false, "run-1")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, int64(4), stats[1].NeedsReview)
	assert.NoError(t, mock.ExpectationsWereMet())
}
