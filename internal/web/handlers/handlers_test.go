package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firm-crd-matching/internal/audit"
	"github.com/firm-crd-matching/internal/match"
	"github.com/firm-crd-matching/internal/registry"
	"github.com/firm-crd-matching/internal/store"
)

func testEngine(t *testing.T) (*match.Engine, *registry.Index) {
	t.Helper()
	idx, err := registry.Build(false, []registry.FirmRecord{
		{Identifier: "149777", Name: "Morgan Stanley Wealth Management"},
		{Identifier: "19616", Name: "Wells Fargo Advisors"},
		{Identifier: "3001", Name: "Acme Wealth Management"},
	}, nil, registry.Options{})
	require.NoError(t, err)

	e, err := match.NewEngine(idx, match.DefaultConfig())
	require.NoError(t, err)
	return e, idx
}

func testConfig() *Config {
	cfg := &Config{BatchLimit: 3}
	cfg.Features.ManualOverrideEnabled = true
	cfg.Features.PersistBatches = true
	return cfg
}

type fakeStore struct {
	runs      map[string][]match.Outcome
	completed map[string]match.BatchStats
	overrides []match.Override
	unlocked  map[string]int64
	priors    map[string]store.PriorState
	failSave  bool
	failLoad  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:      make(map[string][]match.Outcome),
		completed: make(map[string]match.BatchStats),
		unlocked:  map[string]int64{"Acme Wealth Mgmt": 1},
		priors:    make(map[string]store.PriorState),
	}
}

func (f *fakeStore) LoadPriors(_ context.Context, _ bool, rawNames []string) (map[string]store.PriorState, error) {
	if f.failLoad {
		return nil, errors.New("connection reset")
	}
	out := make(map[string]store.PriorState)
	for _, name := range rawNames {
		if state, ok := f.priors[name]; ok {
			out[name] = state
		}
	}
	return out, nil
}

func (f *fakeStore) CreateRun(_ context.Context, _ bool, label string, _ map[string]float64) (string, error) {
	id := fmt.Sprintf("run-%d", len(f.runs)+1)
	f.runs[id] = nil
	return id, nil
}

func (f *fakeStore) SaveResults(_ context.Context, _ bool, runID string, outcomes []match.Outcome) error {
	if f.failSave {
		return errors.New("connection reset")
	}
	f.runs[runID] = outcomes
	return nil
}

func (f *fakeStore) CompleteRun(_ context.Context, _ bool, runID string, stats match.BatchStats) error {
	f.completed[runID] = stats
	return nil
}

func (f *fakeStore) ListResults(_ context.Context, _ bool, runID string, reviewOnly bool) ([]match.MatchResult, error) {
	outcomes, ok := f.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrRunNotFound, runID)
	}
	var out []match.MatchResult
	for _, o := range outcomes {
		if !reviewOnly || o.Result.NeedsReview {
			out = append(out, o.Result)
		}
	}
	return out, nil
}

func (f *fakeStore) SaveOverride(_ context.Context, _ bool, o match.Override, _ string) error {
	f.overrides = append(f.overrides, o)
	return nil
}

func (f *fakeStore) Unlock(_ context.Context, _ bool, rawName string) (int64, error) {
	return f.unlocked[rawName], nil
}

type fakeAudit struct {
	divergences []match.Divergence
	reviews     []audit.ReviewDecision
}

func (f *fakeAudit) RecordDivergences(_ context.Context, _ bool, _ string, d []match.Divergence) error {
	f.divergences = append(f.divergences, d...)
	return nil
}

func (f *fakeAudit) RecordReview(_ context.Context, _ bool, d audit.ReviewDecision) error {
	f.reviews = append(f.reviews, d)
	return nil
}

func (f *fakeAudit) History(_ context.Context, _ bool, rawName string) ([]audit.HistoryEntry, error) {
	var out []audit.HistoryEntry
	for _, r := range f.reviews {
		if r.RawName == rawName {
			out = append(out, audit.HistoryEntry{Event: r.Event, ComputedIdentifier: r.Identifier, DecidedBy: r.DecidedBy})
		}
	}
	return out, nil
}

func post(h http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data)))
	return rec
}

func TestMatchOne(t *testing.T) {
	e, _ := testEngine(t)
	h := &MatchHandler{Engine: e, Config: testConfig()}

	rec := post(h.MatchOne, match.InputRecord{RawName: "Wells Fargo Advisors, LLC"})
	require.Equal(t, http.StatusOK, rec.Code)

	var out match.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "19616", out.Result.Identifier)
	assert.Equal(t, match.MethodNormalizedExact, out.Result.Method)

	bad := httptest.NewRecorder()
	h.MatchOne(bad, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestMatchBatchPersists(t *testing.T) {
	e, _ := testEngine(t)
	st, au := newFakeStore(), &fakeAudit{}
	st.priors["Wells Fargo Advisors, LLC"] = store.PriorState{
		Prior: &match.PriorResult{Identifier: "3001", Method: match.MethodManual, Confidence: 1},
	}
	h := &MatchHandler{Engine: e, Store: st, Audit: au, Config: testConfig()}

	rec := post(h.MatchBatch, BatchRequest{
		Persist: true,
		Records: []match.InputRecord{
			{RawName: "Morgan Stanley Wealth Management"},
			{RawName: "Acme Wealth Mgmt"},
			{RawName: "Wells Fargo Advisors, LLC"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Persisted)
	assert.Equal(t, "run-1", resp.RunID)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "149777", resp.Results[0].Identifier)
	assert.Equal(t, "3001", resp.Results[2].Identifier)
	assert.Len(t, resp.Divergences, 1)

	assert.Len(t, st.runs["run-1"], 3)
	assert.Equal(t, 3, st.completed["run-1"].Total)
	assert.Len(t, au.divergences, 1)
}

func TestMatchBatchUsesStoredPriors(t *testing.T) {
	e, _ := testEngine(t)
	st, au := newFakeStore(), &fakeAudit{}
	st.priors["Wells Fargo Advisors, LLC"] = store.PriorState{
		Prior: &match.PriorResult{Identifier: "3001", Method: match.MethodManual, Confidence: 1},
	}
	st.priors["Morgan Stanley Wealth Management"] = store.PriorState{
		Prior:    &match.PriorResult{Identifier: "3001", Method: match.MethodManual, Confidence: 1},
		Unlocked: true,
	}
	h := &MatchHandler{Engine: e, Store: st, Audit: au, Config: testConfig()}

	rec := post(h.MatchBatch, BatchRequest{
		Persist: true,
		Records: []match.InputRecord{
			// Client unlock without a stored unlock does not release the stored prior.
			{RawName: "Wells Fargo Advisors, LLC", Unlocked: true},
			// A client prior the store never recorded is dropped.
			{RawName: "Acme Wealth Mgmt", Prior: &match.PriorResult{Identifier: "19616", Method: match.MethodManual, Confidence: 1}},
			// A stored unlock releases the stored prior.
			{RawName: "Morgan Stanley Wealth Management"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "3001", resp.Results[0].Identifier)
	assert.Equal(t, match.MethodManual, resp.Results[0].Method)
	assert.Equal(t, "3001", resp.Results[1].Identifier)
	assert.Equal(t, "149777", resp.Results[2].Identifier)

	require.Len(t, resp.Divergences, 1)
	assert.Equal(t, "Wells Fargo Advisors, LLC", resp.Divergences[0].RawName)
	assert.Equal(t, "19616", resp.Divergences[0].ComputedIdentifier)
	assert.Len(t, au.divergences, 1)
}

func TestMatchBatchAdvisoryKeepsClientPriors(t *testing.T) {
	e, _ := testEngine(t)
	h := &MatchHandler{Engine: e, Config: testConfig()}

	rec := post(h.MatchBatch, BatchRequest{Records: []match.InputRecord{
		{RawName: "Wells Fargo Advisors, LLC", Prior: &match.PriorResult{Identifier: "3001", Method: match.MethodManual, Confidence: 1}},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Persisted)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "3001", resp.Results[0].Identifier)
}

func TestMatchBatchLimits(t *testing.T) {
	e, _ := testEngine(t)
	h := &MatchHandler{Engine: e, Config: testConfig()}

	rec := post(h.MatchBatch, BatchRequest{Records: make([]match.InputRecord, 4)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = post(h.MatchBatch, BatchRequest{Records: []match.InputRecord{{RawName: "Acme"}}, Persist: true})
	assert.Equal(t, http.StatusForbidden, rec.Code, "no store configured")

	rec = post(h.MatchBatch, BatchRequest{Records: []match.InputRecord{{RawName: "Acme"}}})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Persisted)
	assert.NotEmpty(t, resp.RunID)
}

func TestMatchBatchStoreFailure(t *testing.T) {
	e, _ := testEngine(t)
	st := newFakeStore()
	st.failSave = true
	h := &MatchHandler{Engine: e, Store: st, Config: testConfig()}

	rec := post(h.MatchBatch, BatchRequest{Records: []match.InputRecord{{RawName: "Acme"}}, Persist: true})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	st.failSave, st.failLoad = false, true
	rec = post(h.MatchBatch, BatchRequest{Records: []match.InputRecord{{RawName: "Acme"}}, Persist: true})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, st.runs)
}

func TestListResults(t *testing.T) {
	e, _ := testEngine(t)
	st := newFakeStore()
	st.runs["run-9"] = []match.Outcome{
		{Result: match.MatchResult{RawName: "a", Identifier: "1", Method: match.MethodExact, Confidence: 1}},
		{Result: match.MatchResult{RawName: "b", Method: match.MethodNone, NeedsReview: true}},
	}
	h := &MatchHandler{Engine: e, Store: st, Config: testConfig()}

	router := mux.NewRouter()
	router.HandleFunc("/api/runs/{run}/results", h.ListResults)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run-9/results?review=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count   int                 `json:"count"`
		Results []match.MatchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "b", body.Results[0].RawName)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/nope/results", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewAccept(t *testing.T) {
	_, idx := testEngine(t)
	st, au := newFakeStore(), &fakeAudit{}
	h := &ReviewHandler{Store: st, Audit: au, Firms: idx, Config: testConfig()}

	rec := post(h.Accept, AcceptRequest{RawName: " Acme Wealth Mgmt ", CRD: "3001", Reviewer: "alice"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme Wealth Management")
	require.Len(t, st.overrides, 1)
	assert.Equal(t, "Acme Wealth Mgmt", st.overrides[0].RawName)
	require.Len(t, au.reviews, 1)
	assert.Equal(t, audit.EventReviewAccept, au.reviews[0].Event)

	rec = post(h.Accept, AcceptRequest{RawName: "Acme", CRD: "999"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h.Accept, AcceptRequest{CRD: "3001"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	disabled := testConfig()
	disabled.Features.ManualOverrideEnabled = false
	h.Config = disabled
	rec = post(h.Accept, AcceptRequest{RawName: "Acme", CRD: "3001"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReviewUnlockAndHistory(t *testing.T) {
	_, idx := testEngine(t)
	st, au := newFakeStore(), &fakeAudit{}
	h := &ReviewHandler{Store: st, Audit: au, Firms: idx, Config: testConfig()}

	rec := post(h.Unlock, UnlockRequest{RawName: "Acme Wealth Mgmt", Reviewer: "bob"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(h.Unlock, UnlockRequest{RawName: "Unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	hist := httptest.NewRecorder()
	h.History(hist, httptest.NewRequest(http.MethodGet, "/api/review/history?raw_name=Acme+Wealth+Mgmt", nil))
	require.Equal(t, http.StatusOK, hist.Code)
	assert.Contains(t, hist.Body.String(), audit.EventReviewUnlock)

	missing := httptest.NewRecorder()
	h.History(missing, httptest.NewRequest(http.MethodGet, "/api/review/history", nil))
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	e, idx := testEngine(t)

	rec := httptest.NewRecorder()
	(&HealthHandler{Engine: e, Firms: idx}).Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"firms":3`)
	assert.Contains(t, rec.Body.String(), `"database":"disabled"`)

	rec = httptest.NewRecorder()
	(&HealthHandler{Engine: e, Firms: idx, DB: fakePinger{errors.New("down")}}).Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
