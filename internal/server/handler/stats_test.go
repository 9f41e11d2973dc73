package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsshrinath/autotrade/internal/domain"
)

type fakeExitLog struct {
	recs  []domain.ExitRecord
	limit int
}

func (f *fakeExitLog) Insert(ctx context.Context, rec domain.ExitRecord) error {
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeExitLog) ListRecent(ctx context.Context, limit int) ([]domain.ExitRecord, error) {
	f.limit = limit
	if limit > len(f.recs) {
		limit = len(f.recs)
	}
	return f.recs[:limit], nil
}

func TestGetStats(t *testing.T) {
	eng, _ := newTestAPI(t)
	h := NewStatsHandler(eng, nil, testLogger())

	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats domain.StatsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.TotalPositions)
	assert.False(t, stats.GeneratedAt.IsZero())
}

func TestListExits(t *testing.T) {
	eng, _ := newTestAPI(t)
	log := &fakeExitLog{recs: []domain.ExitRecord{
		{ID: "r1", Symbol: "SBIN", Reason: domain.ReasonStopLoss, ExecutedAt: time.Now().UTC()},
		{ID: "r2", Symbol: "TCS", Reason: domain.ReasonTarget, ExecutedAt: time.Now().UTC()},
	}}
	h := NewStatsHandler(eng, log, testLogger())

	rec := httptest.NewRecorder()
	h.ListExits(rec, httptest.NewRequest(http.MethodGet, "/api/exits", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Exits []domain.ExitRecord `json:"exits"`
		Count int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 100, log.limit, "default limit")

	// Limit is forwarded and capped.
	rec = httptest.NewRecorder()
	h.ListExits(rec, httptest.NewRequest(http.MethodGet, "/api/exits?limit=9999", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, log.limit)
}

func TestListExitsWithoutStore(t *testing.T) {
	eng, _ := newTestAPI(t)
	h := NewStatsHandler(eng, nil, testLogger())

	rec := httptest.NewRecorder()
	h.ListExits(rec, httptest.NewRequest(http.MethodGet, "/api/exits", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}
