package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/awsshrinath/autotrade/internal/domain"
	"github.com/awsshrinath/autotrade/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFeed struct{}

func (fakeFeed) BatchLastPrice(ctx context.Context, symbols []string) (map[string]float64, error) {
	return map[string]float64{}, nil
}

type fakeGateway struct{}

func (fakeGateway) Exit(ctx context.Context, pos domain.Position, quantity int, reason domain.ExitReason) (domain.ExitResult, error) {
	return domain.ExitResult{OrderID: "fake-1", FillPrice: pos.CurrentPrice}, nil
}

type fakeSnapshots struct{ snap *domain.Snapshot }

func (s *fakeSnapshots) Save(ctx context.Context, snap domain.Snapshot) error {
	s.snap = &snap
	return nil
}

func (s *fakeSnapshots) Load(ctx context.Context) (domain.Snapshot, error) {
	if s.snap == nil {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return *s.snap, nil
}

// newTestAPI wires a real engine behind the position routes, without running
// the monitor or executor.
func newTestAPI(t *testing.T) (*engine.Engine, http.Handler) {
	t.Helper()
	eng, err := engine.New(engine.Options{
		MonitorInterval: time.Second,
		QueueSize:       16,
	}, engine.Deps{
		Feed:         fakeFeed{},
		PaperGateway: fakeGateway{},
		Snapshots:    &fakeSnapshots{},
	}, testLogger())
	require.NoError(t, err)

	h := NewPositionHandler(eng, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/positions", h.ListPositions)
	mux.HandleFunc("POST /api/positions", h.AddPosition)
	mux.HandleFunc("GET /api/positions/{id}", h.GetPosition)
	mux.HandleFunc("POST /api/positions/{id}/exit", h.ManualExit)
	mux.HandleFunc("POST /api/positions/{id}/breakeven", h.MoveToBreakeven)
	mux.HandleFunc("POST /api/positions/{id}/trailing-stop", h.EnableTrailingStop)
	mux.HandleFunc("POST /api/emergency-exit", h.EmergencyExit)
	return eng, mux
}

func doJSON(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func addTestPosition(t *testing.T, mux http.Handler) string {
	t.Helper()
	rec := doJSON(t, mux, http.MethodPost, "/api/positions", `{
		"symbol": "SBIN",
		"direction": "long",
		"quantity": 100,
		"entry_price": 600,
		"exit_strategy": {"stop_loss": 590, "target": 630},
		"paper_trade": true
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["id"])
	return resp["id"]
}

func TestAddAndGetPosition(t *testing.T) {
	eng, mux := newTestAPI(t)
	id := addTestPosition(t, mux)

	rec := doJSON(t, mux, http.MethodGet, "/api/positions/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var pos domain.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pos))
	assert.Equal(t, "SBIN", pos.Symbol)
	assert.Equal(t, domain.StatusOpen, pos.Status)
	assert.Equal(t, 590.0, pos.ExitStrategy.StopLoss)

	got, err := eng.Position(id)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Quantity)
}

func TestAddPositionRejectsBadPayloads(t *testing.T) {
	_, mux := newTestAPI(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/positions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Stop loss above entry on a long.
	rec = doJSON(t, mux, http.MethodPost, "/api/positions", `{
		"symbol": "SBIN", "direction": "long", "quantity": 10,
		"entry_price": 600, "exit_strategy": {"stop_loss": 650}
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/positions", `{
		"symbol": "", "direction": "long", "quantity": 10, "entry_price": 600
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPositionsWithStatusFilter(t *testing.T) {
	_, mux := newTestAPI(t)
	addTestPosition(t, mux)

	rec := doJSON(t, mux, http.MethodGet, "/api/positions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Positions []domain.Position `json:"positions"`
		Count     int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)

	rec = doJSON(t, mux, http.MethodGet, "/api/positions?status=CLOSED", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}

func TestGetPositionNotFound(t *testing.T) {
	_, mux := newTestAPI(t)
	rec := doJSON(t, mux, http.MethodGet, "/api/positions/ghost", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManualExitEndpoint(t *testing.T) {
	_, mux := newTestAPI(t)
	id := addTestPosition(t, mux)

	// Empty body defaults to a full exit.
	rec := doJSON(t, mux, http.MethodPost, "/api/positions/"+id+"/exit", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	// A second request conflicts while the first signal is still pending.
	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+id+"/exit", `{"exit_percentage": 50}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/positions/ghost/exit", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBreakevenAndTrailingStopEndpoints(t *testing.T) {
	eng, mux := newTestAPI(t)
	id := addTestPosition(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/positions/"+id+"/breakeven", "")
	require.Equal(t, http.StatusOK, rec.Code)
	pos, err := eng.Position(id)
	require.NoError(t, err)
	assert.Equal(t, 600.0, pos.ExitStrategy.StopLoss)

	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+id+"/trailing-stop", `{"distance": 5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	pos, err = eng.Position(id)
	require.NoError(t, err)
	assert.True(t, pos.ExitStrategy.TrailingStopEnabled)

	rec = doJSON(t, mux, http.MethodPost, "/api/positions/"+id+"/trailing-stop", `{"distance": 0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmergencyExitEndpoint(t *testing.T) {
	_, mux := newTestAPI(t)
	addTestPosition(t, mux)

	rec := doJSON(t, mux, http.MethodPost, "/api/emergency-exit", `{"reason": "risk halt"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Reason   string `json:"reason"`
		Enqueued int    `json:"enqueued"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "risk halt", resp.Reason)
	assert.Equal(t, 1, resp.Enqueued)
}

func TestWriteEngineErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrInvalidEntry, http.StatusBadRequest},
		{domain.ErrInvalidStrategy, http.StatusBadRequest},
		{domain.ErrLiveDisabled, http.StatusBadRequest},
		{domain.ErrPositionClosed, http.StatusConflict},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrQueueFull, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeEngineError(rec, tc.err)
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}
