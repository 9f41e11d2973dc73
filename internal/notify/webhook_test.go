package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSONSendsPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := postJSON(context.Background(), srv.Client(), "discord", srv.URL, map[string]string{"content": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got["content"])
}

func TestPostJSONSurfacesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid webhook token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := postJSON(context.Background(), srv.Client(), "discord", srv.URL, map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid webhook token")
}

func TestDiscordSenderFormatsAlert(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	s.client = srv.Client()
	require.NoError(t, s.Send(context.Background(), "Exit executed", "RELIANCE stop loss, PnL -1100.00"))

	assert.Equal(t, "autotrade-monitor", got["username"])
	assert.Equal(t, "**Exit executed**\nRELIANCE stop loss, PnL -1100.00", got["content"])
}
