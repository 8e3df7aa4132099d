package command

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"havoice/internal/api"
	"havoice/internal/domain"
	"havoice/internal/gatewayclient"
)

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/postHACommand", r.URL.Path)
		var req api.CommandRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "turn off the lights", req.Command)
		_ = json.NewEncoder(w).Encode(api.CommandResponse{Success: true, Message: "Command executed"})
	}))
	defer srv.Close()

	exec := NewExecutor(gatewayclient.New(srv.URL+"/api", nil, zerolog.Nop()), zerolog.Nop())
	got := exec.Execute(context.Background(), " turn off the lights ")
	assert.Equal(t, domain.Outcome{Success: true, Message: "Command executed"}, got)
}

func TestExecuteTransportFailureBecomesOutcome(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	exec := NewExecutor(gatewayclient.New(url, nil, zerolog.Nop()), zerolog.Nop())
	got := exec.Execute(context.Background(), "lock the door")
	assert.False(t, got.Success)
	assert.Contains(t, got.Message, "postHACommand")
}

func TestExecuteServerErrorBecomesOutcome(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Home Assistant unreachable"}`))
	}))
	defer srv.Close()

	exec := NewExecutor(gatewayclient.New(srv.URL, nil, zerolog.Nop()), zerolog.Nop())
	got := exec.Execute(context.Background(), "lock the door")
	assert.False(t, got.Success)
	assert.Contains(t, got.Message, "Home Assistant unreachable")
}

func TestExecuteEmptyCommand(t *testing.T) {
	t.Parallel()

	exec := NewExecutor(nil, zerolog.Nop())
	got := exec.Execute(context.Background(), "  ")
	assert.False(t, got.Success)
}
