// Package gateway serves the HTTP API the voice session talks to: intent
// classification, command execution against Home Assistant and speech
// credentials.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"havoice/internal/api"
	"havoice/internal/domain"
	"havoice/internal/homeassistant"
	"havoice/internal/metrics"
)

// HomeAssistant is the slice of the REST client the server needs.
type HomeAssistant interface {
	State(ctx context.Context, entityID string) (homeassistant.State, error)
	Services(ctx context.Context, domain string) (json.RawMessage, error)
	CallService(ctx context.Context, domain string, service string, body map[string]any) error
}

type Classifier interface {
	Classify(ctx context.Context, prompt string) (domain.Intent, error)
}

type CommandPlanner interface {
	Plan(ctx context.Context, command string) (api.ServiceCall, error)
}

// TokenIssuer trades the subscription key for a short-lived speech token.
// NewServer falls back to the Azure token service.
type TokenIssuer interface {
	IssueToken(ctx context.Context, creds domain.SpeechCredentials) (string, error)
}

type Dependencies struct {
	Classifier  Classifier
	Planner     CommandPlanner
	Home        HomeAssistant
	Credentials domain.SpeechCredentials
	Tokens      TokenIssuer
	Metrics     *metrics.Metrics
	Log         zerolog.Logger
}

type Server struct {
	deps Dependencies
	log  zerolog.Logger
	mux  *http.ServeMux
}

func NewServer(deps Dependencies) *Server {
	if deps.Tokens == nil {
		deps.Tokens = NewAzureTokenIssuer("", nil)
	}
	s := &Server{
		deps: deps,
		log:  deps.Log.With().Str("component", "gateway").Logger(),
		mux:  http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api"+api.PathClassifyIntent, s.handleClassifyIntent)
	s.mux.HandleFunc("POST /api"+api.PathPostHACommand, s.handlePostHACommand)
	s.mux.HandleFunc("GET /api"+api.PathSpeechCredentials, s.handleSpeechCredentials)
	s.mux.HandleFunc("GET /api"+api.PathSpeechToken, s.handleSpeechToken)
	s.mux.HandleFunc("GET /api"+api.PathCheckDeviceService+"{entity_id}", s.handleCheckDeviceServices)
	s.mux.HandleFunc("GET /api"+api.PathCheckNotifyService, s.handleCheckNotifyServices)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		s.mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	return s
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordRequest(endpoint, rec.status, time.Since(started))
		}
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(started)).
			Msg("request served")
	})
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleClassifyIntent(w http.ResponseWriter, r *http.Request) {
	var req api.ClassifyIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.UserPrompt) == "" {
		writeError(w, http.StatusBadRequest, "User prompt is required", "")
		return
	}

	intent, err := s.deps.Classifier.Classify(r.Context(), req.UserPrompt)
	if err != nil {
		s.log.Error().Err(err).Msg("error classifying intent")
		writeError(w, http.StatusInternalServerError, "Error classifying intent", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.ClassifyIntentResponse{Intent: string(intent)})
}

func (s *Server) handlePostHACommand(w http.ResponseWriter, r *http.Request) {
	var req api.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	command := strings.TrimSpace(req.Command)
	if command == "" {
		writeError(w, http.StatusBadRequest, "Command is required", "")
		return
	}

	call, err := s.deps.Planner.Plan(r.Context(), command)
	if err != nil {
		s.log.Error().Err(err).Str("command", command).Msg("error planning command")
		writeError(w, http.StatusInternalServerError, "Error posting command to Home Assistant", err.Error())
		return
	}

	domainName, service, err := ServiceTarget(call)
	switch {
	case errors.Is(err, ErrInvalidServicePath):
		writeError(w, http.StatusBadRequest, "Invalid services home assistant path",
			"Command body must contain a valid 'url_path' in the format '<domain>/<service>'")
		return
	case errors.Is(err, ErrMissingEntity):
		writeError(w, http.StatusBadRequest, "Missing entity_id", "Command body must contain 'entity_id'")
		return
	}

	if err := s.deps.Home.CallService(r.Context(), domainName, service, ServiceBody(call)); err != nil {
		s.log.Error().Err(err).Str("service", domainName+"/"+service).Msg("error posting command to home assistant")
		writeError(w, http.StatusInternalServerError, "Error posting command to Home Assistant", err.Error())
		return
	}

	s.log.Info().Str("command", command).Str("service", domainName+"/"+service).Str("entity_id", call.EntityID).Msg("command sent")
	writeJSON(w, http.StatusOK, api.CommandResponse{
		Success: true,
		Message: fmt.Sprintf("Command %s sent successfully", command),
	})
}

func (s *Server) handleSpeechCredentials(w http.ResponseWriter, _ *http.Request) {
	creds := s.deps.Credentials
	if !creds.Complete() {
		writeError(w, http.StatusBadRequest, "Azure Speech Service key or region is not configured", "")
		return
	}
	writeJSON(w, http.StatusOK, api.SpeechCredentialsResponse{SpeechKey: creds.Key, SpeechRegion: creds.Region})
}

func (s *Server) handleSpeechToken(w http.ResponseWriter, r *http.Request) {
	creds := s.deps.Credentials
	if creds.Key == "" {
		writeError(w, http.StatusBadRequest, "Azure Speech Service key is not configured", "")
		return
	}
	if creds.Region == "" {
		writeError(w, http.StatusBadRequest, "Azure Speech Service region is not configured", "")
		return
	}

	token, err := s.deps.Tokens.IssueToken(r.Context(), creds)
	if err != nil {
		s.log.Error().Err(err).Msg("speech token request failed")
		status := http.StatusInternalServerError
		var tokenErr *TokenError
		if errors.As(err, &tokenErr) {
			status = tokenErr.Status
		}
		writeError(w, status, "Error retrieving token", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.SpeechTokenResponse{Token: token, Region: creds.Region})
}

func (s *Server) handleCheckDeviceServices(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("entity_id")
	state, err := s.deps.Home.State(r.Context(), entityID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error checking device services", err.Error())
		return
	}
	services, err := s.deps.Home.Services(r.Context(), state.Domain())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error checking device services", err.Error())
		return
	}
	rawState, err := json.Marshal(state)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error checking device services", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.DeviceServicesResponse{DeviceState: rawState, AvailableServices: services})
}

func (s *Server) handleCheckNotifyServices(w http.ResponseWriter, r *http.Request) {
	services, err := s.deps.Home.Services(r.Context(), "notify")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error checking notify services", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, api.NotifyServicesResponse{AvailableNotifyServices: services})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, detail string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg, Message: detail})
}
