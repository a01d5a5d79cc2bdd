// Package server exposes the verification pipeline over HTTP: verify
// endpoints, run diagnostics, a websocket event stream, and Prometheus
// metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platewise/platewise/events"
	"github.com/platewise/platewise/execlog"
	"github.com/platewise/platewise/llm"
	"github.com/platewise/platewise/normalize"
	"github.com/platewise/platewise/pipeline"
	"github.com/platewise/platewise/recipe"
)

// Runner executes verification requests. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.Result, error)
}

// Server holds the HTTP-facing dependencies.
type Server struct {
	runner   Runner
	events   *events.Publisher
	logs     *execlog.Store
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithEvents enables the websocket event stream.
func WithEvents(pub *events.Publisher) Option {
	return func(s *Server) { s.events = pub }
}

// WithExecLog enables the run diagnostics endpoints.
func WithExecLog(logs *execlog.Store) Option {
	return func(s *Server) { s.logs = logs }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithGatherer sets the Prometheus gatherer backing /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a Server around the given runner.
func New(runner Runner, opts ...Option) *Server {
	s := &Server{
		runner:   runner,
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the request mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/verify/recipe", s.handleVerify(recipe.KindRecipe))
	mux.HandleFunc("POST /v1/verify/recommendations", s.handleVerify(recipe.KindRecommendations))
	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /v1/events/{id}", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// VerifyRequest is the verify endpoint request body.
type VerifyRequest struct {
	// RequestID lets a client subscribe to the event stream before
	// submitting. Optional; minted server-side when empty.
	RequestID  string   `json:"requestId,omitempty"`
	Items      []string `json:"items"`
	TypeHint   string   `json:"typeHint,omitempty"`
	WithPrices bool     `json:"withPrices,omitempty"`
}

// maxBodySize bounds verify request bodies.
const maxBodySize = 64 * 1024

func (s *Server) handleVerify(kind recipe.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		result, err := s.runner.Run(r.Context(), pipeline.RunRequest{
			RequestID:  req.RequestID,
			Items:      req.Items,
			TypeHint:   req.TypeHint,
			Kind:       kind,
			WithPrices: req.WithPrices,
		})
		if err != nil {
			s.writeRunError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// writeRunError maps pipeline failures onto HTTP statuses: bad input is the
// caller's fault, deadlines are a gateway timeout, everything else is an
// upstream failure.
func (s *Server) writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	var normErr *normalize.Error
	switch {
	case errors.As(err, &normErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": normErr.Message,
			"items": normErr.Items,
		})
	case llm.IsDeadline(err):
		http.Error(w, "Upstream model timed out", http.StatusGatewayTimeout)
	default:
		s.logger.Error("Verification failed", "path", r.URL.Path, "error", err)
		http.Error(w, "Verification failed", http.StatusBadGateway)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		http.Error(w, "Run log disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": s.logs.List(),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		http.Error(w, "Run log disabled", http.StatusNotFound)
		return
	}
	id := r.PathValue("id")
	entry, ok := s.logs.Get(id)
	if !ok {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleEvents upgrades to a websocket and forwards the request's progress
// events until the terminal event closes the stream or the client leaves.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "Event stream disabled", http.StatusNotFound)
		return
	}
	requestID := r.PathValue("id")
	if requestID == "" {
		http.Error(w, "Request ID required", http.StatusBadRequest)
		return
	}

	ch, cancel := s.events.Subscribe(requestID)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		s.logger.Warn("Websocket upgrade failed", "request_id", requestID, "error", err)
		return
	}
	defer conn.Close()
	defer cancel()

	// Reader goroutine notices the client going away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				// Terminal event already delivered; close cleanly.
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete"))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("Websocket write failed", "request_id", requestID, "error", err)
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}
