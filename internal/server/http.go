package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aptify/knowledge-rag/internal/agent/graph"
	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

const (
	maxBodyBytes    = 64 << 10
	shutdownTimeout = 30 * time.Second
	requestIDHeader = "X-Request-ID"
)

// Asker answers one question.
type Asker interface {
	Ask(ctx context.Context, question string) (*model.Answer, error)
}

type Options struct {
	Addr     string
	Asker    Asker
	Registry *prometheus.Registry
}

type HTTPServer struct {
	srv *http.Server
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	RequestID     string         `json:"request_id"`
	Answer        string         `json:"answer"`
	Sources       []model.Source `json:"sources"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Outcome       model.Outcome  `json:"outcome"`
	LowConfidence bool           `json:"low_confidence"`
}

type errorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
}

// NewRouter builds the HTTP routes. A nil Registry disables /metrics.
func NewRouter(opts Options) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware)
	if opts.Registry != nil {
		router.Use(newHTTPMetrics(opts.Registry).middleware)
		router.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	router.HandleFunc("/knowledge/query", handleQuery(opts.Asker)).Methods(http.MethodPost)
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	return router
}

func NewHTTPServer(opts Options) *HTTPServer {
	return &HTTPServer{srv: &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.srv.Addr).Msg("HTTP server starting")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logx.Info().Msg("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logx.Info().Msg("server exited")
	return nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(graph.WithRequestID(r.Context(), id)))
	})
}

func handleQuery(asker Asker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := graph.RequestIDFrom(ctx)

		var req queryRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, requestID, errx.Invalid("server.query", "request body must be JSON with a question field"))
			return
		}

		answer, err := asker.Ask(ctx, req.Question)
		if err != nil {
			writeError(w, requestID, err)
			return
		}

		sources := answer.Sources
		if sources == nil {
			sources = []model.Source{}
		}
		writeJSON(w, http.StatusOK, queryResponse{
			RequestID:     requestID,
			Answer:        answer.Answer,
			Sources:       sources,
			GeneratedAt:   answer.GeneratedAt,
			Outcome:       answer.Outcome,
			LowConfidence: answer.LowConfidence,
		})
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, requestID string, err error) {
	status := errx.StatusOf(err)
	msg := errx.SystemErrorMessage
	var e *errx.Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Str("request_id", requestID).Int("status", status).Msg("query failed")
	} else {
		logx.Warn().Err(err).Str("request_id", requestID).Int("status", status).Msg("query rejected")
	}
	writeJSON(w, status, errorResponse{RequestID: requestID, Error: msg, Kind: string(errx.KindOf(err))})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Error().Err(err).Msg("failed to encode response")
	}
}
