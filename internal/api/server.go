// Package api exposes the pipeline over HTTP.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/claimstream/internal/factcheck"
	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/pipeline"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 4 << 20

// Server is the HTTP boundary of claimstream
type Server struct {
	pipeline *pipeline.Pipeline
	hub      *Hub
	health   func(ctx context.Context) error
	config   model.ServerConfig
	logger   *zap.Logger
}

// NewServer creates a server. Health may be nil.
func NewServer(cfg model.ServerConfig, p *pipeline.Pipeline, hub *Hub, health func(ctx context.Context) error, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	return &Server{pipeline: p, hub: hub, health: health, config: cfg, logger: logger}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /recordings", s.handleListRecordings)
	mux.HandleFunc("POST /recordings", s.handleCreateRecording)
	mux.HandleFunc("GET /recordings/{id}", s.handleGetRecording)
	mux.HandleFunc("PUT /recordings/{id}", s.handleRenameRecording)
	mux.HandleFunc("PATCH /recordings/{id}", s.handleRenameRecording)
	mux.HandleFunc("DELETE /recordings/{id}", s.handleDeleteRecording)
	mux.HandleFunc("POST /recordings/{id}/segments", s.handleIngestSegment)
	mux.HandleFunc("POST /recordings/{id}/text", s.handleImportText)
	mux.HandleFunc("POST /recordings/{id}/finalize", s.handleFinalize)
	mux.HandleFunc("GET /recordings/{id}/export", s.handleExport)
	mux.HandleFunc("GET /recordings/{id}/live", s.handleLive)

	mux.HandleFunc("GET /recordings/{id}/sentences", s.handleListSentences)
	mux.HandleFunc("GET /recordings/{id}/sentences/{number}", s.handleGetSentence)
	mux.HandleFunc("PATCH /recordings/{id}/sentences/{number}", s.handleCorrectSentence)
	mux.HandleFunc("PUT /recordings/{id}/sentences/{number}", s.handleCorrectSentence)
	mux.HandleFunc("POST /recordings/{id}/sentences/{number}", s.handleCorrectSentence)

	mux.HandleFunc("GET /factcheck", s.handleFactCheck)

	mux.HandleFunc("POST /transcriptions", s.handleSubmitAudio)
	mux.HandleFunc("POST /callbacks/transcription", s.handleTranscriptionCallback)

	return s.withMiddleware(mux)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps pipeline errors onto HTTP statuses
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput), errors.Is(err, factcheck.ErrUnknownSource):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrNotReady):
		// clients poll until the sentence is ready
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= 500 {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decodeBody decodes a JSON request body; malformed bodies are invalid input
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request: %v", pipeline.ErrInvalidInput, err)
	}
	return nil
}

// decodeLenient accepts unknown fields, for payloads sent by third parties
func decodeLenient(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request: %v", pipeline.ErrInvalidInput, err)
	}
	return nil
}
