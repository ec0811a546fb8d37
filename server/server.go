// Package server exposes the translation pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/minios-linux/batchtr/langmeta"
	"github.com/minios-linux/batchtr/translate"
)

const maxBodyBytes = 10 << 20

// Config configures a Server.
type Config struct {
	Addr string
	// Client translates chunks for every request.
	Client translate.Client
	// Language is used when a request does not name one.
	Language string
	// Model is passed to the client when a request does not name one.
	Model         string
	ChunkSize     int
	Concurrency   int
	MaxRetryDepth int
	Recorder      translate.UsageRecorder
	Logger        *slog.Logger
}

type Server struct {
	router *chi.Mux
	cfg    Config
	logger *slog.Logger
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		cfg:    cfg,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/languages", s.languages)
	router.Post("/api/v1/translate", s.translate)

	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type translateRequest struct {
	Language string   `json:"language"`
	Model    string   `json:"model"`
	Lines    []string `json:"lines"`
}

type translateResponse struct {
	RunID    string          `json:"run_id"`
	Language string          `json:"language"`
	Lines    []string        `json:"lines"`
	Rounds   int             `json:"rounds"`
	Requests int             `json:"requests"`
	Retried  int             `json:"retried"`
	Usage    translate.Usage `json:"usage"`
}

type errorResponse struct {
	RunID string `json:"run_id,omitempty"`
	Error string `json:"error"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) languages(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]langmeta.Meta, len(langmeta.Registry))
	for _, code := range langmeta.Codes() {
		out[code] = langmeta.Registry[code]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	lang := req.Language
	if lang == "" {
		lang = s.cfg.Language
	}
	if lang == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "language is required"})
		return
	}
	lang = langmeta.Name(lang)

	model := req.Model
	if model == "" {
		model = s.cfg.Model
	}

	runID := uuid.NewString()
	tr := translate.New(s.cfg.Client, translate.Options{
		Language:      lang,
		Model:         model,
		ChunkSize:     s.cfg.ChunkSize,
		Concurrency:   s.cfg.Concurrency,
		MaxRetryDepth: s.cfg.MaxRetryDepth,
		RunID:         runID,
		Logger:        s.logger,
		Recorder:      s.cfg.Recorder,
	})

	rep, err := tr.Run(r.Context(), req.Lines)
	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{RunID: runID, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, translateResponse{
		RunID:    runID,
		Language: lang,
		Lines:    rep.Lines,
		Rounds:   rep.Rounds,
		Requests: rep.Requests,
		Retried:  rep.Retried,
		Usage:    rep.Usage,
	})
}

func statusFor(err error) int {
	var pe *translate.ProviderError
	switch {
	case errors.Is(err, translate.ErrRetryExhausted):
		return http.StatusUnprocessableEntity
	case errors.As(err, &pe):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
