// Package server exposes the claim pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/claims-cli/internal/analysis"
	"github.com/sells-group/claims-cli/internal/corpus"
	"github.com/sells-group/claims-cli/internal/layout"
	"github.com/sells-group/claims-cli/internal/monitoring"
	"github.com/sells-group/claims-cli/internal/pipeline"
	"github.com/sells-group/claims-cli/internal/progress"
	"github.com/sells-group/claims-cli/internal/prompt"
	"github.com/sells-group/claims-cli/internal/resilience"
	"github.com/sells-group/claims-cli/internal/store"
)

// Deps are the components the server drives. Processors and analyzers are
// built per request so each request collects its own progress messages.
type Deps struct {
	Layout         layout.Layout
	Store          store.Store
	Prompts        *prompt.Registry
	NewProcessor   func(sink progress.Sink) *pipeline.Processor
	NewAnalyzer    func(sink progress.Sink) *analysis.Runner
	Breakers       *resilience.Breakers
	Monitor        *monitoring.Collector // may be nil
	AllowedOrigins []string
	MaxUploadBytes int64
}

// Server is the HTTP API.
type Server struct {
	deps   Deps
	corpus *corpus.Aggregator
}

// New creates a Server.
func New(d Deps) *Server {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 50 << 20
	}
	return &Server{deps: d, corpus: corpus.New(d.Layout)}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.wrap(s.handleHealth))
	r.Get("/metrics", s.wrap(s.handleMetrics))
	r.Get("/export.xlsx", s.wrap(s.handleExport))

	r.Get("/events", s.wrap(s.handleListEvents))
	r.Route("/events/{eventID}", func(rt chi.Router) {
		rt.Get("/documents", s.wrap(s.handleListDocuments))
		rt.Post("/documents", s.wrap(s.handleUpload))
		rt.Get("/pdfs", s.wrap(s.handleListPDFs))
		rt.Post("/process", s.wrap(s.handleProcess))
		rt.Post("/analyze", s.wrap(s.handleAnalyze))
		rt.Post("/run", s.wrap(s.handleRun))
		rt.Post("/ocr", s.wrap(s.handleOCRPreview))
		rt.Post("/anonymize", s.wrap(s.handleAnonymizePreview))
		rt.Post("/analysis/single", s.wrap(s.handleAnalyzeSingle))
		rt.Post("/analysis/preview", s.wrap(s.handleAnalyzePreview))
		rt.Get("/analysis", s.wrap(s.handleLatestAnalysis))
		rt.Get("/compare/{filename}", s.wrap(s.handleCompare))
	})

	r.Route("/prompts", func(rt chi.Router) {
		rt.Get("/", s.wrap(s.handleListPrompts))
		rt.Post("/", s.wrap(s.handleCreatePrompt))
		rt.Get("/active", s.wrap(s.handleActivePrompt))
		rt.Put("/{promptID}", s.wrap(s.handleUpdatePrompt))
		rt.Post("/{promptID}/activate", s.wrap(s.handleActivatePrompt))
		rt.Delete("/{promptID}", s.wrap(s.handleDeletePrompt))
	})

	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server: shutdown")
	}
	return nil
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// badRequest marks a client error.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func errBadRequest(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

// notFound marks a missing resource that has no store sentinel.
type notFound struct {
	msg string
}

func (e *notFound) Error() string { return e.msg }

func errNotFound(format string, args ...any) error {
	return &notFound{msg: fmt.Sprintf(format, args...)}
}

func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			zap.L().Error("server: request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
	}
}

func statusFor(err error) int {
	var (
		br     *badRequest
		nf     *notFound
		inv    *pipeline.InvalidEventError
		active *prompt.ActivePromptDeletionError
		aerr   *analysis.AnalysisError
		tooBig *http.MaxBytesError
	)
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &inv), errors.As(err, &nf), errors.Is(err, store.ErrNotFound), errors.Is(err, corpus.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.As(err, &active):
		return http.StatusConflict
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.As(err, &aerr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// observe records a processed event with the monitor, if any.
func (s *Server) observe(eventID string, rep *pipeline.Report, err error) {
	if s.deps.Monitor != nil {
		s.deps.Monitor.Observe(eventID, rep, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errBadRequest("invalid request body: %v", err)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
