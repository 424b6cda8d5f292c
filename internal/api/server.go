package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/config"
	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/logging"
	"github.com/JakeFAU/datasheet-crawler/internal/metrics"
)

const maxSubmitBody = 1 << 20

// Submitter accepts a decoded submission and returns the internal ids.
type Submitter interface {
	Submit(ctx context.Context, body map[string]any) ([]string, error)
}

// Server wires HTTP handlers to the dispatcher and the ledger.
type Server struct {
	router    chi.Router
	submitter Submitter
	ledger    datasheet.Ledger
	outputDir string
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(submitter Submitter, ledger datasheet.Ledger, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		submitter: submitter,
		ledger:    ledger,
		outputDir: cfg.Output.Dir,
		logger:    logging.OrNop(logger),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequestSize(maxSubmitBody))
			if cfg.RateLimit.SubmitPerMinute > 0 {
				r.Use(httprate.LimitByIP(cfg.RateLimit.SubmitPerMinute, time.Minute))
			}
			r.Post("/api/datasheet/processar", s.submit)
			r.Post("/submit", s.submit)
		})
		r.Get("/api/status/{id}", s.status)
		r.Get("/status/{id}", s.status)
		r.Get("/download/{filename}", s.download)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	body, err := decodeObject(r.Body)
	if err != nil {
		s.logger.Debug("submission rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, datasheet.ErrNoURL.Error())
		return
	}
	ids, err := s.submitter.Submit(r.Context(), body)
	switch {
	case errors.Is(err, datasheet.ErrNoURL):
		writeError(w, http.StatusBadRequest, datasheet.ErrNoURL.Error())
		return
	case err != nil && len(ids) == 0:
		s.logger.Error("submission failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	case err != nil:
		// The accepted ids are already being processed and must reach the caller.
		s.logger.Warn("submission partially accepted", zap.Strings("ids", ids), zap.Error(err))
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		Success: true,
		Message: "processing started",
		IDs:     ids,
	})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := s.ledger.Get(r.Context(), id)
	if errors.Is(err, datasheet.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": datasheet.ErrNotFound.Error()})
		return
	}
	if err != nil {
		s.logger.Error("ledger lookup failed", zap.String("request_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !record.Status.Terminal() {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": string(record.Status)})
		return
	}
	writeJSON(w, http.StatusOK, record.Result)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	name, ok := downloadName(chi.URLParam(r, "filename"))
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	path := filepath.Join(s.outputDir, name)
	// #nosec G304 -- name is a single validated path element inside outputDir.
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	active, err := s.ledger.CountWhere(r.Context(), datasheet.StatusProcessing)
	if err != nil {
		s.logger.Warn("count active requests", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "online",
		OutputDir:      s.outputDir,
		ActiveRequests: active,
	})
}

// downloadName unescapes a filename parameter and accepts only a single,
// non-special path element.
func downloadName(raw string) (string, bool) {
	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", false
	}
	return name, true
}

// decodeObject reads a JSON object, keeping numbers as json.Number so ids
// are not rounded.
func decodeObject(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.New("body is not a JSON object")
	}
	return body, nil
}

type submitResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	IDs     []string `json:"ids_internos"`
}

type healthResponse struct {
	Status         string `json:"status"`
	OutputDir      string `json:"output_dir"`
	ActiveRequests int    `json:"active_requests"`
}
