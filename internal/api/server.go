// Package api exposes the analysis pipeline over HTTP.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lvonguyen/threatlens/internal/eventstore"
	"github.com/lvonguyen/threatlens/internal/observability"
	"github.com/lvonguyen/threatlens/internal/pipeline"
	"github.com/lvonguyen/threatlens/internal/publish"
	"github.com/lvonguyen/threatlens/internal/reputation"
	"github.com/lvonguyen/threatlens/internal/score"
)

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	store      *eventstore.Store
	pipeline   *pipeline.Pipeline
	reputation *reputation.Client
	publisher  *publish.Publisher
	telemetry  *observability.Telemetry
	logger     *zap.Logger

	maxBodyBytes int64
	version      string
}

// Options configures a Server.
type Options struct {
	MaxBodyBytes int64
	Version      string
	Publisher    *publish.Publisher
	Telemetry    *observability.Telemetry
	Middleware   []func(http.Handler) http.Handler
}

// NewServer wires the handlers.
func NewServer(store *eventstore.Store, p *pipeline.Pipeline, repClient *reputation.Client, logger *zap.Logger, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 * 1024 * 1024
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		store:        store,
		pipeline:     p,
		reputation:   repClient,
		publisher:    opts.Publisher,
		telemetry:    opts.Telemetry,
		logger:       logger,
		maxBodyBytes: opts.MaxBodyBytes,
		version:      opts.Version,
	}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router(extra ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	for _, mw := range extra {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.telemetry != nil {
		r.Method(http.MethodGet, "/metrics", s.telemetry.MetricsHandler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/events", s.handleListEvents)
		r.Delete("/events/{id}", s.handleRemoveEvent)
		r.Get("/reputation/{address}", s.handleReputation)
		r.Post("/score/preview", s.handleScorePreview)
	})

	return r
}

// ingestRequest accepts either one raw text blob or a list of lines.
type ingestRequest struct {
	OwnerID string   `json:"owner_id"`
	Content string   `json:"content,omitempty"`
	Lines   []string `json:"lines,omitempty"`
}

type ingestResponse struct {
	TotalLines  int      `json:"total_lines"`
	ParsedLines int      `json:"parsed_lines"`
	Stored      int      `json:"stored"`
	Errors      []string `json:"errors,omitempty"`
}

// handleIngest parses submitted log content and stores the resulting
// events under the caller's owner identity. JSON bodies carry the owner
// inline; text/plain bodies name it in the X-Owner-ID header.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var ownerID, content string

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var req ingestRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		ownerID = req.OwnerID
		content = req.Content
		if content == "" && len(req.Lines) > 0 {
			content = strings.Join(req.Lines, "\n")
		}
	case strings.HasPrefix(contentType, "text/plain"):
		raw, err := io.ReadAll(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reading request body failed")
			return
		}
		ownerID = r.Header.Get("X-Owner-ID")
		content = string(raw)
	default:
		writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json or text/plain")
		return
	}

	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner identity is required")
		return
	}

	result := s.pipeline.ParseBatch(content)
	if !result.Succeeded {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "could not parse any log entries",
			"result": ingestResponse{TotalLines: result.TotalLines, Errors: result.Errors},
		})
		return
	}

	stored := s.store.Append(ownerID, result.Events)

	if s.telemetry != nil && s.telemetry.Metrics() != nil {
		s.telemetry.Metrics().EventsStored.Add(float64(len(stored)))
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		TotalLines:  result.TotalLines,
		ParsedLines: result.ParsedLines,
		Stored:      len(stored),
		Errors:      result.Errors,
	})
}

type analyzeRequest struct {
	OwnerID string `json:"owner_id"`
	Content string `json:"content,omitempty"`
}

// handleAnalyze runs the full pipeline. With content it analyzes the
// submitted text directly; otherwise it analyzes the owner's stored events.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	var req analyzeRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var records []*score.ThreatRecord
	if req.Content != "" {
		var err error
		records, _, err = s.pipeline.AnalyzeText(r.Context(), req.Content)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	} else {
		if req.OwnerID == "" {
			writeError(w, http.StatusBadRequest, "owner identity is required")
			return
		}
		records = s.pipeline.Analyze(r.Context(), s.store.List(req.OwnerID))
	}

	if s.publisher != nil {
		s.publisher.PublishRecords(records)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"threats": records,
		"count":   len(records),
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner identity is required")
		return
	}

	stored := s.store.ListStored(ownerID)
	writeJSON(w, http.StatusOK, map[string]any{
		"events": stored,
		"count":  len(stored),
	})
}

func (s *Server) handleRemoveEvent(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner identity is required")
		return
	}

	id := chi.URLParam(r, "id")
	if !s.store.Remove(ownerID, id) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// handleReputation looks up one address directly, bypassing analysis.
func (s *Server) handleReputation(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	rec := s.reputation.Lookup(r.Context(), address)
	writeJSON(w, http.StatusOK, map[string]any{
		"record":          rec,
		"boost":           reputation.Boost(rec),
		"recommendations": reputation.Recommendations(rec),
	})
}

type scorePreviewRequest struct {
	FailedLogins   int `json:"failed_logins"`
	RepeatedAccess int `json:"repeated_access"`
	ExtraPoints    int `json:"extra_points"`
}

// handleScorePreview exposes the quick direct scorer for manual checks.
func (s *Server) handleScorePreview(w http.ResponseWriter, r *http.Request) {
	var req scorePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	value := score.Direct(req.FailedLogins, req.RepeatedAccess, req.ExtraPoints)
	writeJSON(w, http.StatusOK, map[string]any{
		"score": value,
		"level": score.LevelFor(value),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
