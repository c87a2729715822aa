// Package httpapi serves domain analyses over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/synqronlabs/posture"
)

// ContentTypeMsgpack selects MessagePack report encoding in Accept.
const ContentTypeMsgpack = "application/msgpack"

// Analyzer is the part of *posture.Checker the server uses.
type Analyzer interface {
	CheckEmailSecurity(ctx context.Context, domain string) (*posture.SecurityData, error)
	Analyze(ctx context.Context, domain string, limit int) (*posture.Analysis, error)
}

var _ Analyzer = (*posture.Checker)(nil)

// Options configures a Server.
type Options struct {
	// ActionLimit is the plan length when the request has no limit.
	// Default is posture.DefaultActionLimit.
	ActionLimit int

	// Gatherer is exposed at /metrics. Default is prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Logger receives request failures. Default discards.
	Logger *slog.Logger
}

// Server implements the HTTP API.
type Server struct {
	analyzer Analyzer
	limit    int
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// New creates a Server.
func New(analyzer Analyzer, opts Options) *Server {
	if opts.ActionLimit <= 0 {
		opts.ActionLimit = posture.DefaultActionLimit
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{analyzer: analyzer, limit: opts.ActionLimit, gatherer: opts.Gatherer, logger: opts.Logger}
}

// Routes returns a chi.Router serving the API.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1/domains/{domain}", func(r chi.Router) {
		r.Get("/records", s.getRecords)
		r.Get("/report", s.getReport)
	})
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getRecords(w http.ResponseWriter, r *http.Request) {
	data, err := s.analyzer.CheckEmailSecurity(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	limit := s.limit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	analysis, err := s.analyzer.Analyze(r.Context(), chi.URLParam(r, "domain"), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if acceptsMsgpack(r) {
		b, err := analysis.Report.MarshalMsg(nil)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", ContentTypeMsgpack)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, posture.ErrInvalidDomain) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("request failed",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func acceptsMsgpack(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(mt, ContentTypeMsgpack) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
