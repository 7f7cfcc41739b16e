// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2023-2026 Nicholas R. Perez

// Package server exposes a Parser over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"nickandperla.net/xpr/pkg/xpr"
)

const maxBody = 1 << 20

// Server is the HTTP evaluation service.
type Server struct {
	parser   *xpr.Parser
	log      zerolog.Logger
	gatherer prometheus.Gatherer
	timeout  time.Duration
	mux      *http.ServeMux
	server   *http.Server
	started  time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithGatherer serves the metrics of g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithTimeout bounds how long an evaluation may wait for asynchronous
// results. Zero waits for as long as the client does.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// New creates a server evaluating with p.
func New(p *xpr.Parser, opts ...Option) *Server {
	s := &Server{
		parser:   p,
		log:      zerolog.Nop(),
		gatherer: prometheus.DefaultGatherer,
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/simplify", s.handleSimplify)
	mux.HandleFunc("POST /v1/variables", s.handleVariables)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.mux = mux
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.requestLog(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	s.log.Info().Str("addr", addr).Msg("server starting")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = ulid.Make().String()
		}
		w.Header().Set("X-Request-Id", id)

		log := s.log.With().Str("request_id", id).Logger()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r.WithContext(log.WithContext(r.Context())))

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.started).String(),
	})
}

type evaluateRequest struct {
	Expression string                     `json:"expression"`
	Scope      map[string]json.RawMessage `json:"scope,omitempty"`
}

type evaluateResponse struct {
	Result json.RawMessage            `json:"result"`
	Scope  map[string]json.RawMessage `json:"scope"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decode(w, r, &req) {
		return
	}
	x, err := s.parser.Parse(req.Expression)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vars, err := values(req.Scope)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	scope, err := s.parser.NewScope(vars)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	v, err := x.Resolve(ctx, scope)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := evaluateResponse{Scope: map[string]json.RawMessage{}}
	if resp.Result, err = xpr.MarshalJSON(v); err != nil {
		s.fail(w, r, err)
		return
	}
	for name, val := range scope.Map() {
		b, err := xpr.MarshalJSON(val)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Scope[name] = b
	}
	writeJSON(w, http.StatusOK, resp)
}

type simplifyRequest struct {
	Expression string                     `json:"expression"`
	Bindings   map[string]json.RawMessage `json:"bindings,omitempty"`
}

func (s *Server) handleSimplify(w http.ResponseWriter, r *http.Request) {
	var req simplifyRequest
	if !decode(w, r, &req) {
		return
	}
	x, err := s.parser.Parse(req.Expression)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vals, err := values(req.Bindings)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	bindings := make(map[string]xpr.Value, len(vals))
	for name, v := range vals {
		bindings[name] = v.(xpr.Value)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"expression": x.Simplify(bindings).String(),
	})
}

type variablesRequest struct {
	Expression  string `json:"expression"`
	WithMembers bool   `json:"withMembers,omitempty"`
}

func (s *Server) handleVariables(w http.ResponseWriter, r *http.Request) {
	var req variablesRequest
	if !decode(w, r, &req) {
		return
	}
	x, err := s.parser.Parse(req.Expression)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vars := x.Variables(req.WithMembers)
	if vars == nil {
		vars = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"variables": vars})
}

// values decodes each raw JSON value, keeping the key order of objects.
func values(raw map[string]json.RawMessage) (map[string]any, error) {
	vals := make(map[string]any, len(raw))
	for name, data := range raw {
		v, err := xpr.UnmarshalJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		vals[name] = v
	}
	return vals, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

// fail maps err to a status: 400 for syntax errors, 422 for the other
// language errors, 504 when the wait for an async result ran out.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := xpr.ErrorKind(err)
	status := http.StatusInternalServerError
	switch {
	case kind == "SyntaxError":
		status = http.StatusBadRequest
	case kind != "":
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status, kind = http.StatusGatewayTimeout, "timeout"
	default:
		kind = "internal_error"
	}
	zerolog.Ctx(r.Context()).Debug().Err(err).Int("status", status).Msg("request failed")
	writeError(w, status, kind, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
