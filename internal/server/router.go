// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeaders)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(noStore)

		r.With(s.rateLimit(s.options.CreateRateLimit)).Post("/secret", s.handleCreate)
		r.With(s.rateLimit(s.options.ReadRateLimit)).Get("/secret/{id}", s.handleRead)
		r.Get("/stats", s.handleStats)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusNotFound, codeNotFound)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusMethodNotAllowed, codeInvalidRequest)
		})
	})

	r.NotFound(s.handleStatic)

	return otelhttp.NewHandler(r, "burnlink",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithFilter(traced),
	)
}

// traced leaves health checks and scrapes out of the traces. Secret reads
// are skipped too as the span attributes would carry the id from the path.
func traced(r *http.Request) bool {
	switch {
	case r.URL.Path == "/healthz", r.URL.Path == "/metrics":
		return false
	case strings.HasPrefix(r.URL.Path, "/api/secret/"):
		return false
	default:
		return true
	}
}

// rateLimit returns a per client IP limiter, a limit of zero disables it.
func (s *Server) rateLimit(requests int) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requests, s.options.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, r, http.StatusTooManyRequests, codeRateLimited)
		}),
	)
}

// handleStatic serves the browser client. Paths that do not match a file
// get the index page so the client can route on its own.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if s.options.StaticDir == "" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		writeError(w, r, http.StatusNotFound, codeNotFound)
		return
	}

	name := filepath.Join(s.options.StaticDir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(name); err != nil || info.IsDir() || strings.HasPrefix(filepath.Base(name), ".") {
		name = filepath.Join(s.options.StaticDir, "index.html")
	}
	http.ServeFile(w, r, name)
}
