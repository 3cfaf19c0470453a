// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the secret store over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/burnlink/internal/metrics"
	"github.com/carabiner-dev/burnlink/internal/store"
	"github.com/carabiner-dev/burnlink/options"
)

// Server implements the burnlink HTTP API
type Server struct {
	// Server options
	options *options.Server

	// store owns the secrets, handlers only translate requests into calls
	store *store.Store

	// metrics is nil unless enabled in the options
	metrics *metrics.Metrics

	handler http.Handler
}

// NewServer creates a new server on top of the store with the supplied options
func NewServer(st *store.Store, opts *options.Server) (*Server, error) {
	if st == nil {
		return nil, errors.New("a secret store is required")
	}
	if opts == nil {
		opts = options.DefaultServer
	}

	s := &Server{
		options: opts,
		store:   st,
	}

	if opts.Metrics {
		s.metrics = metrics.New(st, opts.RemoteTimeout)
	}

	s.handler = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler of the API.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and blocks until ctx is canceled
func (s *Server) Run(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.options.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.options.Address, err)
	}
	return s.Serve(ctx, listener)
}

// Serve starts the expiration sweeper and serves the API on listener. When
// ctx is canceled, in-flight requests get ShutdownTimeout to complete.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			// Requests keep the logger but not the cancellation
			return context.WithoutCancel(ctx)
		},
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go s.store.RunSweeper(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	clog.FromContext(ctx).Infof("Server listening on %s", listener.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	clog.FromContext(ctx).Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.options.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
