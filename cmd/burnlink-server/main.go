// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point of the burnlink server. Configuration is
// read from the environment (and an optional .env file) and can be
// overridden with flags.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	isecrets "github.com/carabiner-dev/burnlink/internal/secrets"
	"github.com/carabiner-dev/burnlink/internal/server"
	"github.com/carabiner-dev/burnlink/internal/store"
	"github.com/carabiner-dev/burnlink/internal/telemetry"
	"github.com/carabiner-dev/burnlink/options"
	"github.com/carabiner-dev/burnlink/secrets"
)

func main() {
	if err := options.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts, err := options.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid environment: %v\n", err)
		os.Exit(1)
	}

	if err := rootCmd(opts).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd(opts *options.Server) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "burnlink-server",
		Short:        "Ephemeral end-to-end encrypted secret sharing server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Debug {
				opts.LogLevel = "debug"
			}
			return run(cmd.Context(), opts)
		},
	}

	// Environment values become the flag defaults so flags win
	flags := cmd.Flags()
	flags.StringVar(&opts.Address, "address", opts.Address, "Address to listen on")
	flags.BoolVar(&opts.Debug, "debug", opts.Debug, "Enable debug logging")
	flags.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log level: debug, info, warn, error")
	flags.IntVar(&opts.MaxSecrets, "max-secrets", opts.MaxSecrets, "Maximum number of live secrets")
	flags.IntVar(&opts.MaxPayloadSize, "max-payload-size", opts.MaxPayloadSize, "Maximum serialized envelope size in bytes")
	flags.BoolVar(&opts.ShowStats, "show-stats", opts.ShowStats, "Expose the /api/stats endpoint")
	flags.BoolVar(&opts.Metrics, "metrics", opts.Metrics, "Expose Prometheus metrics on /metrics")
	flags.StringVar(&opts.StaticDir, "static-dir", opts.StaticDir, "Directory with the browser client")
	flags.DurationVar(&opts.CleanupInterval, "cleanup-interval", opts.CleanupInterval, "Interval between expired secret sweeps")
	flags.DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", opts.ShutdownTimeout, "Grace period for in flight requests on shutdown")
	flags.StringVar(&opts.RedisURL, "redis-url", opts.RedisURL, "Redis URL, secrets are kept in memory when empty")
	flags.StringVar(&opts.RedisKeyPrefix, "redis-key-prefix", opts.RedisKeyPrefix, "Prefix of the keys written to redis")
	flags.DurationVar(&opts.RemoteTimeout, "remote-timeout", opts.RemoteTimeout, "Timeout of each redis operation")
	flags.IntVar(&opts.CreateRateLimit, "create-rate-limit", opts.CreateRateLimit, "Secret creations allowed per client in a window, 0 disables")
	flags.IntVar(&opts.ReadRateLimit, "read-rate-limit", opts.ReadRateLimit, "Secret reads allowed per client in a window, 0 disables")
	flags.DurationVar(&opts.RateLimitWindow, "rate-limit-window", opts.RateLimitWindow, "Rate limit window")
	flags.BoolVar(&opts.Tracing.Enabled, "tracing", opts.Tracing.Enabled, "Export traces over OTLP")
	flags.StringVar(&opts.Tracing.Endpoint, "otlp-endpoint", opts.Tracing.Endpoint, "OTLP gRPC collector endpoint")
	flags.BoolVar(&opts.Tracing.Insecure, "otlp-insecure", opts.Tracing.Insecure, "Disable TLS to the collector")
	flags.Float64Var(&opts.Tracing.SamplingRate, "trace-sampling-rate", opts.Tracing.SamplingRate, "Fraction of traces sampled")

	return cmd
}

func run(ctx context.Context, opts *options.Server) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing goes first so the log handler can pick up span context
	tp, err := telemetry.InitTracer(ctx, &opts.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				fmt.Fprintf(os.Stderr, "Error shutting down tracer: %v\n", err)
			}
		}()
	}

	logger := telemetry.NewLogger(os.Stderr, telemetry.ParseLevel(opts.LogLevel))
	ctx = clog.WithLogger(ctx, logger)

	backend, closeBackend, err := newBackend(ctx, opts)
	if err != nil {
		return err
	}
	defer closeBackend()

	st, err := store.New(backend, opts)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}

	srv, err := server.NewServer(st, opts)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Infof("Starting burnlink server on %s (max secrets: %d, max payload: %d bytes)", opts.Address, opts.MaxSecrets, opts.MaxPayloadSize)
	if err := srv.Run(ctx); err != nil {
		logger.Errorf("Server error: %v", err)
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// newBackend returns the storage backend selected by the options along
// with a function that releases it.
func newBackend(ctx context.Context, opts *options.Server) (secrets.Backend, func(), error) {
	log := clog.FromContext(ctx)
	memory := isecrets.NewMemoryBackend()

	if opts.RedisURL == "" {
		log.Info("Secrets are kept in process memory, do not run more than one instance")
		return memory, func() {}, nil
	}

	remote, err := isecrets.NewRedisBackendFromURL(opts.RedisURL, opts.RedisKeyPrefix, opts.RemoteTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring redis backend: %w", err)
	}

	if err := remote.Ping(ctx); err != nil {
		log.Warnf("Redis is unreachable, falling back to memory until it recovers: %v", err)
	} else {
		log.Info("Storing secrets in redis")
	}

	closer := func() {
		if err := remote.Close(); err != nil {
			log.Warnf("Error closing redis client: %v", err)
		}
	}
	return isecrets.NewFallbackBackend(remote, memory), closer, nil
}
