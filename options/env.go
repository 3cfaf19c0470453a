// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package options

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by FromEnv. The unprefixed names are honored
// for deployments configured before the BURNLINK_ prefix existed.
const (
	EnvVarPort            = "PORT"
	EnvVarAddress         = "BURNLINK_ADDRESS"
	EnvVarDebug           = "BURNLINK_DEBUG"
	EnvVarLogLevel        = "BURNLINK_LOG_LEVEL"
	EnvVarMaxPayloadSize  = "MAX_PAYLOAD_SIZE"
	EnvVarMaxSecrets      = "MAX_SECRETS"
	EnvVarShowStats       = "SHOW_STATS"
	EnvVarMetrics         = "BURNLINK_METRICS"
	EnvVarStaticDir       = "BURNLINK_STATIC_DIR"
	EnvVarRedisURL        = "REDIS_URL"
	EnvVarRedisKeyPrefix  = "BURNLINK_REDIS_KEY_PREFIX"
	EnvVarRemoteTimeout   = "BURNLINK_REMOTE_TIMEOUT"
	EnvVarCleanupInterval = "BURNLINK_CLEANUP_INTERVAL"
	EnvVarTracing         = "BURNLINK_TRACING"
	EnvVarOtelEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvVarOtelService     = "OTEL_SERVICE_NAME"
	EnvVarServerURL       = "BURNLINK_SERVER"
)

// LoadDotEnv loads variables from the .env files into the process
// environment. Missing files are ignored, variables already set win.
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

// FromEnv returns a copy of the default server options with any values
// found in the environment applied on top.
func FromEnv() (*Server, error) {
	opts := *DefaultServer
	if err := opts.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &opts, nil
}

// ApplyEnv overrides the options with the values returned by lookup.
func (s *Server) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("parsing %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("parsing %s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("parsing %s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	if port, ok := lookup(EnvVarPort); ok && port != "" {
		s.Address = ":" + strings.TrimPrefix(port, ":")
	}
	str(EnvVarAddress, &s.Address)
	boolean(EnvVarDebug, &s.Debug)
	str(EnvVarLogLevel, &s.LogLevel)
	integer(EnvVarMaxPayloadSize, &s.MaxPayloadSize)
	integer(EnvVarMaxSecrets, &s.MaxSecrets)
	boolean(EnvVarShowStats, &s.ShowStats)
	boolean(EnvVarMetrics, &s.Metrics)
	str(EnvVarStaticDir, &s.StaticDir)
	str(EnvVarRedisURL, &s.RedisURL)
	str(EnvVarRedisKeyPrefix, &s.RedisKeyPrefix)
	duration(EnvVarRemoteTimeout, &s.RemoteTimeout)
	duration(EnvVarCleanupInterval, &s.CleanupInterval)
	boolean(EnvVarTracing, &s.Tracing.Enabled)
	str(EnvVarOtelEndpoint, &s.Tracing.Endpoint)
	str(EnvVarOtelService, &s.Tracing.ServiceName)

	return errors.Join(errs...)
}
