// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package options

import (
	"fmt"
	"slices"
	"time"
)

// Common options for client and server options
type Common struct {
	Debug    bool   `json:"debug"`
	LogLevel string `json:"log_level"`
}

// Server options set
type Server struct {
	Common

	Address         string        `json:"address"`
	MaxSecrets      int           `json:"max_secrets"`      // Maximum number of live secrets
	MaxPayloadSize  int           `json:"max_payload_size"` // Maximum serialized envelope size in bytes
	MaxBodySize     int64         `json:"max_body_size"`    // Request body ceiling enforced by the transport
	AllowedTTLs     []int64       `json:"allowed_ttls"`     // Accepted lifetimes in seconds
	CleanupInterval time.Duration `json:"cleanup_interval"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	ShowStats       bool          `json:"show_stats"`
	Metrics         bool          `json:"metrics"`
	StaticDir       string        `json:"static_dir"` // Directory with the browser client, empty to disable

	// Remote backend. When RedisURL is empty secrets are kept in memory.
	RedisURL       string        `json:"redis_url"`
	RedisKeyPrefix string        `json:"redis_key_prefix"`
	RemoteTimeout  time.Duration `json:"remote_timeout"`

	// Per client IP request budgets
	CreateRateLimit int           `json:"create_rate_limit"`
	ReadRateLimit   int           `json:"read_rate_limit"`
	RateLimitWindow time.Duration `json:"rate_limit_window"`

	Tracing Tracing `json:"tracing"`
}

// Tracing configures the OpenTelemetry exporter
type Tracing struct {
	Enabled      bool    `json:"enabled"`
	Endpoint     string  `json:"endpoint"`
	ServiceName  string  `json:"service_name"`
	SamplingRate float64 `json:"sampling_rate"`
	Insecure     bool    `json:"insecure"`
}

// Client options set
type Client struct {
	Common
	ServerURL  string        `json:"server_url"`
	Timeout    time.Duration `json:"timeout"`
	Iterations int           `json:"iterations"` // PBKDF2 iterations used to seal envelopes
}

// Validate checks the server options for values the store cannot run with.
func (s *Server) Validate() error {
	if s.MaxSecrets <= 0 {
		return fmt.Errorf("max secrets must be positive, got %d", s.MaxSecrets)
	}
	if s.MaxPayloadSize <= 0 {
		return fmt.Errorf("max payload size must be positive, got %d", s.MaxPayloadSize)
	}
	if len(s.AllowedTTLs) == 0 {
		return fmt.Errorf("at least one allowed ttl is required")
	}
	for _, ttl := range s.AllowedTTLs {
		if ttl <= 0 {
			return fmt.Errorf("allowed ttl must be positive, got %d", ttl)
		}
	}
	if s.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup interval must be positive, got %s", s.CleanupInterval)
	}
	return nil
}

// TTLAllowed reports whether ttlSeconds is one of the accepted lifetimes.
func (s *Server) TTLAllowed(ttlSeconds int64) bool {
	return slices.Contains(s.AllowedTTLs, ttlSeconds)
}

// DefaultAllowedTTLs are 30 minutes, one hour, one day and one week.
var DefaultAllowedTTLs = []int64{1800, 3600, 86400, 604800}

// defaultCommon default common options shared by default server and client sets
var defaultCommon = Common{
	Debug:    false,
	LogLevel: "INFO",
}

// DefaultClient default client options
var DefaultClient = &Client{
	Common:     defaultCommon,
	ServerURL:  "http://localhost:3000",
	Timeout:    30 * time.Second,
	Iterations: 200_000,
}

// DefaultServer default server options
var DefaultServer = &Server{
	Common:          defaultCommon,
	Address:         ":3000",
	MaxSecrets:      10_000,
	MaxPayloadSize:  100_000,
	MaxBodySize:     200 * 1024,
	AllowedTTLs:     DefaultAllowedTTLs,
	CleanupInterval: 1 * time.Minute,
	ShutdownTimeout: 30 * time.Second,
	ShowStats:       false,
	Metrics:         false,
	RedisKeyPrefix:  "burnlink:v1:",
	RemoteTimeout:   2 * time.Second,
	CreateRateLimit: 50,
	ReadRateLimit:   100,
	RateLimitWindow: 15 * time.Minute,
	Tracing: Tracing{
		Endpoint:     "localhost:4317",
		ServiceName:  "burnlink",
		SamplingRate: 1.0,
	},
}

// Create options for a single secret
type Create struct {
	TtlSeconds    int64
	BurnAfterRead bool
}

// CreateOptsFn sets an option on a Create set
type CreateOptsFn func(*Create) error

// DefaultCreate is a one hour secret that is kept until it expires
var DefaultCreate = Create{
	TtlSeconds:    3600,
	BurnAfterRead: false,
}

// WithTTL sets the lifetime of the secret in seconds
func WithTTL(seconds int64) CreateOptsFn {
	return func(c *Create) error {
		if seconds <= 0 {
			return fmt.Errorf("ttl must be positive, got %d", seconds)
		}
		c.TtlSeconds = seconds
		return nil
	}
}

// WithBurnAfterRead marks the secret to be destroyed on its first read
func WithBurnAfterRead(burn bool) CreateOptsFn {
	return func(c *Create) error {
		c.BurnAfterRead = burn
		return nil
	}
}
