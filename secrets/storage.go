// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package secrets exposes the public data model of burnlink and the interface
// that storage backends implement. The simplest backend is the in-process memory
// driver, the remote driver keeps records in redis with native expiry.
package secrets

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidEnvelope is returned when an envelope is missing fields or too large.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrInvalidTTL is returned when the requested lifetime is not in the allow-list.
	ErrInvalidTTL = errors.New("invalid ttl")

	// ErrInvalidID is returned for identifiers that are not 32 lowercase hex chars.
	ErrInvalidID = errors.New("invalid id")

	// ErrNotFound covers absent, expired and already consumed secrets alike.
	ErrNotFound = errors.New("not found")

	// ErrCapacityExceeded is returned when the store holds its maximum of secrets.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrExists is returned by a backend when Set targets an id that is still live.
	ErrExists = errors.New("id already exists")
)

// Envelope is the encrypted payload produced by the client. The server keeps
// the envelope as the bytes it received and only checks that these fields
// are present, clients use the type to seal and open it.
type Envelope struct {
	Version    int    `json:"v"`
	Ciphertext string `json:"ct"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
}

// Record is a stored secret. Records are never modified once written.
type Record struct {
	ID string `json:"id"`

	// Envelope holds the JSON envelope exactly as the client sent it
	Envelope []byte `json:"payload"`

	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	BurnAfterRead bool      `json:"burn_after_read"`
}

// Expired reports whether the record lifetime has passed at now. A record
// is no longer readable from the instant of ExpiresAt.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Backend defines the interface for the storage substrate holding the records.
// The secret store owns lifecycle, expiration and admission, backends only
// persist what they are handed.
//
// A backend kept in process memory is only correct for a single server
// instance. Running several replicas requires a shared remote backend.
type Backend interface {
	// Get returns the record stored under id, or nil when there is none.
	Get(context.Context, string) (*Record, error)

	// Set stores a record. Backends with native expiry evict it after ttl.
	// It returns ErrExists if id is already present.
	Set(context.Context, string, *Record, time.Duration) error

	// Delete removes a record. Deleting an absent id is not an error.
	Delete(context.Context, string) error

	// Take atomically fetches and removes a record. Of any number of concurrent
	// callers for the same id at most one gets it back, the rest get nil.
	Take(context.Context, string) (*Record, error)

	// ListActiveIDs returns the ids currently held by the backend.
	ListActiveIDs(context.Context) ([]string, error)

	// Count returns the number of records held by the backend.
	Count(context.Context) (int, error)
}
