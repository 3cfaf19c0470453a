// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/burnlink/secrets"
)

// Error codes returned in the error field of failed responses
const (
	codeInvalidEnvelope  = "invalid_envelope"
	codeInvalidTTL       = "invalid_ttl"
	codeInvalidID        = "invalid_id"
	codeNotFound         = "not_found"
	codeCapacityExceeded = "capacity_exceeded"
	codeRateLimited      = "rate_limited"
	codeInvalidRequest   = "invalid_request"
	codeInternal         = "internal"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are gone already, all we can do is log
		clog.FromContext(r.Context()).Errorf("Writing response: %v", err)
	}
}

// writeRawPayload answers with the envelope bytes exactly as they were
// stored. Encoding a json.RawMessage would compact and escape them.
func writeRawPayload(w http.ResponseWriter, r *http.Request, envelope json.RawMessage) {
	body := make([]byte, 0, len(envelope)+len(`{"payload":}`)+1)
	body = append(body, `{"payload":`...)
	body = append(body, envelope...)
	body = append(body, "}\n"...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		clog.FromContext(r.Context()).Errorf("Writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	writeJSON(w, r, status, ErrorResponse{Error: code})
}

// writeStoreError maps the store errors to their status and code. Anything
// unexpected is logged and reported as internal.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, secrets.ErrInvalidEnvelope):
		writeError(w, r, http.StatusBadRequest, codeInvalidEnvelope)
	case errors.Is(err, secrets.ErrInvalidTTL):
		writeError(w, r, http.StatusBadRequest, codeInvalidTTL)
	case errors.Is(err, secrets.ErrInvalidID):
		writeError(w, r, http.StatusBadRequest, codeInvalidID)
	case errors.Is(err, secrets.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound)
	case errors.Is(err, secrets.ErrCapacityExceeded):
		writeError(w, r, http.StatusServiceUnavailable, codeCapacityExceeded)
	default:
		clog.FromContext(r.Context()).Errorf("Internal error: %v", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal)
	}
}
