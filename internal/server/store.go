// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chainguard-dev/clog"
)

// CreateRequest is the body of a secret creation. The ttl is accepted both
// as a number and as a numeric string. The payload is stored as sent.
type CreateRequest struct {
	TTL           json.Number     `json:"ttl"`
	Payload       json.RawMessage `json:"payload"`
	BurnAfterRead bool            `json:"burnAfterRead"`
}

// CreateResponse returns the id of the new secret
type CreateResponse struct {
	ID string `json:"id"`
}

// handleCreate decodes the request and hands the envelope to the store.
// The body is capped independently of the envelope size limit.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.options.MaxBodySize)

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			clog.FromContext(r.Context()).Debugf("Create request body over %d bytes", tooLarge.Limit)
			writeError(w, r, http.StatusBadRequest, codeInvalidEnvelope)
			return
		}
		clog.FromContext(r.Context()).Debugf("Malformed create request: %v", err)
		writeError(w, r, http.StatusBadRequest, codeInvalidRequest)
		return
	}

	// A missing or fractional ttl is left at zero for the store to refuse
	ttl, _ := req.TTL.Int64()

	id, err := s.store.Create(r.Context(), req.Payload, ttl, req.BurnAfterRead)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, CreateResponse{ID: id})
}
