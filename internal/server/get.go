// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ReadResponse carries the envelope back to the client
type ReadResponse struct {
	Payload json.RawMessage `json:"payload"`
}

// handleRead returns the envelope stored under the id in the path. Whether
// the secret never existed, expired or was already burned is not disclosed.
func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	envelope, err := s.store.Read(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	writeRawPayload(w, r, envelope)
}
