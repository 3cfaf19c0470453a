// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import "net/http"

// handleStats reports the store counters. The endpoint does not exist
// unless enabled in the options.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.options.ShowStats {
		writeError(w, r, http.StatusNotFound, codeNotFound)
		return
	}

	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
