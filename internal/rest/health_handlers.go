// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of crypto-toolkit.
//
// crypto-toolkit is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"net/http"
)

// HealthHandler handles GET /health requests.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Version: s.version}, http.StatusOK)
}

// LivenessHandler handles GET /health/live requests.
//
// Liveness probes determine if the service is alive and should be
// restarted. This endpoint only fails if the process is in an
// unrecoverable state, so it always answers 200.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok"}, http.StatusOK)
}

// ReadinessHandler handles GET /health/ready requests.
//
// Readiness probes determine if the service can accept traffic. The
// endpoint fails when the backing store is unreachable.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		if err := s.readiness(r.Context()); err != nil {
			s.logger.Warn("Readiness check failed", "error", err)
			writeJSON(w, HealthResponse{Status: "unavailable"}, http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, HealthResponse{Status: "ok"}, http.StatusOK)
}
