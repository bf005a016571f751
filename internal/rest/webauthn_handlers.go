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
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/xPOURY4/crypto-toolkit/pkg/metrics"
	"github.com/xPOURY4/crypto-toolkit/pkg/webauthn"
)

// BeginRegistrationHandler handles POST /api/v1/auth/webauthn/register/options.
// The challenge reference is returned in the X-Challenge-Id header and
// must accompany the verify request.
func (s *Server) BeginRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	identity := IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	options, challenge, err := s.webauthn.BeginRegistration(r.Context(), identity)
	if err != nil {
		metrics.RecordOperation(metrics.OpBeginRegister, metrics.StatusError, time.Since(start).Seconds())
		handleError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpBeginRegister, metrics.StatusSuccess, time.Since(start).Seconds())
	metrics.RecordChallengeIssued(string(webauthn.CeremonyRegistration))

	w.Header().Set(ChallengeHeader, challenge.ID)
	writeJSON(w, options, http.StatusOK)
}

// FinishRegistrationHandler handles POST /api/v1/auth/webauthn/register/verify.
// The request body is the authenticator attestation response; the
// challenge reference travels in the X-Challenge-Id header and the
// optional credential label in the "label" query parameter.
func (s *Server) FinishRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	identity := IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	challengeID := r.Header.Get(ChallengeHeader)
	if challengeID == "" {
		writeErrorWithMessage(w, ErrInvalidRequest, "Missing "+ChallengeHeader+" header", http.StatusBadRequest)
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(r.Body)
	if err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Malformed attestation response", http.StatusBadRequest)
		return
	}

	label := strings.TrimSpace(r.URL.Query().Get("label"))

	cred, err := s.webauthn.FinishRegistration(r.Context(), identity, challengeID, label, parsed)
	if err != nil {
		metrics.RecordOperation(metrics.OpFinishRegister, metrics.StatusError, time.Since(start).Seconds())
		metrics.RecordError(metrics.OpFinishRegister, classifyAuthFailure(err))
		recordChallengeOutcome(webauthn.CeremonyRegistration, err)
		if webauthn.IsVerificationFailure(err) {
			writeErrorWithMessage(w, ErrInvalidRequest, "Attestation verification failed", http.StatusBadRequest)
			return
		}
		handleError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpFinishRegister, metrics.StatusSuccess, time.Since(start).Seconds())
	metrics.RecordChallengeConsumed(string(webauthn.CeremonyRegistration), metrics.ResultConsumed)
	metrics.RegisteredCredentials.Inc()
	s.logger.Info("Credential registered", "user_id", identity.ID, "label", cred.Label)

	writeJSON(w, toCredentialResponse(cred), http.StatusCreated)
}

// BeginLoginHandler handles POST /api/v1/auth/webauthn/login/options.
// The endpoint is public. An unknown account answers 404; every other
// failure answers a uniform 401 without naming the failed sub-check.
func (s *Server) BeginLoginHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req BeginLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Malformed request body", http.StatusBadRequest)
		return
	}

	account, err := s.users.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		metrics.RecordOperation(metrics.OpBeginLogin, metrics.StatusError, time.Since(start).Seconds())
		handleError(w, err)
		return
	}
	if !account.Active {
		metrics.RecordOperation(metrics.OpBeginLogin, metrics.StatusError, time.Since(start).Seconds())
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	options, challenge, err := s.webauthn.BeginLogin(r.Context(), account)
	if err != nil {
		metrics.RecordOperation(metrics.OpBeginLogin, metrics.StatusError, time.Since(start).Seconds())
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	metrics.RecordOperation(metrics.OpBeginLogin, metrics.StatusSuccess, time.Since(start).Seconds())
	metrics.RecordChallengeIssued(string(webauthn.CeremonyAuthentication))

	w.Header().Set(ChallengeHeader, challenge.ID)
	writeJSON(w, options, http.StatusOK)
}

// FinishLoginHandler handles POST /api/v1/auth/webauthn/login/verify.
// The request body is the authenticator assertion response; the
// challenge reference travels in the X-Challenge-Id header. Any
// ceremony failure answers with a uniform 401.
func (s *Server) FinishLoginHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	challengeID := r.Header.Get(ChallengeHeader)
	if challengeID == "" {
		writeErrorWithMessage(w, ErrInvalidRequest, "Missing "+ChallengeHeader+" header", http.StatusBadRequest)
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(r.Body)
	if err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Malformed assertion response", http.StatusBadRequest)
		return
	}

	account, cred, err := s.webauthn.FinishLogin(r.Context(), challengeID, parsed)
	if err != nil {
		metrics.RecordOperation(metrics.OpFinishLogin, metrics.StatusError, time.Since(start).Seconds())
		metrics.RecordError(metrics.OpFinishLogin, classifyAuthFailure(err))
		recordChallengeOutcome(webauthn.CeremonyAuthentication, err)
		s.logger.Info("WebAuthn login rejected", "reason", classifyAuthFailure(err))
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	metrics.RecordChallengeConsumed(string(webauthn.CeremonyAuthentication), metrics.ResultConsumed)
	s.logger.Debug("Assertion verified",
		"user_id", account.ID,
		"sign_count", cred.SignCount)

	s.issueToken(w, r, account, metrics.OpFinishLogin, start, http.StatusOK)
}

// recordChallengeOutcome maps challenge errors to consumption metrics.
func recordChallengeOutcome(ceremony webauthn.Ceremony, err error) {
	switch {
	case err == nil:
		metrics.RecordChallengeConsumed(string(ceremony), metrics.ResultConsumed)
	case webauthn.IsChallengeFailure(err):
		switch {
		case errors.Is(err, webauthn.ErrChallengeExpired):
			metrics.RecordChallengeConsumed(string(ceremony), metrics.ResultExpired)
		case errors.Is(err, webauthn.ErrChallengeConsumed):
			metrics.RecordChallengeConsumed(string(ceremony), metrics.ResultReplayed)
		default:
			metrics.RecordChallengeConsumed(string(ceremony), metrics.ResultNotFound)
		}
	}
}
