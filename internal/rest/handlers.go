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
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xPOURY4/crypto-toolkit/internal/password"
	"github.com/xPOURY4/crypto-toolkit/pkg/metrics"
	"github.com/xPOURY4/crypto-toolkit/pkg/user"
	"github.com/xPOURY4/crypto-toolkit/pkg/webauthn"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// dummyHash keeps password verification time uniform for unknown
// accounts. Salt and key decode to the correct lengths so the full
// Argon2id derivation runs.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=2$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// RegisterHandler handles POST /api/v1/auth/register requests.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Malformed request body", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeErrorWithMessage(w, ErrInvalidRequest, "A valid email is required", http.StatusBadRequest)
		return
	}
	if len(req.Password) < MinPasswordLength {
		writeErrorWithMessage(w, ErrInvalidRequest, "Password is too short", http.StatusBadRequest)
		return
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		s.logger.Error("Password hashing failed", "error", err)
		writeError(w, ErrInternalError, http.StatusInternalServerError)
		return
	}

	account := &user.User{
		Email:        req.Email,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         user.RoleMember,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.users.Create(r.Context(), account); err != nil {
		metrics.RecordOperation(metrics.OpRegister, metrics.StatusError, time.Since(start).Seconds())
		handleError(w, err)
		return
	}

	s.logger.Info("User registered", "user_id", account.ID, "email", account.Email)

	// A fresh account is signed in immediately, so the response is the
	// same token envelope the login endpoints produce.
	s.issueToken(w, r, account, metrics.OpRegister, start, http.StatusCreated)
}

// PasswordLoginHandler handles POST /api/v1/auth/login requests.
// All rejection paths answer with the same 401 so responses do not
// reveal whether the account exists.
func (s *Server) PasswordLoginHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Malformed request body", http.StatusBadRequest)
		return
	}

	account, err := s.users.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		// Run the hash anyway to keep the timing of unknown accounts
		// in line with wrong passwords.
		_, _ = password.Verify(req.Password, dummyHash)
		metrics.RecordOperation(metrics.OpPasswordLogin, metrics.StatusError, time.Since(start).Seconds())
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	ok, err := password.Verify(req.Password, account.PasswordHash)
	if err != nil || !ok || !account.Active {
		metrics.RecordOperation(metrics.OpPasswordLogin, metrics.StatusError, time.Since(start).Seconds())
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	if err := s.users.TouchLastLogin(r.Context(), account.ID); err != nil {
		s.logger.Warn("Failed to record login time", "user_id", account.ID, "error", err)
	} else {
		now := time.Now().UTC()
		account.LastLoginAt = &now
	}

	s.issueToken(w, r, account, metrics.OpPasswordLogin, start, http.StatusOK)
}

// issueToken writes a TokenResponse for a fully authenticated account.
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, account *user.User, operation string, start time.Time, status int) {
	token, err := s.sessions.Issue(account)
	if err != nil {
		s.logger.Error("Token issuance failed", "user_id", account.ID, "error", err)
		metrics.RecordError(operation, "token_issue")
		writeError(w, ErrInternalError, http.StatusInternalServerError)
		return
	}

	metrics.RecordOperation(operation, metrics.StatusSuccess, time.Since(start).Seconds())
	s.logger.Info("User authenticated", "user_id", account.ID, "operation", operation)

	writeJSON(w, TokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(s.sessions.TTL().Seconds()),
		User:      toUserResponse(account),
	}, status)
}

// MeHandler handles GET /api/v1/me requests.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}
	writeJSON(w, toUserResponse(identity), http.StatusOK)
}

// ListCredentialsHandler handles GET /api/v1/credentials requests. It
// returns the credentials owned by the authenticated user.
func (s *Server) ListCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	creds, err := s.webauthn.Credentials(r.Context(), identity.ID)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := CredentialListResponse{Credentials: []CredentialResponse{}}
	for _, cred := range creds {
		resp.Credentials = append(resp.Credentials, toCredentialResponse(cred))
	}
	resp.Total = len(resp.Credentials)
	writeJSON(w, resp, http.StatusOK)
}

// DeleteCredentialHandler handles DELETE /api/v1/credentials/{id}
// requests. Only the credential owner or an admin may delete.
func (s *Server) DeleteCredentialHandler(w http.ResponseWriter, r *http.Request) {
	identity := IdentityFromContext(r.Context())
	if identity == nil {
		writeError(w, ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	idParam := chi.URLParam(r, "id")
	credID, err := base64.RawURLEncoding.DecodeString(idParam)
	if err != nil || len(credID) == 0 {
		writeErrorWithMessage(w, ErrInvalidRequest, "Invalid credential ID", http.StatusBadRequest)
		return
	}

	cred, err := s.webauthn.GetCredential(r.Context(), credID)
	if err != nil {
		handleError(w, err)
		return
	}

	if cred.UserID != identity.ID && !identity.IsAdmin() {
		writeError(w, ErrForbidden, http.StatusForbidden)
		return
	}

	if err := s.webauthn.DeleteCredential(r.Context(), credID); err != nil {
		handleError(w, err)
		return
	}

	metrics.RecordOperation(metrics.OpCredentialDelete, metrics.StatusSuccess, 0)
	s.logger.Info("Credential deleted",
		"credential_id", idParam,
		"owner_id", cred.UserID,
		"deleted_by", identity.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ListUsersHandler handles GET /api/v1/admin/users requests.
func (s *Server) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}

	resp := UserListResponse{Users: []UserResponse{}}
	for _, u := range users {
		resp.Users = append(resp.Users, toUserResponse(u))
	}
	resp.Total = len(resp.Users)
	writeJSON(w, resp, http.StatusOK)
}

// classifyAuthFailure maps ceremony errors to metric error types.
func classifyAuthFailure(err error) string {
	switch {
	case errors.Is(err, webauthn.ErrCounterRegression):
		return "counter_regression"
	case errors.Is(err, webauthn.ErrChallengeExpired):
		return "challenge_expired"
	case errors.Is(err, webauthn.ErrChallengeConsumed):
		return "challenge_replayed"
	case errors.Is(err, webauthn.ErrChallengeNotFound):
		return "challenge_not_found"
	case errors.Is(err, webauthn.ErrCredentialUnknown):
		return "credential_unknown"
	case errors.Is(err, webauthn.ErrOriginMismatch):
		return "origin_mismatch"
	case errors.Is(err, webauthn.ErrRPIDMismatch):
		return "rpid_mismatch"
	case errors.Is(err, webauthn.ErrSignatureInvalid):
		return "signature_invalid"
	default:
		return "internal"
	}
}
