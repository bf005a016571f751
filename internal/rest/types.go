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
	"time"

	"github.com/xPOURY4/crypto-toolkit/pkg/user"
	"github.com/xPOURY4/crypto-toolkit/pkg/webauthn"
)

// ChallengeHeader carries the challenge reference between the options
// and verify steps of a ceremony.
const ChallengeHeader = "X-Challenge-Id"

// ErrorResponse represents an error returned to the client.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Password string `json:"password"`
}

// LoginRequest is the request body for password authentication.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// BeginLoginRequest is the request body for starting a WebAuthn
// authentication ceremony.
type BeginLoginRequest struct {
	Email string `json:"email"`
}

// TokenResponse is returned after successful authentication.
type TokenResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresIn int          `json:"expires_in"`
	User      UserResponse `json:"user"`
}

// UserResponse is a summary of a user account.
type UserResponse struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"full_name,omitempty"`
	Role        string `json:"role"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at"`
	LastLoginAt string `json:"last_login_at,omitempty"`
}

// UserListResponse is the response for listing users.
type UserListResponse struct {
	Users []UserResponse `json:"users"`
	Total int            `json:"total"`
}

// CredentialResponse is a summary of a WebAuthn credential.
type CredentialResponse struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	SignCount  uint32   `json:"sign_count"`
	Transport  []string `json:"transport,omitempty"`
	CreatedAt  string   `json:"created_at"`
	LastUsedAt string   `json:"last_used_at,omitempty"`
}

// CredentialListResponse is the response for listing credentials.
type CredentialListResponse struct {
	Credentials []CredentialResponse `json:"credentials"`
	Total       int                  `json:"total"`
}

func toUserResponse(u *user.User) UserResponse {
	resp := UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		Active:    u.Active,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.LastLoginAt != nil {
		resp.LastLoginAt = u.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toCredentialResponse(cred *webauthn.Credential) CredentialResponse {
	resp := CredentialResponse{
		ID:        base64.RawURLEncoding.EncodeToString(cred.ID),
		Label:     cred.Label,
		SignCount: cred.SignCount,
		CreatedAt: cred.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, t := range cred.Transport {
		resp.Transport = append(resp.Transport, string(t))
	}
	if cred.LastUsedAt != nil {
		resp.LastUsedAt = cred.LastUsedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
