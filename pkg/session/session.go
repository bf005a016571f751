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

// Package session issues and validates signed session tokens. Tokens
// are HS256 JWTs carrying the account ID as subject plus the role, and
// are only accepted while unexpired and signed with the service secret.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xPOURY4/crypto-toolkit/pkg/user"
)

var (
	// ErrTokenMalformed is returned when the token is not a parseable JWT.
	ErrTokenMalformed = errors.New("session: token malformed")

	// ErrTokenSignatureInvalid is returned when the token signature does
	// not verify against the service secret.
	ErrTokenSignatureInvalid = errors.New("session: token signature invalid")

	// ErrTokenExpired is returned when the token is past its expiry.
	ErrTokenExpired = errors.New("session: token expired")
)

// MinSecretLength is the minimum accepted signing secret size in bytes.
const MinSecretLength = 32

// Claims are the claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	Role user.Role `json:"role"`
}

// UserID returns the account ID encoded in the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTokenMalformed
	}
	return id, nil
}

// Issuer issues and validates session tokens for authenticated users.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewIssuer creates a token issuer. The secret must be externally
// supplied and at least MinSecretLength bytes; there is no generated
// fallback, since a per-process random secret would silently invalidate
// every session on restart and break multi-instance deployments.
func NewIssuer(secret []byte, issuer string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session: secret must be at least %d bytes", MinSecretLength)
	}
	if issuer == "" {
		issuer = "crypto-toolkit"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a signed session token for the user.
func (i *Issuer) Issue(u *user.User) (string, error) {
	return i.IssueWithTTL(u, i.ttl)
}

// IssueWithTTL creates a signed session token with an explicit lifetime.
func (i *Issuer) IssueWithTTL(u *user.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: u.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a session token, returning its claims.
// Failures map to exactly one of ErrTokenMalformed,
// ErrTokenSignatureInvalid, or ErrTokenExpired.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignatureInvalid
		default:
			return nil, ErrTokenMalformed
		}
	}

	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
