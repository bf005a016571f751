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
	"context"
	"net/http"
	"strings"

	"github.com/xPOURY4/crypto-toolkit/pkg/user"
)

type contextKey string

const identityContextKey contextKey = "identity"

// IdentityFromContext returns the authenticated user stored by
// AuthenticationMiddleware, or nil when the request is anonymous.
func IdentityFromContext(ctx context.Context) *user.User {
	identity, _ := ctx.Value(identityContextKey).(*user.User)
	return identity
}

// withIdentity returns a context carrying the authenticated user.
func withIdentity(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, identityContextKey, u)
}

// AuthenticationMiddleware validates the bearer token and loads the
// authenticated user into the request context. Token validation
// failures are reported uniformly so the response does not reveal
// which check rejected the token.
func (s *Server) AuthenticationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, ErrUnauthorized, http.StatusUnauthorized)
				return
			}

			claims, err := s.sessions.Validate(token)
			if err != nil {
				s.logger.Debug("Token rejected", "error", err)
				writeError(w, ErrUnauthorized, http.StatusUnauthorized)
				return
			}

			userID, err := claims.UserID()
			if err != nil {
				writeError(w, ErrUnauthorized, http.StatusUnauthorized)
				return
			}

			account, err := s.users.GetByID(r.Context(), userID)
			if err != nil || !account.Active {
				writeError(w, ErrUnauthorized, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), account)))
		})
	}
}

// RequireRole returns a middleware that rejects requests whose
// authenticated user does not hold at least the given role. It must be
// mounted after AuthenticationMiddleware.
func RequireRole(minimum user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := IdentityFromContext(r.Context())
			if identity == nil {
				writeError(w, ErrUnauthorized, http.StatusUnauthorized)
				return
			}
			if !user.Requires(identity.Role, minimum) {
				writeError(w, ErrForbidden, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
