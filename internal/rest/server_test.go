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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xPOURY4/crypto-toolkit/pkg/ratelimit"
	"github.com/xPOURY4/crypto-toolkit/pkg/session"
	"github.com/xPOURY4/crypto-toolkit/pkg/user"
	"github.com/xPOURY4/crypto-toolkit/pkg/webauthn"
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

type serverEnv struct {
	server *Server
	users  *user.MemoryStore
	rp     virtualwebauthn.RelyingParty
}

type serverOptions struct {
	limiter   *ratelimit.Limiter
	readiness func(context.Context) error
}

func newServerEnv(t *testing.T, opts serverOptions) *serverEnv {
	t.Helper()

	users := user.NewMemoryStore()

	cfg := &webauthn.Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}
	svc, err := webauthn.NewService(webauthn.ServiceParams{
		Config:      cfg,
		Users:       users,
		Credentials: webauthn.NewMemoryCredentialStore(),
		Challenges:  webauthn.NewMemoryChallengeStore(),
	})
	require.NoError(t, err)

	issuer, err := session.NewIssuer([]byte(testSessionSecret), "crypto-toolkit", 30*time.Minute)
	require.NoError(t, err)

	srv, err := NewServer(&Config{
		Port:      8443,
		Users:     users,
		WebAuthn:  svc,
		Sessions:  issuer,
		Limiter:   opts.limiter,
		Readiness: opts.readiness,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	return &serverEnv{
		server: srv,
		users:  users,
		rp: virtualwebauthn.RelyingParty{
			Name:   cfg.RPDisplayName,
			ID:     cfg.RPID,
			Origin: cfg.RPOrigins[0],
		},
	}
}

// do executes a request against the server handler. A non-nil body is
// JSON-encoded; extra headers and an optional bearer token are applied.
func (env *serverEnv) do(t *testing.T, method, path string, body interface{}, token string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:50000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

// registerAndLogin creates an account over the API and returns its
// bearer token.
func (env *serverEnv) registerAndLogin(t *testing.T, email, pass string) string {
	t.Helper()

	rec := env.do(t, "POST", "/api/v1/auth/register", RegisterRequest{
		Email:    email,
		FullName: "Test User",
		Password: pass,
	}, "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, "POST", "/api/v1/auth/login", LoginRequest{Email: email, Password: pass}, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealthEndpoints(t *testing.T) {
	env := newServerEnv(t, serverOptions{})

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := env.do(t, "GET", path, nil, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestReadinessFailure(t *testing.T) {
	env := newServerEnv(t, serverOptions{
		readiness: func(context.Context) error { return errors.New("db down") },
	})

	rec := env.do(t, "GET", "/health/ready", nil, "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// Liveness stays green even when dependencies fail
	rec = env.do(t, "GET", "/health/live", nil, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterAndPasswordLogin(t *testing.T) {
	env := newServerEnv(t, serverOptions{})

	rec := env.do(t, "POST", "/api/v1/auth/register", RegisterRequest{
		Email:    "alice@example.com",
		FullName: "Alice",
		Password: "correct horse battery",
	}, "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Registration signs the account in: the response carries a token
	var created TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Bearer", created.TokenType)
	assert.NotEmpty(t, created.Token)
	assert.Equal(t, "alice@example.com", created.User.Email)
	assert.Equal(t, "member", created.User.Role)
	assert.True(t, created.User.Active)

	rec = env.do(t, "GET", "/api/v1/me", nil, created.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "POST", "/api/v1/auth/login", LoginRequest{
		Email:    "alice@example.com",
		Password: "correct horse battery",
	}, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var token TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
	assert.Equal(t, "Bearer", token.TokenType)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, created.User.ID, token.User.ID)
	assert.NotEmpty(t, token.User.LastLoginAt)
}

func TestRegisterValidation(t *testing.T) {
	env := newServerEnv(t, serverOptions{})

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed body", "{not json"},
		{"missing email", RegisterRequest{Password: "long enough password"}},
		{"invalid email", RegisterRequest{Email: "nobody", Password: "long enough password"}},
		{"short password", RegisterRequest{Email: "a@example.com", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/api/v1/auth/register", tt.body, "", nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newServerEnv(t, serverOptions{})

	req := RegisterRequest{Email: "alice@example.com", Password: "long enough password"}
	rec := env.do(t, "POST", "/api/v1/auth/register", req, "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, "POST", "/api/v1/auth/register", req, "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPasswordLoginRejections(t *testing.T) {
	env := newServerEnv(t, serverOptions{})
	env.registerAndLogin(t, "alice@example.com", "correct horse battery")

	tests := []struct {
		name string
		req  LoginRequest
	}{
		{"wrong password", LoginRequest{Email: "alice@example.com", Password: "wrong password!"}},
		{"unknown email", LoginRequest{Email: "ghost@example.com", Password: "correct horse battery"}},
	}

	var bodies []string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/api/v1/auth/login", tt.req, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			bodies = append(bodies, rec.Body.String())
		})
	}

	// Unknown accounts and wrong passwords are indistinguishable
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
}

func TestInactiveAccountCannotLogin(t *testing.T) {
	env := newServerEnv(t, serverOptions{})
	env.registerAndLogin(t, "alice@example.com", "correct horse battery")

	account, err := env.users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	account.Active = false
	require.NoError(t, env.users.Update(context.Background(), account))

	rec := env.do(t, "POST", "/api/v1/auth/login", LoginRequest{
		Email:    "alice@example.com",
		Password: "correct horse battery",
	}, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeEndpoint(t *testing.T) {
	env := newServerEnv(t, serverOptions{})
	token := env.registerAndLogin(t, "alice@example.com", "correct horse battery")

	rec := env.do(t, "GET", "/api/v1/me", nil, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var me UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "alice@example.com", me.Email)
}

func TestAuthenticationRejections(t *testing.T) {
	env := newServerEnv(t, serverOptions{})
	env.registerAndLogin(t, "alice@example.com", "correct horse battery")

	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		{"not a bearer token", "Basic YWxpY2U6cHc="},
		{"garbage token", "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			rec := env.do(t, "GET", "/api/v1/me", nil, "", headers)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestTokenForDeactivatedUserRejected(t *testing.T) {
	env := newServerEnv(t, serverOptions{})
	token := env.registerAndLogin(t, "alice@example.com", "correct horse battery")

	account, err := env.users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	account.Active = false
	require.NoError(t, env.users.Update(context.Background(), account))

	rec := env.do(t, "GET", "/api/v1/me", nil, token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminEndpointRequiresRole(t *testing.T) {
	env := newServerEnv(t, serverOptions{})
	token := env.registerAndLogin(t, "alice@example.com", "correct horse battery")

	rec := env.do(t, "GET", "/api/v1/admin/users", nil, token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Promote and retry
	account, err := env.users.GetByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	account.Role = user.RoleAdmin
	require.NoError(t, env.users.Update(context.Background(), account))

	rec = env.do(t, "GET", "/api/v1/admin/users", nil, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UserListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
}

func TestPublicEndpointsRateLimited(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{
		Enabled:           true,
		RequestsPerMinute: 60,
		Burst:             2,
	})
	defer limiter.Stop()

	env := newServerEnv(t, serverOptions{limiter: limiter})

	body := LoginRequest{Email: "ghost@example.com", Password: "whatever password"}
	for i := 0; i < 2; i++ {
		rec := env.do(t, "POST", "/api/v1/auth/login", body, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := env.do(t, "POST", "/api/v1/auth/login", body, "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Authenticated routes are not throttled by the public limiter
	rec = env.do(t, "GET", "/health", nil, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewServerValidation(t *testing.T) {
	env := newServerEnv(t, serverOptions{})

	issuer, err := session.NewIssuer([]byte(testSessionSecret), "crypto-toolkit", time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"missing users", &Config{WebAuthn: env.server.webauthn, Sessions: issuer}},
		{"missing webauthn", &Config{Users: env.users, Sessions: issuer}},
		{"missing sessions", &Config{Users: env.users, WebAuthn: env.server.webauthn}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServer(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestCORSPreflght(t *testing.T) {
	env := newServerEnv(t, serverOptions{})

	rec := env.do(t, "OPTIONS", "/api/v1/auth/login", nil, "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), ChallengeHeader)
}
