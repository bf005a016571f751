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

package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xPOURY4/crypto-toolkit/pkg/user"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestIssuer(t *testing.T, ttl time.Duration) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(testSecret, "test", ttl)
	require.NoError(t, err)
	return issuer
}

func TestNewIssuerRejectsShortSecret(t *testing.T) {
	_, err := NewIssuer([]byte("too short"), "test", time.Minute)
	assert.Error(t, err)
}

func TestIssueAndValidate(t *testing.T) {
	issuer := newTestIssuer(t, 30*time.Minute)
	u := &user.User{ID: 7, Role: user.RoleAdmin}

	token, err := issuer.Issue(u)
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	claims, err := issuer.Validate(token)
	require.NoError(t, err)

	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, user.RoleAdmin, claims.Role)
}

func TestValidateExpired(t *testing.T) {
	issuer := newTestIssuer(t, 30*time.Minute)
	token, err := issuer.IssueWithTTL(&user.User{ID: 1, Role: user.RoleMember}, -time.Minute)
	require.NoError(t, err)

	_, err = issuer.Validate(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateWrongSecret(t *testing.T) {
	issuer := newTestIssuer(t, 30*time.Minute)
	other, err := NewIssuer([]byte("ffffffffffffffffffffffffffffffff"), "test", 30*time.Minute)
	require.NoError(t, err)

	token, err := issuer.Issue(&user.User{ID: 1, Role: user.RoleMember})
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.ErrorIs(t, err, ErrTokenSignatureInvalid)
}

func TestValidateMalformed(t *testing.T) {
	issuer := newTestIssuer(t, 30*time.Minute)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not a token"},
		{"truncated", "eyJhbGciOiJIUzI1NiJ9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Validate(tt.token)
			assert.ErrorIs(t, err, ErrTokenMalformed)
		})
	}
}

func TestValidateTamperedToken(t *testing.T) {
	issuer := newTestIssuer(t, 30*time.Minute)
	token, err := issuer.Issue(&user.User{ID: 9, Role: user.RoleMember})
	require.NoError(t, err)

	// Flip a character in the payload segment.
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	_, err = issuer.Validate(tampered)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenExpired)
}

func TestValidateWrongIssuer(t *testing.T) {
	a := newTestIssuer(t, 30*time.Minute)
	b, err := NewIssuer(testSecret, "other", 30*time.Minute)
	require.NoError(t, err)

	token, err := b.Issue(&user.User{ID: 1, Role: user.RoleMember})
	require.NoError(t, err)

	_, err = a.Validate(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}
