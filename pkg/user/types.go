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

// Package user provides the platform's identity model. Users sign in
// with a password or a registered WebAuthn credential and are granted
// access based on their role.
package user

import (
	"encoding/binary"
	"errors"
	"time"
)

// Role represents a user's role for access control.
type Role string

const (
	// RoleMember is the default role for self-registered accounts.
	RoleMember Role = "member"
	// RoleAdmin can manage other users and their credentials.
	RoleAdmin Role = "admin"
)

// roleRank orders roles for privilege comparison.
var roleRank = map[Role]int{
	RoleMember: 1,
	RoleAdmin:  2,
}

// IsValidRole checks if a role string is a valid Role.
func IsValidRole(role Role) bool {
	_, ok := roleRank[role]
	return ok
}

// Requires reports whether role meets or exceeds the minimum role.
// Unknown roles never satisfy any requirement.
func Requires(role, minimum Role) bool {
	r, ok := roleRank[role]
	if !ok {
		return false
	}
	m, ok := roleRank[minimum]
	if !ok {
		return false
	}
	return r >= m
}

// User represents a platform account.
type User struct {
	// ID is the unique numeric identifier for the user.
	ID int64 `json:"id"`

	// Email is the user's login name (unique).
	Email string `json:"email"`

	// FullName is the human-readable name for display.
	FullName string `json:"full_name"`

	// Role defines the user's access level.
	Role Role `json:"role"`

	// PasswordHash is the encoded Argon2id hash of the user's password.
	// Empty for accounts that only authenticate with WebAuthn.
	PasswordHash string `json:"-"`

	// Active indicates if the account may sign in.
	Active bool `json:"active"`

	// CreatedAt is when the account was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the account was last modified.
	UpdatedAt time.Time `json:"updated_at"`

	// LastLoginAt is the last successful sign-in time.
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// ErrInvalidHandle is returned when a WebAuthn user handle cannot be
// mapped back to an account identifier.
var ErrInvalidHandle = errors.New("user: invalid user handle")

// Handle returns the user's WebAuthn user handle, the big-endian
// encoding of the account ID. Handles are stable for the lifetime of
// the account.
func (u *User) Handle() []byte {
	h := make([]byte, 8)
	binary.BigEndian.PutUint64(h, uint64(u.ID))
	return h
}

// ParseHandle decodes a WebAuthn user handle back into an account ID.
func ParseHandle(handle []byte) (int64, error) {
	if len(handle) != 8 {
		return 0, ErrInvalidHandle
	}
	id := int64(binary.BigEndian.Uint64(handle))
	if id <= 0 {
		return 0, ErrInvalidHandle
	}
	return id, nil
}

// HasRole checks if the user has the specified role.
func (u *User) HasRole(role Role) bool {
	return u.Role == role
}

// IsAdmin checks if the user has admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanManageUsers checks if the user can view or modify other accounts.
func (u *User) CanManageUsers() bool {
	return u.Active && u.Role == RoleAdmin
}
