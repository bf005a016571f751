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

package user

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when the requested user does not exist.
	ErrNotFound = errors.New("user: not found")

	// ErrDuplicateEmail is returned when creating a user with an email
	// that is already registered.
	ErrDuplicateEmail = errors.New("user: email already registered")
)

// Store persists platform accounts.
type Store interface {
	// Create persists a new user and assigns its ID.
	Create(ctx context.Context, u *User) error

	// GetByID returns the user with the given ID.
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByEmail returns the user with the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// List returns all users ordered by ID.
	List(ctx context.Context) ([]*User, error)

	// Update persists changes to an existing user.
	Update(ctx context.Context, u *User) error

	// TouchLastLogin records a successful sign-in time.
	TouchLastLogin(ctx context.Context, id int64) error
}
