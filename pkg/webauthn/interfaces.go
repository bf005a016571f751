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

package webauthn

import (
	"context"
)

// CredentialStore persists registered credentials.
type CredentialStore interface {
	// Save stores a new credential. Fails with ErrCredentialExists when
	// the credential ID is already registered.
	Save(ctx context.Context, cred *Credential) error

	// GetByCredentialID retrieves a credential by its ID.
	GetByCredentialID(ctx context.Context, credID []byte) (*Credential, error)

	// GetByUserID retrieves all credentials owned by a user.
	GetByUserID(ctx context.Context, userID int64) ([]*Credential, error)

	// UpdateSignCount advances the stored signature counter to signCount
	// as a single compare-and-set: the update only applies while the
	// stored counter is strictly less than signCount. Fails with
	// ErrCounterRegression otherwise, and ErrCredentialNotFound when the
	// credential does not exist.
	UpdateSignCount(ctx context.Context, credID []byte, signCount uint32) error

	// Delete removes a credential by its ID.
	Delete(ctx context.Context, credID []byte) error

	// DeleteByUserID removes all credentials owned by a user.
	DeleteByUserID(ctx context.Context, userID int64) error
}
