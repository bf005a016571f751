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
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// Challenge is a single-use ceremony challenge. The random challenge
// value itself lives inside Session (32 bytes from a CSPRNG); the ID is
// an opaque reference handed to the client alongside the ceremony
// options.
type Challenge struct {
	// ID is the opaque reference for this challenge.
	ID string `json:"id"`

	// UserID is the account the challenge was issued for. Zero for
	// challenges not bound to an account.
	UserID int64 `json:"user_id"`

	// Ceremony is the ceremony type the challenge may be consumed for.
	Ceremony Ceremony `json:"ceremony"`

	// Session is the library session state, including the challenge
	// value the authenticator response must echo.
	Session webauthn.SessionData `json:"session"`

	// IssuedAt is when the challenge was created.
	IssuedAt time.Time `json:"issued_at"`

	// ExpiresAt is when the challenge stops being consumable.
	ExpiresAt time.Time `json:"expires_at"`

	// Consumed marks the challenge as terminally used.
	Consumed bool `json:"consumed"`
}

// ChallengeStore persists challenges. Consume must be atomic under
// concurrent access: of two simultaneous calls for the same ID, at most
// one succeeds.
type ChallengeStore interface {
	// Save persists a freshly issued challenge.
	Save(ctx context.Context, ch *Challenge) error

	// Consume atomically marks the challenge consumed and returns its
	// final state. Fails with ErrChallengeNotFound, ErrChallengeExpired,
	// or ErrChallengeConsumed.
	Consume(ctx context.Context, id string) (*Challenge, error)

	// DeleteExpired removes challenges past their expiry and returns how
	// many were removed. Purely housekeeping; expiry is already enforced
	// at consume time.
	DeleteExpired(ctx context.Context) (int64, error)
}

// ChallengeManager issues challenges and enforces their binding to a
// user and ceremony type at consume time.
type ChallengeManager struct {
	store ChallengeStore
	ttl   time.Duration
}

// NewChallengeManager creates a manager over the given store. A zero
// ttl falls back to DefaultChallengeTTL.
func NewChallengeManager(store ChallengeStore, ttl time.Duration) *ChallengeManager {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &ChallengeManager{store: store, ttl: ttl}
}

// Issue records a challenge for the given user and ceremony type. The
// session carries the library-generated random challenge value.
func (m *ChallengeManager) Issue(ctx context.Context, userID int64, ceremony Ceremony, session *webauthn.SessionData) (*Challenge, error) {
	now := time.Now().UTC()
	ch := &Challenge{
		ID:        uuid.NewString(),
		UserID:    userID,
		Ceremony:  ceremony,
		Session:   *session,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, ch); err != nil {
		return nil, WrapError("save challenge", err)
	}
	return ch, nil
}

// Consume atomically consumes the challenge and verifies it was issued
// for this user and ceremony type. A challenge is consumed even when
// the caller's subsequent verification fails; consumption is terminal.
// A binding mismatch reports ErrChallengeNotFound, since no live
// challenge matches the caller's claim.
func (m *ChallengeManager) Consume(ctx context.Context, id string, userID int64, ceremony Ceremony) (*Challenge, error) {
	if id == "" {
		return nil, ErrChallengeNotFound
	}
	ch, err := m.store.Consume(ctx, id)
	if err != nil {
		return nil, err
	}
	if ch.UserID != userID || ch.Ceremony != ceremony {
		return nil, ErrChallengeNotFound
	}
	return ch, nil
}

// TTL returns the configured challenge lifetime.
func (m *ChallengeManager) TTL() time.Duration {
	return m.ttl
}
