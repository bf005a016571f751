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

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xPOURY4/crypto-toolkit/pkg/webauthn"
)

// ChallengeStore is the Postgres implementation of
// webauthn.ChallengeStore.
type ChallengeStore struct {
	db *sql.DB
}

// NewChallengeStore creates a Postgres-backed challenge repository.
func NewChallengeStore(db *sql.DB) *ChallengeStore {
	return &ChallengeStore{db: db}
}

// Save persists a pending challenge.
func (s *ChallengeStore) Save(ctx context.Context, ch *webauthn.Challenge) error {
	session, err := json.Marshal(ch.Session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	var userID sql.NullInt64
	if ch.UserID != 0 {
		userID = sql.NullInt64{Int64: ch.UserID, Valid: true}
	}

	query := `INSERT INTO webauthn_challenges
	          (id, user_id, ceremony, session_data, issued_at, expires_at, consumed)
	          VALUES ($1, $2, $3, $4, $5, $6, FALSE)`

	_, err = s.db.ExecContext(ctx, query,
		ch.ID, userID, string(ch.Ceremony), session, ch.IssuedAt, ch.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Consume atomically marks a challenge consumed and returns it. The
// conditional update is the single point of consumption: at most one
// caller ever gets the row back, all others are classified by a
// follow-up read.
func (s *ChallengeStore) Consume(ctx context.Context, id string) (*webauthn.Challenge, error) {
	query := `UPDATE webauthn_challenges
	          SET consumed = TRUE
	          WHERE id = $1 AND NOT consumed AND expires_at > now()
	          RETURNING user_id, ceremony, session_data, issued_at, expires_at`

	ch := &webauthn.Challenge{ID: id, Consumed: true}
	var userID sql.NullInt64
	var ceremony string
	var session []byte
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&userID, &ceremony, &session, &ch.IssuedAt, &ch.ExpiresAt)
	if err == nil {
		if userID.Valid {
			ch.UserID = userID.Int64
		}
		ch.Ceremony = webauthn.Ceremony(ceremony)
		if err := json.Unmarshal(session, &ch.Session); err != nil {
			return nil, fmt.Errorf("decoding session: %w", err)
		}
		return ch, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	// Zero rows: classify why the guarded update missed.
	var consumed bool
	var expired bool
	err = s.db.QueryRowContext(ctx,
		`SELECT consumed, expires_at <= now() FROM webauthn_challenges WHERE id = $1`, id).
		Scan(&consumed, &expired)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webauthn.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if consumed {
		return nil, webauthn.ErrChallengeConsumed
	}
	if expired {
		return nil, webauthn.ErrChallengeExpired
	}
	return nil, webauthn.ErrChallengeNotFound
}

// DeleteExpired removes challenges past their deadline and returns
// how many were purged.
func (s *ChallengeStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM webauthn_challenges WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}
