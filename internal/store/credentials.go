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

// CredentialStore is the Postgres implementation of
// webauthn.CredentialStore.
type CredentialStore struct {
	db *sql.DB
}

// NewCredentialStore creates a Postgres-backed credential repository.
func NewCredentialStore(db *sql.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

const credentialColumns = `credential_id, user_id, public_key, attestation_type, transport, flags, aaguid, label, sign_count, created_at, updated_at, last_used_at`

func scanCredential(row interface{ Scan(...any) error }) (*webauthn.Credential, error) {
	cred := &webauthn.Credential{}
	var transport, flags []byte
	var lastUsed sql.NullTime
	err := row.Scan(&cred.ID, &cred.UserID, &cred.PublicKey, &cred.AttestationType,
		&transport, &flags, &cred.AAGUID, &cred.Label, &cred.SignCount,
		&cred.CreatedAt, &cred.UpdatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	if len(transport) > 0 {
		if err := json.Unmarshal(transport, &cred.Transport); err != nil {
			return nil, fmt.Errorf("decoding transport: %w", err)
		}
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &cred.Flags); err != nil {
			return nil, fmt.Errorf("decoding flags: %w", err)
		}
	}
	if lastUsed.Valid {
		cred.LastUsedAt = &lastUsed.Time
	}
	return cred, nil
}

// Save stores a new credential.
func (s *CredentialStore) Save(ctx context.Context, cred *webauthn.Credential) error {
	transport, err := json.Marshal(cred.Transport)
	if err != nil {
		return fmt.Errorf("encoding transport: %w", err)
	}
	flags, err := json.Marshal(cred.Flags)
	if err != nil {
		return fmt.Errorf("encoding flags: %w", err)
	}

	query := `INSERT INTO webauthn_credentials
	          (credential_id, user_id, public_key, attestation_type, transport, flags, aaguid, label, sign_count, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.db.ExecContext(ctx, query,
		cred.ID, cred.UserID, cred.PublicKey, cred.AttestationType,
		transport, flags, cred.AAGUID, cred.Label, int64(cred.SignCount),
		cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return webauthn.ErrCredentialExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetByCredentialID retrieves a credential by its ID.
func (s *CredentialStore) GetByCredentialID(ctx context.Context, credID []byte) (*webauthn.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM webauthn_credentials WHERE credential_id = $1`

	cred, err := scanCredential(s.db.QueryRowContext(ctx, query, credID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webauthn.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return cred, nil
}

// GetByUserID retrieves all credentials owned by a user.
func (s *CredentialStore) GetByUserID(ctx context.Context, userID int64) ([]*webauthn.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM webauthn_credentials WHERE user_id = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	creds := []*webauthn.Credential{}
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return creds, nil
}

// UpdateSignCount advances the stored counter as a single
// compare-and-set. The guard in the WHERE clause makes concurrent
// updates race safely: a counter that does not strictly increase never
// writes.
func (s *CredentialStore) UpdateSignCount(ctx context.Context, credID []byte, signCount uint32) error {
	query := `UPDATE webauthn_credentials
	          SET sign_count = $2, updated_at = now(), last_used_at = now()
	          WHERE credential_id = $1 AND sign_count < $2`

	res, err := s.db.ExecContext(ctx, query, credID, int64(signCount))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Zero rows: either the credential is gone or the counter did not
	// strictly increase.
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM webauthn_credentials WHERE credential_id = $1)`, credID).
		Scan(&exists)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return webauthn.ErrCredentialNotFound
	}
	return webauthn.ErrCounterRegression
}

// Delete removes a credential by its ID.
func (s *CredentialStore) Delete(ctx context.Context, credID []byte) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM webauthn_credentials WHERE credential_id = $1`, credID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return webauthn.ErrCredentialNotFound
	}
	return nil
}

// DeleteByUserID removes all credentials owned by a user.
func (s *CredentialStore) DeleteByUserID(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM webauthn_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
