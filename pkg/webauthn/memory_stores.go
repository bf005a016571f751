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
	"encoding/hex"
	"sync"
	"time"
)

// MemoryChallengeStore is an in-memory implementation of ChallengeStore.
// This is intended for development and testing only.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]*Challenge),
	}
}

// Save persists a freshly issued challenge.
func (s *MemoryChallengeStore) Save(_ context.Context, ch *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ch
	s.challenges[ch.ID] = &cp
	return nil
}

// Consume atomically marks the challenge consumed under the store lock.
// The entry is kept so duplicate submissions classify as consumed
// rather than not found.
func (s *MemoryChallengeStore) Consume(_ context.Context, id string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.challenges[id]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	if ch.Consumed {
		return nil, ErrChallengeConsumed
	}
	if time.Now().After(ch.ExpiresAt) {
		return nil, ErrChallengeExpired
	}

	ch.Consumed = true
	cp := *ch
	return &cp, nil
}

// DeleteExpired removes challenges past their expiry.
func (s *MemoryChallengeStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var removed int64
	for id, ch := range s.challenges {
		if now.After(ch.ExpiresAt) {
			delete(s.challenges, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of stored challenges.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}

// MemoryCredentialStore is an in-memory implementation of CredentialStore.
// This is intended for development and testing only.
type MemoryCredentialStore struct {
	mu       sync.RWMutex
	byID     map[string]*Credential
	byUserID map[int64][]string
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byID:     make(map[string]*Credential),
		byUserID: make(map[int64][]string),
	}
}

// Save stores a new credential.
func (s *MemoryCredentialStore) Save(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(cred.ID)
	if _, ok := s.byID[key]; ok {
		return ErrCredentialExists
	}

	cp := *cred
	s.byID[key] = &cp
	s.byUserID[cred.UserID] = append(s.byUserID[cred.UserID], key)
	return nil
}

// GetByCredentialID retrieves a credential by its ID.
func (s *MemoryCredentialStore) GetByCredentialID(_ context.Context, credID []byte) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.byID[hex.EncodeToString(credID)]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	cp := *cred
	return &cp, nil
}

// GetByUserID retrieves all credentials owned by a user.
func (s *MemoryCredentialStore) GetByUserID(_ context.Context, userID int64) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byUserID[userID]
	creds := make([]*Credential, 0, len(keys))
	for _, key := range keys {
		cp := *s.byID[key]
		creds = append(creds, &cp)
	}
	return creds, nil
}

// UpdateSignCount advances the stored counter, rejecting any value that
// does not strictly increase it.
func (s *MemoryCredentialStore) UpdateSignCount(_ context.Context, credID []byte, signCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[hex.EncodeToString(credID)]
	if !ok {
		return ErrCredentialNotFound
	}
	if cred.SignCount >= signCount {
		return ErrCounterRegression
	}

	now := time.Now().UTC()
	cred.SignCount = signCount
	cred.UpdatedAt = now
	cred.LastUsedAt = &now
	return nil
}

// Delete removes a credential by its ID.
func (s *MemoryCredentialStore) Delete(_ context.Context, credID []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(credID)
	cred, ok := s.byID[key]
	if !ok {
		return ErrCredentialNotFound
	}

	delete(s.byID, key)
	keys := s.byUserID[cred.UserID]
	for i, k := range keys {
		if k == key {
			s.byUserID[cred.UserID] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteByUserID removes all credentials owned by a user.
func (s *MemoryCredentialStore) DeleteByUserID(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.byUserID[userID] {
		delete(s.byID, key)
	}
	delete(s.byUserID, userID)
	return nil
}

// Count returns the total number of credentials in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
