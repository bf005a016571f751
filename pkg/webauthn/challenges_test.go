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
	"sync"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession() *webauthn.SessionData {
	return &webauthn.SessionData{
		Challenge: "dGVzdC1jaGFsbGVuZ2UtdmFsdWUtMzItYnl0ZXMhIQ",
		UserID:    []byte{0, 0, 0, 0, 0, 0, 0, 1},
	}
}

func TestChallengeManagerIssueAndConsume(t *testing.T) {
	ctx := context.Background()
	mgr := NewChallengeManager(NewMemoryChallengeStore(), time.Minute)

	ch, err := mgr.Issue(ctx, 1, CeremonyRegistration, testSession())
	require.NoError(t, err)
	require.NotEmpty(t, ch.ID)
	assert.Equal(t, int64(1), ch.UserID)
	assert.Equal(t, CeremonyRegistration, ch.Ceremony)
	assert.False(t, ch.Consumed)
	assert.True(t, ch.ExpiresAt.After(ch.IssuedAt))

	consumed, err := mgr.Consume(ctx, ch.ID, 1, CeremonyRegistration)
	require.NoError(t, err)
	assert.True(t, consumed.Consumed)
	assert.Equal(t, ch.Session.Challenge, consumed.Session.Challenge)
}

func TestChallengeManagerConsumeOnce(t *testing.T) {
	ctx := context.Background()
	mgr := NewChallengeManager(NewMemoryChallengeStore(), time.Minute)

	ch, err := mgr.Issue(ctx, 1, CeremonyAuthentication, testSession())
	require.NoError(t, err)

	_, err = mgr.Consume(ctx, ch.ID, 1, CeremonyAuthentication)
	require.NoError(t, err)

	_, err = mgr.Consume(ctx, ch.ID, 1, CeremonyAuthentication)
	assert.ErrorIs(t, err, ErrChallengeConsumed)
}

func TestChallengeManagerConsumeUnknown(t *testing.T) {
	ctx := context.Background()
	mgr := NewChallengeManager(NewMemoryChallengeStore(), time.Minute)

	_, err := mgr.Consume(ctx, "no-such-challenge", 1, CeremonyRegistration)
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	_, err = mgr.Consume(ctx, "", 1, CeremonyRegistration)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func expiredChallenge(id string, userID int64, ceremony Ceremony) *Challenge {
	now := time.Now().UTC()
	return &Challenge{
		ID:        id,
		UserID:    userID,
		Ceremony:  ceremony,
		Session:   *testSession(),
		IssuedAt:  now.Add(-10 * time.Minute),
		ExpiresAt: now.Add(-5 * time.Minute),
	}
}

func TestChallengeManagerConsumeExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()
	mgr := NewChallengeManager(store, time.Minute)

	require.NoError(t, store.Save(ctx, expiredChallenge("stale", 1, CeremonyRegistration)))

	_, err := mgr.Consume(ctx, "stale", 1, CeremonyRegistration)
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestChallengeManagerZeroTTLFallsBack(t *testing.T) {
	mgr := NewChallengeManager(NewMemoryChallengeStore(), 0)
	assert.Equal(t, DefaultChallengeTTL, mgr.TTL())
}

func TestChallengeManagerBindingMismatch(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		userID   int64
		ceremony Ceremony
	}{
		{"wrong user", 2, CeremonyRegistration},
		{"wrong ceremony", 1, CeremonyAuthentication},
		{"wrong user and ceremony", 2, CeremonyAuthentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewChallengeManager(NewMemoryChallengeStore(), time.Minute)
			ch, err := mgr.Issue(ctx, 1, CeremonyRegistration, testSession())
			require.NoError(t, err)

			_, err = mgr.Consume(ctx, ch.ID, tt.userID, tt.ceremony)
			assert.ErrorIs(t, err, ErrChallengeNotFound)

			// The mismatch still consumed the challenge: a verification
			// attempt is terminal regardless of outcome.
			_, err = mgr.Consume(ctx, ch.ID, 1, CeremonyRegistration)
			assert.ErrorIs(t, err, ErrChallengeConsumed)
		})
	}
}

func TestChallengeConsumeConcurrent(t *testing.T) {
	ctx := context.Background()
	mgr := NewChallengeManager(NewMemoryChallengeStore(), time.Minute)

	ch, err := mgr.Issue(ctx, 1, CeremonyAuthentication, testSession())
	require.NoError(t, err)

	const attempts = 32
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.Consume(ctx, ch.ID, 1, CeremonyAuthentication)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, consumed int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case assert.ErrorIs(t, err, ErrChallengeConsumed):
			consumed++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent consume may win")
	assert.Equal(t, attempts-1, consumed)
}

func TestMemoryChallengeStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryChallengeStore()

	live := NewChallengeManager(store, time.Hour)
	_, err := live.Issue(ctx, 1, CeremonyRegistration, testSession())
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, expiredChallenge("stale-1", 1, CeremonyRegistration)))
	require.NoError(t, store.Save(ctx, expiredChallenge("stale-2", 2, CeremonyAuthentication)))

	removed, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, 1, store.Count())
}
