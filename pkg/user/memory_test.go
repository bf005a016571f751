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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	u := &User{Email: "alice@example.com", FullName: "Alice", Role: RoleMember, Active: true}
	require.NoError(t, store.Create(ctx, u))
	assert.Equal(t, int64(1), u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	byID, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)

	byEmail, err := store.GetByEmail(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
}

func TestMemoryStoreDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Create(ctx, &User{Email: "bob@example.com", Role: RoleMember}))
	err := store.Create(ctx, &User{Email: "BOB@example.com", Role: RoleMember})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.GetByID(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.TouchLastLogin(ctx, 99), ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, &User{ID: 99}), ErrNotFound)
}

func TestMemoryStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	u := &User{Email: "carol@example.com", FullName: "Carol", Role: RoleMember, Active: true}
	require.NoError(t, store.Create(ctx, u))

	u.FullName = "Carol Danvers"
	u.Role = RoleAdmin
	require.NoError(t, store.Update(ctx, u))

	got, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carol Danvers", got.FullName)
	assert.Equal(t, RoleAdmin, got.Role)
}

func TestMemoryStoreTouchLastLogin(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	u := &User{Email: "dave@example.com", Role: RoleMember}
	require.NoError(t, store.Create(ctx, u))
	require.NoError(t, store.TouchLastLogin(ctx, u.ID))

	got, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		require.NoError(t, store.Create(ctx, &User{Email: email, Role: RoleMember}))
	}

	users, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "a@x.com", users[0].Email)
	assert.Equal(t, "c@x.com", users[2].Email)
}
