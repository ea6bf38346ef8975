// ABOUTME: Tests for ban rule persistence
// ABOUTME: Covers duplicate detection, listing, and the IsBanned lookup

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanStore_CreateAndLookup(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	rule := &BanRule{
		Kind:      BanKindIP,
		Value:     "203.0.113.7",
		Reason:    "flooding",
		CreatedBy: "admin-1",
	}
	require.NoError(t, store.CreateBanRule(ctx, rule))
	require.NotEmpty(t, rule.ID)

	banned, err := store.IsBanned(ctx, BanKindIP, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, banned)

	banned, err = store.IsBanned(ctx, BanKindIP, "203.0.113.8")
	require.NoError(t, err)
	assert.False(t, banned)

	// Same value under a different kind is not banned.
	banned, err = store.IsBanned(ctx, BanKindEventType, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, banned)
}

func TestBanStore_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateBanRule(ctx, &BanRule{Kind: BanKindEventType, Value: "spam.event"}))

	err := store.CreateBanRule(ctx, &BanRule{Kind: BanKindEventType, Value: "spam.event"})
	assert.ErrorIs(t, err, ErrBanExists)
}

func TestBanStore_ZonedCreatedAtOrdersCorrectly(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	east := time.FixedZone("UTC+10", 10*60*60)
	base := time.Now().UTC()
	require.NoError(t, store.CreateBanRule(ctx, &BanRule{
		Kind: BanKindIP, Value: "198.51.100.2", CreatedAt: base.Add(-time.Hour).In(east),
	}))
	require.NoError(t, store.CreateBanRule(ctx, &BanRule{
		Kind: BanKindIP, Value: "198.51.100.3", CreatedAt: base,
	}))

	// Newest first regardless of the zone the caller supplied.
	rules, err := store.ListBanRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "198.51.100.3", rules[0].Value)
	assert.Equal(t, "198.51.100.2", rules[1].Value)
}

func TestBanStore_ListAndDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateBanRule(ctx, &BanRule{Kind: BanKindIP, Value: "198.51.100.1"}))
	require.NoError(t, store.CreateBanRule(ctx, &BanRule{Kind: BanKindEndpoint, Value: "ep-9"}))

	rules, err := store.ListBanRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	require.NoError(t, store.DeleteBanRule(ctx, rules[0].ID))

	rules, err = store.ListBanRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 1)

	assert.ErrorIs(t, store.DeleteBanRule(ctx, "missing"), ErrNotFound)
}
