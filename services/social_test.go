package services

import (
	"context"
	"testing"

	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFollow(t *testing.T) {
	store := testutil.NewStore(t, nil, nil)
	ctx := context.Background()
	social := NewSocialService(store, zap.NewNop())
	citizen := testutil.SeedProfile(t, store, "u1", model.RoleCitizen)
	testutil.SeedProfile(t, store, "mayor", model.RoleOfficial)

	assert.ErrorIs(t, social.Follow(ctx, nil, "mayor"), ErrNotAuthenticated)
	assert.ErrorIs(t, social.Follow(ctx, citizen, "u1"), ErrSelfFollow)
	assert.ErrorIs(t, social.Follow(ctx, citizen, "missing"), ErrNotFound)

	require.NoError(t, social.Follow(ctx, citizen, "mayor"))
	require.NoError(t, social.Follow(ctx, citizen, "mayor"))

	ids, err := social.FollowingIds(ctx, citizen)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "mayor"}, ids)

	notifications, err := social.Notifications(ctx, &model.Profile{Id: "mayor"}, true)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, model.NotificationFollow, notifications[0].Kind)

	require.NoError(t, social.Unfollow(ctx, citizen, "mayor"))
	following, err := social.Following(ctx, citizen)
	require.NoError(t, err)
	assert.Empty(t, following)
}

func TestMarkRead(t *testing.T) {
	store := testutil.NewStore(t, nil, nil)
	ctx := context.Background()
	social := NewSocialService(store, zap.NewNop())
	mayor := testutil.SeedProfile(t, store, "mayor", model.RoleOfficial)
	for _, id := range []string{"u1", "u2"} {
		follower := testutil.SeedProfile(t, store, id, model.RoleCitizen)
		require.NoError(t, social.Follow(ctx, follower, "mayor"))
	}

	unread, err := social.Notifications(ctx, mayor, true)
	require.NoError(t, err)
	require.Len(t, unread, 2)

	require.NoError(t, social.MarkRead(ctx, mayor, []string{unread[0].Id}))
	unread, err = social.Notifications(ctx, mayor, true)
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	require.NoError(t, social.MarkRead(ctx, mayor, nil))
	unread, err = social.Notifications(ctx, mayor, true)
	require.NoError(t, err)
	assert.Empty(t, unread)

	all, err := social.Notifications(ctx, mayor, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
