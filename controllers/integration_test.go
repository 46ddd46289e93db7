package controllers

import (
	"context"
	"testing"
	"time"

	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/civicconnect/civic-connect-be/services"
	"github.com/civicconnect/civic-connect-be/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type liveFeed struct {
	controller *FeedController
	posts      *services.PostService
	polls      *services.PollService
	author     *model.Profile
	replier    *model.Profile
}

// newLiveFeed wires a controller to an in-memory store whose mutations are
// published through a local broker
func newLiveFeed(t *testing.T) *liveFeed {
	t.Helper()
	broker := realtime.NewLocalBroker()
	store := testutil.NewStore(t, broker, nil)
	logger := zap.NewNop()

	mux := realtime.NewMultiplexer(broker, logger)
	t.Cleanup(mux.Close)
	posts := services.NewPostService(store, logger, nil)
	polls := services.NewPollService(store, logger)
	controller := NewFeedController(posts, polls, mux, logger, &FeedControllerOpts{DebounceDelay: 20 * time.Millisecond})
	t.Cleanup(controller.Close)
	controller.Start(context.Background())

	return &liveFeed{
		controller: controller,
		posts:      posts,
		polls:      polls,
		author:     testutil.SeedProfile(t, store, "u1", model.RoleCitizen),
		replier:    testutil.SeedProfile(t, store, "u2", model.RoleOfficial),
	}
}

func TestEmergencyPostShowsUpInAnalytics(t *testing.T) {
	live := newLiveFeed(t)
	ctx := context.Background()
	_, err := live.posts.CreatePost(ctx, live.author, &services.NewPost{Content: "Potholes everywhere", Category: model.CategoryGeneral})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(live.controller.Posts()) == 1 }, time.Second, 10*time.Millisecond)
	before := live.controller.Analytics()

	_, err = live.posts.CreatePost(ctx, live.author, &services.NewPost{
		Content:  "Gas leak on Elm street, evacuate",
		Category: model.CategoryEmergency,
		PostType: model.PostTypeEmergency,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(live.controller.Posts()) == 2 }, time.Second, 10*time.Millisecond)
	after := live.controller.Analytics()
	assert.Equal(t, before.TotalPosts+1, after.TotalPosts)
	assert.Equal(t, before.CategoryStats[model.CategoryEmergency]+1, after.CategoryStats[model.CategoryEmergency])
	assert.Equal(t, model.CategoryEmergency, live.controller.Feed()[0].Post.Category)
}

func TestReplyAttachesToParent(t *testing.T) {
	live := newLiveFeed(t)
	ctx := context.Background()
	parent, err := live.posts.CreatePost(ctx, live.author, &services.NewPost{Content: "Bus 12 is always late"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return live.controller.Post(parent.Id) != nil }, time.Second, 10*time.Millisecond)
	require.Empty(t, live.controller.Post(parent.Id).Replies)

	_, err = live.posts.CreateReply(ctx, live.replier, parent.Id, "We are adding a second bus next month")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		post := live.controller.Post(parent.Id)
		return post != nil && len(post.Replies) == 1
	}, time.Second, 10*time.Millisecond)
	post := live.controller.Post(parent.Id)
	assert.Equal(t, len(post.Replies), post.ReplyCount)
	assert.Equal(t, model.RoleOfficial, post.Replies[0].Author.Role)
	assert.Len(t, live.controller.Posts(), 1)
}

func TestVoteRefreshesPolls(t *testing.T) {
	live := newLiveFeed(t)
	ctx := context.Background()
	poll, err := live.polls.CreatePoll(ctx, live.replier, &services.NewPoll{Question: "Extend library hours?", Options: []string{"Yes", "No"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(live.controller.Polls()) == 1 }, time.Second, 10*time.Millisecond)

	_, err = live.polls.SubmitVote(ctx, live.author, poll.Id, poll.Options[0].Id)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		polls := live.controller.Polls()
		return len(polls) == 1 && polls[0].TotalVotes == 1
	}, time.Second, 10*time.Millisecond)

	_, err = live.polls.SubmitVote(ctx, live.author, poll.Id, poll.Options[1].Id)
	assert.ErrorIs(t, err, services.ErrAlreadyVoted)
}
