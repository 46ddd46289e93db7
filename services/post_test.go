package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/db/sqlstore"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPostService(t *testing.T) (*PostService, *sqlstore.Store) {
	t.Helper()
	store := testutil.NewStore(t, nil, nil)
	return NewPostService(store, zap.NewNop(), nil), store
}

func TestFetchPostsAndAttachReplies(t *testing.T) {
	posts, store := newPostService(t)
	ctx := context.Background()
	author := testutil.SeedProfile(t, store, "u1", model.RoleCitizen)
	replier := testutil.SeedProfile(t, store, "u2", model.RoleOfficial)

	older, err := posts.CreatePost(ctx, author, &NewPost{Content: "Pothole on 5th street", Category: model.CategoryGeneral})
	require.NoError(t, err)
	newer, err := posts.CreatePost(ctx, author, &NewPost{Content: "Water outage downtown", Category: model.CategoryHealth})
	require.NoError(t, err)
	reply, err := posts.CreateReply(ctx, replier, older.Id, "Crew dispatched")
	require.NoError(t, err)

	fetched, err := posts.FetchPosts(ctx)
	require.NoError(t, err)
	require.Len(t, fetched, 2)
	assert.Equal(t, newer.Id, fetched[0].Id)
	assert.Equal(t, older.Id, fetched[1].Id)
	require.NotNil(t, fetched[0].Author)
	assert.Equal(t, "User u1", fetched[0].Author.DisplayName)

	require.NoError(t, posts.AttachReplies(ctx, fetched))
	assert.Empty(t, fetched[0].Replies)
	assert.NotNil(t, fetched[0].Replies)
	assert.Equal(t, 0, fetched[0].ReplyCount)

	require.Len(t, fetched[1].Replies, 1)
	assert.Equal(t, reply.Id, fetched[1].Replies[0].Id)
	assert.Equal(t, older.Id, fetched[1].Replies[0].ParentId)
	assert.Equal(t, 1, fetched[1].ReplyCount)
	require.NotNil(t, fetched[1].Replies[0].Author)
	assert.Equal(t, model.RoleOfficial, fetched[1].Replies[0].Author.Role)
}

func TestAttachRepliesWithoutPosts(t *testing.T) {
	posts, _ := newPostService(t)
	assert.NoError(t, posts.AttachReplies(context.Background(), nil))
}

type failingJoinDB struct {
	appDb.Database
}

func (f *failingJoinDB) GetPostsWithAuthors(context.Context, *appDb.PostsQuery) ([]*model.Post, error) {
	return nil, errors.New("join not supported")
}

func TestFetchPostsFallsBackToAuthorLookups(t *testing.T) {
	store := testutil.NewStore(t, nil, nil)
	ctx := context.Background()
	author := testutil.SeedProfile(t, store, "u1", model.RoleOfficial)
	seeded := NewPostService(store, zap.NewNop(), nil)
	_, err := seeded.CreatePost(ctx, author, &NewPost{Content: "Road closed"})
	require.NoError(t, err)
	_, err = store.CreatePost(ctx, &appDb.CreatePost{AuthorId: "ghost", Content: "orphaned", Category: model.CategoryGeneral, PostType: model.PostTypeOpinion})
	require.NoError(t, err)

	posts := NewPostService(&failingJoinDB{store}, zap.NewNop(), nil)
	fetched, err := posts.FetchPosts(ctx)
	require.NoError(t, err)
	require.Len(t, fetched, 2)

	authors := map[string]*model.Author{}
	for _, post := range fetched {
		authors[post.AuthorId] = post.Author
	}
	require.NotNil(t, authors["u1"])
	assert.True(t, authors["u1"].IsVerified)
	assert.Nil(t, authors["ghost"])
}

type blockingDB struct {
	appDb.Database
	entered chan struct{}
	release chan struct{}
}

func (b *blockingDB) GetPostsWithAuthors(context.Context, *appDb.PostsQuery) ([]*model.Post, error) {
	b.entered <- struct{}{}
	<-b.release
	return []*model.Post{}, nil
}

func TestFetchPostsRejectsConcurrentFetch(t *testing.T) {
	db := &blockingDB{entered: make(chan struct{}), release: make(chan struct{})}
	posts := NewPostService(db, zap.NewNop(), nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := posts.FetchPosts(context.Background())
		assert.NoError(t, err)
	}()

	select {
	case <-db.entered:
	case <-time.After(time.Second):
		t.Fatal("first fetch never started")
	}
	_, err := posts.FetchPosts(context.Background())
	assert.ErrorIs(t, err, ErrFetchInProgress)

	close(db.release)
	wg.Wait()

	go func() { <-db.entered }()
	_, err = posts.FetchPosts(context.Background())
	assert.NoError(t, err)
}

func TestCreatePostValidation(t *testing.T) {
	posts, store := newPostService(t)
	author := testutil.SeedProfile(t, store, "u1", model.RoleCitizen)

	tests := []struct {
		name    string
		user    *model.Profile
		req     *NewPost
		wantErr error
	}{
		{"signed out", nil, &NewPost{Content: "hello"}, ErrNotAuthenticated},
		{"blank", author, &NewPost{Content: "   "}, ErrEmptyContent},
		{"only markup", author, &NewPost{Content: "<script>alert(1)</script>"}, ErrEmptyContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := posts.CreatePost(context.Background(), tt.user, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	long := make([]byte, MaxContentLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := posts.CreatePost(context.Background(), author, &NewPost{Content: string(long)})
	assert.ErrorIs(t, err, ErrContentTooLong)
}

func TestCreatePostNormalizesInput(t *testing.T) {
	posts, store := newPostService(t)
	author := testutil.SeedProfile(t, store, "u1", model.RoleCitizen)

	post, err := posts.CreatePost(context.Background(), author, &NewPost{
		Content:  "<b>Flooding</b> on Main <script>x()</script>",
		Category: model.Category("weather"),
		PostType: model.PostType("rumor"),
	})
	require.NoError(t, err)
	assert.Equal(t, "<b>Flooding</b> on Main", post.Content)
	assert.Equal(t, model.CategoryGeneral, post.Category)
	assert.Equal(t, model.PostTypeOpinion, post.PostType)
	assert.Equal(t, "u1", post.Author.Id)
}

func TestCreateReply(t *testing.T) {
	posts, store := newPostService(t)
	ctx := context.Background()
	author := testutil.SeedProfile(t, store, "u1", model.RoleCitizen)
	replier := testutil.SeedProfile(t, store, "u2", model.RoleCitizen)

	parent, err := posts.CreatePost(ctx, author, &NewPost{Content: "Streetlight out", Category: model.CategoryCrime})
	require.NoError(t, err)

	reply, err := posts.CreateReply(ctx, replier, parent.Id, "Reported to the city")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryCrime, reply.Category)

	_, err = posts.CreateReply(ctx, author, parent.Id, "Thanks!")
	require.NoError(t, err)

	_, err = posts.CreateReply(ctx, author, reply.Id, "nested")
	assert.ErrorIs(t, err, ErrNestedReply)
	_, err = posts.CreateReply(ctx, author, "missing", "hello")
	assert.ErrorIs(t, err, ErrNotFound)

	fetched, err := posts.GetPost(ctx, parent.Id)
	require.NoError(t, err)
	assert.Len(t, fetched.Replies, 2)
	assert.Equal(t, 2, fetched.ReplyCount)

	notifications, err := store.GetNotifications(ctx, "u1", false, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, model.NotificationReply, notifications[0].Kind)
	assert.Equal(t, "u2", notifications[0].ActorId)
}

func TestLikePost(t *testing.T) {
	posts, store := newPostService(t)
	ctx := context.Background()
	author := testutil.SeedProfile(t, store, "u1", model.RoleCitizen)
	fan := testutil.SeedProfile(t, store, "u2", model.RoleCitizen)
	post, err := posts.CreatePost(ctx, author, &NewPost{Content: "New park opening"})
	require.NoError(t, err)

	_, err = posts.LikePost(ctx, nil, post.Id)
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	like, err := posts.LikePost(ctx, fan, post.Id)
	require.NoError(t, err)
	assert.Equal(t, post.Id, like.PostId)

	_, err = posts.LikePost(ctx, fan, post.Id)
	assert.ErrorIs(t, err, ErrAlreadyLiked)
	_, err = posts.LikePost(ctx, fan, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	fetched, err := store.GetPostById(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, fetched.LikeCount)

	notifications, err := store.GetNotifications(ctx, "u1", true, 10)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, model.NotificationLike, notifications[0].Kind)
}

func TestFlagContentAutoFlags(t *testing.T) {
	store := testutil.NewStore(t, nil, nil)
	posts := NewPostService(store, zap.NewNop(), &PostServiceOpts{AutoFlagThreshold: 2})
	ctx := context.Background()
	author := testutil.SeedProfile(t, store, "u1", model.RoleCitizen)
	first := testutil.SeedProfile(t, store, "u2", model.RoleCitizen)
	second := testutil.SeedProfile(t, store, "u3", model.RoleCitizen)
	post, err := posts.CreatePost(ctx, author, &NewPost{Content: "Buy cheap watches"})
	require.NoError(t, err)

	_, err = posts.FlagContent(ctx, first, model.FlagTargetPost, post.Id, "")
	assert.ErrorIs(t, err, ErrEmptyContent)

	flag, err := posts.FlagContent(ctx, first, model.FlagTargetPost, post.Id, "spam")
	require.NoError(t, err)
	assert.Equal(t, model.FlagStatusPending, flag.Status)

	_, err = posts.FlagContent(ctx, first, model.FlagTargetPost, post.Id, "spam again")
	assert.ErrorIs(t, err, ErrAlreadyFlagged)

	fetched, err := store.GetPostById(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusActive, fetched.Status)

	_, err = posts.FlagContent(ctx, second, model.FlagTargetPost, post.Id, "spam")
	require.NoError(t, err)
	fetched, err = store.GetPostById(ctx, post.Id)
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusFlagged, fetched.Status)
	assert.Equal(t, 2, fetched.FlagCount)

	_, err = posts.FlagContent(ctx, first, model.FlagTargetPoll, "missing", "bad poll")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeletePost(t *testing.T) {
	posts, store := newPostService(t)
	ctx := context.Background()
	author := testutil.SeedProfile(t, store, "u1", model.RoleCitizen)
	stranger := testutil.SeedProfile(t, store, "u2", model.RoleOfficial)
	admin := testutil.SeedProfile(t, store, "admin", model.RoleAdmin)

	own, err := posts.CreatePost(ctx, author, &NewPost{Content: "mine"})
	require.NoError(t, err)
	other, err := posts.CreatePost(ctx, author, &NewPost{Content: "also mine"})
	require.NoError(t, err)

	assert.ErrorIs(t, posts.DeletePost(ctx, stranger, own.Id), ErrForbidden)
	assert.NoError(t, posts.DeletePost(ctx, author, own.Id))
	assert.ErrorIs(t, posts.DeletePost(ctx, author, own.Id), ErrNotFound)
	assert.NoError(t, posts.DeletePost(ctx, admin, other.Id))

	fetched, err := posts.FetchPosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, fetched)
}
