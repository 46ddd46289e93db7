package controllers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civicconnect/civic-connect-be/app"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/civicconnect/civic-connect-be/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type fakePosts struct {
	mu       sync.Mutex
	posts    []*model.Post
	err      error
	fetches  int32
	entered  chan struct{}
	release  chan struct{}
	blockOne bool
}

func (fp *fakePosts) FetchPosts(context.Context) ([]*model.Post, error) {
	atomic.AddInt32(&fp.fetches, 1)
	fp.mu.Lock()
	block := fp.blockOne
	fp.blockOne = false
	fp.mu.Unlock()
	if block {
		fp.entered <- struct{}{}
		<-fp.release
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.err != nil {
		return nil, fp.err
	}
	posts := make([]*model.Post, len(fp.posts))
	for i, post := range fp.posts {
		copied := *post
		posts[i] = &copied
	}
	return posts, nil
}

func (fp *fakePosts) AttachReplies(_ context.Context, posts []*model.Post) error {
	for _, post := range posts {
		post.Replies = []*model.Post{}
	}
	return nil
}

func (fp *fakePosts) set(posts ...*model.Post) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.posts = posts
}

func (fp *fakePosts) setErr(err error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.err = err
}

func (fp *fakePosts) count() int {
	return int(atomic.LoadInt32(&fp.fetches))
}

type fakePolls struct {
	mu    sync.Mutex
	polls []*model.Poll
	err   error
}

func (fp *fakePolls) FetchPolls(context.Context) ([]*model.Poll, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.err != nil {
		return nil, fp.err
	}
	return fp.polls, nil
}

func testPost(id string, minutes int) *model.Post {
	return &model.Post{Id: id, Category: model.CategoryGeneral, Status: model.PostStatusActive, CreatedAt: epoch.Add(time.Duration(minutes) * time.Minute)}
}

func testPoll(id string, minutes int) *model.Poll {
	return &model.Poll{Id: id, Status: model.PollStatusActive, CreatedAt: epoch.Add(time.Duration(minutes) * time.Minute)}
}

func newTestController(t *testing.T, posts *fakePosts, polls *fakePolls) (*FeedController, *realtime.LocalBroker) {
	t.Helper()
	broker := realtime.NewLocalBroker()
	mux := realtime.NewMultiplexer(broker, zap.NewNop())
	t.Cleanup(mux.Close)
	controller := NewFeedController(posts, polls, mux, zap.NewNop(), &FeedControllerOpts{
		DebounceDelay:       50 * time.Millisecond,
		ResubscribeInterval: time.Hour,
	})
	t.Cleanup(controller.Close)
	return controller, broker
}

func publish(t *testing.T, broker *realtime.LocalBroker, table string) {
	t.Helper()
	change, err := realtime.NewChange(realtime.EventInsert, table, map[string]string{"id": "x"})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(context.Background(), change))
}

func feedIds(items []*app.FeedItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.Id()
	}
	return ids
}

func TestFeedControllerLoadsOnStart(t *testing.T) {
	posts := &fakePosts{posts: []*model.Post{testPost("p1", 1), testPost("p2", 10)}}
	polls := &fakePolls{polls: []*model.Poll{testPoll("q1", 5)}}
	controller, _ := newTestController(t, posts, polls)

	assert.Empty(t, controller.Feed())
	controller.Start(context.Background())

	assert.Equal(t, []string{"p2", "q1", "p1"}, feedIds(controller.Feed()))
	assert.Len(t, controller.Posts(), 2)
	assert.Len(t, controller.Polls(), 1)
	assert.Equal(t, 2, controller.Analytics().TotalPosts)
	assert.NotNil(t, controller.Post("p1"))
	assert.Nil(t, controller.Post("q1"))
	assert.Equal(t, 1, posts.count())
}

func TestBurstOfChangesRefetchesOnce(t *testing.T) {
	posts := &fakePosts{}
	controller, broker := newTestController(t, posts, &fakePolls{})
	controller.Start(context.Background())
	require.Equal(t, 1, posts.count())

	for i := 0; i < 10; i++ {
		publish(t, broker, FeedTables[i%len(FeedTables)])
	}
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 2, posts.count())

	publish(t, broker, realtime.TableVotes)
	assert.Eventually(t, func() bool { return posts.count() == 3 }, time.Second, 10*time.Millisecond)
}

func TestUnwatchedTablesDoNotRefetch(t *testing.T) {
	posts := &fakePosts{}
	controller, broker := newTestController(t, posts, &fakePolls{})
	controller.Start(context.Background())

	publish(t, broker, realtime.TableNotifications)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, posts.count())
}

func TestCloseDiscardsInFlightRefresh(t *testing.T) {
	posts := &fakePosts{posts: []*model.Post{testPost("p1", 1)}}
	controller, _ := newTestController(t, posts, &fakePolls{})
	controller.Start(context.Background())
	require.Len(t, controller.Posts(), 1)

	posts.mu.Lock()
	posts.blockOne = true
	posts.entered = make(chan struct{})
	posts.release = make(chan struct{})
	posts.mu.Unlock()
	posts.set(testPost("p1", 1), testPost("p2", 2))

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, controller.Refresh(context.Background()))
	}()
	<-posts.entered
	controller.Close()
	close(posts.release)
	<-done

	assert.Len(t, controller.Posts(), 1)
	assert.Equal(t, "p1", controller.Posts()[0].Id)
}

func TestChangesAfterCloseAreIgnored(t *testing.T) {
	posts := &fakePosts{}
	controller, broker := newTestController(t, posts, &fakePolls{})
	controller.Start(context.Background())
	controller.Close()

	publish(t, broker, realtime.TablePosts)
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 1, posts.count())
	assert.NoError(t, controller.Refresh(context.Background()))
	assert.Equal(t, 1, posts.count())
}

func TestFetchFailureEmptiesCollection(t *testing.T) {
	posts := &fakePosts{posts: []*model.Post{testPost("p1", 1)}}
	polls := &fakePolls{polls: []*model.Poll{testPoll("q1", 2)}}
	controller, _ := newTestController(t, posts, polls)
	controller.Start(context.Background())
	require.Len(t, controller.Feed(), 2)

	polls.mu.Lock()
	polls.err = errors.New("polls unavailable")
	polls.mu.Unlock()
	require.NoError(t, controller.Refresh(context.Background()))
	assert.Empty(t, controller.Polls())
	assert.Len(t, controller.Posts(), 1)

	posts.setErr(errors.New("posts unavailable"))
	require.NoError(t, controller.Refresh(context.Background()))
	assert.Empty(t, controller.Posts())
	assert.NotNil(t, controller.Posts())
}

func TestFetchInProgressKeepsPosts(t *testing.T) {
	posts := &fakePosts{posts: []*model.Post{testPost("p1", 1)}}
	controller, _ := newTestController(t, posts, &fakePolls{})
	controller.Start(context.Background())

	posts.setErr(services.ErrFetchInProgress)
	require.NoError(t, controller.Refresh(context.Background()))
	assert.Len(t, controller.Posts(), 1)

	// the skipped fetch is retried after the debounce delay
	before := posts.count()
	assert.Eventually(t, func() bool { return posts.count() > before }, time.Second, 10*time.Millisecond)
}

func TestWatch(t *testing.T) {
	posts := &fakePosts{}
	controller, _ := newTestController(t, posts, &fakePolls{})
	controller.Start(context.Background())

	updates, cancel := controller.Watch()
	require.NoError(t, controller.Refresh(context.Background()))
	require.NoError(t, controller.Refresh(context.Background()))

	select {
	case _, ok := <-updates:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watcher was not signalled")
	}

	cancel()
	cancel()
	_, ok := <-updates
	assert.False(t, ok)

	other, _ := controller.Watch()
	controller.Close()
	_, ok = <-other
	assert.False(t, ok)
}

func TestStartTwiceIsNoop(t *testing.T) {
	posts := &fakePosts{}
	controller, _ := newTestController(t, posts, &fakePolls{})
	controller.Start(context.Background())
	controller.Start(context.Background())
	assert.Equal(t, 1, posts.count())
}
