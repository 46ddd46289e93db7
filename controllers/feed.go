package controllers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/civicconnect/civic-connect-be/app"
	"github.com/civicconnect/civic-connect-be/metrics"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/civicconnect/civic-connect-be/services"
	"go.uber.org/zap"
)

const (
	DefaultResubscribeInterval = 30 * time.Second
	feedControllerName         = "feed"
)

// FeedTables are the tables whose changes invalidate the feed
var FeedTables = []string{
	realtime.TablePosts,
	realtime.TablePolls,
	realtime.TableVotes,
	realtime.TableLikes,
}

type PostFetcher interface {
	FetchPosts(ctx context.Context) ([]*model.Post, error)
	AttachReplies(ctx context.Context, posts []*model.Post) error
}

type PollFetcher interface {
	FetchPolls(ctx context.Context) ([]*model.Poll, error)
}

type FeedControllerOpts struct {
	DebounceDelay       time.Duration
	ResubscribeInterval time.Duration
}

type feedSnapshot struct {
	posts       []*model.Post
	polls       []*model.Poll
	refreshedAt time.Time
}

// FeedController keeps the current posts and polls in memory and refreshes
// them when the underlying tables change
type FeedController struct {
	posts               PostFetcher
	polls               PollFetcher
	mux                 *realtime.Multiplexer
	logger              *zap.Logger
	now                 func() time.Time
	debounceDelay       time.Duration
	resubscribeInterval time.Duration

	// start of mu
	mu           sync.Mutex
	cached       *feedSnapshot
	alive        bool
	debouncer    *realtime.Debouncer
	unsubscribes []func()
	stop         chan struct{}
	// end of mu

	watchersMu    sync.Mutex
	watchers      map[int]chan struct{}
	nextWatcherId int

	wg sync.WaitGroup
}

func NewFeedController(posts PostFetcher, polls PollFetcher, mux *realtime.Multiplexer, logger *zap.Logger, opts *FeedControllerOpts) *FeedController {
	fc := &FeedController{
		posts:               posts,
		polls:               polls,
		mux:                 mux,
		logger:              logger,
		now:                 time.Now,
		debounceDelay:       realtime.DefaultDebounceDelay,
		resubscribeInterval: DefaultResubscribeInterval,
		cached:              &feedSnapshot{posts: []*model.Post{}, polls: []*model.Poll{}},
		watchers:            make(map[int]chan struct{}),
	}
	if opts != nil && opts.DebounceDelay > 0 {
		fc.debounceDelay = opts.DebounceDelay
	}
	if opts != nil && opts.ResubscribeInterval > 0 {
		fc.resubscribeInterval = opts.ResubscribeInterval
	}
	return fc
}

// Start loads the feed once, subscribes to the feed tables and keeps
// resubscribing tables whose channel failed. Calling Start twice is a no-op.
func (fc *FeedController) Start(ctx context.Context) {
	fc.mu.Lock()
	if fc.alive {
		fc.mu.Unlock()
		return
	}
	fc.alive = true
	fc.stop = make(chan struct{})
	fc.debouncer = realtime.NewDebouncer(fc.debounceDelay, func() {
		fc.attemptRefresh(ctx)
	})
	stop := fc.stop
	fc.mu.Unlock()

	fc.attemptRefresh(ctx)

	var unsubscribes []func()
	for _, table := range FeedTables {
		unsubscribe, err := fc.mux.Subscribe(ctx, table, fc.onChange)
		if err != nil {
			fc.logger.Warn("failed to subscribe to table", zap.String("table", table), zap.Error(err))
			continue
		}
		unsubscribes = append(unsubscribes, unsubscribe)
	}

	fc.mu.Lock()
	if !fc.alive {
		// closed while subscribing
		fc.mu.Unlock()
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
		return
	}
	fc.unsubscribes = unsubscribes
	fc.mu.Unlock()

	resubscribeTicker := time.NewTicker(fc.resubscribeInterval)
	fc.wg.Add(1)
	go func() {
		defer fc.wg.Done()
		defer resubscribeTicker.Stop()
		defer func() {
			if r := recover(); r != nil {
				fc.logger.Error("recovered in resubscribe loop", zap.Any("panic", r))
			}
		}()
		for {
			select {
			case <-resubscribeTicker.C:
				fc.mux.Retry(ctx)
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (fc *FeedController) onChange(change realtime.Change) {
	fc.mu.Lock()
	debouncer := fc.debouncer
	alive := fc.alive
	fc.mu.Unlock()
	if !alive || debouncer == nil {
		return
	}
	debouncer.Trigger()
}

// Close unsubscribes and drops pending refreshes. A refresh already in
// flight finishes but its result is discarded.
func (fc *FeedController) Close() {
	fc.mu.Lock()
	if !fc.alive {
		fc.mu.Unlock()
		return
	}
	fc.alive = false
	unsubscribes := fc.unsubscribes
	fc.unsubscribes = nil
	if fc.debouncer != nil {
		fc.debouncer.Stop()
	}
	close(fc.stop)
	fc.mu.Unlock()

	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
	fc.wg.Wait()

	fc.watchersMu.Lock()
	for id, watcher := range fc.watchers {
		close(watcher)
		delete(fc.watchers, id)
	}
	fc.watchersMu.Unlock()
}

func (fc *FeedController) attemptRefresh(ctx context.Context) {
	if err := fc.Refresh(ctx); err != nil {
		fc.logger.Warn("feed refresh failed", zap.Error(err))
	}
}

// Refresh refetches posts, replies and polls. A collection whose fetch fails
// is replaced by an empty one. Posts are kept as they are when another post
// fetch is in flight, and a follow up refresh is scheduled.
func (fc *FeedController) Refresh(ctx context.Context) error {
	if !fc.isAlive() {
		return nil
	}
	metrics.Refetches.WithLabelValues(feedControllerName).Inc()

	keepPosts := false
	posts, err := fc.posts.FetchPosts(ctx)
	switch {
	case errors.Is(err, services.ErrFetchInProgress):
		keepPosts = true
		fc.retryLater()
	case err != nil:
		metrics.FetchFailures.WithLabelValues(realtime.TablePosts).Inc()
		fc.logger.Warn("failed to fetch posts", zap.Error(err))
		posts = []*model.Post{}
	default:
		if err := fc.posts.AttachReplies(ctx, posts); err != nil {
			metrics.FetchFailures.WithLabelValues("replies").Inc()
			fc.logger.Warn("failed to fetch replies", zap.Error(err))
			for _, post := range posts {
				post.Replies = []*model.Post{}
			}
		}
	}

	polls, err := fc.polls.FetchPolls(ctx)
	if err != nil {
		metrics.FetchFailures.WithLabelValues(realtime.TablePolls).Inc()
		fc.logger.Warn("failed to fetch polls", zap.Error(err))
		polls = []*model.Poll{}
	}

	// start of mu
	fc.mu.Lock()
	if !fc.alive {
		fc.mu.Unlock()
		return nil
	}
	next := &feedSnapshot{posts: posts, polls: polls, refreshedAt: fc.now()}
	if keepPosts {
		next.posts = fc.cached.posts
	}
	fc.cached = next
	fc.mu.Unlock()
	// end of mu

	fc.notifyWatchers()
	return nil
}

func (fc *FeedController) retryLater() {
	fc.mu.Lock()
	debouncer := fc.debouncer
	fc.mu.Unlock()
	if debouncer != nil {
		debouncer.Trigger()
	}
}

func (fc *FeedController) isAlive() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.alive
}

func (fc *FeedController) snapshot() *feedSnapshot {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.cached
}

func (fc *FeedController) Posts() []*model.Post {
	return fc.snapshot().posts
}

func (fc *FeedController) Polls() []*model.Poll {
	return fc.snapshot().polls
}

func (fc *FeedController) RefreshedAt() time.Time {
	return fc.snapshot().refreshedAt
}

// Feed aggregates the current snapshot; it is recomputed on every call
func (fc *FeedController) Feed() []*app.FeedItem {
	cached := fc.snapshot()
	return app.AggregateFeed(cached.posts, cached.polls)
}

func (fc *FeedController) Analytics() *app.Analytics {
	return app.ComputeAnalytics(fc.snapshot().posts, fc.now())
}

// Post finds a top-level post in the current snapshot
func (fc *FeedController) Post(id string) *model.Post {
	for _, post := range fc.snapshot().posts {
		if post.Id == id {
			return post
		}
	}
	return nil
}

// Watch returns a channel signalled after every applied refresh. The channel
// is closed by cancel or when the controller closes.
func (fc *FeedController) Watch() (<-chan struct{}, func()) {
	fc.watchersMu.Lock()
	defer fc.watchersMu.Unlock()
	fc.nextWatcherId++
	id := fc.nextWatcherId
	watcher := make(chan struct{}, 1)
	fc.watchers[id] = watcher

	var once sync.Once
	return watcher, func() {
		once.Do(func() {
			fc.watchersMu.Lock()
			defer fc.watchersMu.Unlock()
			if existing, ok := fc.watchers[id]; ok {
				close(existing)
				delete(fc.watchers, id)
			}
		})
	}
}

func (fc *FeedController) notifyWatchers() {
	fc.watchersMu.Lock()
	defer fc.watchersMu.Unlock()
	for _, watcher := range fc.watchers {
		select {
		case watcher <- struct{}{}:
		default:
			// watcher already has a pending signal
		}
	}
}
