package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	name   string
	closed atomic.Bool
}

func (fc *fakeChannel) Name() string { return fc.name }

func (fc *fakeChannel) Close() error {
	fc.closed.Store(true)
	return nil
}

type fakeOpen struct {
	name     string
	table    string
	onChange func(Change)
	onStatus func(ChannelStatus, error)
	channel  *fakeChannel
}

type fakeSource struct {
	mu    sync.Mutex
	opens []*fakeOpen
	err   error
}

func (fs *fakeSource) Open(_ context.Context, name string, table string, onChange func(Change), onStatus func(ChannelStatus, error)) (Channel, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.err != nil {
		return nil, fs.err
	}
	open := &fakeOpen{
		name:     name,
		table:    table,
		onChange: onChange,
		onStatus: onStatus,
		channel:  &fakeChannel{name: name},
	}
	fs.opens = append(fs.opens, open)
	return open.channel, nil
}

func (fs *fakeSource) openCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.opens)
}

func (fs *fakeSource) last() *fakeOpen {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.opens[len(fs.opens)-1]
}

func TestMultiplexerSharesOneChannelPerTable(t *testing.T) {
	source := &fakeSource{}
	mux := NewMultiplexer(source, zap.NewNop())
	ctx := context.Background()

	var first, second int32
	unsubFirst, err := mux.Subscribe(ctx, TablePosts, func(Change) { atomic.AddInt32(&first, 1) })
	require.NoError(t, err)
	unsubSecond, err := mux.Subscribe(ctx, TablePosts, func(Change) { atomic.AddInt32(&second, 1) })
	require.NoError(t, err)

	require.Equal(t, 1, source.openCount())
	assert.Equal(t, StateSubscribing, mux.State(TablePosts))

	open := source.last()
	open.onStatus(StatusSubscribed, nil)
	assert.Equal(t, StateSubscribed, mux.State(TablePosts))

	open.onChange(Change{Type: EventInsert, Table: TablePosts})
	assert.Equal(t, int32(1), atomic.LoadInt32(&first))
	assert.Equal(t, int32(1), atomic.LoadInt32(&second))

	unsubFirst()
	assert.False(t, open.channel.closed.Load())
	assert.Equal(t, StateSubscribed, mux.State(TablePosts))

	unsubSecond()
	assert.True(t, open.channel.closed.Load())
	assert.Equal(t, StateIdle, mux.State(TablePosts))

	open.onChange(Change{Type: EventInsert, Table: TablePosts})
	assert.Equal(t, int32(1), atomic.LoadInt32(&first))
}

func TestMultiplexerOpensSeparateChannelsPerTable(t *testing.T) {
	source := &fakeSource{}
	mux := NewMultiplexer(source, zap.NewNop())
	ctx := context.Background()

	for _, table := range []string{TablePosts, TablePolls, TableVotes, TableLikes} {
		_, err := mux.Subscribe(ctx, table, func(Change) {})
		require.NoError(t, err)
	}

	require.Equal(t, 4, source.openCount())
	names := make(map[string]struct{})
	for _, open := range source.opens {
		names[open.name] = struct{}{}
	}
	assert.Len(t, names, 4)
}

func TestMultiplexerTerminalStatusReleasesChannel(t *testing.T) {
	for _, status := range []ChannelStatus{StatusChannelError, StatusTimedOut, StatusClosed} {
		t.Run(string(status), func(t *testing.T) {
			source := &fakeSource{}
			mux := NewMultiplexer(source, zap.NewNop())
			ctx := context.Background()

			var received int32
			_, err := mux.Subscribe(ctx, TableVotes, func(Change) { atomic.AddInt32(&received, 1) })
			require.NoError(t, err)
			failed := source.last()
			failed.onStatus(StatusSubscribed, nil)

			failed.onStatus(status, errors.New("socket closed"))
			assert.Equal(t, StateIdle, mux.State(TableVotes))
			assert.True(t, failed.channel.closed.Load())

			failed.onChange(Change{Type: EventInsert, Table: TableVotes})
			assert.Equal(t, int32(0), atomic.LoadInt32(&received))

			mux.Retry(ctx)
			require.Equal(t, 2, source.openCount())
			retried := source.last()
			assert.NotEqual(t, failed.name, retried.name)

			retried.onStatus(StatusSubscribed, nil)
			assert.Equal(t, StateSubscribed, mux.State(TableVotes))
			retried.onChange(Change{Type: EventInsert, Table: TableVotes})
			assert.Equal(t, int32(1), atomic.LoadInt32(&received))
		})
	}
}

func TestMultiplexerOpenFailureReturnsToIdle(t *testing.T) {
	source := &fakeSource{err: errors.New("unreachable")}
	mux := NewMultiplexer(source, zap.NewNop())
	ctx := context.Background()

	_, err := mux.Subscribe(ctx, TableLikes, func(Change) {})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, mux.State(TableLikes))

	source.mu.Lock()
	source.err = nil
	source.mu.Unlock()

	mux.Retry(ctx)
	assert.Equal(t, 1, source.openCount())
	assert.Equal(t, StateSubscribing, mux.State(TableLikes))
}

func TestMultiplexerRetrySkipsActiveTables(t *testing.T) {
	source := &fakeSource{}
	mux := NewMultiplexer(source, zap.NewNop())
	ctx := context.Background()

	_, err := mux.Subscribe(ctx, TablePolls, func(Change) {})
	require.NoError(t, err)
	mux.Retry(ctx)
	mux.Retry(ctx)

	assert.Equal(t, 1, source.openCount())
}

func TestMultiplexerStaleStatusIsIgnored(t *testing.T) {
	source := &fakeSource{}
	mux := NewMultiplexer(source, zap.NewNop())
	ctx := context.Background()

	unsub, err := mux.Subscribe(ctx, TablePosts, func(Change) {})
	require.NoError(t, err)
	stale := source.last()
	unsub()

	_, err = mux.Subscribe(ctx, TablePosts, func(Change) {})
	require.NoError(t, err)
	current := source.last()
	current.onStatus(StatusSubscribed, nil)

	stale.onStatus(StatusChannelError, errors.New("late failure"))
	assert.Equal(t, StateSubscribed, mux.State(TablePosts))
	assert.False(t, current.channel.closed.Load())
}

func TestMultiplexerCloseReleasesEverything(t *testing.T) {
	source := &fakeSource{}
	mux := NewMultiplexer(source, zap.NewNop())
	ctx := context.Background()

	_, err := mux.Subscribe(ctx, TablePosts, func(Change) {})
	require.NoError(t, err)
	_, err = mux.Subscribe(ctx, TablePolls, func(Change) {})
	require.NoError(t, err)

	mux.Close()
	for _, open := range source.opens {
		assert.True(t, open.channel.closed.Load())
	}
	_, err = mux.Subscribe(ctx, TablePosts, func(Change) {})
	assert.Error(t, err)
}

func TestMultiplexerWithLocalBroker(t *testing.T) {
	broker := NewLocalBroker()
	mux := NewMultiplexer(broker, zap.NewNop())
	ctx := context.Background()

	received := make(chan Change, 1)
	unsub, err := mux.Subscribe(ctx, TablePosts, func(change Change) { received <- change })
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return mux.State(TablePosts) == StateSubscribed
	}, time.Second, 5*time.Millisecond)

	change, err := NewChange(EventInsert, TablePosts, map[string]string{"id": "p1"})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, change))

	select {
	case got := <-received:
		assert.Equal(t, EventInsert, got.Type)
		assert.JSONEq(t, `{"id":"p1"}`, string(got.Payload))
	case <-time.After(time.Second):
		t.Fatal("change was not delivered")
	}

	unsub()
	require.NoError(t, broker.Publish(ctx, change))
	select {
	case <-received:
		t.Fatal("change delivered after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}
