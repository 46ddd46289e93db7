package realtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/civicconnect/civic-connect-be/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle        State = "idle"
	StateSubscribing State = "subscribing"
	StateSubscribed  State = "subscribed"
	StateError       State = "error"
)

var stateGaugeValues = map[State]float64{
	StateIdle:        0,
	StateSubscribing: 1,
	StateSubscribed:  2,
	StateError:       3,
}

type tableSubscription struct {
	state State
	// generation is bumped every time the channel handle is released so
	// callbacks from an older channel can be told apart
	generation  uint64
	channel     Channel
	subscribers map[uint64]func(Change)
}

// Multiplexer keeps at most one backend channel per table and fans each
// change out to every subscriber of that table.
type Multiplexer struct {
	source    ChangeSource
	logger    *zap.Logger
	sessionId string
	startedAt time.Time

	mu               sync.Mutex
	tables           map[string]*tableSubscription
	nextSubscriberId uint64
	closed           bool
}

func NewMultiplexer(source ChangeSource, logger *zap.Logger) *Multiplexer {
	return &Multiplexer{
		source:    source,
		logger:    logger,
		sessionId: uuid.NewString(),
		startedAt: time.Now(),
		tables:    make(map[string]*tableSubscription),
	}
}

// Subscribe registers fn for changes on table and opens the table channel if
// it is idle. The returned func removes the subscriber; removing the last
// subscriber releases the channel.
func (m *Multiplexer) Subscribe(ctx context.Context, table string, fn func(Change)) (func(), error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("multiplexer is closed")
	}
	sub := m.tables[table]
	if sub == nil {
		sub = &tableSubscription{
			state:       StateIdle,
			subscribers: make(map[uint64]func(Change)),
		}
		m.tables[table] = sub
	}
	m.nextSubscriberId++
	subscriberId := m.nextSubscriberId
	sub.subscribers[subscriberId] = fn
	m.mu.Unlock()

	m.setup(ctx, table)

	var once sync.Once
	return func() {
		once.Do(func() { m.unsubscribe(table, subscriberId) })
	}, nil
}

func (m *Multiplexer) unsubscribe(table string, subscriberId uint64) {
	m.mu.Lock()
	sub := m.tables[table]
	if sub == nil {
		m.mu.Unlock()
		return
	}
	delete(sub.subscribers, subscriberId)
	if len(sub.subscribers) > 0 {
		m.mu.Unlock()
		return
	}
	channel := m.release(table, sub)
	m.mu.Unlock()

	m.closeChannel(table, channel)
}

// setup is a no-op unless the table is idle and has subscribers
func (m *Multiplexer) setup(ctx context.Context, table string) {
	m.mu.Lock()
	sub := m.tables[table]
	if m.closed || sub == nil || sub.state != StateIdle || len(sub.subscribers) == 0 {
		m.mu.Unlock()
		return
	}
	sub.generation++
	generation := sub.generation
	m.setState(table, sub, StateSubscribing)
	name := m.channelName(table, generation)
	m.mu.Unlock()

	channel, err := m.source.Open(ctx, name, table,
		func(change Change) { m.dispatch(table, generation, change) },
		func(status ChannelStatus, err error) { m.handleStatus(table, generation, status, err) },
	)

	m.mu.Lock()
	if err != nil {
		if sub.generation == generation && sub.state == StateSubscribing {
			m.setState(table, sub, StateError)
			sub.generation++
			m.setState(table, sub, StateIdle)
		}
		m.mu.Unlock()
		metrics.SubscriptionFailures.WithLabelValues(table, "open").Inc()
		m.logger.Warn("failed to open change channel",
			zap.String("table", table),
			zap.String("channel", name),
			zap.Error(err))
		return
	}
	if sub.generation != generation {
		// released or failed while opening
		m.mu.Unlock()
		m.closeChannel(table, channel)
		return
	}
	sub.channel = channel
	m.mu.Unlock()
}

func (m *Multiplexer) handleStatus(table string, generation uint64, status ChannelStatus, err error) {
	m.mu.Lock()
	sub := m.tables[table]
	if sub == nil || sub.generation != generation {
		m.mu.Unlock()
		return
	}
	if status == StatusSubscribed {
		if sub.state == StateSubscribing {
			m.setState(table, sub, StateSubscribed)
		}
		m.mu.Unlock()
		return
	}
	if !status.IsTerminal() {
		m.mu.Unlock()
		return
	}
	m.setState(table, sub, StateError)
	channel := m.release(table, sub)
	m.mu.Unlock()

	metrics.SubscriptionFailures.WithLabelValues(table, string(status)).Inc()
	m.logger.Warn("change channel ended",
		zap.String("table", table),
		zap.String("status", string(status)),
		zap.Error(err))
	m.closeChannel(table, channel)
}

func (m *Multiplexer) dispatch(table string, generation uint64, change Change) {
	m.mu.Lock()
	sub := m.tables[table]
	if sub == nil || sub.generation != generation || sub.state == StateIdle {
		m.mu.Unlock()
		return
	}
	subscribers := make([]func(Change), 0, len(sub.subscribers))
	for _, fn := range sub.subscribers {
		subscribers = append(subscribers, fn)
	}
	m.mu.Unlock()

	metrics.ChangesReceived.WithLabelValues(table).Inc()
	for _, fn := range subscribers {
		fn(change)
	}
}

// release must be called with mu held. It invalidates outstanding callbacks
// and returns the channel handle for the caller to close outside the lock.
func (m *Multiplexer) release(table string, sub *tableSubscription) Channel {
	channel := sub.channel
	sub.channel = nil
	sub.generation++
	m.setState(table, sub, StateIdle)
	return channel
}

func (m *Multiplexer) closeChannel(table string, channel Channel) {
	if channel == nil {
		return
	}
	if err := channel.Close(); err != nil {
		m.logger.Warn("failed to close change channel",
			zap.String("table", table),
			zap.String("channel", channel.Name()),
			zap.Error(err))
	}
}

func (m *Multiplexer) setState(table string, sub *tableSubscription, state State) {
	sub.state = state
	metrics.SubscriptionState.WithLabelValues(table).Set(stateGaugeValues[state])
}

func (m *Multiplexer) channelName(table string, generation uint64) string {
	return fmt.Sprintf("civic:%v:%v:%v:%v", table, m.sessionId, m.startedAt.UnixMilli(), generation)
}

// Retry re-runs setup for every idle table that still has subscribers
func (m *Multiplexer) Retry(ctx context.Context) {
	m.mu.Lock()
	var idle []string
	for table, sub := range m.tables {
		if sub.state == StateIdle && len(sub.subscribers) > 0 {
			idle = append(idle, table)
		}
	}
	m.mu.Unlock()

	sort.Strings(idle)
	for _, table := range idle {
		m.setup(ctx, table)
	}
}

type TableStatus struct {
	Table       string `json:"table"`
	State       State  `json:"state"`
	Subscribers int    `json:"subscribers"`
}

func (m *Multiplexer) Status() []*TableStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	statuses := make([]*TableStatus, 0, len(m.tables))
	for table, sub := range m.tables {
		statuses = append(statuses, &TableStatus{
			Table:       table,
			State:       sub.state,
			Subscribers: len(sub.subscribers),
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Table < statuses[j].Table })
	return statuses
}

func (m *Multiplexer) State(table string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub := m.tables[table]; sub != nil {
		return sub.state
	}
	return StateIdle
}

// Close releases every channel and drops all subscribers
func (m *Multiplexer) Close() {
	m.mu.Lock()
	m.closed = true
	channels := make(map[string]Channel)
	for table, sub := range m.tables {
		channels[table] = m.release(table, sub)
		sub.subscribers = make(map[uint64]func(Change))
	}
	m.mu.Unlock()

	for table, channel := range channels {
		m.closeChannel(table, channel)
	}
}
