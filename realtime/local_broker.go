package realtime

import (
	"context"
	"fmt"
	"sync"
)

// LocalBroker fans changes out to in-process channels
type LocalBroker struct {
	mu        sync.Mutex
	listeners map[string]map[*localChannel]struct{}
	names     map[string]struct{}
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{
		listeners: make(map[string]map[*localChannel]struct{}),
		names:     make(map[string]struct{}),
	}
}

type localChannel struct {
	broker   *LocalBroker
	name     string
	table    string
	onChange func(Change)
	onStatus func(ChannelStatus, error)
	once     sync.Once
}

func (lc *localChannel) Name() string {
	return lc.name
}

func (lc *localChannel) Close() error {
	lc.once.Do(func() {
		lc.broker.remove(lc)
		go lc.onStatus(StatusClosed, nil)
	})
	return nil
}

func (lb *LocalBroker) Open(
	_ context.Context,
	name string,
	table string,
	onChange func(Change),
	onStatus func(ChannelStatus, error),
) (Channel, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if _, taken := lb.names[name]; taken {
		return nil, fmt.Errorf("channel %v is already open", name)
	}
	channel := &localChannel{
		broker:   lb,
		name:     name,
		table:    table,
		onChange: onChange,
		onStatus: onStatus,
	}
	if lb.listeners[table] == nil {
		lb.listeners[table] = make(map[*localChannel]struct{})
	}
	lb.listeners[table][channel] = struct{}{}
	lb.names[name] = struct{}{}
	go onStatus(StatusSubscribed, nil)
	return channel, nil
}

func (lb *LocalBroker) remove(channel *localChannel) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	delete(lb.listeners[channel.table], channel)
	delete(lb.names, channel.name)
}

// Publish delivers the change synchronously to every channel open on the table
func (lb *LocalBroker) Publish(_ context.Context, change Change) error {
	lb.mu.Lock()
	channels := make([]*localChannel, 0, len(lb.listeners[change.Table]))
	for channel := range lb.listeners[change.Table] {
		channels = append(channels, channel)
	}
	lb.mu.Unlock()

	for _, channel := range channels {
		channel.onChange(change)
	}
	return nil
}
