package realtime

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TablePosts         = "posts"
	TablePolls         = "polls"
	TableVotes         = "votes"
	TableLikes         = "likes"
	TableFlags         = "flags"
	TableProfiles      = "profiles"
	TableFollows       = "follows"
	TableNotifications = "notifications"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

type Change struct {
	Type    EventType       `json:"eventType"`
	Table   string          `json:"table"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// NewChange marshals the record into the change payload
func NewChange(eventType EventType, table string, record interface{}) (Change, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return Change{}, err
	}
	return Change{
		Type:    eventType,
		Table:   table,
		Payload: payload,
		At:      time.Now().UTC(),
	}, nil
}

type ChannelStatus string

const (
	StatusSubscribed   ChannelStatus = "SUBSCRIBED"
	StatusChannelError ChannelStatus = "CHANNEL_ERROR"
	StatusTimedOut     ChannelStatus = "TIMED_OUT"
	StatusClosed       ChannelStatus = "CLOSED"
)

func (cs ChannelStatus) IsTerminal() bool {
	return cs == StatusChannelError || cs == StatusTimedOut || cs == StatusClosed
}

type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

type Channel interface {
	Name() string
	Close() error
}

// ChangeSource opens named change-listener channels for a single table.
// onStatus may be invoked before Open returns.
type ChangeSource interface {
	Open(
		ctx context.Context,
		name string,
		table string,
		onChange func(Change),
		onStatus func(ChannelStatus, error),
	) (Channel, error)
}
