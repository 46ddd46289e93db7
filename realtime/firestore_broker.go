package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const DefaultChangeCollection = "civic_changes"

type changeDocument struct {
	Type    string    `firestore:"type"`
	Table   string    `firestore:"table"`
	Payload string    `firestore:"payload"`
	At      time.Time `firestore:"at"`
}

// FirestoreBroker shares changes between server instances through a
// Firestore collection. Publishing appends a document; channels are
// snapshot listeners filtered by table.
type FirestoreBroker struct {
	client     *firestore.Client
	collection string
	logger     *zap.Logger
}

func NewFirestoreBroker(client *firestore.Client, collection string, logger *zap.Logger) *FirestoreBroker {
	if collection == "" {
		collection = DefaultChangeCollection
	}
	return &FirestoreBroker{
		client:     client,
		collection: collection,
		logger:     logger,
	}
}

func (fb *FirestoreBroker) Publish(ctx context.Context, change Change) error {
	_, _, err := fb.client.Collection(fb.collection).Add(ctx, &changeDocument{
		Type:    string(change.Type),
		Table:   change.Table,
		Payload: string(change.Payload),
		At:      change.At,
	})
	return err
}

// snapshotIterator is the part of *firestore.QuerySnapshotIterator the
// listener uses. Stop must not be called while Next is running.
type snapshotIterator interface {
	Next() (*firestore.QuerySnapshot, error)
	Stop()
}

type firestoreChannel struct {
	name   string
	cancel context.CancelFunc
	iter   snapshotIterator
	once   sync.Once
}

func (fc *firestoreChannel) Name() string {
	return fc.name
}

func (fc *firestoreChannel) Close() error {
	// cancelling unblocks Next; the listener stops the iterator itself
	fc.once.Do(fc.cancel)
	return nil
}

// Open only delivers changes written after the channel was opened. The
// listener outlives ctx and stops when the channel is closed.
func (fb *FirestoreBroker) Open(
	_ context.Context,
	name string,
	table string,
	onChange func(Change),
	onStatus func(ChannelStatus, error),
) (Channel, error) {
	listenCtx, cancel := context.WithCancel(context.Background())
	iter := fb.client.Collection(fb.collection).
		Where("table", "==", table).
		Where("at", ">", time.Now().UTC()).
		Snapshots(listenCtx)
	channel := &firestoreChannel{
		name:   name,
		cancel: cancel,
		iter:   iter,
	}
	go fb.listen(listenCtx, channel, onChange, onStatus)
	return channel, nil
}

func (fb *FirestoreBroker) listen(
	ctx context.Context,
	channel *firestoreChannel,
	onChange func(Change),
	onStatus func(ChannelStatus, error),
) {
	defer channel.iter.Stop()
	subscribed := false
	for {
		snapshot, err := channel.iter.Next()
		if err != nil {
			onStatus(statusFromListenErr(ctx, err), err)
			return
		}
		if !subscribed {
			subscribed = true
			onStatus(StatusSubscribed, nil)
		}
		for _, docChange := range snapshot.Changes {
			if docChange.Kind != firestore.DocumentAdded {
				continue
			}
			var doc changeDocument
			if err := docChange.Doc.DataTo(&doc); err != nil {
				fb.logger.Warn("skipping malformed change document",
					zap.String("channel", channel.name),
					zap.String("document", docChange.Doc.Ref.ID),
					zap.Error(err))
				continue
			}
			onChange(Change{
				Type:    EventType(doc.Type),
				Table:   doc.Table,
				Payload: []byte(doc.Payload),
				At:      doc.At,
			})
		}
	}
}

func statusFromListenErr(ctx context.Context, err error) ChannelStatus {
	if ctx.Err() != nil || errors.Is(err, iterator.Done) {
		return StatusClosed
	}
	switch status.Code(err) {
	case codes.Canceled:
		return StatusClosed
	case codes.DeadlineExceeded:
		return StatusTimedOut
	default:
		return StatusChannelError
	}
}
