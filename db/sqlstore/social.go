package sqlstore

import (
	"context"
	"time"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/google/uuid"
)

type SocialDB struct {
	*base
}

type followRow struct {
	FollowerId  string    `db:"follower_id"`
	FollowingId string    `db:"following_id"`
	CreatedAt   time.Time `db:"created_at"`
}

func (sdb *SocialDB) CreateFollow(ctx context.Context, followerId string, followingId string) error {
	row := &followRow{
		FollowerId:  followerId,
		FollowingId: followingId,
		CreatedAt:   sdb.timestamp(),
	}
	if _, err := sdb.sess.SQL().
		InsertInto("follows").
		Values(row).
		ExecContext(ctx); err != nil {
		return err
	}
	sdb.publish(ctx, realtime.TableFollows, realtime.EventInsert, row)
	return nil
}

func (sdb *SocialDB) DeleteFollow(ctx context.Context, followerId string, followingId string) error {
	if err := sdb.sess.WithContext(ctx).
		Collection("follows").
		Find("follower_id = ? AND following_id = ?", followerId, followingId).
		Delete(); err != nil {
		return err
	}
	sdb.publish(ctx, realtime.TableFollows, realtime.EventDelete, map[string]string{
		"followerId":  followerId,
		"followingId": followingId,
	})
	return nil
}

func (sdb *SocialDB) GetFollowing(ctx context.Context, followerId string) ([]*model.Follow, error) {
	var rows []followRow
	if err := sdb.sess.WithContext(ctx).
		Collection("follows").
		Find("follower_id = ?", followerId).
		OrderBy("-created_at").
		All(&rows); err != nil {
		return nil, err
	}
	follows := make([]*model.Follow, len(rows))
	for i, row := range rows {
		follows[i] = &model.Follow{
			FollowerId:  row.FollowerId,
			FollowingId: row.FollowingId,
			CreatedAt:   row.CreatedAt,
		}
	}
	return follows, nil
}

type flattenedNotification struct {
	Id        string    `db:"id"`
	UserId    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	ActorId   string    `db:"actor_id"`
	TargetId  string    `db:"target_id"`
	Message   string    `db:"message"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

var notificationColumns = []interface{}{
	"id",
	"user_id",
	"kind",
	"actor_id",
	"target_id",
	"message",
	"is_read",
	"created_at",
}

func (sdb *SocialDB) CreateNotification(ctx context.Context, req *appDb.CreateNotification) (*model.Notification, error) {
	notification := &model.Notification{
		Id:        uuid.NewString(),
		UserId:    req.UserId,
		Kind:      req.Kind,
		ActorId:   req.ActorId,
		TargetId:  req.TargetId,
		Message:   req.Message,
		CreatedAt: sdb.timestamp(),
	}
	if _, err := sdb.sess.SQL().
		InsertInto("notifications").
		Columns(columnNames(notificationColumns)...).
		Values(
			notification.Id,
			notification.UserId,
			notification.Kind,
			notification.ActorId,
			notification.TargetId,
			notification.Message,
			false,
			notification.CreatedAt,
		).
		ExecContext(ctx); err != nil {
		return nil, err
	}
	sdb.publish(ctx, realtime.TableNotifications, realtime.EventInsert, notification)
	return notification, nil
}

func (sdb *SocialDB) GetNotifications(ctx context.Context, userId string, unreadOnly bool, limit int) ([]*model.Notification, error) {
	where := []interface{}{"user_id = ?", userId}
	if unreadOnly {
		where = []interface{}{"user_id = ? AND is_read = ?", userId, false}
	}
	var flattened []flattenedNotification
	if err := sdb.sess.SQL().
		Select(notificationColumns...).
		From("notifications").
		Where(where...).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit).
		IteratorContext(ctx).
		All(&flattened); err != nil {
		return nil, err
	}
	notifications := make([]*model.Notification, len(flattened))
	for i, row := range flattened {
		notifications[i] = &model.Notification{
			Id:        row.Id,
			UserId:    row.UserId,
			Kind:      model.NotificationKind(row.Kind),
			ActorId:   row.ActorId,
			TargetId:  row.TargetId,
			Message:   row.Message,
			IsRead:    row.IsRead,
			CreatedAt: row.CreatedAt,
		}
	}
	return notifications, nil
}

// MarkNotificationsRead marks the given ids as read, or every notification of the user when ids is empty
func (sdb *SocialDB) MarkNotificationsRead(ctx context.Context, userId string, ids []string) error {
	where := []interface{}{"user_id = ?", userId}
	if len(ids) > 0 {
		where = []interface{}{"user_id = ? AND id IN ?", userId, ids}
	}
	_, err := sdb.sess.SQL().
		Update("notifications").
		Set("is_read = ?", true).
		Where(where...).
		ExecContext(ctx)
	return err
}
