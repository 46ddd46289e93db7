package sqlstore

import (
	"context"
	"database/sql"
	"time"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/google/uuid"
	"github.com/upper/db/v4"
)

type EngagementDB struct {
	*base
}

type flattenedLike struct {
	Id        string    `db:"id"`
	PostId    string    `db:"post_id"`
	UserId    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (edb *EngagementDB) GetLike(ctx context.Context, postId string, userId string) (*model.Like, error) {
	var like flattenedLike
	if err := edb.sess.SQL().
		Select("id", "post_id", "user_id", "created_at").
		From("likes").
		Where("post_id = ? AND user_id = ?", postId, userId).
		IteratorContext(ctx).
		One(&like); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &model.Like{
		Id:        like.Id,
		PostId:    like.PostId,
		UserId:    like.UserId,
		CreatedAt: like.CreatedAt,
	}, nil
}

func (edb *EngagementDB) CreateLike(ctx context.Context, postId string, userId string) (*model.Like, error) {
	like := &model.Like{
		Id:        uuid.NewString(),
		PostId:    postId,
		UserId:    userId,
		CreatedAt: edb.timestamp(),
	}
	err := edb.sess.TxContext(ctx, func(sess db.Session) error {
		res, err := sess.SQL().
			Update("posts").
			Set("like_count = like_count + ?", 1).
			Where("id = ?", postId).
			ExecContext(ctx)
		if err != nil {
			return err
		}
		if affected, err := res.RowsAffected(); err == nil && affected == 0 {
			return appDb.ErrNotFound
		}
		_, err = sess.SQL().
			InsertInto("likes").
			Columns("id", "post_id", "user_id", "created_at").
			Values(like.Id, like.PostId, like.UserId, like.CreatedAt).
			ExecContext(ctx)
		return err
	}, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}

	edb.publish(ctx, realtime.TableLikes, realtime.EventInsert, like)
	return like, nil
}
