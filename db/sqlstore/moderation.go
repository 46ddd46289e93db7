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

type ModerationDB struct {
	*base
}

type flattenedFlag struct {
	Id         string    `db:"id"`
	TargetType string    `db:"target_type"`
	TargetId   string    `db:"target_id"`
	ReporterId string    `db:"reporter_id"`
	Reason     string    `db:"reason"`
	Status     string    `db:"status"`
	ReviewedBy string    `db:"reviewed_by"`
	CreatedAt  time.Time `db:"created_at"`
}

func (ff *flattenedFlag) toFlag() *model.Flag {
	status, ok := model.ParseFlagStatus(ff.Status)
	if !ok {
		status = model.FlagStatusPending
	}
	return &model.Flag{
		Id:         ff.Id,
		TargetType: model.FlagTarget(ff.TargetType),
		TargetId:   ff.TargetId,
		ReporterId: ff.ReporterId,
		Reason:     ff.Reason,
		Status:     status,
		ReviewedBy: ff.ReviewedBy,
		CreatedAt:  ff.CreatedAt,
	}
}

var flagColumns = []interface{}{
	"id",
	"target_type",
	"target_id",
	"reporter_id",
	"reason",
	"status",
	"reviewed_by",
	"created_at",
}

func (mdb *ModerationDB) CreateFlag(ctx context.Context, req *appDb.CreateFlag) (*model.Flag, error) {
	flag := &model.Flag{
		Id:         uuid.NewString(),
		TargetType: req.TargetType,
		TargetId:   req.TargetId,
		ReporterId: req.ReporterId,
		Reason:     req.Reason,
		Status:     model.FlagStatusPending,
		CreatedAt:  mdb.timestamp(),
	}
	err := mdb.sess.TxContext(ctx, func(sess db.Session) error {
		if _, err := sess.SQL().
			InsertInto("flags").
			Columns(columnNames(flagColumns)...).
			Values(flag.Id, flag.TargetType, flag.TargetId, flag.ReporterId, flag.Reason, flag.Status, "", flag.CreatedAt).
			ExecContext(ctx); err != nil {
			return err
		}
		if flag.TargetType != model.FlagTargetPost {
			return nil
		}
		_, err := sess.SQL().
			Update("posts").
			Set("flag_count = flag_count + ?", 1).
			Where("id = ?", flag.TargetId).
			ExecContext(ctx)
		return err
	}, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}

	mdb.publish(ctx, realtime.TableFlags, realtime.EventInsert, flag)
	return flag, nil
}

// GetFlags returns flags newest first. An empty status returns every flag.
func (mdb *ModerationDB) GetFlags(ctx context.Context, status model.FlagStatus) ([]*model.Flag, error) {
	var where []interface{}
	if status != "" {
		where = []interface{}{"status = ?", status}
	}
	var flattened []flattenedFlag
	if err := mdb.sess.SQL().
		Select(flagColumns...).
		From("flags").
		Where(where...).
		OrderBy("created_at DESC", "id DESC").
		IteratorContext(ctx).
		All(&flattened); err != nil {
		return nil, err
	}
	flags := make([]*model.Flag, len(flattened))
	for i := range flattened {
		flags[i] = flattened[i].toFlag()
	}
	return flags, nil
}

func (mdb *ModerationDB) GetFlagById(ctx context.Context, id string) (*model.Flag, error) {
	var flattened flattenedFlag
	if err := mdb.sess.SQL().
		Select(flagColumns...).
		From("flags").
		Where("id = ?", id).
		IteratorContext(ctx).
		One(&flattened); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return flattened.toFlag(), nil
}

func (mdb *ModerationDB) UpdateFlagStatus(ctx context.Context, id string, status model.FlagStatus, reviewerId string) error {
	if _, err := mdb.sess.SQL().
		Update("flags").
		Set("status = ?, reviewed_by = ?", status, reviewerId).
		Where("id = ?", id).
		ExecContext(ctx); err != nil {
		return err
	}
	mdb.publish(ctx, realtime.TableFlags, realtime.EventUpdate, map[string]interface{}{
		"id":     id,
		"status": status,
	})
	return nil
}
