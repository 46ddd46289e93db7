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

type PollDB struct {
	*base
}

type flattenedPoll struct {
	Id          string       `db:"id"`
	CreatorId   string       `db:"creator_id"`
	Question    string       `db:"question"`
	OptionsJSON string       `db:"options"`
	TotalVotes  int          `db:"total_votes"`
	Status      string       `db:"status"`
	ExpiresAt   sql.NullTime `db:"expires_at"`
	CreatedAt   time.Time    `db:"created_at"`
}

var pollColumns = []interface{}{
	"id",
	"creator_id",
	"question",
	"options",
	"total_votes",
	"status",
	"expires_at",
	"created_at",
}

func buildPollFromFlattened(poll *flattenedPoll) (*model.Poll, error) {
	options := []*model.PollOption{}
	if err := unmarshalJSONColumn(poll.OptionsJSON, &options); err != nil {
		return nil, err
	}
	var expiresAt *time.Time
	if poll.ExpiresAt.Valid {
		expiry := poll.ExpiresAt.Time
		expiresAt = &expiry
	}
	return &model.Poll{
		Id:         poll.Id,
		CreatorId:  poll.CreatorId,
		Question:   poll.Question,
		Options:    options,
		TotalVotes: poll.TotalVotes,
		Status:     model.PollStatus(poll.Status),
		ExpiresAt:  expiresAt,
		CreatedAt:  poll.CreatedAt,
	}, nil
}

func (pdb *PollDB) GetPolls(ctx context.Context, query *appDb.PollsQuery) ([]*model.Poll, error) {
	status := query.Status
	if status == "" {
		status = model.PollStatusActive
	}
	var flattened []flattenedPoll
	if err := pdb.sess.SQL().
		Select(pollColumns...).
		From("polls").
		Where("status = ?", status).
		OrderBy("created_at DESC", "id DESC").
		Limit(query.Limit).
		IteratorContext(ctx).
		All(&flattened); err != nil {
		return nil, err
	}
	polls := make([]*model.Poll, len(flattened))
	for i := range flattened {
		poll, err := buildPollFromFlattened(&flattened[i])
		if err != nil {
			return nil, err
		}
		polls[i] = poll
	}
	return polls, nil
}

func (pdb *PollDB) GetPollById(ctx context.Context, id string) (*model.Poll, error) {
	var flattened flattenedPoll
	if err := pdb.sess.SQL().
		Select(pollColumns...).
		From("polls").
		Where("id = ?", id).
		IteratorContext(ctx).
		One(&flattened); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return buildPollFromFlattened(&flattened)
}

func (pdb *PollDB) CreatePoll(ctx context.Context, req *appDb.CreatePoll) (*model.Poll, error) {
	options := make([]*model.PollOption, len(req.Options))
	for i, text := range req.Options {
		options[i] = &model.PollOption{
			Id:   uuid.NewString(),
			Text: text,
		}
	}
	optionsJSON, err := marshalJSONColumn(options)
	if err != nil {
		return nil, err
	}

	var expiresAt sql.NullTime
	if req.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: req.ExpiresAt.UTC(), Valid: true}
	}
	poll := &model.Poll{
		Id:        uuid.NewString(),
		CreatorId: req.CreatorId,
		Question:  req.Question,
		Options:   options,
		Status:    model.PollStatusActive,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: pdb.timestamp(),
	}
	if _, err := pdb.sess.SQL().
		InsertInto("polls").
		Columns(columnNames(pollColumns)...).
		Values(poll.Id, poll.CreatorId, poll.Question, optionsJSON, 0, poll.Status, expiresAt, poll.CreatedAt).
		ExecContext(ctx); err != nil {
		return nil, err
	}
	pdb.publish(ctx, realtime.TablePolls, realtime.EventInsert, poll)
	return poll, nil
}

type flattenedVote struct {
	Id        string    `db:"id"`
	PollId    string    `db:"poll_id"`
	VoterId   string    `db:"voter_id"`
	OptionId  string    `db:"option_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (fv *flattenedVote) toVote() *model.Vote {
	return &model.Vote{
		Id:        fv.Id,
		PollId:    fv.PollId,
		VoterId:   fv.VoterId,
		OptionId:  fv.OptionId,
		CreatedAt: fv.CreatedAt,
	}
}

var voteColumns = []interface{}{"id", "poll_id", "voter_id", "option_id", "created_at"}

func (pdb *PollDB) GetVote(ctx context.Context, pollId string, voterId string) (*model.Vote, error) {
	var vote flattenedVote
	if err := pdb.sess.SQL().
		Select(voteColumns...).
		From("votes").
		Where("poll_id = ? AND voter_id = ?", pollId, voterId).
		IteratorContext(ctx).
		One(&vote); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return vote.toVote(), nil
}

func (pdb *PollDB) GetVotesByVoter(ctx context.Context, voterId string) ([]*model.Vote, error) {
	var flattened []flattenedVote
	if err := pdb.sess.SQL().
		Select(voteColumns...).
		From("votes").
		Where("voter_id = ?", voterId).
		OrderBy("created_at DESC").
		IteratorContext(ctx).
		All(&flattened); err != nil {
		return nil, err
	}
	votes := make([]*model.Vote, len(flattened))
	for i := range flattened {
		votes[i] = flattened[i].toVote()
	}
	return votes, nil
}

// RecordVote relies on the (poll_id, voter_id) unique key to reject a second
// vote that raced past the caller's pre-check
func (pdb *PollDB) RecordVote(ctx context.Context, req *appDb.CreateVote) (*model.Vote, error) {
	vote := &model.Vote{
		Id:        uuid.NewString(),
		PollId:    req.PollId,
		VoterId:   req.VoterId,
		OptionId:  req.OptionId,
		CreatedAt: pdb.timestamp(),
	}
	err := pdb.sess.TxContext(ctx, func(sess db.Session) error {
		row, err := sess.SQL().QueryRowContext(ctx,
			"SELECT options FROM polls WHERE id = ?"+pdb.forUpdate, req.PollId)
		if err != nil {
			return err
		}
		var optionsJSON string
		if err := row.Scan(&optionsJSON); err != nil {
			if isNoRows(err) {
				return appDb.ErrNotFound
			}
			return err
		}
		var options []*model.PollOption
		if err := unmarshalJSONColumn(optionsJSON, &options); err != nil {
			return err
		}
		found := false
		for _, option := range options {
			if option.Id == req.OptionId {
				option.Votes++
				found = true
			}
		}
		if !found {
			return appDb.ErrNotFound
		}

		if _, err := sess.SQL().
			InsertInto("votes").
			Columns(columnNames(voteColumns)...).
			Values(vote.Id, vote.PollId, vote.VoterId, vote.OptionId, vote.CreatedAt).
			ExecContext(ctx); err != nil {
			return err
		}

		updatedJSON, err := marshalJSONColumn(options)
		if err != nil {
			return err
		}
		_, err = sess.SQL().
			Update("polls").
			Set("options = ?, total_votes = total_votes + ?", updatedJSON, 1).
			Where("id = ?", req.PollId).
			ExecContext(ctx)
		return err
	}, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}

	pdb.publish(ctx, realtime.TableVotes, realtime.EventInsert, vote)
	return vote, nil
}

func (pdb *PollDB) UpdatePollStatus(ctx context.Context, id string, status model.PollStatus) error {
	if _, err := pdb.sess.SQL().
		Update("polls").
		Set("status = ?", status).
		Where("id = ?", id).
		ExecContext(ctx); err != nil {
		return err
	}
	pdb.publish(ctx, realtime.TablePolls, realtime.EventUpdate, map[string]interface{}{
		"id":     id,
		"status": status,
	})
	return nil
}

func (pdb *PollDB) CloseExpiredPolls(ctx context.Context, now time.Time) ([]string, error) {
	var expired []struct {
		Id string `db:"id"`
	}
	if err := pdb.sess.SQL().
		Select("id").
		From("polls").
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", model.PollStatusActive, now.UTC()).
		IteratorContext(ctx).
		All(&expired); err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return []string{}, nil
	}

	ids := make([]string, len(expired))
	for i, row := range expired {
		ids[i] = row.Id
	}
	if _, err := pdb.sess.SQL().
		Update("polls").
		Set("status = ?", model.PollStatusClosed).
		Where("id IN ? AND status = ?", ids, model.PollStatusActive).
		ExecContext(ctx); err != nil {
		return nil, err
	}
	for _, id := range ids {
		pdb.publish(ctx, realtime.TablePolls, realtime.EventUpdate, map[string]interface{}{
			"id":     id,
			"status": model.PollStatusClosed,
		})
	}
	return ids, nil
}
