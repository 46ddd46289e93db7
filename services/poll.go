package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/util"
	"go.uber.org/zap"
)

const (
	PollPageSize      = 50
	MinPollOptions    = 2
	MaxPollOptions    = 10
	MaxQuestionLength = 300
)

type PollService struct {
	db     appDb.Database
	logger *zap.Logger
	now    func() time.Time
}

func NewPollService(db appDb.Database, logger *zap.Logger) *PollService {
	return &PollService{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// FetchPolls returns the active polls newest first, with their creators
// joined from a single batched profile lookup
func (ps *PollService) FetchPolls(ctx context.Context) ([]*model.Poll, error) {
	polls, err := ps.db.GetPolls(ctx, &appDb.PollsQuery{Status: model.PollStatusActive, Limit: PollPageSize})
	if err != nil {
		return nil, fmt.Errorf("fetching polls: %w", err)
	}
	if len(polls) == 0 {
		return polls, nil
	}

	seen := make(map[string]bool)
	var creatorIds []string
	for _, poll := range polls {
		if !seen[poll.CreatorId] {
			seen[poll.CreatorId] = true
			creatorIds = append(creatorIds, poll.CreatorId)
		}
	}
	profiles, err := ps.db.GetProfilesByIds(ctx, creatorIds)
	if err != nil {
		// polls are still usable without creator details
		ps.logger.Warn("creator lookup failed", zap.Error(err))
		return polls, nil
	}
	creators := make(map[string]*model.Author, len(profiles))
	for _, profile := range profiles {
		creators[profile.Id] = profile.Author()
	}
	for _, poll := range polls {
		poll.Creator = creators[poll.CreatorId]
	}
	return polls, nil
}

type NewPoll struct {
	Question  string
	Options   []string
	ExpiresAt *time.Time
}

func (ps *PollService) CreatePoll(ctx context.Context, user *model.Profile, req *NewPoll) (*model.Poll, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	question := strings.TrimSpace(util.XSSSanitize(req.Question))
	if question == "" || utf8.RuneCountInString(question) > MaxQuestionLength {
		return nil, fmt.Errorf("%w: question must be between 1 and %v characters", ErrInvalidPoll, MaxQuestionLength)
	}

	seen := make(map[string]bool)
	options := make([]string, 0, len(req.Options))
	for _, option := range req.Options {
		option = strings.TrimSpace(util.XSSSanitize(option))
		if option == "" || seen[strings.ToLower(option)] {
			continue
		}
		seen[strings.ToLower(option)] = true
		options = append(options, option)
	}
	if len(options) < MinPollOptions || len(options) > MaxPollOptions {
		return nil, fmt.Errorf("%w: between %v and %v distinct options are required", ErrInvalidPoll, MinPollOptions, MaxPollOptions)
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(ps.now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", ErrInvalidPoll)
	}

	poll, err := ps.db.CreatePoll(ctx, &appDb.CreatePoll{
		CreatorId: user.Id,
		Question:  question,
		Options:   options,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	poll.Creator = user.Author()
	return poll, nil
}

// SubmitVote records a single vote per user and poll. The prior vote check
// runs first; the store's unique constraint catches concurrent submissions.
func (ps *PollService) SubmitVote(ctx context.Context, user *model.Profile, pollId string, optionId string) (*model.Vote, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	poll, err := ps.db.GetPollById(ctx, pollId)
	if err != nil {
		return nil, err
	}
	if poll == nil {
		return nil, ErrNotFound
	}
	if !poll.IsOpen(ps.now()) {
		return nil, ErrPollClosed
	}
	if poll.Option(optionId) == nil {
		return nil, ErrInvalidOption
	}

	existing, err := ps.db.GetVote(ctx, pollId, user.Id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyVoted
	}

	vote, err := ps.db.RecordVote(ctx, &appDb.CreateVote{
		PollId:   pollId,
		VoterId:  user.Id,
		OptionId: optionId,
	})
	if err != nil {
		if appDb.IsDupKeyErr(err) {
			return nil, ErrAlreadyVoted
		}
		if errors.Is(err, appDb.ErrNotFound) {
			return nil, ErrInvalidOption
		}
		return nil, err
	}
	return vote, nil
}

// FetchUserVotes maps poll ids to the option the user voted for
func (ps *PollService) FetchUserVotes(ctx context.Context, user *model.Profile) (map[string]string, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	votes, err := ps.db.GetVotesByVoter(ctx, user.Id)
	if err != nil {
		return nil, err
	}
	byPoll := make(map[string]string, len(votes))
	for _, vote := range votes {
		byPoll[vote.PollId] = vote.OptionId
	}
	return byPoll, nil
}

// ClosePoll is allowed for the poll's creator and for admins
func (ps *PollService) ClosePoll(ctx context.Context, user *model.Profile, pollId string) error {
	if user == nil {
		return ErrNotAuthenticated
	}
	poll, err := ps.db.GetPollById(ctx, pollId)
	if err != nil {
		return err
	}
	if poll == nil {
		return ErrNotFound
	}
	if poll.CreatorId != user.Id && !user.IsAdmin() {
		return ErrForbidden
	}
	if poll.Status != model.PollStatusActive {
		return ErrPollClosed
	}
	return ps.db.UpdatePollStatus(ctx, pollId, model.PollStatusClosed)
}

// CloseExpired closes every active poll whose expiry has passed
func (ps *PollService) CloseExpired(ctx context.Context) ([]string, error) {
	return ps.db.CloseExpiredPolls(ctx, ps.now())
}
