package db

import (
	"context"
	"time"

	"github.com/civicconnect/civic-connect-be/model"
)

type Database interface {
	ProfileDatabase
	PostDatabase
	PollDatabase
	EngagementDatabase
	ModerationDatabase
	SocialDatabase
	Close() error
}

type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
	Location    *string
	Role        *model.Role
	IsVerified  *bool
}

// ProfileDatabase getters return nil, nil when the profile does not exist
type ProfileDatabase interface {
	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	GetProfilesByIds(ctx context.Context, ids []string) ([]*model.Profile, error)
	CreateProfile(ctx context.Context, profile *model.Profile) error
	UpdateProfile(ctx context.Context, id string, update *ProfileUpdate) error
}

type PostsQuery struct {
	Status model.PostStatus
	Limit  int
}

type CreatePost struct {
	AuthorId  string
	Content   string
	MediaUrls []string
	Category  model.Category
	PostType  model.PostType
	ParentId  string
}

type PostDatabase interface {
	// GetPostsWithAuthors returns top-level posts joined with their author profile, newest first
	GetPostsWithAuthors(ctx context.Context, query *PostsQuery) ([]*model.Post, error)
	// GetPosts returns top-level posts without author data, newest first
	GetPosts(ctx context.Context, query *PostsQuery) ([]*model.Post, error)
	GetReplies(ctx context.Context, parentIds []string) ([]*model.Post, error)
	GetPostById(ctx context.Context, id string) (*model.Post, error)
	// CreatePost also bumps the parent's reply count when ParentId is set
	CreatePost(ctx context.Context, req *CreatePost) (*model.Post, error)
	UpdatePostStatus(ctx context.Context, id string, status model.PostStatus) error
	MarkPostAsDeleted(ctx context.Context, id string) error
}

type PollsQuery struct {
	Status model.PollStatus
	Limit  int
}

type CreatePoll struct {
	CreatorId string
	Question  string
	Options   []string
	ExpiresAt *time.Time
}

type CreateVote struct {
	PollId   string
	VoterId  string
	OptionId string
}

type PollDatabase interface {
	GetPolls(ctx context.Context, query *PollsQuery) ([]*model.Poll, error)
	GetPollById(ctx context.Context, id string) (*model.Poll, error)
	CreatePoll(ctx context.Context, req *CreatePoll) (*model.Poll, error)
	GetVote(ctx context.Context, pollId string, voterId string) (*model.Vote, error)
	GetVotesByVoter(ctx context.Context, voterId string) ([]*model.Vote, error)
	// RecordVote inserts the vote and bumps the option and total counters in one transaction
	RecordVote(ctx context.Context, req *CreateVote) (*model.Vote, error)
	UpdatePollStatus(ctx context.Context, id string, status model.PollStatus) error
	// CloseExpiredPolls closes active polls whose expiry is at or before now and returns their ids
	CloseExpiredPolls(ctx context.Context, now time.Time) ([]string, error)
}

type EngagementDatabase interface {
	GetLike(ctx context.Context, postId string, userId string) (*model.Like, error)
	// CreateLike inserts the like and bumps the post's like count in one transaction
	CreateLike(ctx context.Context, postId string, userId string) (*model.Like, error)
}

type CreateFlag struct {
	TargetType model.FlagTarget
	TargetId   string
	ReporterId string
	Reason     string
}

type ModerationDatabase interface {
	// CreateFlag also bumps the flag count when the target is a post
	CreateFlag(ctx context.Context, req *CreateFlag) (*model.Flag, error)
	GetFlags(ctx context.Context, status model.FlagStatus) ([]*model.Flag, error)
	GetFlagById(ctx context.Context, id string) (*model.Flag, error)
	UpdateFlagStatus(ctx context.Context, id string, status model.FlagStatus, reviewerId string) error
}

type CreateNotification struct {
	UserId   string
	Kind     model.NotificationKind
	ActorId  string
	TargetId string
	Message  string
}

type SocialDatabase interface {
	CreateFollow(ctx context.Context, followerId string, followingId string) error
	DeleteFollow(ctx context.Context, followerId string, followingId string) error
	GetFollowing(ctx context.Context, followerId string) ([]*model.Follow, error)
	CreateNotification(ctx context.Context, req *CreateNotification) (*model.Notification, error)
	GetNotifications(ctx context.Context, userId string, unreadOnly bool, limit int) ([]*model.Notification, error)
	MarkNotificationsRead(ctx context.Context, userId string, ids []string) error
}
