package services

import (
	"context"
	"fmt"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/model"
	"go.uber.org/zap"
)

const NotificationPageSize = 50

type SocialService struct {
	db     appDb.Database
	logger *zap.Logger
}

func NewSocialService(db appDb.Database, logger *zap.Logger) *SocialService {
	return &SocialService{db: db, logger: logger}
}

// Follow is idempotent. Following an account twice is not an error.
func (ss *SocialService) Follow(ctx context.Context, user *model.Profile, targetId string) error {
	if user == nil {
		return ErrNotAuthenticated
	}
	if user.Id == targetId {
		return ErrSelfFollow
	}
	target, err := ss.db.GetProfile(ctx, targetId)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrNotFound
	}
	if err := ss.db.CreateFollow(ctx, user.Id, targetId); err != nil {
		if appDb.IsDupKeyErr(err) {
			return nil
		}
		return err
	}
	notify(ctx, ss.db, ss.logger, &appDb.CreateNotification{
		UserId:   targetId,
		Kind:     model.NotificationFollow,
		ActorId:  user.Id,
		TargetId: user.Id,
		Message:  fmt.Sprintf("%v started following you", user.DisplayName),
	})
	return nil
}

func (ss *SocialService) Unfollow(ctx context.Context, user *model.Profile, targetId string) error {
	if user == nil {
		return ErrNotAuthenticated
	}
	return ss.db.DeleteFollow(ctx, user.Id, targetId)
}

func (ss *SocialService) Following(ctx context.Context, user *model.Profile) ([]*model.Follow, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	return ss.db.GetFollowing(ctx, user.Id)
}

// FollowingIds returns the ids the user follows, including the user's own id
func (ss *SocialService) FollowingIds(ctx context.Context, user *model.Profile) ([]string, error) {
	follows, err := ss.Following(ctx, user)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(follows)+1)
	ids = append(ids, user.Id)
	for _, follow := range follows {
		ids = append(ids, follow.FollowingId)
	}
	return ids, nil
}

func (ss *SocialService) Notifications(ctx context.Context, user *model.Profile, unreadOnly bool) ([]*model.Notification, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	return ss.db.GetNotifications(ctx, user.Id, unreadOnly, NotificationPageSize)
}

// MarkRead marks the given notifications read. No ids marks every notification.
func (ss *SocialService) MarkRead(ctx context.Context, user *model.Profile, ids []string) error {
	if user == nil {
		return ErrNotAuthenticated
	}
	return ss.db.MarkNotificationsRead(ctx, user.Id, ids)
}
