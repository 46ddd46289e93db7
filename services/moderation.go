package services

import (
	"context"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/model"
	"go.uber.org/zap"
)

// ModerationService is the admin side of flags. Every call requires an admin.
type ModerationService struct {
	db     appDb.Database
	logger *zap.Logger
}

func NewModerationService(db appDb.Database, logger *zap.Logger) *ModerationService {
	return &ModerationService{db: db, logger: logger}
}

func requireAdmin(user *model.Profile) error {
	if user == nil {
		return ErrNotAuthenticated
	}
	if !user.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

func (ms *ModerationService) ListFlags(ctx context.Context, user *model.Profile, status model.FlagStatus) ([]*model.Flag, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}
	return ms.db.GetFlags(ctx, status)
}

// ReviewFlag closes a pending flag. Reviewing with hide set hides the flagged
// post; dismissing restores a post that was auto flagged.
func (ms *ModerationService) ReviewFlag(ctx context.Context, user *model.Profile, flagId string, status model.FlagStatus, hide bool) (*model.Flag, error) {
	if err := requireAdmin(user); err != nil {
		return nil, err
	}
	if status == model.FlagStatusPending {
		return nil, ErrForbidden
	}
	flag, err := ms.db.GetFlagById(ctx, flagId)
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, ErrNotFound
	}
	if err := ms.db.UpdateFlagStatus(ctx, flagId, status, user.Id); err != nil {
		return nil, err
	}
	flag.Status = status
	flag.ReviewedBy = user.Id

	if flag.TargetType != model.FlagTargetPost {
		return flag, nil
	}
	post, err := ms.db.GetPostById(ctx, flag.TargetId)
	if err != nil || post == nil {
		return flag, err
	}
	switch {
	case status == model.FlagStatusReviewed && hide && post.Status != model.PostStatusDeleted:
		err = ms.db.UpdatePostStatus(ctx, post.Id, model.PostStatusHidden)
	case status == model.FlagStatusDismissed && post.Status == model.PostStatusFlagged:
		err = ms.db.UpdatePostStatus(ctx, post.Id, model.PostStatusActive)
	}
	if err != nil {
		return nil, err
	}
	ms.logger.Info("flag reviewed",
		zap.String("flagId", flag.Id),
		zap.String("status", string(status)),
		zap.String("reviewer", user.Id))
	return flag, nil
}

func (ms *ModerationService) SetPostStatus(ctx context.Context, user *model.Profile, postId string, status model.PostStatus) error {
	if err := requireAdmin(user); err != nil {
		return err
	}
	post, err := ms.db.GetPostById(ctx, postId)
	if err != nil {
		return err
	}
	if post == nil {
		return ErrNotFound
	}
	if status == model.PostStatusDeleted {
		return ms.db.MarkPostAsDeleted(ctx, postId)
	}
	return ms.db.UpdatePostStatus(ctx, postId, status)
}
