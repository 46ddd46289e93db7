package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/util"
	"go.uber.org/zap"
)

const (
	PostPageSize     = 50
	MaxContentLength = 2000
	MaxMediaUrls     = 4
	// AutoFlagThreshold is the number of reports after which a post leaves the feed
	AutoFlagThreshold = 5
)

type PostServiceOpts struct {
	PageSize          int
	AutoFlagThreshold int
}

type PostService struct {
	db                appDb.Database
	logger            *zap.Logger
	pageSize          int
	autoFlagThreshold int
	// fetching guards FetchPosts so only one fetch runs at a time
	fetching atomic.Bool
}

func NewPostService(db appDb.Database, logger *zap.Logger, opts *PostServiceOpts) *PostService {
	ps := &PostService{
		db:                db,
		logger:            logger,
		pageSize:          PostPageSize,
		autoFlagThreshold: AutoFlagThreshold,
	}
	if opts != nil && opts.PageSize > 0 {
		ps.pageSize = opts.PageSize
	}
	if opts != nil && opts.AutoFlagThreshold > 0 {
		ps.autoFlagThreshold = opts.AutoFlagThreshold
	}
	return ps
}

// FetchPosts returns the newest active top-level posts with their authors.
// A concurrent call returns ErrFetchInProgress instead of issuing a second query.
func (ps *PostService) FetchPosts(ctx context.Context) ([]*model.Post, error) {
	if !ps.fetching.CompareAndSwap(false, true) {
		return nil, ErrFetchInProgress
	}
	defer ps.fetching.Store(false)

	query := &appDb.PostsQuery{Status: model.PostStatusActive, Limit: ps.pageSize}
	posts, err := ps.db.GetPostsWithAuthors(ctx, query)
	if err == nil {
		return posts, nil
	}
	ps.logger.Warn("joined post query failed, retrying without authors", zap.Error(err))

	posts, err = ps.db.GetPosts(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetching posts: %w", err)
	}
	ps.attachAuthors(ctx, posts)
	return posts, nil
}

// attachAuthors looks up each distinct author. Lookup failures leave Author nil.
func (ps *PostService) attachAuthors(ctx context.Context, posts []*model.Post) {
	authors := make(map[string]*model.Author)
	for _, post := range posts {
		author, ok := authors[post.AuthorId]
		if !ok {
			profile, err := ps.db.GetProfile(ctx, post.AuthorId)
			if err != nil {
				ps.logger.Warn("author lookup failed",
					zap.String("authorId", post.AuthorId),
					zap.Error(err))
			}
			if profile != nil {
				author = profile.Author()
			}
			authors[post.AuthorId] = author
		}
		post.Author = author
	}
}

// AttachReplies groups the replies of posts under their parent. ReplyCount is
// set to the number of attached replies.
func (ps *PostService) AttachReplies(ctx context.Context, posts []*model.Post) error {
	if len(posts) == 0 {
		return nil
	}
	parentIds := make([]string, len(posts))
	for i, post := range posts {
		parentIds[i] = post.Id
	}
	replies, err := ps.db.GetReplies(ctx, parentIds)
	if err != nil {
		return fmt.Errorf("fetching replies: %w", err)
	}

	byParent := make(map[string][]*model.Post)
	for _, reply := range replies {
		byParent[reply.ParentId] = append(byParent[reply.ParentId], reply)
	}
	for _, post := range posts {
		post.Replies = byParent[post.Id]
		if post.Replies == nil {
			post.Replies = []*model.Post{} // DON'T return nil slice
		}
		post.ReplyCount = len(post.Replies)
	}
	return nil
}

// GetPost returns a single post with its replies, nil when it does not exist
func (ps *PostService) GetPost(ctx context.Context, id string) (*model.Post, error) {
	post, err := ps.db.GetPostById(ctx, id)
	if err != nil || post == nil {
		return nil, err
	}
	if post.Status == model.PostStatusActive && !post.IsReply() {
		if err := ps.AttachReplies(ctx, []*model.Post{post}); err != nil {
			return nil, err
		}
	}
	return post, nil
}

type NewPost struct {
	Content   string
	MediaUrls []string
	Category  model.Category
	PostType  model.PostType
}

func (ps *PostService) CreatePost(ctx context.Context, user *model.Profile, req *NewPost) (*model.Post, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	content, err := cleanContent(req.Content)
	if err != nil {
		return nil, err
	}
	if len(req.MediaUrls) > MaxMediaUrls {
		return nil, fmt.Errorf("%w: at most %v are allowed", ErrTooManyMedia, MaxMediaUrls)
	}
	post, err := ps.db.CreatePost(ctx, &appDb.CreatePost{
		AuthorId:  user.Id,
		Content:   content,
		MediaUrls: req.MediaUrls,
		Category:  model.ParseCategory(string(req.Category)),
		PostType:  model.ParsePostType(string(req.PostType)),
	})
	if err != nil {
		return nil, err
	}
	post.Author = user.Author()
	return post, nil
}

// CreateReply posts content under parentId. The reply inherits the parent's
// category and the parent's author is notified.
func (ps *PostService) CreateReply(ctx context.Context, user *model.Profile, parentId string, content string) (*model.Post, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	content, err := cleanContent(content)
	if err != nil {
		return nil, err
	}
	parent, err := ps.db.GetPostById(ctx, parentId)
	if err != nil {
		return nil, err
	}
	if parent == nil || parent.Status != model.PostStatusActive {
		return nil, ErrNotFound
	}
	if parent.IsReply() {
		return nil, ErrNestedReply
	}

	reply, err := ps.db.CreatePost(ctx, &appDb.CreatePost{
		AuthorId: user.Id,
		Content:  content,
		Category: parent.Category,
		PostType: model.PostTypeOpinion,
		ParentId: parent.Id,
	})
	if err != nil {
		return nil, err
	}
	reply.Author = user.Author()
	notify(ctx, ps.db, ps.logger, &appDb.CreateNotification{
		UserId:   parent.AuthorId,
		Kind:     model.NotificationReply,
		ActorId:  user.Id,
		TargetId: parent.Id,
		Message:  fmt.Sprintf("%v replied to your post", user.DisplayName),
	})
	return reply, nil
}

func (ps *PostService) LikePost(ctx context.Context, user *model.Profile, postId string) (*model.Like, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	existing, err := ps.db.GetLike(ctx, postId, user.Id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyLiked
	}
	post, err := ps.db.GetPostById(ctx, postId)
	if err != nil {
		return nil, err
	}
	if post == nil || post.Status == model.PostStatusDeleted {
		return nil, ErrNotFound
	}

	like, err := ps.db.CreateLike(ctx, postId, user.Id)
	if err != nil {
		if appDb.IsDupKeyErr(err) {
			return nil, ErrAlreadyLiked
		}
		return nil, err
	}
	notify(ctx, ps.db, ps.logger, &appDb.CreateNotification{
		UserId:   post.AuthorId,
		Kind:     model.NotificationLike,
		ActorId:  user.Id,
		TargetId: post.Id,
		Message:  fmt.Sprintf("%v liked your post", user.DisplayName),
	})
	return like, nil
}

// FlagContent reports a post or poll. A post reaching the auto-flag threshold
// is moved to flagged and disappears from the feed until reviewed.
func (ps *PostService) FlagContent(ctx context.Context, user *model.Profile, target model.FlagTarget, targetId string, reason string) (*model.Flag, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	reason = strings.TrimSpace(util.XSSSanitize(reason))
	if reason == "" {
		return nil, ErrEmptyContent
	}

	switch target {
	case model.FlagTargetPost:
		post, err := ps.db.GetPostById(ctx, targetId)
		if err != nil {
			return nil, err
		}
		if post == nil {
			return nil, ErrNotFound
		}
	case model.FlagTargetPoll:
		poll, err := ps.db.GetPollById(ctx, targetId)
		if err != nil {
			return nil, err
		}
		if poll == nil {
			return nil, ErrNotFound
		}
	default:
		return nil, fmt.Errorf("unknown flag target %q", target)
	}

	flag, err := ps.db.CreateFlag(ctx, &appDb.CreateFlag{
		TargetType: target,
		TargetId:   targetId,
		ReporterId: user.Id,
		Reason:     reason,
	})
	if err != nil {
		if appDb.IsDupKeyErr(err) {
			return nil, ErrAlreadyFlagged
		}
		return nil, err
	}

	if target == model.FlagTargetPost {
		ps.autoFlag(ctx, targetId)
	}
	return flag, nil
}

func (ps *PostService) autoFlag(ctx context.Context, postId string) {
	post, err := ps.db.GetPostById(ctx, postId)
	if err != nil || post == nil {
		return
	}
	if post.Status != model.PostStatusActive || post.FlagCount < ps.autoFlagThreshold {
		return
	}
	if err := ps.db.UpdatePostStatus(ctx, postId, model.PostStatusFlagged); err != nil {
		ps.logger.Warn("failed to auto flag post", zap.String("postId", postId), zap.Error(err))
		return
	}
	ps.logger.Info("post auto flagged",
		zap.String("postId", postId),
		zap.Int("flagCount", post.FlagCount))
}

// DeletePost soft deletes a post. Only the author or an admin may delete.
func (ps *PostService) DeletePost(ctx context.Context, user *model.Profile, postId string) error {
	if user == nil {
		return ErrNotAuthenticated
	}
	post, err := ps.db.GetPostById(ctx, postId)
	if err != nil {
		return err
	}
	if post == nil || post.Status == model.PostStatusDeleted {
		return ErrNotFound
	}
	if !post.CanDelete(user) {
		return ErrForbidden
	}
	return ps.db.MarkPostAsDeleted(ctx, postId)
}

func cleanContent(content string) (string, error) {
	content = strings.TrimSpace(util.XSSSanitize(content))
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrContentTooLong
	}
	return content, nil
}

// notify records a notification for userId. Self actions are skipped and
// failures are logged only.
func notify(ctx context.Context, db appDb.SocialDatabase, logger *zap.Logger, req *appDb.CreateNotification) {
	if req.UserId == "" || req.UserId == req.ActorId {
		return
	}
	if _, err := db.CreateNotification(ctx, req); err != nil {
		logger.Warn("failed to create notification",
			zap.String("userId", req.UserId),
			zap.String("kind", string(req.Kind)),
			zap.Error(err))
	}
}
