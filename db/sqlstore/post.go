package sqlstore

import (
	"context"
	"database/sql"
	"time"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/db/dao"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/google/uuid"
	"github.com/upper/db/v4"
)

type PostDB struct {
	*base
}

type flattenedPost struct {
	Id            string         `db:"id"`
	AuthorId      string         `db:"author_id"`
	Content       string         `db:"content"`
	MediaUrlsJSON string         `db:"media_urls"`
	Category      string         `db:"category"`
	PostType      string         `db:"post_type"`
	ParentId      dao.NullString `db:"parent_id"`
	LikeCount     int            `db:"like_count"`
	ReplyCount    int            `db:"reply_count"`
	RepostCount   int            `db:"repost_count"`
	FlagCount     int            `db:"flag_count"`
	Status        string         `db:"status"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

type flattenedPostWithAuthor struct {
	flattenedPost   `db:",inline"`
	flattenedAuthor `db:",inline"`
}

var postColumns = []interface{}{
	"p.id",
	"p.author_id",
	"p.content",
	"p.media_urls",
	"p.category",
	"p.post_type",
	"p.parent_id",
	"p.like_count",
	"p.reply_count",
	"p.repost_count",
	"p.flag_count",
	"p.status",
	"p.created_at",
	"p.updated_at",
}

var postWithAuthorColumns = concatColumns(postColumns, authorColumns("pr"))

func buildPostFromFlattened(post *flattenedPost) (*model.Post, error) {
	mediaUrls := []string{}
	if err := unmarshalJSONColumn(post.MediaUrlsJSON, &mediaUrls); err != nil {
		return nil, err
	}
	status, ok := model.ParsePostStatus(post.Status)
	if !ok {
		status = model.PostStatusHidden
	}
	return &model.Post{
		Id:          post.Id,
		AuthorId:    post.AuthorId,
		Content:     post.Content,
		MediaUrls:   mediaUrls,
		Category:    model.ParseCategory(post.Category),
		PostType:    model.ParsePostType(post.PostType),
		ParentId:    post.ParentId.AsString(),
		LikeCount:   post.LikeCount,
		ReplyCount:  post.ReplyCount,
		RepostCount: post.RepostCount,
		FlagCount:   post.FlagCount,
		Status:      status,
		CreatedAt:   post.CreatedAt,
		UpdatedAt:   post.UpdatedAt,
	}, nil
}

func buildPostsWithAuthors(flattened []flattenedPostWithAuthor) ([]*model.Post, error) {
	posts := make([]*model.Post, len(flattened))
	for i := range flattened {
		post, err := buildPostFromFlattened(&flattened[i].flattenedPost)
		if err != nil {
			return nil, err
		}
		post.Author = flattened[i].flattenedAuthor.toAuthor(post.AuthorId)
		posts[i] = post
	}
	return posts, nil
}

func statusOrActive(status model.PostStatus) model.PostStatus {
	if status == "" {
		return model.PostStatusActive
	}
	return status
}

func (pdb *PostDB) GetPostsWithAuthors(ctx context.Context, query *appDb.PostsQuery) ([]*model.Post, error) {
	var flattened []flattenedPostWithAuthor
	if err := pdb.sess.SQL().
		Select(postWithAuthorColumns...).
		From("posts AS p").
		LeftJoin("profiles AS pr").On("p.author_id = pr.id").
		Where("p.parent_id IS NULL AND p.status = ?", statusOrActive(query.Status)).
		OrderBy("p.created_at DESC", "p.id DESC").
		Limit(query.Limit).
		IteratorContext(ctx).
		All(&flattened); err != nil {
		return nil, err
	}
	return buildPostsWithAuthors(flattened)
}

func (pdb *PostDB) GetPosts(ctx context.Context, query *appDb.PostsQuery) ([]*model.Post, error) {
	var flattened []flattenedPost
	if err := pdb.sess.SQL().
		Select(postColumns...).
		From("posts AS p").
		Where("p.parent_id IS NULL AND p.status = ?", statusOrActive(query.Status)).
		OrderBy("p.created_at DESC", "p.id DESC").
		Limit(query.Limit).
		IteratorContext(ctx).
		All(&flattened); err != nil {
		return nil, err
	}
	posts := make([]*model.Post, len(flattened))
	for i := range flattened {
		post, err := buildPostFromFlattened(&flattened[i])
		if err != nil {
			return nil, err
		}
		posts[i] = post
	}
	return posts, nil
}

func (pdb *PostDB) GetReplies(ctx context.Context, parentIds []string) ([]*model.Post, error) {
	if len(parentIds) == 0 {
		return []*model.Post{}, nil
	}
	var flattened []flattenedPostWithAuthor
	if err := pdb.sess.SQL().
		Select(postWithAuthorColumns...).
		From("posts AS p").
		LeftJoin("profiles AS pr").On("p.author_id = pr.id").
		Where("p.parent_id IN ?", parentIds).
		And("p.status = ?", model.PostStatusActive).
		OrderBy("p.created_at", "p.id").
		IteratorContext(ctx).
		All(&flattened); err != nil {
		return nil, err
	}
	return buildPostsWithAuthors(flattened)
}

func (pdb *PostDB) GetPostById(ctx context.Context, id string) (*model.Post, error) {
	var flattened flattenedPostWithAuthor
	if err := pdb.sess.SQL().
		Select(postWithAuthorColumns...).
		From("posts AS p").
		LeftJoin("profiles AS pr").On("p.author_id = pr.id").
		Where("p.id = ?", id).
		IteratorContext(ctx).
		One(&flattened); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	posts, err := buildPostsWithAuthors([]flattenedPostWithAuthor{flattened})
	if err != nil {
		return nil, err
	}
	return posts[0], nil
}

func (pdb *PostDB) CreatePost(ctx context.Context, req *appDb.CreatePost) (*model.Post, error) {
	mediaUrls := req.MediaUrls
	if mediaUrls == nil {
		mediaUrls = []string{}
	}
	mediaJSON, err := marshalJSONColumn(mediaUrls)
	if err != nil {
		return nil, err
	}
	now := pdb.timestamp()
	post := &model.Post{
		Id:        uuid.NewString(),
		AuthorId:  req.AuthorId,
		Content:   req.Content,
		MediaUrls: mediaUrls,
		Category:  req.Category,
		PostType:  req.PostType,
		ParentId:  req.ParentId,
		Status:    model.PostStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = pdb.sess.TxContext(ctx, func(sess db.Session) error {
		if _, err := sess.SQL().
			InsertInto("posts").
			Columns("id", "author_id", "content", "media_urls", "category", "post_type", "parent_id", "status", "created_at", "updated_at").
			Values(post.Id, post.AuthorId, post.Content, mediaJSON, post.Category, post.PostType, dao.NewNullString(post.ParentId), post.Status, now, now).
			ExecContext(ctx); err != nil {
			return err
		}
		if !post.IsReply() {
			return nil
		}
		_, err := sess.SQL().
			Update("posts").
			Set("reply_count = reply_count + ?, updated_at = ?", 1, now).
			Where("id = ?", post.ParentId).
			ExecContext(ctx)
		return err
	}, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}

	pdb.publish(ctx, realtime.TablePosts, realtime.EventInsert, post)
	return post, nil
}

func (pdb *PostDB) UpdatePostStatus(ctx context.Context, id string, status model.PostStatus) error {
	if _, err := pdb.sess.SQL().
		Update("posts").
		Set("status = ?, updated_at = ?", status, pdb.timestamp()).
		Where("id = ?", id).
		ExecContext(ctx); err != nil {
		return err
	}
	pdb.publish(ctx, realtime.TablePosts, realtime.EventUpdate, map[string]interface{}{
		"id":     id,
		"status": status,
	})
	return nil
}

// MarkPostAsDeleted keeps the row for reply threading but drops its content
func (pdb *PostDB) MarkPostAsDeleted(ctx context.Context, id string) error {
	if _, err := pdb.sess.SQL().
		Update("posts").
		Set("status = ?, content = ?, media_urls = ?, updated_at = ?", model.PostStatusDeleted, "", "[]", pdb.timestamp()).
		Where("id = ?", id).
		ExecContext(ctx); err != nil {
		return err
	}
	pdb.publish(ctx, realtime.TablePosts, realtime.EventDelete, map[string]interface{}{"id": id})
	return nil
}
