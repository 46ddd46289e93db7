package routes

import (
	"net/http"

	"github.com/civicconnect/civic-connect-be/controllers"
	"github.com/civicconnect/civic-connect-be/middleware"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/services"
	"github.com/civicconnect/civic-connect-be/util"
	"github.com/gin-gonic/gin"
)

type postRoutes struct {
	posts *services.PostService
	feed  *controllers.FeedController
}

func AddPostRoutes(group *gin.RouterGroup, authenticator middleware.Authenticator, posts *services.PostService, feed *controllers.FeedController) {
	routes := postRoutes{posts, feed}
	auth := middleware.GenAuth(authenticator, &middleware.AuthConfig{SessionNotRequired: true})
	mustAuth := middleware.RequireAccount()

	postGroup := group.Group("/posts", auth)
	postGroup.GET("", util.HandlerWrapper(routes.getPosts, &util.HandlerOpts{}))
	postGroup.GET("/:id", util.HandlerWrapper(routes.getPostById, &util.HandlerOpts{}))
	postGroup.POST("", mustAuth, util.HandlerWrapper(routes.createPost, &util.HandlerOpts{SuccessStatus: http.StatusCreated}))
	postGroup.POST("/:id/replies", mustAuth, util.HandlerWrapper(routes.createReply, &util.HandlerOpts{SuccessStatus: http.StatusCreated}))
	postGroup.POST("/:id/like", mustAuth, util.HandlerWrapper(routes.likePost, &util.HandlerOpts{}))
	postGroup.POST("/:id/flag", mustAuth, util.HandlerWrapper(routes.flagPost, &util.HandlerOpts{}))
	postGroup.DELETE("/:id", mustAuth, util.HandlerWrapper(routes.deletePost, &util.HandlerOpts{}))
}

// getPosts serves the controller snapshot, kept fresh by the change feed
func (pr *postRoutes) getPosts(c *gin.Context) (interface{}, *util.HTTPError) {
	posts := pr.feed.Posts()
	if raw := c.Query("category"); raw != "" {
		category := model.ParseCategory(raw)
		filtered := []*model.Post{} // DON'T return nil slice
		for _, post := range posts {
			if post.Category == category {
				filtered = append(filtered, post)
			}
		}
		posts = filtered
	}
	return posts, nil
}

func (pr *postRoutes) getPostById(c *gin.Context) (interface{}, *util.HTTPError) {
	id, httpErr := util.ParseId(c.Param("id"))
	if httpErr != nil {
		return nil, httpErr
	}
	if post := pr.feed.Post(id); post != nil {
		return post, nil
	}
	post, err := pr.posts.GetPost(c, id)
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	// moderated posts stay visible to admins only
	if post == nil || (post.Status != model.PostStatusActive && !middleware.GetUserMaybe(c).IsAdmin()) {
		return nil, &util.NotFoundHTTPErr
	}
	return post, nil
}

type createPostReq struct {
	Content   string         `json:"content"`
	MediaUrls []string       `json:"mediaUrls"`
	Category  model.Category `json:"category"`
	PostType  model.PostType `json:"postType"`
}

func (pr *postRoutes) createPost(c *gin.Context) (interface{}, *util.HTTPError) {
	var req createPostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	post, err := pr.posts.CreatePost(c, middleware.MustGetUser(c), &services.NewPost{
		Content:   req.Content,
		MediaUrls: req.MediaUrls,
		Category:  req.Category,
		PostType:  req.PostType,
	})
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return post, nil
}

type createReplyReq struct {
	Content string `json:"content"`
}

func (pr *postRoutes) createReply(c *gin.Context) (interface{}, *util.HTTPError) {
	parentId, httpErr := util.ParseId(c.Param("id"))
	if httpErr != nil {
		return nil, httpErr
	}
	var req createReplyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	reply, err := pr.posts.CreateReply(c, middleware.MustGetUser(c), parentId, req.Content)
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return reply, nil
}

func (pr *postRoutes) likePost(c *gin.Context) (interface{}, *util.HTTPError) {
	id, httpErr := util.ParseId(c.Param("id"))
	if httpErr != nil {
		return nil, httpErr
	}
	like, err := pr.posts.LikePost(c, middleware.MustGetUser(c), id)
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return like, nil
}

type flagReq struct {
	Reason string `json:"reason"`
}

func flagContent(c *gin.Context, posts *services.PostService, target model.FlagTarget) (interface{}, *util.HTTPError) {
	id, httpErr := util.ParseId(c.Param("id"))
	if httpErr != nil {
		return nil, httpErr
	}
	var req flagReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	flag, err := posts.FlagContent(c, middleware.MustGetUser(c), target, id, req.Reason)
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return flag, nil
}

func (pr *postRoutes) flagPost(c *gin.Context) (interface{}, *util.HTTPError) {
	return flagContent(c, pr.posts, model.FlagTargetPost)
}

func (pr *postRoutes) deletePost(c *gin.Context) (interface{}, *util.HTTPError) {
	id, httpErr := util.ParseId(c.Param("id"))
	if httpErr != nil {
		return nil, httpErr
	}
	if err := pr.posts.DeletePost(c, middleware.MustGetUser(c), id); err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return nil, nil
}
