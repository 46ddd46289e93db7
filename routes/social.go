package routes

import (
	"strconv"

	"github.com/civicconnect/civic-connect-be/middleware"
	"github.com/civicconnect/civic-connect-be/services"
	"github.com/civicconnect/civic-connect-be/util"
	"github.com/gin-gonic/gin"
)

type socialRoutes struct {
	social *services.SocialService
}

func AddSocialRoutes(group *gin.RouterGroup, authenticator middleware.Authenticator, social *services.SocialService) {
	routes := socialRoutes{social}
	auth := middleware.GenAuth(authenticator, &middleware.AuthConfig{})

	users := group.Group("/users", auth, middleware.RequireAccount())
	users.GET("/me/following", util.HandlerWrapper(routes.getFollowing, &util.HandlerOpts{}))
	users.POST("/:id/follow", util.HandlerWrapper(routes.follow, &util.HandlerOpts{}))
	users.DELETE("/:id/follow", util.HandlerWrapper(routes.unfollow, &util.HandlerOpts{}))

	notifications := group.Group("/notifications", auth, middleware.RequireAccount())
	notifications.GET("", util.HandlerWrapper(routes.getNotifications, &util.HandlerOpts{}))
	notifications.POST("/read", util.HandlerWrapper(routes.markRead, &util.HandlerOpts{}))
}

// profile ids come from the auth provider and are not uuids
func (sr *socialRoutes) follow(c *gin.Context) (interface{}, *util.HTTPError) {
	if err := sr.social.Follow(c, middleware.MustGetUser(c), c.Param("id")); err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return nil, nil
}

func (sr *socialRoutes) unfollow(c *gin.Context) (interface{}, *util.HTTPError) {
	if err := sr.social.Unfollow(c, middleware.MustGetUser(c), c.Param("id")); err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return nil, nil
}

func (sr *socialRoutes) getFollowing(c *gin.Context) (interface{}, *util.HTTPError) {
	follows, err := sr.social.Following(c, middleware.MustGetUser(c))
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return follows, nil
}

func (sr *socialRoutes) getNotifications(c *gin.Context) (interface{}, *util.HTTPError) {
	unreadOnly, _ := strconv.ParseBool(c.Query("unread"))
	notifications, err := sr.social.Notifications(c, middleware.MustGetUser(c), unreadOnly)
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return notifications, nil
}

type markReadReq struct {
	Ids []string `json:"ids"`
}

// markRead with no ids marks every notification as read
func (sr *socialRoutes) markRead(c *gin.Context) (interface{}, *util.HTTPError) {
	var req markReadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	if err := sr.social.MarkRead(c, middleware.MustGetUser(c), req.Ids); err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return nil, nil
}
