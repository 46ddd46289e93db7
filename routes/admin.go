package routes

import (
	"net/http"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/controllers"
	"github.com/civicconnect/civic-connect-be/middleware"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/civicconnect/civic-connect-be/services"
	"github.com/civicconnect/civic-connect-be/session"
	"github.com/civicconnect/civic-connect-be/util"
	"github.com/gin-gonic/gin"
)

type adminRoutes struct {
	moderation *services.ModerationService
	sessions   *session.Manager
	mux        *realtime.Multiplexer
	feed       *controllers.FeedController
}

func AddAdminRoutes(group *gin.RouterGroup, sessions *session.Manager, moderation *services.ModerationService, mux *realtime.Multiplexer, feed *controllers.FeedController) {
	routes := adminRoutes{moderation, sessions, mux, feed}
	admin := group.Group("/admin",
		middleware.GenAuth(sessions, &middleware.AuthConfig{}),
		middleware.RequireRole(model.RoleAdmin))
	admin.GET("/flags", util.HandlerWrapper(routes.getFlags, &util.HandlerOpts{}))
	admin.PUT("/flags/:id", util.HandlerWrapper(routes.reviewFlag, &util.HandlerOpts{}))
	admin.PUT("/posts/:id/status", util.HandlerWrapper(routes.setPostStatus, &util.HandlerOpts{}))
	admin.PUT("/users/:id", util.HandlerWrapper(routes.updateUser, &util.HandlerOpts{}))
	admin.GET("/health", util.HandlerWrapper(routes.health, &util.HandlerOpts{}))
}

func (ar *adminRoutes) getFlags(c *gin.Context) (interface{}, *util.HTTPError) {
	var status model.FlagStatus
	if raw := c.Query("status"); raw != "" {
		parsed, ok := model.ParseFlagStatus(raw)
		if !ok {
			return nil, &util.HTTPError{Status: http.StatusBadRequest, Message: "unknown flag status"}
		}
		status = parsed
	}
	flags, err := ar.moderation.ListFlags(c, middleware.MustGetUser(c), status)
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return flags, nil
}

type reviewFlagReq struct {
	Status string `json:"status" binding:"required"`
	Hide   bool   `json:"hide"`
}

func (ar *adminRoutes) reviewFlag(c *gin.Context) (interface{}, *util.HTTPError) {
	id, httpErr := util.ParseId(c.Param("id"))
	if httpErr != nil {
		return nil, httpErr
	}
	var req reviewFlagReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	status, ok := model.ParseFlagStatus(req.Status)
	if !ok || status == model.FlagStatusPending {
		return nil, &util.HTTPError{Status: http.StatusBadRequest, Message: "status must be reviewed or dismissed"}
	}
	flag, err := ar.moderation.ReviewFlag(c, middleware.MustGetUser(c), id, status, req.Hide)
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return flag, nil
}

type setPostStatusReq struct {
	Status string `json:"status" binding:"required"`
}

func (ar *adminRoutes) setPostStatus(c *gin.Context) (interface{}, *util.HTTPError) {
	id, httpErr := util.ParseId(c.Param("id"))
	if httpErr != nil {
		return nil, httpErr
	}
	var req setPostStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	status, ok := model.ParsePostStatus(req.Status)
	if !ok {
		return nil, &util.HTTPError{Status: http.StatusBadRequest, Message: "unknown post status"}
	}
	if err := ar.moderation.SetPostStatus(c, middleware.MustGetUser(c), id, status); err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return nil, nil
}

type updateUserReq struct {
	Role       *string `json:"role"`
	IsVerified *bool   `json:"isVerified"`
}

func (ar *adminRoutes) updateUser(c *gin.Context) (interface{}, *util.HTTPError) {
	var req updateUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	if req.Role == nil && req.IsVerified == nil {
		return nil, &util.HTTPError{Status: http.StatusBadRequest, Message: "nothing to update"}
	}
	update := &appDb.ProfileUpdate{IsVerified: req.IsVerified}
	if req.Role != nil {
		role, ok := model.LookupRole(*req.Role)
		if !ok {
			return nil, &util.HTTPError{Status: http.StatusBadRequest, Message: "unknown role"}
		}
		update.Role = &role
	}
	profile, err := ar.sessions.UpdateProfile(c, c.Param("id"), update)
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return profile, nil
}

func (ar *adminRoutes) health(c *gin.Context) (interface{}, *util.HTTPError) {
	return gin.H{
		"subscriptions":   ar.mux.Status(),
		"feedRefreshedAt": ar.feed.RefreshedAt(),
	}, nil
}
