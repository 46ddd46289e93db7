package routes

import (
	"net/http"
	"strings"

	appDb "github.com/civicconnect/civic-connect-be/db"
	"github.com/civicconnect/civic-connect-be/middleware"
	"github.com/civicconnect/civic-connect-be/session"
	"github.com/civicconnect/civic-connect-be/util"
	"github.com/gin-gonic/gin"
)

const (
	maxDisplayNameLength = 50
	maxBioLength         = 500
)

type profileRoutes struct {
	sessions *session.Manager
}

func AddProfileRoutes(group *gin.RouterGroup, sessions *session.Manager) {
	routes := profileRoutes{sessions}
	profiles := group.Group("/profiles",
		middleware.GenAuth(sessions, &middleware.AuthConfig{}),
		middleware.RequireAccount())
	profiles.GET("/me", util.HandlerWrapper(routes.getMe, &util.HandlerOpts{}))
	profiles.PUT("/me", util.HandlerWrapper(routes.updateMe, &util.HandlerOpts{}))
}

func (pr *profileRoutes) getMe(c *gin.Context) (interface{}, *util.HTTPError) {
	return middleware.MustGetUser(c), nil
}

type updateProfileReq struct {
	DisplayName *string `json:"displayName"`
	Bio         *string `json:"bio"`
	Location    *string `json:"location"`
}

func sanitizeOptional(val *string, maxLength int, field string) (*string, *util.HTTPError) {
	if val == nil {
		return nil, nil
	}
	cleaned := strings.TrimSpace(util.XSSSanitize(*val))
	if len(cleaned) > maxLength {
		return nil, &util.HTTPError{
			Status:  http.StatusBadRequest,
			Message: field + " is too long",
		}
	}
	return &cleaned, nil
}

func (pr *profileRoutes) updateMe(c *gin.Context) (interface{}, *util.HTTPError) {
	var req updateProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	update := &appDb.ProfileUpdate{}
	var httpErr *util.HTTPError
	if update.DisplayName, httpErr = sanitizeOptional(req.DisplayName, maxDisplayNameLength, "display name"); httpErr != nil {
		return nil, httpErr
	}
	if update.DisplayName != nil && *update.DisplayName == "" {
		return nil, &util.HTTPError{Status: http.StatusBadRequest, Message: "display name must not be empty"}
	}
	if update.Bio, httpErr = sanitizeOptional(req.Bio, maxBioLength, "bio"); httpErr != nil {
		return nil, httpErr
	}
	if update.Location, httpErr = sanitizeOptional(req.Location, maxDisplayNameLength, "location"); httpErr != nil {
		return nil, httpErr
	}

	profile, err := pr.sessions.UpdateProfile(c, middleware.MustGetUser(c).Id, update)
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return profile, nil
}
