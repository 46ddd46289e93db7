package routes

import (
	"github.com/civicconnect/civic-connect-be/controllers"
	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/civicconnect/civic-connect-be/services"
	"github.com/civicconnect/civic-connect-be/session"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Sessions      *session.Manager
	Posts         *services.PostService
	Polls         *services.PollService
	Moderation    *services.ModerationService
	Social        *services.SocialService
	Media         MediaUploader
	MaxUploadSize int64
	Feed          *controllers.FeedController
	Mux           *realtime.Multiplexer
}

func Register(group *gin.RouterGroup, deps *Deps) {
	AddHealthCheckRoutes(group)
	AddAuthRoutes(group, deps.Sessions)
	AddProfileRoutes(group, deps.Sessions)
	AddPostRoutes(group, deps.Sessions, deps.Posts, deps.Feed)
	AddPollRoutes(group, deps.Sessions, deps.Polls, deps.Posts, deps.Feed)
	AddMediaRoutes(group, deps.Sessions, deps.Media, deps.MaxUploadSize)
	AddFeedRoutes(group, deps.Sessions, deps.Feed, deps.Social)
	AddSocialRoutes(group, deps.Sessions, deps.Social)
	AddAdminRoutes(group, deps.Sessions, deps.Moderation, deps.Mux, deps.Feed)
}
