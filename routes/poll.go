package routes

import (
	"net/http"
	"time"

	"github.com/civicconnect/civic-connect-be/controllers"
	"github.com/civicconnect/civic-connect-be/middleware"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/services"
	"github.com/civicconnect/civic-connect-be/util"
	"github.com/gin-gonic/gin"
)

type pollRoutes struct {
	polls *services.PollService
	posts *services.PostService
	feed  *controllers.FeedController
}

func AddPollRoutes(group *gin.RouterGroup, authenticator middleware.Authenticator, polls *services.PollService, posts *services.PostService, feed *controllers.FeedController) {
	routes := pollRoutes{polls, posts, feed}
	pollGroup := group.Group("/polls",
		middleware.GenAuth(authenticator, &middleware.AuthConfig{SessionNotRequired: true}))
	mustAuth := middleware.RequireAccount()

	pollGroup.GET("", util.HandlerWrapper(routes.getPolls, &util.HandlerOpts{}))
	pollGroup.POST("", mustAuth, util.HandlerWrapper(routes.createPoll, &util.HandlerOpts{SuccessStatus: http.StatusCreated}))
	pollGroup.GET("/votes/me", mustAuth, util.HandlerWrapper(routes.getMyVotes, &util.HandlerOpts{}))
	pollGroup.POST("/:id/votes", mustAuth, util.HandlerWrapper(routes.submitVote, &util.HandlerOpts{SuccessStatus: http.StatusCreated}))
	pollGroup.POST("/:id/close", mustAuth, util.HandlerWrapper(routes.closePoll, &util.HandlerOpts{}))
	pollGroup.POST("/:id/flag", mustAuth, util.HandlerWrapper(routes.flagPoll, &util.HandlerOpts{}))
}

func (pr *pollRoutes) getPolls(c *gin.Context) (interface{}, *util.HTTPError) {
	return pr.feed.Polls(), nil
}

type createPollReq struct {
	Question  string     `json:"question"`
	Options   []string   `json:"options"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (pr *pollRoutes) createPoll(c *gin.Context) (interface{}, *util.HTTPError) {
	var req createPollReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	poll, err := pr.polls.CreatePoll(c, middleware.MustGetUser(c), &services.NewPoll{
		Question:  req.Question,
		Options:   req.Options,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return poll, nil
}

type submitVoteReq struct {
	OptionId string `json:"optionId" binding:"required"`
}

func (pr *pollRoutes) submitVote(c *gin.Context) (interface{}, *util.HTTPError) {
	id, httpErr := util.ParseId(c.Param("id"))
	if httpErr != nil {
		return nil, httpErr
	}
	var req submitVoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	vote, err := pr.polls.SubmitVote(c, middleware.MustGetUser(c), id, req.OptionId)
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return vote, nil
}

func (pr *pollRoutes) getMyVotes(c *gin.Context) (interface{}, *util.HTTPError) {
	votes, err := pr.polls.FetchUserVotes(c, middleware.MustGetUser(c))
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return votes, nil
}

func (pr *pollRoutes) closePoll(c *gin.Context) (interface{}, *util.HTTPError) {
	id, httpErr := util.ParseId(c.Param("id"))
	if httpErr != nil {
		return nil, httpErr
	}
	if err := pr.polls.ClosePoll(c, middleware.MustGetUser(c), id); err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return nil, nil
}

func (pr *pollRoutes) flagPoll(c *gin.Context) (interface{}, *util.HTTPError) {
	return flagContent(c, pr.posts, model.FlagTargetPoll)
}
