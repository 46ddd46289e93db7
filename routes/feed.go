package routes

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/civicconnect/civic-connect-be/app"
	"github.com/civicconnect/civic-connect-be/controllers"
	"github.com/civicconnect/civic-connect-be/middleware"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/services"
	"github.com/civicconnect/civic-connect-be/util"
	"github.com/gin-gonic/gin"
)

const streamKeepAlive = 15 * time.Second

type feedRoutes struct {
	feed   *controllers.FeedController
	social *services.SocialService
}

func AddFeedRoutes(group *gin.RouterGroup, authenticator middleware.Authenticator, feed *controllers.FeedController, social *services.SocialService) {
	routes := feedRoutes{feed, social}
	auth := middleware.GenAuth(authenticator, &middleware.AuthConfig{SessionNotRequired: true})

	feeds := group.Group("/feed", auth)
	feeds.GET("", util.HandlerWrapper(routes.getFeed, &util.HandlerOpts{}))
	feeds.GET("/stream", routes.streamFeed)
	group.GET("/analytics", auth, util.HandlerWrapper(routes.getAnalytics, &util.HandlerOpts{}))
}

// filteredFeed applies ?category= and ?following=true to the aggregated feed
func (fr *feedRoutes) filteredFeed(c *gin.Context) ([]*app.FeedItem, *util.HTTPError) {
	items := fr.feed.Feed()
	if raw := c.Query("category"); raw != "" {
		items = app.FilterByCategory(items, model.ParseCategory(raw))
	}
	if following, _ := strconv.ParseBool(c.Query("following")); following {
		user := middleware.GetUserMaybe(c)
		if user == nil {
			return nil, &util.HTTPError{
				Status:  http.StatusUnauthorized,
				Message: "must be signed in to filter by following",
			}
		}
		ids, err := fr.social.FollowingIds(c, user)
		if err != nil {
			return nil, buildServiceHTTPErr(err)
		}
		items = app.FilterByAuthors(items, ids)
	}
	return items, nil
}

func (fr *feedRoutes) getFeed(c *gin.Context) (interface{}, *util.HTTPError) {
	items, httpErr := fr.filteredFeed(c)
	if httpErr != nil {
		return nil, httpErr
	}
	return gin.H{
		"items":       items,
		"refreshedAt": fr.feed.RefreshedAt(),
	}, nil
}

// streamFeed pushes the feed as a server sent event after every refresh
func (fr *feedRoutes) streamFeed(c *gin.Context) {
	if _, httpErr := fr.filteredFeed(c); httpErr != nil {
		util.HandleHTTPErrorRes(c, httpErr)
		return
	}
	updates, cancel := fr.feed.Watch()
	defer cancel()
	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	first := true
	c.Stream(func(w io.Writer) bool {
		if first {
			first = false
			return fr.sendFeed(c)
		}
		select {
		case <-c.Request.Context().Done():
			return false
		case _, ok := <-updates:
			if !ok {
				return false
			}
			return fr.sendFeed(c)
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}

func (fr *feedRoutes) sendFeed(c *gin.Context) bool {
	items, httpErr := fr.filteredFeed(c)
	if httpErr != nil {
		c.SSEvent("error", httpErr.Message)
		return false
	}
	c.SSEvent("feed", items)
	return true
}

func (fr *feedRoutes) getAnalytics(c *gin.Context) (interface{}, *util.HTTPError) {
	return fr.feed.Analytics(), nil
}
