package routes

import (
	"github.com/civicconnect/civic-connect-be/metrics"
	"github.com/civicconnect/civic-connect-be/util"
	"github.com/gin-gonic/gin"
)

func AddHealthCheckRoutes(group *gin.RouterGroup) {
	health := group.Group("/health")
	health.GET("", util.HandlerWrapper(AliveCheck, &util.HandlerOpts{}))
	group.GET("/metrics", metrics.Handler())
}

func AliveCheck(c *gin.Context) (interface{}, *util.HTTPError) {
	return nil, nil
}
