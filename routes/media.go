package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/civicconnect/civic-connect-be/middleware"
	"github.com/civicconnect/civic-connect-be/services"
	"github.com/civicconnect/civic-connect-be/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MediaUploader stores an attachment and returns its public URL
type MediaUploader interface {
	Upload(ctx context.Context, upload *services.Upload) (string, error)
}

type mediaRoutes struct {
	uploader MediaUploader
	maxSize  int64
}

func AddMediaRoutes(group *gin.RouterGroup, authenticator middleware.Authenticator, uploader MediaUploader, maxSize int64) {
	routes := mediaRoutes{uploader, maxSize}
	media := group.Group("/media",
		middleware.GenAuth(authenticator, &middleware.AuthConfig{}),
		middleware.RequireAccount())
	media.POST("", util.HandlerWrapper(routes.upload, &util.HandlerOpts{SuccessStatus: http.StatusCreated}))
}

func (mr *mediaRoutes) upload(c *gin.Context) (interface{}, *util.HTTPError) {
	header, err := c.FormFile("file")
	if err != nil {
		return nil, &util.HTTPError{
			Status:  http.StatusBadRequest,
			Message: "expected a multipart file field named file",
		}
	}
	if err := services.CheckUploadSize(header.Size, mr.maxSize); err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	file, err := header.Open()
	if err != nil {
		return nil, &util.HTTPError{Status: http.StatusBadRequest, Message: "unreadable upload"}
	}
	defer file.Close()

	url, err := mr.uploader.Upload(c, &services.Upload{
		UserId:      middleware.MustGetUser(c).Id,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		if errors.Is(err, services.ErrUploadTooLarge) || errors.Is(err, services.ErrUnsupportedMedia) {
			return nil, buildServiceHTTPErr(err)
		}
		zap.L().Error("media upload failed", zap.Error(err))
		return nil, &util.HTTPError{Status: http.StatusBadGateway, Message: "upload failed"}
	}
	return gin.H{"url": url}, nil
}
