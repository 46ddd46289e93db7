package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/civicconnect/civic-connect-be/db"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HTTPError struct {
	Status  int
	Message string
}

func (he *HTTPError) Error() string {
	return fmt.Sprintf("%v (statusCode=%v)", he.Message, he.Status)
}

var (
	DbHTTPErr = HTTPError{
		Message: "database error",
		Status:  http.StatusInternalServerError,
	}
	MalformedIdHTTPErr = HTTPError{
		Message: "id malformed",
		Status:  http.StatusBadRequest,
	}
	NotFoundHTTPErr = HTTPError{
		Message: "not found",
		Status:  http.StatusNotFound,
	}
)

/*
	HandleHTTPErrorRes handles creating the appropriate response for the HTTP error.
	break the route after calling this function
*/
func HandleHTTPErrorRes(c *gin.Context, err *HTTPError) {
	c.AbortWithStatusJSON(err.Status, gin.H{
		"success": false,
		"message": err.Message,
	})
}

type HandlerOpts struct {
	// SuccessStatus defaults to 200
	SuccessStatus int
}

// HandlerWrapper adapts a handler returning (data, error) into the
// {"success", "data"|"message"} envelope
func HandlerWrapper(handler func(c *gin.Context) (interface{}, *HTTPError), opts *HandlerOpts) gin.HandlerFunc {
	status := http.StatusOK
	if opts != nil && opts.SuccessStatus != 0 {
		status = opts.SuccessStatus
	}
	return func(c *gin.Context) {
		data, httpErr := handler(c)
		if httpErr != nil {
			HandleHTTPErrorRes(c, httpErr)
			return
		}
		res := gin.H{"success": true}
		if data != nil {
			res["data"] = data
		}
		c.JSON(status, res)
	}
}

// BuildDbHTTPErr hides store failures behind a generic message. Missing rows
// and unique key violations keep their meaning.
func BuildDbHTTPErr(err error) *HTTPError {
	if errors.Is(err, db.ErrNotFound) {
		return &NotFoundHTTPErr
	}
	if db.IsDupKeyErr(err) {
		return &HTTPError{
			Status:  http.StatusConflict,
			Message: "already exists",
		}
	}
	zap.L().Error("database error occurred", zap.Error(err))
	return &DbHTTPErr
}

func BuildJSONBindHTTPErr(err error) *HTTPError {
	return &HTTPError{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("malformed request body: %v", err),
	}
}

// ParseId validates a path id, every id in the system is a uuid except
// profile ids which come from the auth provider
func ParseId(val string) (string, *HTTPError) {
	id, err := uuid.Parse(val)
	if err != nil {
		return "", &MalformedIdHTTPErr
	}
	return id.String(), nil
}
