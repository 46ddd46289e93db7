package routes

import (
	"errors"
	"net/http"

	"github.com/civicconnect/civic-connect-be/services"
	"github.com/civicconnect/civic-connect-be/session"
	"github.com/civicconnect/civic-connect-be/util"
)

var serviceErrStatuses = []struct {
	err    error
	status int
}{
	{services.ErrNotAuthenticated, http.StatusUnauthorized},
	{session.ErrNotAuthenticated, http.StatusUnauthorized},
	{session.ErrInvalidCredentials, http.StatusUnauthorized},
	{session.ErrInvalidSession, http.StatusUnauthorized},
	{services.ErrForbidden, http.StatusForbidden},
	{session.ErrInvalidVerificationCode, http.StatusForbidden},
	{services.ErrNotFound, http.StatusNotFound},
	{services.ErrAlreadyLiked, http.StatusConflict},
	{services.ErrAlreadyFlagged, http.StatusConflict},
	{services.ErrAlreadyVoted, http.StatusConflict},
	{session.ErrAccountExists, http.StatusConflict},
	{services.ErrPollClosed, http.StatusConflict},
	{services.ErrFetchInProgress, http.StatusServiceUnavailable},
	{services.ErrEmptyContent, http.StatusBadRequest},
	{services.ErrContentTooLong, http.StatusBadRequest},
	{services.ErrNestedReply, http.StatusBadRequest},
	{services.ErrInvalidOption, http.StatusBadRequest},
	{services.ErrInvalidPoll, http.StatusBadRequest},
	{services.ErrSelfFollow, http.StatusBadRequest},
	{services.ErrTooManyMedia, http.StatusBadRequest},
	{services.ErrUploadTooLarge, http.StatusRequestEntityTooLarge},
	{services.ErrUnsupportedMedia, http.StatusUnsupportedMediaType},
}

// buildServiceHTTPErr maps domain errors onto statuses, anything unknown is
// treated as a store failure
func buildServiceHTTPErr(err error) *util.HTTPError {
	for _, candidate := range serviceErrStatuses {
		if errors.Is(err, candidate.err) {
			return &util.HTTPError{
				Status:  candidate.status,
				Message: err.Error(),
			}
		}
	}
	return util.BuildDbHTTPErr(err)
}
