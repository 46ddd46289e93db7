package services

import (
	"errors"

	appDb "github.com/civicconnect/civic-connect-be/db"
)

var (
	ErrNotAuthenticated = errors.New("must be signed in")
	ErrForbidden        = errors.New("not allowed")
	ErrNotFound         = appDb.ErrNotFound
	ErrFetchInProgress  = errors.New("a fetch is already in progress, try again")
	ErrEmptyContent     = errors.New("content must not be empty")
	ErrContentTooLong   = errors.New("content is too long")
	ErrNestedReply      = errors.New("replies can not be replied to")
	ErrAlreadyLiked     = errors.New("post already liked")
	ErrAlreadyFlagged   = errors.New("content already flagged")
	ErrAlreadyVoted     = errors.New("already voted on this poll")
	ErrInvalidOption    = errors.New("option does not belong to the poll")
	ErrPollClosed       = errors.New("poll is closed")
	ErrInvalidPoll      = errors.New("poll is malformed")
	ErrSelfFollow       = errors.New("can not follow yourself")
	ErrUploadTooLarge   = errors.New("upload exceeds the size limit")
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrTooManyMedia     = errors.New("too many media attachments")
)
