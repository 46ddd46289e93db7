package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/session"
	"github.com/civicconnect/civic-connect-be/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	TOKEN_KEY = "authToken"
	USER_KEY  = "user"
)

// Authenticator resolves a bearer token into the caller's profile
type Authenticator interface {
	Authenticate(ctx context.Context, idToken string) (*model.Profile, error)
}

type AuthConfig struct {
	// SessionNotRequired lets anonymous requests through, a user is still
	// attached when a valid token is sent
	SessionNotRequired bool
}

func unauthorized(c *gin.Context, message string) {
	util.HandleHTTPErrorRes(c, &util.HTTPError{
		Status:  http.StatusUnauthorized,
		Message: message,
	})
}

func GenAuth(authenticator Authenticator, config *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorizationHeader := c.GetHeader("Authorization")
		if authorizationHeader == "" {
			if config.SessionNotRequired {
				return
			}
			unauthorized(c, "no authorization header")
			return
		}
		if !strings.HasPrefix(authorizationHeader, "Bearer ") || len(authorizationHeader) < 8 {
			unauthorized(c, "incorrectly formatted authorization header")
			return
		}
		token := authorizationHeader[7:]

		user, err := authenticator.Authenticate(c, token)
		if err != nil {
			if !errors.Is(err, session.ErrInvalidSession) {
				zap.L().Warn("authentication failed", zap.Error(err))
			}
			if config.SessionNotRequired {
				return
			}
			unauthorized(c, "invalid token")
			return
		}
		c.Set(TOKEN_KEY, token)
		c.Set(USER_KEY, user)
	}
}

// RequireAccount rejects requests GenAuth let through without a user
func RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserMaybe(c) == nil {
			unauthorized(c, "must be signed in")
		}
	}
}

// RequireRole admits only callers holding one of roles
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := GetUserMaybe(c)
		if user == nil {
			unauthorized(c, "must be signed in")
			return
		}
		for _, role := range roles {
			if user.Role == role {
				return
			}
		}
		util.HandleHTTPErrorRes(c, &util.HTTPError{
			Status:  http.StatusForbidden,
			Message: "insufficient role",
		})
	}
}

func GetUserMaybe(c *gin.Context) *model.Profile {
	user, ok := c.Get(USER_KEY)
	if !ok {
		return nil
	}
	return user.(*model.Profile)
}

// MustGetUser panics without a user, only use behind RequireAccount
func MustGetUser(c *gin.Context) *model.Profile {
	return c.MustGet(USER_KEY).(*model.Profile)
}

func GetUserIdMaybe(c *gin.Context) string {
	if user := GetUserMaybe(c); user != nil {
		return user.Id
	}
	return ""
}
