package routes

import (
	"net/http"

	"github.com/civicconnect/civic-connect-be/middleware"
	"github.com/civicconnect/civic-connect-be/model"
	"github.com/civicconnect/civic-connect-be/session"
	"github.com/civicconnect/civic-connect-be/util"
	"github.com/gin-gonic/gin"
)

type authRoutes struct {
	sessions *session.Manager
}

func AddAuthRoutes(group *gin.RouterGroup, sessions *session.Manager) {
	routes := authRoutes{sessions}
	auth := group.Group("/auth")
	auth.POST("/signin", util.HandlerWrapper(routes.signIn, &util.HandlerOpts{}))
	auth.POST("/signup", util.HandlerWrapper(routes.signUp, &util.HandlerOpts{SuccessStatus: http.StatusCreated}))
	auth.POST("/signout",
		middleware.GenAuth(sessions, &middleware.AuthConfig{}),
		util.HandlerWrapper(routes.signOut, &util.HandlerOpts{}))
}

type signInReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (ar *authRoutes) signIn(c *gin.Context) (interface{}, *util.HTTPError) {
	var req signInReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	credentials, profile, err := ar.sessions.SignIn(c, req.Email, req.Password)
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return gin.H{
		"idToken":      credentials.IdToken,
		"refreshToken": credentials.RefreshToken,
		"profile":      profile,
	}, nil
}

type signUpReq struct {
	Email            string `json:"email" binding:"required"`
	Password         string `json:"password" binding:"required,min=6"`
	DisplayName      string `json:"displayName"`
	Role             string `json:"role"`
	VerificationCode string `json:"verificationCode"`
}

func (ar *authRoutes) signUp(c *gin.Context) (interface{}, *util.HTTPError) {
	var req signUpReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, util.BuildJSONBindHTTPErr(err)
	}
	role := model.RoleCitizen
	if req.Role != "" {
		var ok bool
		if role, ok = model.LookupRole(req.Role); !ok {
			return nil, &util.HTTPError{Status: http.StatusBadRequest, Message: "unknown role"}
		}
	}
	profile, err := ar.sessions.SignUp(c, &session.SignUpRequest{
		Email:            req.Email,
		Password:         req.Password,
		DisplayName:      req.DisplayName,
		Role:             role,
		VerificationCode: req.VerificationCode,
	})
	if err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return profile, nil
}

func (ar *authRoutes) signOut(c *gin.Context) (interface{}, *util.HTTPError) {
	if err := ar.sessions.SignOut(c, middleware.MustGetUser(c).Id); err != nil {
		return nil, buildServiceHTTPErr(err)
	}
	return nil, nil
}
