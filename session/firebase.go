package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/civicconnect/civic-connect-be/model"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

const RoleClaim = "role"

// FirebaseProvider verifies sessions with the admin SDK and signs users in
// through the identity toolkit password endpoint
type FirebaseProvider struct {
	client  *auth.Client
	toolkit *identitytoolkit.Service
}

func NewFirebaseProvider(ctx context.Context, app *firebase.App, apiKey string) (*FirebaseProvider, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing auth client: %w", err)
	}
	toolkit, err := identitytoolkit.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("error initializing identity toolkit: %w", err)
	}
	return &FirebaseProvider{
		client:  client,
		toolkit: toolkit,
	}, nil
}

func (fp *FirebaseProvider) VerifySession(ctx context.Context, idToken string) (*Identity, error) {
	token, err := fp.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	identity := &Identity{UID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		identity.Email = email
	}
	if verified, ok := token.Claims["email_verified"].(bool); ok {
		identity.EmailVerified = verified
	}
	if name, ok := token.Claims["name"].(string); ok {
		identity.DisplayName = name
	}
	if role, ok := token.Claims[RoleClaim].(string); ok {
		identity.Role = model.ParseRole(role)
	}
	return identity, nil
}

func (fp *FirebaseProvider) SignIn(ctx context.Context, email string, password string) (*Credentials, error) {
	res, err := fp.toolkit.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		if isCredentialsErr(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	identity := &Identity{
		UID:         res.LocalId,
		Email:       res.Email,
		DisplayName: res.DisplayName,
	}
	// the password endpoint does not report verification or claims
	record, err := fp.client.GetUser(ctx, res.LocalId)
	if err != nil {
		return nil, fmt.Errorf("loading user record: %w", err)
	}
	identity.EmailVerified = record.EmailVerified
	if role, ok := record.CustomClaims[RoleClaim].(string); ok {
		identity.Role = model.ParseRole(role)
	}
	return &Credentials{
		IdToken:      res.IdToken,
		RefreshToken: res.RefreshToken,
		Identity:     identity,
	}, nil
}

func isCredentialsErr(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, reason := range []string{"INVALID_PASSWORD", "EMAIL_NOT_FOUND", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED"} {
		if strings.Contains(apiErr.Message, reason) {
			return true
		}
	}
	return false
}

func (fp *FirebaseProvider) SignUp(ctx context.Context, req *SignUpRequest) (*Identity, error) {
	params := (&auth.UserToCreate{}).
		Email(req.Email).
		Password(req.Password).
		DisplayName(req.DisplayName)
	record, err := fp.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return nil, ErrAccountExists
		}
		return nil, err
	}
	if err := fp.client.SetCustomUserClaims(ctx, record.UID, map[string]interface{}{
		RoleClaim: string(req.Role),
	}); err != nil {
		return nil, fmt.Errorf("setting role claim: %w", err)
	}
	return &Identity{
		UID:         record.UID,
		Email:       record.Email,
		DisplayName: record.DisplayName,
		Role:        req.Role,
	}, nil
}

// SignOut revokes the user's refresh tokens so existing sessions cannot be renewed
func (fp *FirebaseProvider) SignOut(ctx context.Context, uid string) error {
	return fp.client.RevokeRefreshTokens(ctx, uid)
}
