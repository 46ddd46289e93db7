package session

import (
	"context"
	"errors"

	"github.com/civicconnect/civic-connect-be/model"
)

var (
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrAccountExists           = errors.New("an account with this email already exists")
	ErrInvalidSession          = errors.New("invalid or expired session")
	ErrInvalidVerificationCode = errors.New("invalid role verification code")
	ErrNotAuthenticated        = errors.New("not authenticated")
)

// Identity is what the auth provider knows about a principal
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
	DisplayName   string
	// Role is the role claim set at sign up, empty when absent
	Role model.Role
}

type Credentials struct {
	IdToken      string    `json:"idToken"`
	RefreshToken string    `json:"refreshToken"`
	Identity     *Identity `json:"-"`
}

type SignUpRequest struct {
	Email            string
	Password         string
	DisplayName      string
	Role             model.Role
	VerificationCode string
}

type AuthProvider interface {
	VerifySession(ctx context.Context, idToken string) (*Identity, error)
	SignIn(ctx context.Context, email string, password string) (*Credentials, error)
	SignUp(ctx context.Context, req *SignUpRequest) (*Identity, error)
	SignOut(ctx context.Context, uid string) error
}
