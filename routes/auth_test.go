package routes

import (
	"net/http"
	"testing"

	"github.com/civicconnect/civic-connect-be/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignIn(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPost, "/auth/signin", "", jsonBody{"email": env.citizen.Email, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = env.do(t, http.MethodPost, "/auth/signin", "", jsonBody{"email": env.citizen.Email})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = env.do(t, http.MethodPost, "/auth/signin", "", jsonBody{"email": env.citizen.Email, "password": testPassword})
	require.Equal(t, http.StatusOK, res.Code, res.Message)
	var signedIn struct {
		IdToken string         `json:"idToken"`
		Profile *model.Profile `json:"profile"`
	}
	res.decode(t, &signedIn)
	assert.Equal(t, tokenFor(env.citizen), signedIn.IdToken)
	assert.Equal(t, env.citizen.Id, signedIn.Profile.Id)
}

func TestSignUp(t *testing.T) {
	tests := []struct {
		name       string
		body       jsonBody
		wantCode   int
		wantRole   model.Role
		wantVerify bool
	}{
		{
			name:     "citizen",
			body:     jsonBody{"email": "maria@example.com", "password": "hunter22", "displayName": "Maria"},
			wantCode: http.StatusCreated,
			wantRole: model.RoleCitizen,
		},
		{
			name:     "official without code",
			body:     jsonBody{"email": "clerk@city.gov", "password": "hunter22", "role": "official"},
			wantCode: http.StatusForbidden,
		},
		{
			name:       "official with code",
			body:       jsonBody{"email": "clerk@city.gov", "password": "hunter22", "role": "official", "verificationCode": "OFFICIAL-2024"},
			wantCode:   http.StatusCreated,
			wantRole:   model.RoleOfficial,
			wantVerify: true,
		},
		{
			name:     "unknown role",
			body:     jsonBody{"email": "x@example.com", "password": "hunter22", "role": "mayor"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "short password",
			body:     jsonBody{"email": "x@example.com", "password": "123"},
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			res := env.do(t, http.MethodPost, "/auth/signup", "", tt.body)
			require.Equal(t, tt.wantCode, res.Code, res.Message)
			if tt.wantCode != http.StatusCreated {
				return
			}
			var profile model.Profile
			res.decode(t, &profile)
			assert.Equal(t, tt.wantRole, profile.Role)
			assert.Equal(t, tt.wantVerify, profile.IsVerified)
		})
	}
}

func TestProfileMe(t *testing.T) {
	env := newTestEnv(t)
	res := env.do(t, http.MethodGet, "/profiles/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = env.do(t, http.MethodPut, "/profiles/me", tokenFor(env.citizen), jsonBody{
		"displayName": "  Jo <b>Citizen</b> ",
		"bio":         "Lives on Elm street",
	})
	require.Equal(t, http.StatusOK, res.Code, res.Message)
	var profile model.Profile
	res.decode(t, &profile)
	assert.Equal(t, "Jo <b>Citizen</b>", profile.DisplayName)
	assert.Equal(t, "Lives on Elm street", profile.Bio)

	res = env.do(t, http.MethodPut, "/profiles/me", tokenFor(env.citizen), jsonBody{"displayName": " "})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = env.do(t, http.MethodGet, "/profiles/me", tokenFor(env.citizen), nil)
	require.Equal(t, http.StatusOK, res.Code)
	res.decode(t, &profile)
	assert.Equal(t, "Jo <b>Citizen</b>", profile.DisplayName)

	res = env.do(t, http.MethodPost, "/auth/signout", tokenFor(env.citizen), nil)
	assert.Equal(t, http.StatusOK, res.Code)
}
