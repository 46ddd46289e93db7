package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleOfficial Role = "official"
	RoleAdmin    Role = "admin"
)

// ParseRole maps any value outside the known set to RoleCitizen
func ParseRole(val string) Role {
	switch role := Role(strings.ToLower(strings.TrimSpace(val))); role {
	case RoleCitizen, RoleOfficial, RoleAdmin:
		return role
	default:
		return RoleCitizen
	}
}

// LookupRole is the strict form of ParseRole for writes
func LookupRole(val string) (Role, bool) {
	switch role := Role(strings.ToLower(strings.TrimSpace(val))); role {
	case RoleCitizen, RoleOfficial, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

func (r *Role) UnmarshalText(text []byte) error {
	*r = ParseRole(string(text))
	return nil
}

// IsElevated is true for roles that require a verification code at sign up
func (r Role) IsElevated() bool {
	return r == RoleOfficial || r == RoleAdmin
}

// Profile holds the application-level identity record (outside of firebase)
type Profile struct {
	Id          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	IsVerified  bool      `json:"isVerified"`
	Bio         string    `json:"bio"`
	Location    string    `json:"location"`
	CreatedAt   time.Time `json:"createdAt"`
	// Persisted is false for a profile fabricated locally after the store rejected it
	Persisted bool `json:"-"`
}

func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

func (p *Profile) IsOfficial() bool {
	return p != nil && p.Role == RoleOfficial
}

func (p *Profile) Author() *Author {
	return &Author{
		Id:          p.Id,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		IsVerified:  p.IsVerified,
	}
}

// Author is the subset of a profile embedded in posts and polls
type Author struct {
	Id          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
	IsVerified  bool   `json:"isVerified"`
}
