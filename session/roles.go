package session

import (
	"strings"

	"github.com/civicconnect/civic-connect-be/model"
)

// RoleRules infers a first-time user's role from their email domain
type RoleRules struct {
	AdminDomains     []string
	OfficialDomains  []string
	VerificationCode string
}

func (rr *RoleRules) RoleForEmail(email string) model.Role {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return model.RoleCitizen
	}
	domain := strings.ToLower(strings.TrimSpace(email[at+1:]))
	if matchesDomain(domain, rr.AdminDomains) {
		return model.RoleAdmin
	}
	if matchesDomain(domain, rr.OfficialDomains) {
		return model.RoleOfficial
	}
	return model.RoleCitizen
}

// matchesDomain accepts exact matches and subdomains, so "gov" matches "city.gov"
func matchesDomain(domain string, candidates []string) bool {
	for _, candidate := range candidates {
		candidate = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(candidate), "."))
		if candidate == "" {
			continue
		}
		if domain == candidate || strings.HasSuffix(domain, "."+candidate) {
			return true
		}
	}
	return false
}

// CheckVerificationCode gates elevated roles at sign up. Elevated sign up is
// closed when no code is configured.
func (rr *RoleRules) CheckVerificationCode(role model.Role, code string) error {
	if !role.IsElevated() {
		return nil
	}
	if rr.VerificationCode == "" || code != rr.VerificationCode {
		return ErrInvalidVerificationCode
	}
	return nil
}
