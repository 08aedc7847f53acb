package domain

import (
	"fmt"
	"strings"
)

// UserProfile carries the context the relevance filter scores against.
// One active profile per user id.
type UserProfile struct {
	UserID     string
	Name       string
	Aliases    []string
	Role       string
	Projects   []string
	Markets    []string
	Colleagues []string
}

// Names returns the canonical name plus all aliases.
func (p *UserProfile) Names() []string {
	names := make([]string, 0, len(p.Aliases)+1)
	if p.Name != "" {
		names = append(names, p.Name)
	}
	names = append(names, p.Aliases...)
	return names
}

// MatchesName reports whether the candidate matches the user's name or any
// alias, case-insensitively.
func (p *UserProfile) MatchesName(candidate string) bool {
	for _, n := range p.Names() {
		if strings.EqualFold(n, candidate) {
			return true
		}
	}
	return false
}

// ValidateUserProfile validates a UserProfile instance.
func ValidateUserProfile(p *UserProfile) error {
	if p == nil {
		return fmt.Errorf("user profile cannot be nil")
	}

	if p.UserID == "" {
		return fmt.Errorf("user profile UserID is required")
	}

	if p.Name == "" {
		return fmt.Errorf("user profile Name is required")
	}

	return nil
}
