package model

import (
	"net/url"
	"strings"

	"codearena/internal/common/ids"
)

// Role is the platform role granted by the backend.
type Role string

const (
	RoleCoder Role = "coder"
	RoleAdmin Role = "admin"
)

const (
	fallbackDisplayName = "User"
	avatarSeedURL       = "https://api.dicebear.com/7.x/avataaars/svg?seed="
)

// Profile is the backend response of GET /auth/me.
type Profile struct {
	ID          ids.ID  `json:"id"`
	Email       string  `json:"email"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	AvatarURL   string  `json:"avatar_url"`
	Role        string  `json:"role"`
	Bio         *string `json:"bio"`
}

// User is the authoritative identity seen by the rest of the client.
// Values are immutable; a new reconciliation replaces the whole User.
type User struct {
	ID          ids.ID
	Email       string
	Username    string
	DisplayName string
	AvatarURL   string
	Role        Role
	Bio         *string
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// BuildUser derives a User from a profile. fallbackEmail comes from the
// identity provider and is used only when the profile carries no email.
func BuildUser(p Profile, fallbackEmail string) User {
	email := strings.TrimSpace(p.Email)
	if email == "" {
		email = strings.TrimSpace(fallbackEmail)
	}
	local := emailLocalPart(email)

	username := strings.TrimSpace(p.Username)
	if username == "" {
		username = local
	}

	avatar := strings.TrimSpace(p.AvatarURL)
	if avatar == "" {
		avatar = avatarSeedURL + url.QueryEscape(p.ID.String())
	}

	var bio *string
	if p.Bio != nil {
		b := *p.Bio
		bio = &b
	}

	return User{
		ID:          p.ID,
		Email:       email,
		Username:    username,
		DisplayName: DisplayName(p.DisplayName, p.Username, email),
		AvatarURL:   avatar,
		Role:        NormalizeRole(p.Role),
		Bio:         bio,
	}
}

// DisplayName falls back from the explicit name to the username, then to the
// email local-part, then to "User".
func DisplayName(displayName, username, email string) string {
	if v := strings.TrimSpace(displayName); v != "" {
		return v
	}
	if v := strings.TrimSpace(username); v != "" {
		return v
	}
	if v := emailLocalPart(email); v != "" {
		return v
	}
	return fallbackDisplayName
}

// NormalizeRole maps anything other than an exact "admin" to coder.
func NormalizeRole(raw string) Role {
	if Role(raw) == RoleAdmin {
		return RoleAdmin
	}
	return RoleCoder
}

func emailLocalPart(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}
