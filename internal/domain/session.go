package domain

import "time"

// User is the profile captured from the identity provider at login.
type User struct {
	ID        string   `json:"id"`
	Login     string   `json:"login"`
	Name      string   `json:"name"`
	AvatarURL string   `json:"avatar_url,omitempty"`
	Email     string   `json:"email,omitempty"`
	Provider  Provider `json:"provider"`
}

// DisplayName prefers the profile name and falls back to the login.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Login
}

// Session is an authenticated caller. Records are written once and never
// mutated; a session is valid only while now is before ExpiresAt.
type Session struct {
	ID        string    `json:"id"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
