package models

import "time"

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	EmailVerified bool      `json:"isEmailVerified"`
	CreatedAt     time.Time `json:"createdAt,omitzero"`
}

// Session is the client's view of who is signed in.
type Session struct {
	User            *User
	IsAuthenticated bool
	IsInitializing  bool
	LastCheck       time.Time
	// Error holds the last background verification problem, if any.
	Error string
}

// Anonymous reports a signed-out session.
func Anonymous() Session { return Session{} }

// Credentials is the payload of login and register calls.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// AuthPayload is what login and register return in the envelope data.
type AuthPayload struct {
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	// Token is the older spelling of AccessToken; some deployments still
	// send it.
	Token string `json:"token,omitempty"`
	User  User   `json:"user"`
}

// Bearer returns the access token under whichever name it arrived.
func (p AuthPayload) Bearer() string {
	if p.AccessToken != "" {
		return p.AccessToken
	}
	return p.Token
}
