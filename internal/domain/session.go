package domain

import "time"

// Identity is the authenticated principal issued by the identity provider.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// Session is either Anonymous (nobody signed in) or Authenticated.
type Session interface {
	// Identity returns the signed-in identity, if any.
	Identity() (Identity, bool)
	sealed()
}

// Anonymous is the signed-out state.
type Anonymous struct{}

func (Anonymous) Identity() (Identity, bool) { return Identity{}, false }
func (Anonymous) sealed()                    {}

// Authenticated carries an identity and the tokens that prove it.
type Authenticated struct {
	User         Identity  `json:"user"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (a Authenticated) Identity() (Identity, bool) { return a.User, true }
func (Authenticated) sealed()                      {}

// Expired reports whether the access token is past its expiry.
func (a Authenticated) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}
