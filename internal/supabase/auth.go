package supabase

import (
	"context"
	"strings"
	"time"

	"github.com/supabase-community/gotrue-go/types"

	"lens-backend/internal/domain"
	"lens-backend/internal/session"
)

// AuthProvider implements session.IdentityProvider with GoTrue.
type AuthProvider struct {
	client *Client
	now    func() time.Time
}

var _ session.IdentityProvider = (*AuthProvider)(nil)

// NewAuthProvider creates an AuthProvider.
func NewAuthProvider(client *Client) *AuthProvider {
	return &AuthProvider{client: client, now: time.Now}
}

func (p *AuthProvider) SignInWithPassword(ctx context.Context, email, password string) (domain.Authenticated, error) {
	c, err := p.client.ForToken("")
	if err != nil {
		return domain.Authenticated{}, classify("sign in", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Authenticated{}, classify("sign in", err)
	}
	res, err := c.Auth.SignInWithEmailPassword(email, password)
	if err != nil {
		return domain.Authenticated{}, classify("sign in", err)
	}
	return p.toAuthenticated(res.Session), nil
}

func (p *AuthProvider) SignUp(ctx context.Context, email, password, displayName string) (session.SignUpResult, error) {
	c, err := p.client.ForToken("")
	if err != nil {
		return session.SignUpResult{}, classify("sign up", err)
	}
	if err := ctx.Err(); err != nil {
		return session.SignUpResult{}, classify("sign up", err)
	}

	req := types.SignupRequest{Email: email, Password: password}
	if displayName != "" {
		req.Data = map[string]interface{}{"display_name": displayName}
	}
	res, err := c.Auth.Signup(req)
	if err != nil {
		return session.SignUpResult{}, classify("sign up", err)
	}

	out := session.SignUpResult{User: toIdentity(res.User)}
	if res.Session.AccessToken == "" {
		out.PendingVerification = true
		return out, nil
	}
	s := p.toAuthenticated(res.Session)
	out.Session = &s
	return out, nil
}

func (p *AuthProvider) SignInAnonymously(ctx context.Context) (domain.Authenticated, error) {
	c, err := p.client.ForToken("")
	if err != nil {
		return domain.Authenticated{}, classify("anonymous sign in", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Authenticated{}, classify("anonymous sign in", err)
	}
	// An empty sign-up is an anonymous sign-in when the project allows it.
	res, err := c.Auth.Signup(types.SignupRequest{})
	if err != nil {
		return domain.Authenticated{}, classify("anonymous sign in", err)
	}
	s := p.toAuthenticated(res.Session)
	s.User.IsAnonymous = true
	return s, nil
}

func (p *AuthProvider) Refresh(ctx context.Context, refreshToken string) (domain.Authenticated, error) {
	c, err := p.client.ForToken("")
	if err != nil {
		return domain.Authenticated{}, classify("refresh", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Authenticated{}, classify("refresh", err)
	}
	res, err := c.Auth.RefreshToken(refreshToken)
	if err != nil {
		return domain.Authenticated{}, classify("refresh", err)
	}
	return p.toAuthenticated(res.Session), nil
}

func (p *AuthProvider) SignOut(ctx context.Context, accessToken string) error {
	c, err := p.client.ForToken("")
	if err != nil {
		return classify("sign out", err)
	}
	if err := ctx.Err(); err != nil {
		return classify("sign out", err)
	}
	return classify("sign out", c.Auth.WithToken(accessToken).Logout())
}

func (p *AuthProvider) User(ctx context.Context, accessToken string) (domain.Identity, error) {
	c, err := p.client.ForToken("")
	if err != nil {
		return domain.Identity{}, classify("get user", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Identity{}, classify("get user", err)
	}
	res, err := c.Auth.WithToken(accessToken).GetUser()
	if err != nil {
		return domain.Identity{}, classify("get user", err)
	}
	return toIdentity(res.User), nil
}

func (p *AuthProvider) toAuthenticated(s types.Session) domain.Authenticated {
	expires := session.Expiry(s.ExpiresAt)
	if expires.IsZero() && s.ExpiresIn > 0 {
		expires = p.now().Add(time.Duration(s.ExpiresIn) * time.Second).UTC()
	}
	return domain.Authenticated{
		User:         toIdentity(s.User),
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    expires,
	}
}

func toIdentity(u types.User) domain.Identity {
	id := domain.Identity{
		ID:    u.ID.String(),
		Email: u.Email,
	}
	if name, ok := u.UserMetadata["display_name"].(string); ok {
		id.DisplayName = strings.TrimSpace(name)
	}
	provider, _ := u.AppMetadata["provider"].(string)
	id.IsAnonymous = provider == "anonymous" || (u.Email == "" && u.Phone == "")
	return id
}
