package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lens-backend/internal/domain"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
)

type fakeProvider struct {
	users       map[string]domain.Identity
	passwords   map[string]string
	confirm     bool
	signedOut   []string
	userCalls   int
	unreachable bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		users:     map[string]domain.Identity{"tok-ada": {ID: "u-ada", Email: "ada@example.com"}},
		passwords: map[string]string{"ada@example.com": "secret123"},
	}
}

func (f *fakeProvider) session(id domain.Identity) domain.Authenticated {
	return domain.Authenticated{User: id, AccessToken: "tok-" + id.ID, RefreshToken: "ref-" + id.ID, ExpiresAt: time.Now().Add(time.Hour)}
}

func (f *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (domain.Authenticated, error) {
	if f.unreachable {
		return domain.Authenticated{}, apperrors.NewStoreUnavailableError("token", errors.New("dial tcp: refused"))
	}
	if f.passwords[email] != password {
		return domain.Authenticated{}, errors.New("response status code 400: invalid_grant")
	}
	return f.session(domain.Identity{ID: "u-ada", Email: email}), nil
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password, displayName string) (SignUpResult, error) {
	id := domain.Identity{ID: "u-new", Email: email, DisplayName: displayName}
	if f.confirm {
		return SignUpResult{User: id, PendingVerification: true}, nil
	}
	s := f.session(id)
	return SignUpResult{User: id, Session: &s}, nil
}

func (f *fakeProvider) SignInAnonymously(ctx context.Context) (domain.Authenticated, error) {
	return f.session(domain.Identity{ID: "u-guest"}), nil
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string) (domain.Authenticated, error) {
	if refreshToken != "ref-u-ada" {
		return domain.Authenticated{}, errors.New("response status code 400: refresh token not found")
	}
	return f.session(domain.Identity{ID: "u-ada"}), nil
}

func (f *fakeProvider) SignOut(ctx context.Context, accessToken string) error {
	f.signedOut = append(f.signedOut, accessToken)
	return nil
}

func (f *fakeProvider) User(ctx context.Context, accessToken string) (domain.Identity, error) {
	f.userCalls++
	id, ok := f.users[accessToken]
	if !ok {
		return domain.Identity{}, errors.New("response status code 401: invalid JWT")
	}
	return id, nil
}

func record(m *Manager) *[]StateChange {
	var got []StateChange
	m.OnAuthStateChange(func(c StateChange) { got = append(got, c) })
	return &got
}

func TestCurrentWithoutTokenIsAnonymous(t *testing.T) {
	m := NewManager(newFakeProvider(), nil, zap.NewNop())

	s, err := m.Current(context.Background(), "  ")
	require.NoError(t, err)
	_, ok := s.Identity()
	assert.False(t, ok)
}

func TestCurrentAsksProviderWithoutSecret(t *testing.T) {
	p := newFakeProvider()
	m := NewManager(p, nil, zap.NewNop())

	s, err := m.Current(context.Background(), "tok-ada")
	require.NoError(t, err)
	id, ok := s.Identity()
	require.True(t, ok)
	assert.Equal(t, "u-ada", id.ID)
	assert.Equal(t, 1, p.userCalls)

	_, err = m.Current(context.Background(), "bogus")
	assert.True(t, apperrors.IsAuthFailed(err))
}

func TestCurrentVerifiesLocallyWithSecret(t *testing.T) {
	const secret = "super-secret-jwt-key"
	v, err := auth.NewJWTValidator(auth.JWTConfig{SecretKey: secret})
	require.NoError(t, err)
	p := newFakeProvider()
	m := NewManager(p, v, zap.NewNop())

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := auth.SignToken(secret, &auth.Claims{
		Email:        "grace@example.com",
		IsAnonymous:  false,
		UserMetadata: map[string]interface{}{"display_name": "Grace"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-grace",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	require.NoError(t, err)

	s, err := m.Current(context.Background(), token)
	require.NoError(t, err)
	authd, ok := s.(domain.Authenticated)
	require.True(t, ok)
	assert.Equal(t, "u-grace", authd.User.ID)
	assert.Equal(t, "Grace", authd.User.DisplayName)
	assert.True(t, authd.ExpiresAt.Equal(exp))
	assert.Zero(t, p.userCalls)

	_, err = m.Current(context.Background(), token+"x")
	assert.True(t, apperrors.IsAuthFailed(err))
}

func TestSignInEmitsSignedIn(t *testing.T) {
	m := NewManager(newFakeProvider(), nil, zap.NewNop())
	got := record(m)

	s, err := m.SignInWithPassword(context.Background(), Credentials{Email: " ada@example.com ", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, "u-ada", s.User.ID)

	require.Len(t, *got, 1)
	assert.Equal(t, EventSignedIn, (*got)[0].Event)
	assert.Equal(t, "u-ada", (*got)[0].UserID)
}

func TestSignInFailures(t *testing.T) {
	p := newFakeProvider()
	m := NewManager(p, nil, zap.NewNop())
	got := record(m)

	_, err := m.SignInWithPassword(context.Background(), Credentials{Email: "ada@example.com", Password: "wrong-pass"})
	assert.True(t, apperrors.IsAuthFailed(err))

	_, err = m.SignInWithPassword(context.Background(), Credentials{Email: "not-an-email", Password: "secret123"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	p.unreachable = true
	_, err = m.SignInWithPassword(context.Background(), Credentials{Email: "ada@example.com", Password: "secret123"})
	assert.True(t, apperrors.IsStoreUnavailable(err))

	assert.Empty(t, *got)
}

func TestSignUpPendingVerification(t *testing.T) {
	p := newFakeProvider()
	p.confirm = true
	m := NewManager(p, nil, zap.NewNop())
	got := record(m)

	res, err := m.SignUp(context.Background(), Registration{
		Credentials: Credentials{Email: "new@example.com", Password: "secret123"},
		DisplayName: "Newbie",
	})
	require.NoError(t, err)
	assert.True(t, res.PendingVerification)
	assert.Nil(t, res.Session)

	require.Len(t, *got, 1)
	assert.Equal(t, EventSignedUp, (*got)[0].Event)
	_, signedIn := (*got)[0].Session.Identity()
	assert.False(t, signedIn)
}

func TestSignUpWithAutoConfirm(t *testing.T) {
	m := NewManager(newFakeProvider(), nil, zap.NewNop())

	res, err := m.SignUp(context.Background(), Registration{
		Credentials: Credentials{Email: "new@example.com", Password: "secret123"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.False(t, res.PendingVerification)
}

func TestAnonymousSignInMarksIdentity(t *testing.T) {
	m := NewManager(newFakeProvider(), nil, zap.NewNop())

	s, err := m.SignInAnonymously(context.Background())
	require.NoError(t, err)
	assert.True(t, s.User.IsAnonymous)
}

func TestRefresh(t *testing.T) {
	m := NewManager(newFakeProvider(), nil, zap.NewNop())
	got := record(m)

	_, err := m.Refresh(context.Background(), "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))

	_, err = m.Refresh(context.Background(), "stale")
	assert.True(t, apperrors.IsAuthFailed(err))

	_, err = m.Refresh(context.Background(), "ref-u-ada")
	require.NoError(t, err)
	require.Len(t, *got, 1)
	assert.Equal(t, EventTokenRefreshed, (*got)[0].Event)
}

func TestSignOutNotifiesWithUserID(t *testing.T) {
	p := newFakeProvider()
	m := NewManager(p, nil, zap.NewNop())
	got := record(m)

	require.NoError(t, m.SignOut(context.Background(), "tok-ada"))
	assert.Equal(t, []string{"tok-ada"}, p.signedOut)
	require.Len(t, *got, 1)
	assert.Equal(t, EventSignedOut, (*got)[0].Event)
	assert.Equal(t, "u-ada", (*got)[0].UserID)

	require.NoError(t, m.SignOut(context.Background(), ""), "signing out when signed out is a no-op")
	assert.Len(t, *got, 1)
}

func TestUnsubscribedListenerStopsReceiving(t *testing.T) {
	m := NewManager(newFakeProvider(), nil, zap.NewNop())
	calls := 0
	sub := m.OnAuthStateChange(func(StateChange) { calls++ })

	_, err := m.SignInAnonymously(context.Background())
	require.NoError(t, err)
	sub.Close()
	_, err = m.SignInAnonymously(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}
