package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func signed(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	tok, err := SignToken(secret, claims)
	require.NoError(t, err)
	return tok
}

func TestValidateToken(t *testing.T) {
	v, err := NewJWTValidator(JWTConfig{SecretKey: testSecret, Audience: []string{"authenticated"}})
	require.NoError(t, err)

	valid := &Claims{
		Email:        "ada@ns.com",
		Role:         "authenticated",
		UserMetadata: map[string]interface{}{"display_name": "Ada"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "0b7c9d4e-1111-2222-3333-444455556666",
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	t.Run("valid", func(t *testing.T) {
		claims, err := v.ValidateToken("Bearer " + signed(t, testSecret, valid))
		require.NoError(t, err)
		assert.Equal(t, "0b7c9d4e-1111-2222-3333-444455556666", claims.UserID())
		assert.Equal(t, "Ada", claims.DisplayName())
		assert.False(t, claims.IsAnonymous)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.ValidateToken(signed(t, "another-secret-that-is-also-long-enough", valid))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("expired", func(t *testing.T) {
		expired := *valid
		expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
		_, err := v.ValidateToken(signed(t, testSecret, &expired))
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		other := *valid
		other.Audience = jwt.ClaimStrings{"service_role"}
		_, err := v.ValidateToken(signed(t, testSecret, &other))
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})

	t.Run("missing subject", func(t *testing.T) {
		noSub := *valid
		noSub.Subject = ""
		_, err := v.ValidateToken(signed(t, testSecret, &noSub))
		assert.True(t, errors.Is(err, ErrInvalidClaims))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := v.ValidateToken("   ")
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}

func TestNewJWTValidatorRequiresSecret(t *testing.T) {
	_, err := NewJWTValidator(JWTConfig{})
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	tok, ok = BearerToken("bearer xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}

func TestUserContextRoundTrip(t *testing.T) {
	_, err := GetUserFromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoUser)

	ctx := SetUserInContext(context.Background(), &UserContext{UserID: "u1"})
	u, err := GetUserFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
}

func TestTokenBucketLimiter(t *testing.T) {
	l := NewTokenBucketLimiter(2, time.Second)
	defer l.Close()

	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "k")
	assert.False(t, ok, "bucket drained")

	ok, _ = l.Allow(ctx, "other")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok, "one token refilled")

	require.NoError(t, l.Reset(ctx, "k"))
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestKeyedLimitersDoNotCollide(t *testing.T) {
	shared := NewTokenBucketLimiter(1, time.Hour)
	defer shared.Close()
	ip := NewIPRateLimiter(shared)
	user := NewUserRateLimiter(shared)
	ctx := context.Background()

	ok, _ := ip.Allow(ctx, "u1")
	assert.True(t, ok)
	ok, _ = user.Allow(ctx, "u1")
	assert.True(t, ok)
	ok, _ = ip.Allow(ctx, "u1")
	assert.False(t, ok)
}

func TestEvictIdle(t *testing.T) {
	l := NewTokenBucketLimiter(1, time.Minute)
	defer l.Close()
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "k")
	now = now.Add(2 * time.Hour)
	l.evictIdle()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.buckets)
}
