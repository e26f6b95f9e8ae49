package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"lens-backend/internal/domain"
	"lens-backend/internal/realtime"
	"lens-backend/pkg/auth"
	apperrors "lens-backend/pkg/errors"
	"lens-backend/pkg/observer"
)

const (
	adaID   = "0b6f3c55-8a54-4d5e-9c1c-4f1f3d1c0a01"
	graceID = "0b6f3c55-8a54-4d5e-9c1c-4f1f3d1c0a02"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Header http.Header
	Body   string
}

// fakeBackend routes requests by "METHOD path" to canned handlers and
// records everything it sees.
type fakeBackend struct {
	mu       sync.Mutex
	requests []recorded
	routes   map[string]http.HandlerFunc
	srv      *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	f := &fakeBackend{routes: map[string]http.HandlerFunc{}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recorded{
			Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery,
			Auth: r.Header.Get("Authorization"), Header: r.Header.Clone(), Body: string(body),
		})
		h, ok := f.routes[r.Method+" "+r.URL.Path]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"PGRST000","message":"no route"}`))
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBackend) on(route string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[route] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (f *fakeBackend) seq(route string, bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := 0
	f.routes[route] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := bodies[len(bodies)-1]
		if i < len(bodies) {
			body = bodies[i]
		}
		i++
		_, _ = w.Write([]byte(body))
	}
}

func (f *fakeBackend) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func (f *fakeBackend) all() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func newTestClient(t *testing.T, f *fakeBackend) *Client {
	t.Helper()
	c, err := NewClient(Config{URL: f.srv.URL, AnonKey: "anon-key", Bucket: "memories"})
	require.NoError(t, err)
	return c
}

func as(id, token string) context.Context {
	return auth.SetUserInContext(context.Background(), &auth.UserContext{UserID: id, AccessToken: token})
}

type stubChanges struct {
	filter realtime.Filter
	fn     func(realtime.Change)
}

func (s *stubChanges) Subscribe(f realtime.Filter, fn func(realtime.Change)) observer.Subscription {
	s.filter, s.fn = f, fn
	return observer.Func(func() { s.fn = nil })
}

func TestFetchRecentDecodesRows(t *testing.T) {
	f := newFakeBackend(t)
	f.on("GET /rest/v1/memories", 200, `[
		{"id":"m2","text":"sunrise run","category":"Burn","location":"Beach","created_at":"2025-05-02T07:00:00Z","user_id":"`+adaID+`",
		 "media_urls":["https://x/a.jpg","https://x/b.mp4"],"media_types":["image","video"],"image_url":null,
		 "profiles":{"display_name":"Ada","email":"ada@example.com"}},
		{"id":"m1","text":"old post","category":"Learn","location":"Library","created_at":"2025-05-01T07:00:00Z","user_id":"`+graceID+`",
		 "media_urls":[],"media_types":[],"image_url":"https://x/legacy.png","profiles":null}
	]`)
	repo := NewMemoryRepository(newTestClient(t, f), &stubChanges{}, zap.NewNop())

	got, err := repo.FetchRecent(as(adaID, "user-token"), 50)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, []domain.Media{{URL: "https://x/a.jpg", Kind: domain.MediaImage}, {URL: "https://x/b.mp4", Kind: domain.MediaVideo}}, got[0].Media)
	require.NotNil(t, got[0].Author)
	assert.Equal(t, "Ada", got[0].Author.DisplayName)
	assert.Equal(t, []domain.Media{{URL: "https://x/legacy.png", Kind: domain.MediaImage}}, got[1].Media)
	assert.Nil(t, got[1].Author)

	req := f.last(t)
	assert.Equal(t, "Bearer user-token", req.Auth)
	assert.Contains(t, req.Query, "limit=50")
	assert.Contains(t, req.Query, "order=created_at.desc")
	assert.Contains(t, req.Query, "select=")
}

func TestFetchRecentAnonymousUsesAnonKey(t *testing.T) {
	f := newFakeBackend(t)
	f.on("GET /rest/v1/memories", 200, `[]`)
	repo := NewMemoryRepository(newTestClient(t, f), &stubChanges{}, zap.NewNop())

	got, err := repo.FetchRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, "Bearer anon-key", f.last(t).Auth)
}

func TestInsertSendsDraftAndReturnsRow(t *testing.T) {
	f := newFakeBackend(t)
	f.on("POST /rest/v1/memories", 201, `[{"id":"new-id","text":"hi","category":"Fun","location":"Pool","created_at":"2025-05-03T10:00:00Z",
		"user_id":"`+adaID+`","media_urls":["https://x/c.jpg"],"media_types":["image"]}]`)
	repo := NewMemoryRepository(newTestClient(t, f), &stubChanges{}, zap.NewNop())

	draft := domain.MemoryDraft{
		Text: "hi", Category: domain.CategoryFun, Location: "Pool", OwnerID: adaID,
		Media:     []domain.Media{{URL: "https://x/c.jpg", Kind: domain.MediaImage}},
		CreatedAt: time.Date(2025, 5, 3, 10, 0, 0, 0, time.UTC),
	}
	m, err := repo.Insert(as(adaID, "tok"), draft)
	require.NoError(t, err)
	assert.Equal(t, "new-id", m.ID)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(f.last(t).Body), &body))
	assert.Equal(t, "Fun", body["category"])
	assert.Equal(t, []interface{}{"https://x/c.jpg"}, body["media_urls"])
	assert.Equal(t, []interface{}{"image"}, body["media_types"])
	assert.NotContains(t, body, "id")
}

func TestInsertForSomeoneElseIsForbidden(t *testing.T) {
	f := newFakeBackend(t)
	repo := NewMemoryRepository(newTestClient(t, f), &stubChanges{}, zap.NewNop())

	_, err := repo.Insert(as(graceID, "tok"), domain.MemoryDraft{OwnerID: adaID})
	assert.True(t, apperrors.IsForbidden(err))
	assert.Empty(t, f.all())
}

func TestInsertConstraintViolationIsRejected(t *testing.T) {
	f := newFakeBackend(t)
	f.on("POST /rest/v1/memories", 400, `{"code":"23514","message":"new row violates check constraint \"memories_category_check\""}`)
	repo := NewMemoryRepository(newTestClient(t, f), &stubChanges{}, zap.NewNop())

	_, err := repo.Insert(as(adaID, "tok"), domain.MemoryDraft{OwnerID: adaID, Category: "Nap"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidationRejected))
}

func TestUpdateDistinguishesMissingFromForeign(t *testing.T) {
	loc := "Rooftop"
	patch := domain.MemoryPatch{Location: &loc}

	t.Run("foreign", func(t *testing.T) {
		f := newFakeBackend(t)
		f.on("PATCH /rest/v1/memories", 200, `[]`)
		f.on("GET /rest/v1/memories", 200, `[{"id":"m1","user_id":"`+graceID+`"}]`)
		repo := NewMemoryRepository(newTestClient(t, f), &stubChanges{}, zap.NewNop())

		_, err := repo.Update(as(adaID, "tok"), "m1", patch)
		assert.True(t, apperrors.IsForbidden(err))
	})

	t.Run("missing", func(t *testing.T) {
		f := newFakeBackend(t)
		f.on("PATCH /rest/v1/memories", 200, `[]`)
		f.on("GET /rest/v1/memories", 200, `[]`)
		repo := NewMemoryRepository(newTestClient(t, f), &stubChanges{}, zap.NewNop())

		_, err := repo.Update(as(adaID, "tok"), "m1", patch)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("owned", func(t *testing.T) {
		f := newFakeBackend(t)
		f.on("PATCH /rest/v1/memories", 200, `[{"id":"m1","user_id":"`+adaID+`","location":"Rooftop","category":"Fun","created_at":"2025-05-01T00:00:00Z"}]`)
		repo := NewMemoryRepository(newTestClient(t, f), &stubChanges{}, zap.NewNop())

		m, err := repo.Update(as(adaID, "tok"), "m1", patch)
		require.NoError(t, err)
		assert.Equal(t, "Rooftop", m.Location)

		req := f.last(t)
		assert.Contains(t, req.Query, "id=eq.m1")
		assert.Contains(t, req.Query, "user_id=eq."+adaID)
		assert.JSONEq(t, `{"location":"Rooftop"}`, req.Body)
	})
}

func TestDelete(t *testing.T) {
	f := newFakeBackend(t)
	f.seq("DELETE /rest/v1/memories", `[{"id":"m1","user_id":"`+adaID+`"}]`, `[]`)
	f.on("GET /rest/v1/memories", 200, `[]`)
	repo := NewMemoryRepository(newTestClient(t, f), &stubChanges{}, zap.NewNop())

	require.NoError(t, repo.Delete(as(adaID, "tok"), "m1"))
	err := repo.Delete(as(adaID, "tok"), "m1")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMalformedIDIsNotFound(t *testing.T) {
	f := newFakeBackend(t)
	f.on("DELETE /rest/v1/memories", 400, `{"code":"22P02","message":"invalid input syntax for type uuid: \"abc\""}`)
	f.on("PATCH /rest/v1/memories", 400, `{"code":"22P02","message":"invalid input syntax for type uuid: \"abc\""}`)
	repo := NewMemoryRepository(newTestClient(t, f), &stubChanges{}, zap.NewNop())

	err := repo.Delete(as(adaID, "tok"), "abc")
	assert.True(t, apperrors.IsNotFound(err), "got %v", err)
	assert.Equal(t, http.StatusNotFound, apperrors.GetAppError(err).HTTPStatus)

	loc := "Rooftop"
	_, err = repo.Update(as(adaID, "tok"), "abc", domain.MemoryPatch{Location: &loc})
	assert.True(t, apperrors.IsNotFound(err), "got %v", err)
}

func TestUnreachableStoreIsUnavailable(t *testing.T) {
	f := newFakeBackend(t)
	c := newTestClient(t, f)
	f.srv.Close()
	repo := NewMemoryRepository(c, &stubChanges{}, zap.NewNop())

	_, err := repo.FetchRecent(context.Background(), 10)
	assert.True(t, apperrors.IsStoreUnavailable(err))
}

func TestRowLevelSecurityIsForbidden(t *testing.T) {
	f := newFakeBackend(t)
	f.on("POST /rest/v1/memories", 403, `{"code":"42501","message":"new row violates row-level security policy"}`)
	repo := NewMemoryRepository(newTestClient(t, f), &stubChanges{}, zap.NewNop())

	_, err := repo.Insert(as(adaID, "tok"), domain.MemoryDraft{OwnerID: adaID})
	assert.True(t, apperrors.IsForbidden(err))
}

func TestSubscribeInsertsDecodesRecords(t *testing.T) {
	f := newFakeBackend(t)
	changes := &stubChanges{}
	repo := NewMemoryRepository(newTestClient(t, f), changes, zap.NewNop())

	var got []domain.Memory
	sub, err := repo.SubscribeInserts(context.Background(), func(m domain.Memory) { got = append(got, m) })
	require.NoError(t, err)
	assert.Equal(t, realtime.Filter{Event: "INSERT", Schema: "public", Table: "memories"}, changes.filter)

	changes.fn(realtime.Change{Type: "INSERT", Record: json.RawMessage(`{"id":"r1","category":"Earn","user_id":"x","created_at":"2025-05-01T00:00:00Z","media_urls":null,"image_url":"https://x/i.png"}`)})
	changes.fn(realtime.Change{Type: "INSERT", Record: json.RawMessage(`not json`)})
	changes.fn(realtime.Change{Type: "INSERT", Record: json.RawMessage(`{"text":"no id"}`)})

	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, []domain.Media{{URL: "https://x/i.png", Kind: domain.MediaImage}}, got[0].Media)

	sub.Close()
	assert.Nil(t, changes.fn)
}

func TestProfileRepository(t *testing.T) {
	f := newFakeBackend(t)
	f.on("GET /rest/v1/profiles", 200, `[{"id":"`+adaID+`","display_name":"Ada","email":"ada@example.com","avatar_url":null}]`)
	f.on("PATCH /rest/v1/profiles", 200, `[{"id":"`+adaID+`","display_name":"Countess","email":"ada@example.com","avatar_url":null}]`)
	repo := NewProfileRepository(newTestClient(t, f))

	p, err := repo.Get(context.Background(), adaID)
	require.NoError(t, err)
	assert.Equal(t, domain.Profile{ID: adaID, DisplayName: "Ada", Email: "ada@example.com"}, p)

	name := "Countess"
	p, err = repo.Update(as(adaID, "tok"), adaID, domain.ProfileUpdate{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Countess", p.DisplayName)
	assert.JSONEq(t, `{"display_name":"Countess"}`, f.last(t).Body)

	_, err = repo.Update(as(graceID, "tok"), adaID, domain.ProfileUpdate{DisplayName: &name})
	assert.True(t, apperrors.IsForbidden(err))
}

func TestProfileMissing(t *testing.T) {
	f := newFakeBackend(t)
	f.on("GET /rest/v1/profiles", 200, `[]`)
	repo := NewProfileRepository(newTestClient(t, f))

	_, err := repo.Get(context.Background(), adaID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestObjectStoreUpload(t *testing.T) {
	f := newFakeBackend(t)
	f.on("POST /storage/v1/object/memories/"+adaID+"/pic.jpg", 200, `{"Key":"memories/`+adaID+`/pic.jpg"}`)
	store := NewObjectStore(newTestClient(t, f), "3600")

	err := store.Upload(as(adaID, "tok"), adaID+"/pic.jpg", strings.NewReader("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)

	req := f.last(t)
	assert.Equal(t, "jpeg-bytes", req.Body)
	assert.Equal(t, "image/jpeg", req.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer tok", req.Auth)
	assert.Equal(t, "3600", req.Header.Get("Cache-Control"))

	assert.Equal(t, f.srv.URL+"/storage/v1/object/public/memories/"+adaID+"/pic.jpg", store.PublicURL(adaID+"/pic.jpg"))
}

func TestObjectStoreUploadFailure(t *testing.T) {
	f := newFakeBackend(t)
	f.on("POST /storage/v1/object/memories/x.jpg", 400, `{"statusCode":"409","error":"Duplicate","message":"The resource already exists"}`)
	store := NewObjectStore(newTestClient(t, f), "")

	err := store.Upload(as(adaID, "tok"), "x.jpg", strings.NewReader("b"), "image/jpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAuthSignIn(t *testing.T) {
	f := newFakeBackend(t)
	f.on("POST /auth/v1/token", 200, `{"access_token":"at","refresh_token":"rt","token_type":"bearer","expires_in":3600,"expires_at":1767225600,
		"user":{"id":"`+adaID+`","email":"ada@example.com","user_metadata":{"display_name":"Ada"},"app_metadata":{"provider":"email"}}}`)
	p := NewAuthProvider(newTestClient(t, f))

	s, err := p.SignInWithPassword(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "at", s.AccessToken)
	assert.Equal(t, "rt", s.RefreshToken)
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), s.ExpiresAt)
	assert.Equal(t, domain.Identity{ID: adaID, Email: "ada@example.com", DisplayName: "Ada"}, s.User)
	assert.Contains(t, f.last(t).Query, "grant_type=password")
}

func TestAuthBadCredentials(t *testing.T) {
	f := newFakeBackend(t)
	f.on("POST /auth/v1/token", 400, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)
	p := NewAuthProvider(newTestClient(t, f))

	_, err := p.SignInWithPassword(context.Background(), "ada@example.com", "nope")
	assert.True(t, apperrors.IsAuthFailed(err))
}

func TestAuthSignUpPending(t *testing.T) {
	f := newFakeBackend(t)
	f.on("POST /auth/v1/signup", 200, `{"id":"`+adaID+`","email":"ada@example.com","confirmation_sent_at":"2025-05-01T00:00:00Z","user_metadata":{"display_name":"Ada"}}`)
	p := NewAuthProvider(newTestClient(t, f))

	res, err := p.SignUp(context.Background(), "ada@example.com", "secret123", "Ada")
	require.NoError(t, err)
	assert.True(t, res.PendingVerification)
	assert.Nil(t, res.Session)
	assert.Equal(t, adaID, res.User.ID)
	assert.Contains(t, f.last(t).Body, `"display_name":"Ada"`)
}

func TestAuthUserRejectsBadToken(t *testing.T) {
	f := newFakeBackend(t)
	f.on("GET /auth/v1/user", 401, `{"code":401,"msg":"invalid JWT"}`)
	p := NewAuthProvider(newTestClient(t, f))

	_, err := p.User(context.Background(), "bad")
	assert.True(t, apperrors.IsAuthFailed(err))
	assert.Equal(t, "Bearer bad", f.last(t).Auth)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want apperrors.ErrorType
	}{
		{"(23505) duplicate key value", apperrors.ErrorTypeValidationRejected},
		{"(22P02) invalid input syntax for type uuid", apperrors.ErrorTypeNotFound},
		{"(22001) value too long for type character varying(80)", apperrors.ErrorTypeValidationRejected},
		{"(42501) permission denied", apperrors.ErrorTypeForbidden},
		{"(PGRST301) JWT expired", apperrors.ErrorTypeAuthFailed},
		{"(08006) connection failure", apperrors.ErrorTypeStoreUnavailable},
		{"() upstream error", apperrors.ErrorTypeStoreUnavailable},
		{"error parsing error response: invalid character '<'", apperrors.ErrorTypeStoreUnavailable},
		{"response status code 503: unavailable", apperrors.ErrorTypeStoreUnavailable},
		{"response status code 422: weak password", apperrors.ErrorTypeAuthFailed},
		{"something odd", apperrors.ErrorTypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := classify("op", errorString(tt.msg))
			assert.True(t, apperrors.IsType(err, tt.want), "got %v", err)
		})
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }
