package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	for _, c := range Categories {
		got, err := ParseCategory(string(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	_, err := ParseCategory("Build")
	assert.Error(t, err)
	_, err = ParseCategory("learn")
	assert.Error(t, err, "category names are case sensitive")
}

func TestMediaKindFromMIME(t *testing.T) {
	tests := []struct {
		contentType string
		want        MediaKind
	}{
		{"video/mp4", MediaVideo},
		{"VIDEO/quicktime", MediaVideo},
		{"image/jpeg", MediaImage},
		{"image/heic", MediaImage},
		{"", MediaImage},
		{"application/octet-stream", MediaImage},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, MediaKindFromMIME(tt.contentType))
		})
	}
}

func TestMemoryAuthorLabel(t *testing.T) {
	tests := []struct {
		name string
		mem  Memory
		want string
	}{
		{
			name: "display name wins",
			mem:  Memory{OwnerID: "abcdef", Author: &AuthorSnapshot{DisplayName: "Ada", Email: "ada@ns.com"}},
			want: "Ada",
		},
		{
			name: "email when no display name",
			mem:  Memory{OwnerID: "abcdef", Author: &AuthorSnapshot{Email: "ada@ns.com"}},
			want: "ada@ns.com",
		},
		{
			name: "owner prefix when no snapshot",
			mem:  Memory{OwnerID: "abcdef"},
			want: "abcd..",
		},
		{
			name: "anon when nothing known",
			mem:  Memory{},
			want: "Anon",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mem.AuthorLabel())
		})
	}
}

func TestMemoryPatchApply(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m := Memory{
		ID:        "m1",
		Text:      "Hit a PR at the Burn session",
		Category:  CategoryBurn,
		Location:  "Gym",
		CreatedAt: created,
		Media:     []Media{{URL: "https://cdn/x.jpg", Kind: MediaImage}},
	}

	loc := "Beach"
	MemoryPatch{Location: &loc}.Apply(&m)
	assert.Equal(t, "Beach", m.Location)
	assert.Equal(t, created, m.CreatedAt)
	assert.Equal(t, "Hit a PR at the Burn session", m.Text)
	assert.Len(t, m.Media, 1)

	backdated := created.Add(-48 * time.Hour)
	MemoryPatch{CreatedAt: &backdated}.Apply(&m)
	assert.Equal(t, backdated, m.CreatedAt)
	assert.Equal(t, "Beach", m.Location)

	assert.True(t, MemoryPatch{}.Empty())
}

func TestMemoryCloneDoesNotShareMedia(t *testing.T) {
	m := Memory{ID: "m1", Media: []Media{{URL: "a", Kind: MediaImage}}, Author: &AuthorSnapshot{DisplayName: "Ada"}}
	c := m.Clone()
	c.Media[0].URL = "b"
	c.Author.DisplayName = "Grace"

	assert.Equal(t, "a", m.Media[0].URL)
	assert.Equal(t, "Ada", m.Author.DisplayName)
}

func TestSessionUnion(t *testing.T) {
	var s Session = Anonymous{}
	_, ok := s.Identity()
	assert.False(t, ok)

	s = Authenticated{User: Identity{ID: "u1", IsAnonymous: true}, ExpiresAt: time.Unix(100, 0)}
	id, ok := s.Identity()
	require.True(t, ok)
	assert.Equal(t, "u1", id.ID)
	assert.True(t, id.IsAnonymous)
	assert.True(t, s.(Authenticated).Expired(time.Unix(101, 0)))
}
