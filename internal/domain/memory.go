package domain

import (
	"time"
)

// AuthorSnapshot is the owning profile's display data captured at read time.
type AuthorSnapshot struct {
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Memory is one post in the shared community feed.
type Memory struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Category  Category        `json:"category"`
	Location  string          `json:"location"`
	CreatedAt time.Time       `json:"created_at"`
	OwnerID   string          `json:"user_id"`
	Media     []Media         `json:"media"`
	Author    *AuthorSnapshot `json:"author,omitempty"`
}

// AuthorLabel returns the name shown next to a memory in the feed.
func (m Memory) AuthorLabel() string {
	if m.Author != nil {
		if m.Author.DisplayName != "" {
			return m.Author.DisplayName
		}
		if m.Author.Email != "" {
			return m.Author.Email
		}
	}
	if m.OwnerID != "" {
		id := []rune(m.OwnerID)
		if len(id) > 4 {
			id = id[:4]
		}
		return string(id) + ".."
	}
	return "Anon"
}

// Clone returns a copy that shares no slices with m.
func (m Memory) Clone() Memory {
	out := m
	if m.Media != nil {
		out.Media = append([]Media(nil), m.Media...)
	}
	if m.Author != nil {
		a := *m.Author
		out.Author = &a
	}
	return out
}

// MemoryDraft carries the fields set at creation. The store assigns the id.
type MemoryDraft struct {
	Text      string
	Category  Category
	Location  string
	OwnerID   string
	Media     []Media
	CreatedAt time.Time
}

// MemoryPatch holds the only fields that may change after creation.
type MemoryPatch struct {
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Location  *string    `json:"location,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p MemoryPatch) Empty() bool {
	return p.CreatedAt == nil && p.Location == nil
}

// Apply merges the patch into m in place.
func (p MemoryPatch) Apply(m *Memory) {
	if p.CreatedAt != nil {
		m.CreatedAt = *p.CreatedAt
	}
	if p.Location != nil {
		m.Location = *p.Location
	}
}
