package domain

import "strings"

// MediaKind is persisted next to the attachment URL at upload time.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaKindFromMIME derives the kind from an encoded MIME type. Anything
// that is not video/* is treated as an image.
func MediaKindFromMIME(contentType string) MediaKind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "video/") {
		return MediaVideo
	}
	return MediaImage
}

// ParseMediaKind reads a stored kind, defaulting unknown values to image.
func ParseMediaKind(raw string) MediaKind {
	if MediaKind(raw) == MediaVideo {
		return MediaVideo
	}
	return MediaImage
}

// Media is one attachment on a memory.
type Media struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}
