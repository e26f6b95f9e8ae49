package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"lens-backend/internal/domain"
	apperrors "lens-backend/pkg/errors"
)

// FeedReader reads the synchronized feed.
type FeedReader interface {
	Snapshot() []domain.Memory
}

// LocationLister lists suggested locations.
type LocationLister interface {
	List() []string
}

// FeedHandler serves the community feed and composer suggestions.
type FeedHandler struct {
	base
	feed      FeedReader
	locations LocationLister
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(feed FeedReader, locations LocationLister, logger *zap.Logger, errs *apperrors.ErrorHandler) *FeedHandler {
	return &FeedHandler{base: base{logger: logger, errs: errs}, feed: feed, locations: locations}
}

// MemoryView is a memory as rendered in the feed.
type MemoryView struct {
	domain.Memory
	AuthorLabel string `json:"author_label"`
}

// FeedResponse is the body of GET /feed.
type FeedResponse struct {
	Memories []MemoryView `json:"memories"`
	Count    int          `json:"count"`
}

func viewOf(m domain.Memory) MemoryView {
	return MemoryView{Memory: m, AuthorLabel: m.AuthorLabel()}
}

// GetFeed handles GET /feed
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	snapshot := h.feed.Snapshot()
	views := make([]MemoryView, 0, len(snapshot))
	for _, m := range snapshot {
		views = append(views, viewOf(m))
	}
	h.respondJSON(w, http.StatusOK, FeedResponse{Memories: views, Count: len(views)})
}

// ListLocations handles GET /locations
func (h *FeedHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string][]string{"locations": h.locations.List()})
}
