// Package wrapped computes a user's end-of-stay summary from their memories.
// Everything here is pure: no I/O and no failure modes.
package wrapped

import (
	"sort"

	"lens-backend/internal/domain"
)

// Placeholder values shown when a user has no memories yet.
const (
	PlaceholderTopCategory = "Build"
	PlaceholderTotal       = 42
	PlaceholderLocation    = "Co-working Space"
	PlaceholderVibe        = "Relentless Founder"

	fallbackLocation = "Forest City Cafe"
)

var vibes = map[domain.Category]string{
	domain.CategoryBurn:  "Fitness Maximizer",
	domain.CategoryEarn:  "Deal Closer",
	domain.CategoryLearn: "Deep Thinker",
	domain.CategoryFun:   "Deep Thinker",
}

// Stats is the fixed-shape summary.
type Stats struct {
	TotalMemories  int                     `json:"total_memories"`
	TopCategory    string                  `json:"top_category"`
	TopLocation    string                  `json:"top_location"`
	Vibe           string                  `json:"vibe"`
	CategoryCounts map[domain.Category]int `json:"category_counts"`
	Placeholder    bool                    `json:"placeholder"`
	Community      *CommunityStats         `json:"community,omitempty"`
}

// CommunityStats summarizes everyone's memories.
type CommunityStats struct {
	TotalMemories  int                     `json:"total_memories"`
	Contributors   int                     `json:"contributors"`
	CategoryCounts map[domain.Category]int `json:"category_counts"`
	TopCategory    string                  `json:"top_category"`
	TopLocation    string                  `json:"top_location"`
}

// Vibe maps a category to its label.
func Vibe(c domain.Category) string {
	if v, ok := vibes[c]; ok {
		return v
	}
	return "Deep Thinker"
}

// Aggregate summarizes mine. community is optional; pass nil to skip the
// community section.
func Aggregate(mine []domain.Memory, community []domain.Memory) Stats {
	var stats Stats
	if len(mine) == 0 {
		stats = Stats{
			TotalMemories:  PlaceholderTotal,
			TopCategory:    PlaceholderTopCategory,
			TopLocation:    PlaceholderLocation,
			Vibe:           PlaceholderVibe,
			CategoryCounts: countCategories(nil),
			Placeholder:    true,
		}
	} else {
		counts := countCategories(mine)
		top := topCategory(counts)
		stats = Stats{
			TotalMemories:  len(mine),
			TopCategory:    string(top),
			TopLocation:    mostRecentLocation(mine),
			Vibe:           Vibe(top),
			CategoryCounts: counts,
		}
	}

	if community != nil {
		stats.Community = aggregateCommunity(community)
	}
	return stats
}

// Mine filters memories owned by ownerID, keeping order.
func Mine(all []domain.Memory, ownerID string) []domain.Memory {
	out := make([]domain.Memory, 0)
	for _, m := range all {
		if m.OwnerID == ownerID {
			out = append(out, m)
		}
	}
	return out
}

func aggregateCommunity(all []domain.Memory) *CommunityStats {
	counts := countCategories(all)
	owners := make(map[string]struct{})
	for _, m := range all {
		if m.OwnerID != "" {
			owners[m.OwnerID] = struct{}{}
		}
	}
	cs := &CommunityStats{
		TotalMemories:  len(all),
		Contributors:   len(owners),
		CategoryCounts: counts,
		TopLocation:    mostFrequentLocation(all),
	}
	if len(all) > 0 {
		cs.TopCategory = string(topCategory(counts))
	}
	return cs
}

func countCategories(ms []domain.Memory) map[domain.Category]int {
	counts := make(map[domain.Category]int, len(domain.Categories))
	for _, c := range domain.Categories {
		counts[c] = 0
	}
	for _, m := range ms {
		if m.Category.Valid() {
			counts[m.Category]++
		}
	}
	return counts
}

// topCategory folds over the fixed enumeration order and only replaces the
// leader on a strictly greater count, so ties go to the earlier category.
func topCategory(counts map[domain.Category]int) domain.Category {
	best := domain.Categories[0]
	for _, c := range domain.Categories[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

func mostRecentLocation(ms []domain.Memory) string {
	latest := -1
	for i, m := range ms {
		if m.Location == "" {
			continue
		}
		if latest < 0 || m.CreatedAt.After(ms[latest].CreatedAt) {
			latest = i
		}
	}
	if latest < 0 {
		return fallbackLocation
	}
	return ms[latest].Location
}

func mostFrequentLocation(ms []domain.Memory) string {
	counts := make(map[string]int)
	for _, m := range ms {
		if m.Location != "" {
			counts[m.Location]++
		}
	}
	if len(counts) == 0 {
		return ""
	}
	locs := make([]string, 0, len(counts))
	for l := range counts {
		locs = append(locs, l)
	}
	sort.Slice(locs, func(i, j int) bool {
		if counts[locs[i]] != counts[locs[j]] {
			return counts[locs[i]] > counts[locs[j]]
		}
		return locs[i] < locs[j]
	})
	return locs[0]
}
