package wrapped

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lens-backend/internal/domain"
)

var day = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

func m(owner string, c domain.Category, loc string, hours int) domain.Memory {
	return domain.Memory{OwnerID: owner, Category: c, Location: loc, CreatedAt: day.Add(time.Duration(hours) * time.Hour)}
}

func TestAggregateEmptyReturnsPlaceholder(t *testing.T) {
	stats := Aggregate(nil, nil)

	assert.True(t, stats.Placeholder)
	assert.Equal(t, "Build", stats.TopCategory)
	assert.Equal(t, 42, stats.TotalMemories)
	assert.Equal(t, "Co-working Space", stats.TopLocation)
	assert.Equal(t, "Relentless Founder", stats.Vibe)
	assert.Nil(t, stats.Community)
}

func TestAggregateBurnBurnFun(t *testing.T) {
	stats := Aggregate([]domain.Memory{
		{Category: domain.CategoryBurn},
		{Category: domain.CategoryBurn},
		{Category: domain.CategoryFun},
	}, nil)

	assert.Equal(t, "Burn", stats.TopCategory)
	assert.Equal(t, "Fitness Maximizer", stats.Vibe)
	assert.Equal(t, 3, stats.TotalMemories)
	assert.Equal(t, "Forest City Cafe", stats.TopLocation, "no locations falls back")
	assert.False(t, stats.Placeholder)
}

func TestTopCategoryTieBreaksByEnumOrder(t *testing.T) {
	tests := []struct {
		name string
		cats []domain.Category
		want string
	}{
		{"fun and learn tie", []domain.Category{domain.CategoryFun, domain.CategoryLearn}, "Learn"},
		{"earn and burn tie", []domain.Category{domain.CategoryEarn, domain.CategoryBurn}, "Burn"},
		{"all four tie", []domain.Category{domain.CategoryFun, domain.CategoryEarn, domain.CategoryBurn, domain.CategoryLearn}, "Learn"},
		{"single fun", []domain.Category{domain.CategoryFun}, "Fun"},
		{"earn wins", []domain.Category{domain.CategoryEarn, domain.CategoryEarn, domain.CategoryLearn}, "Earn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := make([]domain.Memory, len(tt.cats))
			for i, c := range tt.cats {
				ms[i] = domain.Memory{Category: c}
			}
			assert.Equal(t, tt.want, Aggregate(ms, nil).TopCategory)
		})
	}
}

func TestVibeTable(t *testing.T) {
	assert.Equal(t, "Fitness Maximizer", Vibe(domain.CategoryBurn))
	assert.Equal(t, "Deal Closer", Vibe(domain.CategoryEarn))
	assert.Equal(t, "Deep Thinker", Vibe(domain.CategoryLearn))
	assert.Equal(t, "Deep Thinker", Vibe(domain.CategoryFun))
}

func TestTopLocationIsMostRecent(t *testing.T) {
	stats := Aggregate([]domain.Memory{
		m("a", domain.CategoryLearn, "Gym", 1),
		m("a", domain.CategoryLearn, "Beach", 5),
		m("a", domain.CategoryLearn, "Dorms", 3),
	}, nil)
	assert.Equal(t, "Beach", stats.TopLocation)
}

func TestCommunityStats(t *testing.T) {
	all := []domain.Memory{
		m("a", domain.CategoryBurn, "Gym", 1),
		m("b", domain.CategoryEarn, "Gym", 2),
		m("b", domain.CategoryEarn, "Beach", 3),
		m("c", domain.CategoryLearn, "Beach", 4),
		m("c", domain.CategoryEarn, "The Cafe", 5),
	}

	stats := Aggregate(Mine(all, "a"), all)
	require.NotNil(t, stats.Community)
	assert.Equal(t, 1, stats.TotalMemories)
	assert.Equal(t, 5, stats.Community.TotalMemories)
	assert.Equal(t, 3, stats.Community.Contributors)
	assert.Equal(t, "Earn", stats.Community.TopCategory)
	assert.Equal(t, 3, stats.Community.CategoryCounts[domain.CategoryEarn])
	assert.Equal(t, "Beach", stats.Community.TopLocation, "ties resolve alphabetically")

	empty := Aggregate(nil, []domain.Memory{})
	require.NotNil(t, empty.Community)
	assert.Equal(t, 0, empty.Community.TotalMemories)
	assert.True(t, empty.Placeholder)
}

func TestShareText(t *testing.T) {
	stats := Aggregate([]domain.Memory{{Category: domain.CategoryEarn}}, nil)
	assert.Equal(t, "My Network School Wrapped: I'm a Deal Closer! Captured 1 moments. #NetworkSchool #ForestCity", ShareText(stats))
}

func TestStoryGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)

	t.Run("placeholder", func(t *testing.T) {
		story := BuildStory(Aggregate(nil, nil), "", 2025)
		g.Assert(t, "story_placeholder", []byte(story.Text()))
	})

	t.Run("burn", func(t *testing.T) {
		stats := Aggregate([]domain.Memory{
			m("ada", domain.CategoryBurn, "Gym", 1),
			m("ada", domain.CategoryBurn, "Beach", 3),
			m("ada", domain.CategoryFun, "Poolside", 2),
		}, nil)
		story := BuildStory(stats, "Ada", 2025)
		require.Len(t, story.Slides, 4)
		g.Assert(t, "story_burn", []byte(story.Text()))
	})
}
