package wrapped

import (
	"fmt"
	"strings"
)

// SlideKind names a story slide.
type SlideKind string

const (
	SlideIntro   SlideKind = "intro"
	SlideVibe    SlideKind = "vibe"
	SlideStats   SlideKind = "stats"
	SlideSummary SlideKind = "summary"
)

// Slide is one card of the story.
type Slide struct {
	Kind  SlideKind `json:"kind"`
	Title string    `json:"title"`
	Lines []string  `json:"lines"`
}

// Story is the rendered Wrapped sequence plus the share caption.
type Story struct {
	Header    string  `json:"header"`
	Slides    []Slide `json:"slides"`
	ShareText string  `json:"share_text"`
}

// BuildStory builds the four slides for stats. An empty userName reads "Networker".
func BuildStory(stats Stats, userName string, year int) Story {
	if strings.TrimSpace(userName) == "" {
		userName = "Networker"
	}

	return Story{
		Header: fmt.Sprintf("NETWORK SCHOOL WRAPPED %d", year),
		Slides: []Slide{
			{
				Kind:  SlideIntro,
				Title: "Hello,",
				Lines: []string{userName, "Ready to relive your time at Forest City?"},
			},
			{
				Kind:  SlideVibe,
				Title: "Your Main Character Energy",
				Lines: []string{
					strings.ToUpper(stats.TopCategory),
					fmt.Sprintf("You didn't just exist. You lived to %s.", stats.TopCategory),
				},
			},
			{
				Kind:  SlideStats,
				Title: "The Numbers",
				Lines: []string{
					fmt.Sprintf("Moments Captured: %d", stats.TotalMemories),
					fmt.Sprintf("Favorite Haunt: %s", stats.TopLocation),
				},
			},
			{
				Kind:  SlideSummary,
				Title: stats.Vibe,
				Lines: []string{
					"Forest City Cohort",
					fmt.Sprintf("Most active in: %s", stats.TopCategory),
					fmt.Sprintf("Top Spot: %s", stats.TopLocation),
				},
			},
		},
		ShareText: ShareText(stats),
	}
}

// ShareText is the caption copied when a user shares their Wrapped.
func ShareText(stats Stats) string {
	return fmt.Sprintf("My Network School Wrapped: I'm a %s! Captured %d moments. #NetworkSchool #ForestCity",
		stats.Vibe, stats.TotalMemories)
}

// Text renders the story as plain text, one block per slide.
func (s Story) Text() string {
	var b strings.Builder
	b.WriteString(s.Header)
	b.WriteString("\n")
	for _, slide := range s.Slides {
		fmt.Fprintf(&b, "\n[%s] %s\n", slide.Kind, slide.Title)
		for _, line := range slide.Lines {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	fmt.Fprintf(&b, "\nshare: %s\n", s.ShareText)
	return b.String()
}
