package core

import "time"

// FeedScope is the set of page titles eligible for a feed, as produced by a
// single completed category crawl. It is replaced wholesale, never patched.
type FeedScope struct {
	FeedName        string
	Wiki            string
	RootCategory    string
	MemberTitles    map[string]struct{}
	LastRefreshedAt time.Time
}

// Contains reports whether the (normalized) title belongs to the scope.
func (s *FeedScope) Contains(title string) bool {
	if s == nil {
		return false
	}
	_, ok := s.MemberTitles[NormalizeTitle(title)]
	return ok
}

// Size returns the number of member titles.
func (s *FeedScope) Size() int {
	if s == nil {
		return 0
	}
	return len(s.MemberTitles)
}

// FeedDefinition describes a topic feed and the bounds used to crawl its scope.
type FeedDefinition struct {
	Name           string  `yaml:"name"`
	Wiki           string  `yaml:"wiki"`
	RootCategory   string  `yaml:"root_category"`
	MaxDepth       int     `yaml:"max_depth"`
	MaxPages       int     `yaml:"max_pages"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}
