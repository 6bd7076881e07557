package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sevigo/revision-warden/internal/core"
)

var (
	ErrFeedsNotFound = errors.New("feeds file not found")
	ErrFeedsParsing  = errors.New("feeds parsing failed")
)

const categoryPrefix = "Category:"

type feedsFile struct {
	Feeds []core.FeedDefinition `yaml:"feeds"`
}

// DefaultFeeds returns the topic feeds the service has always carried.
func DefaultFeeds() []core.FeedDefinition {
	return []core.FeedDefinition{
		{Name: "us2020", Wiki: "enwiki", RootCategory: "Category:2020_United_States_presidential_election"},
		{Name: "covid19", Wiki: "enwiki", RootCategory: "Category:COVID-19"},
	}
}

// LoadFeeds loads and validates feed definitions from a yaml file. Missing
// crawl bounds are filled from the crawler defaults. When the file does not
// exist the built-in feeds are returned together with ErrFeedsNotFound.
func LoadFeeds(path string, defaults CrawlerConfig) ([]core.FeedDefinition, error) {
	var feeds []core.FeedDefinition
	data, err := os.ReadFile(path)
	switch {
	case path == "" || os.IsNotExist(err):
		feeds = DefaultFeeds()
		err = ErrFeedsNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		var file feedsFile
		if uErr := yaml.Unmarshal(data, &file); uErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrFeedsParsing, uErr)
		}
		feeds = file.Feeds
	}

	normalized, vErr := normalizeFeeds(feeds, defaults)
	if vErr != nil {
		return nil, vErr
	}
	return normalized, err
}

func normalizeFeeds(feeds []core.FeedDefinition, defaults CrawlerConfig) ([]core.FeedDefinition, error) {
	seen := make(map[string]struct{}, len(feeds))
	out := make([]core.FeedDefinition, 0, len(feeds))
	for _, f := range feeds {
		if f.Name == "" || f.Wiki == "" || f.RootCategory == "" {
			return nil, fmt.Errorf("%w: feed requires name, wiki and root_category: %+v", ErrFeedsParsing, f)
		}
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate feed name %q", ErrFeedsParsing, f.Name)
		}
		seen[f.Name] = struct{}{}

		if !strings.HasPrefix(f.RootCategory, categoryPrefix) {
			f.RootCategory = categoryPrefix + f.RootCategory
		}
		if f.MaxDepth <= 0 {
			f.MaxDepth = defaults.MaxDepth
		}
		if f.MaxPages <= 0 {
			f.MaxPages = defaults.MaxPages
		}
		if f.ScoreThreshold < 0 {
			return nil, fmt.Errorf("%w: feed %q has negative score_threshold", ErrFeedsParsing, f.Name)
		}
		out = append(out, f)
	}
	return out, nil
}
