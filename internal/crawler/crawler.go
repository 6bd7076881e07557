// Package crawler discovers the pages transitively contained in a wiki category.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sevigo/revision-warden/internal/config"
	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/wiki"
)

// CategoryLister lists the direct members of one category.
type CategoryLister interface {
	CategoryMembers(ctx context.Context, wiki, category string) (*wiki.CategoryMembers, error)
}

// Crawler performs bounded breadth-first traversals of category graphs.
type Crawler struct {
	lister      CategoryLister
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

// New creates a Crawler. Categories of one level are fetched with at most
// cfg.Concurrency requests in flight.
func New(lister CategoryLister, cfg config.CrawlerConfig, logger *slog.Logger) *Crawler {
	return &Crawler{
		lister:      lister,
		concurrency: max(1, cfg.Concurrency),
		timeout:     cfg.Timeout,
		logger:      logger.With("component", "crawler"),
	}
}

// Crawl returns the page titles reachable from rootCategory. The root is level
// one; traversal stops after maxDepth levels or once maxPages titles are
// collected. Any failure discards the partial result and returns an error
// wrapping core.ErrCrawlTimeout or core.ErrUpstreamUnavailable.
func (c *Crawler) Crawl(ctx context.Context, wikiName, rootCategory string, maxDepth, maxPages int) (map[string]struct{}, error) {
	if maxDepth <= 0 || maxPages <= 0 {
		return nil, fmt.Errorf("%w: maxDepth and maxPages must be positive", core.ErrMalformedInput)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	titles := make(map[string]struct{})
	visited := map[string]struct{}{rootCategory: {}}
	frontier := []string{rootCategory}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		levels, err := c.fetchLevel(ctx, wikiName, frontier)
		if err != nil {
			return nil, classify(ctx, err)
		}

		var next []string
		for _, members := range levels {
			if members == nil {
				continue
			}
			for _, p := range members.Pages {
				titles[core.NormalizeTitle(p)] = struct{}{}
				if len(titles) >= maxPages {
					c.logger.Debug("crawl reached page limit", "wiki", wikiName, "root", rootCategory, "depth", depth)
					return titles, nil
				}
			}
			for _, sub := range members.Subcategories {
				if _, seen := visited[sub]; seen {
					continue
				}
				visited[sub] = struct{}{}
				next = append(next, sub)
			}
		}
		c.logger.Debug("crawl level done", "wiki", wikiName, "root", rootCategory, "depth", depth,
			"pages", len(titles), "next_frontier", len(next))
		frontier = next
	}
	return titles, nil
}

// fetchLevel lists every category of the frontier, preserving frontier order.
func (c *Crawler) fetchLevel(ctx context.Context, wikiName string, frontier []string) ([]*wiki.CategoryMembers, error) {
	out := make([]*wiki.CategoryMembers, len(frontier))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, category := range frontier {
		g.Go(func() error {
			members, err := c.lister.CategoryMembers(gctx, wikiName, category)
			if err != nil {
				return fmt.Errorf("list %s: %w", category, err)
			}
			out[i] = members
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrCrawlTimeout, err)
	}
	return fmt.Errorf("%w: %w", core.ErrUpstreamUnavailable, err)
}
