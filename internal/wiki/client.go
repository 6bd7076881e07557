// Package wiki talks to the MediaWiki Action API of the monitored wikis.
package wiki

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/sevigo/revision-warden/internal/config"
	"github.com/sevigo/revision-warden/internal/core"
)

const categoryNamespace = 14

// CategoryMembers lists the direct children of a category.
type CategoryMembers struct {
	Pages         []string
	Subcategories []string
}

// UserInfo is the subset of meta=userinfo used for authorization.
type UserInfo struct {
	Name   string   `json:"name"`
	Rights []string `json:"rights"`
	Groups []string `json:"groups"`
}

// UndoRequest describes an undo edit.
type UndoRequest struct {
	Title      string
	RevisionID int64
	Summary    string
	Tags       string
	Token      string
}

// EditResult is the response of action=edit. Raw holds the full upstream body.
type EditResult struct {
	Result   string
	NewRevID int64
	Raw      json.RawMessage
}

// APIError is an error object returned by the Action API.
type APIError struct {
	Code    string
	Info    string
	Payload []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wiki api error %s: %s", e.Code, e.Info)
}

// Client defines the wiki operations used by the crawler, hooks and revert pipeline.
//
//go:generate mockgen -destination=../../mocks/mock_wiki_client.go -package=mocks . Client
type Client interface {
	CategoryMembers(ctx context.Context, wiki, category string) (*CategoryMembers, error)
	LookupRevisions(ctx context.Context, keys []core.RevisionKey) (map[core.RevisionKey]core.RevisionInfo, error)
	UserInfo(ctx context.Context, wiki, credential string) (*UserInfo, error)
	CSRFToken(ctx context.Context, wiki, credential string) (string, error)
	Undo(ctx context.Context, wiki, credential string, req UndoRequest) (*EditResult, error)
}

type wikiClient struct {
	transport http.RoundTripper
	timeout   time.Duration
	limiter   *rate.Limiter
	userAgent string
	overrides map[string]string
	logger    *slog.Logger
}

// NewClient creates a Client paced by cfg.RequestsPerSecond.
func NewClient(cfg config.WikiConfig, logger *slog.Logger) Client {
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	return &wikiClient{
		transport: http.DefaultTransport,
		timeout:   cfg.Timeout,
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: cfg.UserAgent,
		overrides: cfg.APIOverrides,
		logger:    logger.With("component", "wiki"),
	}
}

// APIURL returns the api.php endpoint for a wiki.
func (c *wikiClient) APIURL(wiki string) (string, error) {
	if u, ok := c.overrides[wiki]; ok {
		return u, nil
	}
	domain, err := Domain(wiki)
	if err != nil {
		return "", err
	}
	return "https://" + domain + "/w/api.php", nil
}

func (c *wikiClient) httpClient(credential string) *http.Client {
	var rt http.RoundTripper = c.transport
	if credential != "" {
		rt = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credential}),
			Base:   c.transport,
		}
	}
	return &http.Client{Transport: rt, Timeout: c.timeout}
}

// call issues one Action API request and returns the raw body. Transport
// failures wrap core.ErrTransientUpstream, HTTP errors core.ErrUpstreamUnavailable
// and API level errors are returned as *APIError.
func (c *wikiClient) call(ctx context.Context, wiki, method, credential string, params url.Values) ([]byte, error) {
	endpoint, err := c.APIURL(wiki)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransientUpstream, err)
	}

	params.Set("format", "json")
	params.Set("formatversion", "2")

	var req *http.Request
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient(credential).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrTransientUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", core.ErrTransientUpstream, err)
	}
	if resp.StatusCode >= 300 {
		return body, fmt.Errorf("%w: %s returned %d", core.ErrUpstreamUnavailable, wiki, resp.StatusCode)
	}

	var envelope struct {
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return body, fmt.Errorf("%w: decode response: %w", core.ErrUpstreamUnavailable, err)
	}
	if envelope.Error != nil {
		return body, &APIError{Code: envelope.Error.Code, Info: envelope.Error.Info, Payload: body}
	}
	return body, nil
}

// CategoryMembers follows cmcontinue until the category is exhausted.
func (c *wikiClient) CategoryMembers(ctx context.Context, wiki, category string) (*CategoryMembers, error) {
	members := &CategoryMembers{}
	params := url.Values{
		"action":  {"query"},
		"list":    {"categorymembers"},
		"cmtitle": {category},
		"cmtype":  {"page|subcat"},
		"cmprop":  {"title|type"},
		"cmlimit": {"max"},
	}

	for {
		body, err := c.call(ctx, wiki, http.MethodGet, "", params)
		if err != nil {
			c.logger.Warn("failed to list category members", "wiki", wiki, "category", category, "error", err)
			return nil, err
		}

		var page struct {
			Continue map[string]string `json:"continue"`
			Query    struct {
				CategoryMembers []struct {
					NS    int    `json:"ns"`
					Title string `json:"title"`
				} `json:"categorymembers"`
			} `json:"query"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("%w: decode categorymembers: %w", core.ErrUpstreamUnavailable, err)
		}
		for _, m := range page.Query.CategoryMembers {
			if m.NS == categoryNamespace {
				members.Subcategories = append(members.Subcategories, m.Title)
			} else {
				members.Pages = append(members.Pages, m.Title)
			}
		}

		next, ok := page.Continue["cmcontinue"]
		if !ok || next == "" {
			return members, nil
		}
		params.Set("cmcontinue", next)
		if v, ok := page.Continue["continue"]; ok {
			params.Set("continue", v)
		}
	}
}

// LookupRevisions resolves revisions in one request per wiki. Unknown
// revisions are absent from the result.
func (c *wikiClient) LookupRevisions(ctx context.Context, keys []core.RevisionKey) (map[core.RevisionKey]core.RevisionInfo, error) {
	byWiki := make(map[string][]string)
	for _, k := range keys {
		byWiki[k.Wiki] = append(byWiki[k.Wiki], strconv.FormatInt(k.RevisionID, 10))
	}

	out := make(map[core.RevisionKey]core.RevisionInfo, len(keys))
	for wiki, ids := range byWiki {
		body, err := c.call(ctx, wiki, http.MethodGet, "", url.Values{
			"action": {"query"},
			"prop":   {"revisions"},
			"revids": {strings.Join(ids, "|")},
			"rvprop": {"ids|user|timestamp|comment"},
		})
		if err != nil {
			return nil, err
		}

		var resp struct {
			Query struct {
				Pages []struct {
					Title     string `json:"title"`
					Revisions []struct {
						RevID     int64     `json:"revid"`
						User      string    `json:"user"`
						Timestamp time.Time `json:"timestamp"`
						Comment   string    `json:"comment"`
					} `json:"revisions"`
				} `json:"pages"`
			} `json:"query"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: decode revisions: %w", core.ErrUpstreamUnavailable, err)
		}
		for _, p := range resp.Query.Pages {
			for _, r := range p.Revisions {
				key := core.RevisionKey{Wiki: wiki, RevisionID: r.RevID}
				out[key] = core.RevisionInfo{
					Wiki:       wiki,
					RevisionID: r.RevID,
					Title:      p.Title,
					User:       r.User,
					Timestamp:  r.Timestamp,
					Comment:    r.Comment,
				}
			}
		}
	}
	return out, nil
}

func (c *wikiClient) UserInfo(ctx context.Context, wiki, credential string) (*UserInfo, error) {
	body, err := c.call(ctx, wiki, http.MethodGet, credential, url.Values{
		"action": {"query"},
		"meta":   {"userinfo"},
		"uiprop": {"rights|groups|groupmemberships"},
	})
	if err != nil {
		return nil, err
	}
	var resp struct {
		Query struct {
			UserInfo UserInfo `json:"userinfo"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %w", core.ErrUpstreamUnavailable, err)
	}
	return &resp.Query.UserInfo, nil
}

func (c *wikiClient) CSRFToken(ctx context.Context, wiki, credential string) (string, error) {
	body, err := c.call(ctx, wiki, http.MethodGet, credential, url.Values{
		"action": {"query"},
		"meta":   {"tokens"},
	})
	if err != nil {
		return "", err
	}
	var resp struct {
		Query struct {
			Tokens struct {
				CSRFToken string `json:"csrftoken"`
			} `json:"tokens"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode tokens: %w", core.ErrUpstreamUnavailable, err)
	}
	if resp.Query.Tokens.CSRFToken == "" {
		return "", &APIError{Code: "notoken", Info: "no csrf token in response", Payload: body}
	}
	return resp.Query.Tokens.CSRFToken, nil
}

// Undo submits action=edit with undo. A response whose edit result is not
// "Success" is returned as an *APIError carrying the raw body.
func (c *wikiClient) Undo(ctx context.Context, wiki, credential string, req UndoRequest) (*EditResult, error) {
	params := url.Values{
		"action":  {"edit"},
		"title":   {req.Title},
		"summary": {req.Summary},
		"undo":    {strconv.FormatInt(req.RevisionID, 10)},
		"token":   {req.Token},
	}
	if req.Tags != "" {
		params.Set("tags", req.Tags)
	}

	body, err := c.call(ctx, wiki, http.MethodPost, credential, params)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			c.logger.Error("undo request failed", "wiki", wiki, "rev_id", req.RevisionID, "error", err)
		}
		return nil, err
	}

	var resp struct {
		Edit struct {
			Result   string `json:"result"`
			NewRevID int64  `json:"newrevid"`
		} `json:"edit"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode edit: %w", core.ErrUpstreamUnavailable, err)
	}
	if resp.Edit.Result != "Success" {
		return nil, &APIError{Code: "editfailed", Info: "edit result " + strconv.Quote(resp.Edit.Result), Payload: body}
	}
	return &EditResult{Result: resp.Edit.Result, NewRevID: resp.Edit.NewRevID, Raw: body}, nil
}
