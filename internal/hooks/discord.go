package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sevigo/revision-warden/internal/config"
	"github.com/sevigo/revision-warden/internal/core"
	"github.com/sevigo/revision-warden/internal/wiki"
)

// Embed colors keyed by judgement.
var judgementColors = map[core.Judgement]int{
	core.ShouldRevert: 14431557,
	core.NotSure:      7107965,
	core.LooksGood:    2664261,
}

type discordEmbed struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Color int    `json:"color,omitempty"`
}

type discordMessage struct {
	Username string         `json:"username"`
	Content  string         `json:"content"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordHook posts every judgement to a chat webhook.
type DiscordHook struct {
	url        string
	publicHost string
	client     *http.Client
}

func NewDiscordHook(cfg config.DiscordConfig, publicHost string, client *http.Client) *DiscordHook {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	return &DiscordHook{
		url:        fmt.Sprintf("%s/%s/%s", base, cfg.WebhookID, cfg.WebhookToken),
		publicHost: publicHost,
		client:     client,
	}
}

func (h *DiscordHook) Name() string { return "discord" }

// message links the diff only for wikis with a known domain.
func (h *DiscordHook) message(i core.Interaction) discordMessage {
	var embeds []discordEmbed
	if domain, err := wiki.Domain(i.Wiki); err == nil {
		embeds = append(embeds, discordEmbed{
			Title: fmt.Sprintf("See it on %s: %s", i.Wiki, i.Title),
			URL:   fmt.Sprintf("https://%s/wiki/Special:Diff/%d", domain, i.RevisionID),
		})
	}
	embeds = append(embeds, discordEmbed{
		Title: string(i.Judgement),
		URL:   fmt.Sprintf("http://%s/revision/%s/%d", h.publicHost, i.Wiki, i.RevisionID),
		Color: judgementColors[i.Judgement],
	})
	return discordMessage{
		Username: h.publicHost,
		Content: fmt.Sprintf("A revision %s for %s is reviewed by %s and result is %s",
			i.Key(), i.Title, i.ReviewerName(), i.Judgement),
		Embeds: embeds,
	}
}

func (h *DiscordHook) Handle(ctx context.Context, i core.Interaction) error {
	body, err := json.Marshal(h.message(i))
	if err != nil {
		return fmt.Errorf("failed to encode discord message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: discord: %w", core.ErrHookFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: discord returned %d: %s", core.ErrHookFailure, resp.StatusCode, snippet)
	}
	return nil
}
