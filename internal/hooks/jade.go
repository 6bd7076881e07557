package hooks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/sevigo/revision-warden/internal/config"
	"github.com/sevigo/revision-warden/internal/core"
)

// JadeHook proposes an edit quality label to the Jade annotation service for
// ShouldRevert and LooksGood judgements on one wiki.
type JadeHook struct {
	cfg    config.JadeConfig
	client *http.Client
}

func NewJadeHook(cfg config.JadeConfig, client *http.Client) *JadeHook {
	return &JadeHook{cfg: cfg, client: client}
}

func (h *JadeHook) Name() string { return "jade" }

// Applies reports whether the interaction is forwarded at all.
func (h *JadeHook) Applies(i core.Interaction) bool {
	return i.Wiki == h.cfg.Wiki && (i.Judgement == core.ShouldRevert || i.Judgement == core.LooksGood)
}

func (h *JadeHook) fields(i core.Interaction) [][2]string {
	damaging := i.Judgement == core.ShouldRevert
	return [][2]string{
		{"action", "jadeproposeorendorse"},
		{"title", fmt.Sprintf("Jade:Diff/%d", i.RevisionID)},
		{"facet", "editquality"},
		{"labeldata", fmt.Sprintf(`{"damaging":%t,"goodfaith":true}`, damaging)},
		{"endorsementorigin", h.cfg.Origin},
		{"notes", "Notes not available"},
		{"formatversion", "2"},
		{"endorsementcomment", "SeemsRequired"},
		{"format", "json"},
		{"token", h.cfg.Token},
	}
}

func (h *JadeHook) Handle(ctx context.Context, i core.Interaction) error {
	if !h.Applies(i) {
		return nil
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range h.fields(i) {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return fmt.Errorf("failed to encode jade form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to encode jade form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.Endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to build jade request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: jade: %w", core.ErrHookFailure, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: jade returned %d: %s", core.ErrHookFailure, resp.StatusCode, snippet)
	}
	return nil
}
