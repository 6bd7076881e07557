package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/sevigo/revision-warden/internal/core"
)

// errOtherWiki marks a well-formed event for a wiki nobody subscribed to.
var errOtherWiki = errors.New("event for another wiki")

type scoreEvent struct {
	Database      string    `json:"database"`
	PageTitle     string    `json:"page_title"`
	RevID         int64     `json:"rev_id"`
	RevTimestamp  time.Time `json:"rev_timestamp"`
	Comment       string    `json:"comment"`
	ParsedComment string    `json:"parsedcomment"`
	Performer     struct {
		UserText string `json:"user_text"`
	} `json:"performer"`
	Scores map[string]struct {
		Probability map[string]float64 `json:"probability"`
	} `json:"scores"`
}

// Normalize turns a revision-score event into a candidate for wiki. The score
// is the probability that the edit is damaging.
func Normalize(wiki string, data []byte) (core.RevisionCandidate, error) {
	var ev scoreEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return core.RevisionCandidate{}, fmt.Errorf("%w: %w", core.ErrMalformedInput, err)
	}
	if ev.Database != wiki {
		return core.RevisionCandidate{}, errOtherWiki
	}
	if ev.RevID <= 0 || ev.PageTitle == "" {
		return core.RevisionCandidate{}, fmt.Errorf("%w: event without revision id or title", core.ErrMalformedInput)
	}
	damaging, ok := ev.Scores["damaging"]
	if !ok {
		return core.RevisionCandidate{}, fmt.Errorf("%w: revision %d has no damaging score", core.ErrMalformedInput, ev.RevID)
	}
	score, ok := damaging.Probability["true"]
	if !ok {
		return core.RevisionCandidate{}, fmt.Errorf("%w: revision %d has no damaging probability", core.ErrMalformedInput, ev.RevID)
	}

	summary := ev.Comment
	if ev.ParsedComment != "" {
		summary = flattenHTML(ev.ParsedComment, ev.Comment)
	}

	return core.RevisionCandidate{
		Wiki:       wiki,
		RevisionID: ev.RevID,
		Title:      core.NormalizeTitle(ev.PageTitle),
		Timestamp:  ev.RevTimestamp,
		Author:     ev.Performer.UserText,
		Score:      score,
		Summary:    summary,
	}, nil
}

// flattenHTML returns the visible text of a parsed edit summary.
func flattenHTML(fragment, fallback string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fallback
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
