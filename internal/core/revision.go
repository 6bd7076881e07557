// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing the stream, feed, judgement and revert pipelines to be wired with
// interchangeable implementations.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RevisionKey identifies a single revision on a single wiki.
type RevisionKey struct {
	Wiki       string
	RevisionID int64
}

// String renders the key in the "wiki:revId" form used across the wire.
func (k RevisionKey) String() string {
	return fmt.Sprintf("%s:%d", k.Wiki, k.RevisionID)
}

// ParseRevisionKey parses a "wiki:revId" key such as "enwiki:989699374".
func ParseRevisionKey(s string) (RevisionKey, error) {
	wiki, rev, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || wiki == "" {
		return RevisionKey{}, fmt.Errorf("%w: revision key %q is not in wiki:revId form", ErrMalformedInput, s)
	}
	id, err := strconv.ParseInt(rev, 10, 64)
	if err != nil || id <= 0 {
		return RevisionKey{}, fmt.Errorf("%w: invalid revision id in %q", ErrMalformedInput, s)
	}
	return RevisionKey{Wiki: wiki, RevisionID: id}, nil
}

// RevisionCandidate is a single edit event enriched with an automated quality score.
// It is treated as immutable once ingested and always passed by value.
type RevisionCandidate struct {
	Wiki       string    `json:"wiki"`
	RevisionID int64     `json:"revision_id"`
	Title      string    `json:"title"`
	Timestamp  time.Time `json:"timestamp"`
	Author     string    `json:"author"`
	Score      float64   `json:"score"`
	Summary    string    `json:"summary"`
}

// Key returns the identity of the candidate.
func (c RevisionCandidate) Key() RevisionKey {
	return RevisionKey{Wiki: c.Wiki, RevisionID: c.RevisionID}
}

// RevisionInfo is what the revision lookup collaborator knows about a revision.
type RevisionInfo struct {
	Wiki       string
	RevisionID int64
	Title      string
	User       string
	Timestamp  time.Time
	Comment    string
}

// NormalizeTitle converts a page title to the canonical display form used for
// scope membership: underscores become spaces and surrounding space is trimmed.
func NormalizeTitle(title string) string {
	return strings.TrimSpace(strings.ReplaceAll(title, "_", " "))
}
