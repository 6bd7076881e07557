package core

import (
	"fmt"
	"time"
)

// Judgement is a reviewer's verdict on a revision.
type Judgement string

const (
	LooksGood    Judgement = "LooksGood"
	NotSure      Judgement = "NotSure"
	ShouldRevert Judgement = "ShouldRevert"
)

// ParseJudgement validates a judgement name.
func ParseJudgement(s string) (Judgement, error) {
	switch j := Judgement(s); j {
	case LooksGood, NotSure, ShouldRevert:
		return j, nil
	default:
		return "", fmt.Errorf("%w: unknown judgement %q", ErrMalformedInput, s)
	}
}

// Interaction is a stored judgement. At most one exists per
// (Wiki, RevisionID, ReviewerIdentity).
//
// ReviewerIdentity is derived from exactly one of WikiUserName (authenticated)
// or AnonymousID (a client supplied analytics id). Anonymous ids carry no
// server-side proof of uniqueness and are not a security boundary.
type Interaction struct {
	Wiki             string    `json:"wiki" db:"wiki"`
	RevisionID       int64     `json:"revision_id" db:"revision_id"`
	ReviewerIdentity string    `json:"reviewer_identity" db:"reviewer_identity"`
	WikiUserName     string    `json:"wiki_user_name,omitempty" db:"wiki_user_name"`
	AnonymousID      string    `json:"anonymous_id,omitempty" db:"anonymous_id"`
	Judgement        Judgement `json:"judgement" db:"judgement"`
	Feed             string    `json:"feed" db:"feed"`
	Title            string    `json:"title" db:"title"`
	Timestamp        time.Time `json:"timestamp" db:"judged_at"`
}

// Key returns the revision the interaction is about.
func (i Interaction) Key() RevisionKey {
	return RevisionKey{Wiki: i.Wiki, RevisionID: i.RevisionID}
}

// ReviewerName returns a human readable reviewer label.
func (i Interaction) ReviewerName() string {
	if i.WikiUserName != "" {
		return i.WikiUserName
	}
	return i.AnonymousID
}

// ReviewerIdentityFor builds the identity key from a username or anonymous id.
// Exactly one of them must be set.
func ReviewerIdentityFor(wikiUserName, anonymousID string) (string, error) {
	switch {
	case wikiUserName != "" && anonymousID != "":
		return "", fmt.Errorf("%w: both wiki user name and anonymous id supplied", ErrMalformedInput)
	case wikiUserName != "":
		return "user:" + wikiUserName, nil
	case anonymousID != "":
		return "anon:" + anonymousID, nil
	default:
		return "", fmt.Errorf("%w: reviewer identity is missing", ErrMalformedInput)
	}
}
