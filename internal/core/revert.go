package core

import "encoding/json"

// RevertState is a step of the revert pipeline.
type RevertState string

const (
	RevertRequested            RevertState = "Requested"
	RevertAuthorizationChecked RevertState = "AuthorizationChecked"
	RevertRejected             RevertState = "Rejected"
	RevertAuthorized           RevertState = "Authorized"
	RevertTokenAcquired        RevertState = "TokenAcquired"
	RevertEditSubmitted        RevertState = "EditSubmitted"
	RevertSucceeded            RevertState = "Succeeded"
	RevertFailed               RevertState = "Failed"
)

// RevertRequest asks for an "undo" of a revision on behalf of an authenticated user.
// Credential is the user's wiki OAuth access token; it is never persisted.
type RevertRequest struct {
	Wiki       string
	RevisionID int64
	ActingUser string
	Credential string
}

// Key returns the target revision.
func (r RevertRequest) Key() RevisionKey {
	return RevisionKey{Wiki: r.Wiki, RevisionID: r.RevisionID}
}

// RevertResult describes a completed revert.
type RevertResult struct {
	Wiki       string          `json:"wiki"`
	RevisionID int64           `json:"revision_id"`
	Title      string          `json:"title"`
	ActingUser string          `json:"acting_user"`
	State      RevertState     `json:"state"`
	Upstream   json.RawMessage `json:"upstream"`
}

// RevertAuditEntry is the only persisted trace of a revert request.
type RevertAuditEntry struct {
	ID         string      `db:"id"`
	Wiki       string      `db:"wiki"`
	RevisionID int64       `db:"revision_id"`
	ActingUser string      `db:"acting_user"`
	State      RevertState `db:"state"`
	Detail     string      `db:"detail"`
}
