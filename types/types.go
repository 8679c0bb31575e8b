package types

import (
	"time"
)

// WhitelistRequest represents a pending whitelist request submitted from Discord.
// The row's presence in the store is the only authoritative signal that the
// request is still open; resolving a request deletes the row.
type WhitelistRequest struct {
	ID                string    `bson:"_id" json:"id"`
	ServerID          string    `bson:"serverId" json:"serverId"`
	RequesterID       string    `bson:"requesterId" json:"requesterId"`
	MinecraftUsername string    `bson:"minecraftUsername" json:"minecraftUsername"`
	CreatedAt         time.Time `bson:"createdAt" json:"createdAt"`
}

// Decision is the reviewer's choice, parsed once at the transport boundary.
type Decision int

const (
	Approve Decision = iota
	Deny
)

func (d Decision) String() string {
	if d == Approve {
		return "approve"
	}
	return "deny"
}

// Actor identifies the reviewer acting on a decision, together with a
// snapshot of the roles and permissions they held when they clicked.
type Actor struct {
	ID      string
	Roles   []string
	IsAdmin bool
}

// DecisionEvent is a single approve/deny click delivered by the transport.
// Events for the same RequestID may arrive concurrently and duplicated.
type DecisionEvent struct {
	RequestID string
	Decision  Decision
	Actor     Actor
	// ChannelID addresses followups on the reviewing surface. The transport
	// renders the actual reply; the coordinator only carries it through.
	ChannelID string
}

// Status is the terminal outcome of one resolution attempt.
type Status int

const (
	// StatusApproved means the whitelist command was applied and the row removed.
	StatusApproved Status = iota
	// StatusDenied means the row was removed with no external action.
	StatusDenied
	// StatusUnauthorized means the actor may not decide; the row is untouched.
	StatusUnauthorized
	// StatusAlreadyResolved means the claim found no row: resolved concurrently,
	// never existed, or long gone. These cases are not distinguished.
	StatusAlreadyResolved
	// StatusServerUnavailable means the target server is unknown or has
	// commands disabled. The row is already gone; manual follow-up needed.
	StatusServerUnavailable
	// StatusTargetNotRunning means the container liveness probe failed the
	// approval. The row is already gone; manual follow-up needed.
	StatusTargetNotRunning
	// StatusActionFailed means the RCON dispatch failed after the claim.
	// The row is already gone; manual follow-up needed.
	StatusActionFailed
)

var statusNames = map[Status]string{
	StatusApproved:          "Approved",
	StatusDenied:            "Denied",
	StatusUnauthorized:      "Unauthorized",
	StatusAlreadyResolved:   "AlreadyResolved",
	StatusServerUnavailable: "ServerUnavailable",
	StatusTargetNotRunning:  "TargetNotRunning",
	StatusActionFailed:      "ActionFailed",
}

func (s Status) String() string {
	return statusNames[s]
}

// Consumed reports whether the outcome destroyed the pending row.
func (s Status) Consumed() bool {
	switch s {
	case StatusUnauthorized, StatusAlreadyResolved:
		return false
	}
	return true
}

// LostApproval reports whether an approval was claimed but never applied.
// These outcomes need manual follow-up because the row cannot be retried.
func (s Status) LostApproval() bool {
	switch s {
	case StatusServerUnavailable, StatusTargetNotRunning, StatusActionFailed:
		return true
	}
	return false
}

// Resolution is the outcome of a decision event after the coordinator ran the
// full lifecycle. Request carries the claimed row when one was claimed.
type Resolution struct {
	Status  Status
	Request *WhitelistRequest
	// Err holds the underlying failure for ActionFailed outcomes. Informational.
	Err error
}

// Notification is the message published for the worker to deliver after a
// resolution reached its terminal state.
type Notification struct {
	Status            Status           `json:"status"`
	Request           WhitelistRequest `json:"request"`
	ServerName        string           `json:"serverName"`
	ActorID           string           `json:"actorId"`
	ResolvedTimestamp time.Time        `json:"resolvedTimestamp"`
	Detail            string           `json:"detail,omitempty"`
}
