// internal/models/interaction.go
package models

import (
	"fmt"
	"time"
)

// Action is a user decision on a grant.
type Action string

const (
	ActionSaved   Action = "saved"
	ActionApplied Action = "applied"
	ActionIgnored Action = "ignored"

	// ActionNone is the derived "no active action" state. It is never
	// written to the ledger.
	ActionNone Action = "none"
)

// ParseAction validates a wire-level action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionSaved, ActionApplied, ActionIgnored:
		return Action(s), nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// InteractionRecord is one append-only ledger row. Records are never
// mutated; a later record for the same (user, grant) pair supersedes
// earlier ones. Cleared marks an undo of the named action.
type InteractionRecord struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	GrantID   string    `json:"grantId"`
	Action    Action    `json:"action"`
	Cleared   bool      `json:"cleared"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecommendationEntry is one member of a user's active recommendation set.
type RecommendationEntry struct {
	GrantID string  `json:"grantId"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}
