// internal/workers/recommendation/undo-grant-action/models.go
package undograntaction

type Input struct {
	UserID  string `json:"userId"`
	GrantID string `json:"grantId"`
	// Action optionally names the action expected to be active; empty
	// clears whatever is active.
	Action string `json:"action,omitempty"`
}

type Output struct {
	ClearedAction string `json:"clearedAction"`
	Undone        bool   `json:"undone"`
}
