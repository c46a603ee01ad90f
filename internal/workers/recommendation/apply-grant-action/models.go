// internal/workers/recommendation/apply-grant-action/models.go
package applygrantaction

type Input struct {
	UserID  string `json:"userId"`
	GrantID string `json:"grantId"`
	Action  string `json:"action"` // "saved", "applied" or "ignored"
}

type Output struct {
	EffectiveAction string `json:"effectiveAction"`
	PreviousAction  string `json:"previousAction"`
	Undone          bool   `json:"undone"`
}
