// internal/workers/recommendation/get-grants-by-action/models.go
package getgrantsbyaction

import "grantmatch-workers/internal/models"

type Input struct {
	UserID string `json:"userId"`
	Action string `json:"action"` // "saved", "applied" or "ignored"
}

type Output struct {
	Grants []models.Grant `json:"grants"`
	Count  int            `json:"count"`
}
