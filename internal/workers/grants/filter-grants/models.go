// internal/workers/grants/filter-grants/models.go
package filtergrants

import "grantmatch-workers/internal/models"

type Input struct {
	UserID   string            `json:"userId"`
	Filters  models.FilterSpec `json:"filters"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
}

type Output struct {
	Grants     []models.Grant `json:"grants"`
	TotalHits  int64          `json:"totalHits"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}
