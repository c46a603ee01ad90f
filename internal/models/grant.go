// internal/models/grant.go
package models

import "time"

// Grant is a funding opportunity document as stored in the grants index.
// It is read-only from the recommendation engine's perspective; the crawler
// pipeline owns its lifecycle.
type Grant struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary,omitempty"`
	ExternalURL string   `json:"externalUrl,omitempty"`
	AgencyCode  string   `json:"agencyCode"`
	AgencyName  string   `json:"agencyName,omitempty"`
	Categories  []string `json:"categories"`

	// AmountMin/AmountMax are nil when the source never published a funding
	// range. AmountMax is the scoring ceiling.
	AmountMin *float64 `json:"amountMin,omitempty"`
	AmountMax *float64 `json:"amountMax,omitempty"`

	// CloseAt is nil for rolling/open-ended opportunities.
	CloseAt   *time.Time `json:"closeAt,omitempty"`
	IsRolling bool       `json:"isRolling,omitempty"`

	PostedAt *time.Time `json:"postedAt,omitempty"`
}

// HasFunding reports whether the grant publishes a funding ceiling.
func (g *Grant) HasFunding() bool {
	return g.AmountMax != nil
}

// HasDeadline reports whether the grant has a concrete close date.
func (g *Grant) HasDeadline() bool {
	return g.CloseAt != nil
}

// DaysUntilClose returns whole days between now and the close date.
// Callers must check HasDeadline first.
func (g *Grant) DaysUntilClose(now time.Time) int {
	return int(g.CloseAt.Sub(now).Hours() / 24)
}

// ScoredGrant pairs a grant with its computed preference score.
type ScoredGrant struct {
	Grant Grant   `json:"grant"`
	Score float64 `json:"score"`
}
