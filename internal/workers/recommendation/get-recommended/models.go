// internal/workers/recommendation/get-recommended/models.go
package getrecommended

import "grantmatch-workers/internal/recommend/service"

type Input struct {
	UserID string `json:"userId"`
	// TargetCount caps the returned set size; zero asks for the
	// configured bound.
	TargetCount int `json:"targetCount,omitempty"`
}

type Output struct {
	Recommendations []service.RecommendedGrant `json:"recommendations"`
	Count           int                        `json:"count"`
}
