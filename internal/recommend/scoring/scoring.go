// internal/recommend/scoring/scoring.go
package scoring

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/models"
)

// Nominal factor weights. Only factors applicable to both the grant and the
// profile enter the normalization denominator.
const (
	weightTopics   = 40.0
	weightFunding  = 20.0
	weightAgency   = 20.0
	weightDeadline = 20.0

	// BaselineScore is returned when no factor is applicable at all
	// (empty profile against a maximally sparse grant). 50 is the house
	// neutral score; see DESIGN.md for the rationale.
	BaselineScore = 50.0
)

var ErrMalformedGrant = errors.New("grant has malformed scoring attributes")

// Engine scores grants against preference profiles. Pure: no I/O, no
// shared state; Clock is the only injected dependency, for deadline math.
type Engine struct {
	clock func() time.Time
}

func NewEngine() *Engine {
	return &Engine{clock: time.Now}
}

// NewEngineAt fixes the clock, for deterministic tests.
func NewEngineAt(now time.Time) *Engine {
	return &Engine{clock: func() time.Time { return now }}
}

// Score computes the preference score for one grant, in [0,100].
func (e *Engine) Score(grant *models.Grant, profile *models.PreferenceProfile) (float64, error) {
	if err := validateGrant(grant); err != nil {
		return 0, err
	}

	var earned, applicable float64

	if pts, ok := e.topicFactor(grant, profile); ok {
		earned += pts
		applicable += weightTopics
	}
	if pts, ok := e.fundingFactor(grant, profile); ok {
		earned += pts
		applicable += weightFunding
	}
	if pts, ok := e.agencyFactor(grant, profile); ok {
		earned += pts
		applicable += weightAgency
	}
	if pts, ok := e.deadlineFactor(grant, profile); ok {
		earned += pts
		applicable += weightDeadline
	}

	if applicable == 0 {
		return BaselineScore, nil
	}
	return earned / applicable * 100, nil
}

// topicFactor is applicable only when both topic sets are non-empty.
// Earned points scale with overlap relative to the smaller set.
func (e *Engine) topicFactor(grant *models.Grant, profile *models.PreferenceProfile) (float64, bool) {
	if len(profile.Topics) == 0 || len(grant.Categories) == 0 {
		return 0, false
	}

	want := make(map[string]bool, len(profile.Topics))
	for _, t := range profile.Topics {
		want[t] = true
	}
	matches := 0
	for _, c := range grant.Categories {
		if want[c] {
			matches++
		}
	}

	smaller := len(profile.Topics)
	if len(grant.Categories) < smaller {
		smaller = len(grant.Categories)
	}
	return weightTopics * float64(matches) / float64(smaller), true
}

// fundingFactor uses the grant's funding ceiling. An unspecified ceiling is
// applicable only when the profile accepts unspecified funding, at half
// credit. Out-of-range ceilings earn proportional credit down to a 0.5
// ratio floor, symmetric on both sides of the range.
func (e *Engine) fundingFactor(grant *models.Grant, profile *models.PreferenceProfile) (float64, bool) {
	if !grant.HasFunding() {
		if profile.AcceptUnspecifiedFunding {
			return weightFunding / 2, true
		}
		return 0, false
	}

	ceiling := *grant.AmountMax
	min := profile.FundingMin
	max := profile.FundingMax

	// Max <= 0 means the profile has no upper bound.
	aboveMax := max > 0 && ceiling > max
	belowMin := min > 0 && ceiling < min

	switch {
	case aboveMax:
		ratio := max / ceiling
		if ratio >= 0.5 {
			return weightFunding * ratio, true
		}
		return 0, true
	case belowMin:
		ratio := ceiling / min
		if ratio >= 0.5 {
			return weightFunding * ratio, true
		}
		return 0, true
	default:
		return weightFunding, true
	}
}

// agencyFactor is applicable only when the profile restricts agencies.
func (e *Engine) agencyFactor(grant *models.Grant, profile *models.PreferenceProfile) (float64, bool) {
	if len(profile.Agencies) == 0 {
		return 0, false
	}
	for _, a := range profile.Agencies {
		if a == grant.AgencyCode {
			return weightAgency, true
		}
	}
	return 0, true
}

// deadlineFactor: an unset close date is applicable only when the profile
// accepts unspecified deadlines. Tolerance 0 means any deadline is accepted
// and earns full credit whenever the factor is applicable, overriding the
// half-credit rule for unset close dates.
func (e *Engine) deadlineFactor(grant *models.Grant, profile *models.PreferenceProfile) (float64, bool) {
	if !grant.HasDeadline() {
		if !profile.AcceptUnspecifiedDeadline {
			return 0, false
		}
		if profile.DeadlineToleranceDays == 0 {
			return weightDeadline, true
		}
		return weightDeadline / 2, true
	}

	if profile.DeadlineToleranceDays == 0 {
		return weightDeadline, true
	}

	days := grant.DaysUntilClose(e.clock())
	tolerance := float64(profile.DeadlineToleranceDays)
	switch {
	case float64(days) <= tolerance:
		return weightDeadline, true
	case float64(days) <= 1.5*tolerance:
		return weightDeadline / 2, true
	default:
		return 0, true
	}
}

func validateGrant(grant *models.Grant) error {
	if grant.ID == "" {
		return fmt.Errorf("%w: missing id", ErrMalformedGrant)
	}
	if grant.AmountMax != nil && *grant.AmountMax < 0 {
		return fmt.Errorf("%w: negative funding ceiling", ErrMalformedGrant)
	}
	if grant.AmountMin != nil && grant.AmountMax != nil && *grant.AmountMin > *grant.AmountMax {
		return fmt.Errorf("%w: funding floor above ceiling", ErrMalformedGrant)
	}
	return nil
}

// ScoreBatch scores and ranks a candidate batch in descending score order,
// ties broken by ascending grant ID. A grant with malformed attributes is
// kept with score 0 and a logged warning; one bad record must not abort
// the batch.
func (e *Engine) ScoreBatch(grants []models.Grant, profile *models.PreferenceProfile, log logger.Logger) []models.ScoredGrant {
	scored := make([]models.ScoredGrant, 0, len(grants))
	for i := range grants {
		s, err := e.Score(&grants[i], profile)
		if err != nil {
			if log != nil {
				log.Warn("skipping malformed grant", map[string]interface{}{
					"grantId": grants[i].ID,
					"error":   err.Error(),
				})
			}
			s = 0
		}
		scored = append(scored, models.ScoredGrant{Grant: grants[i], Score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Grant.ID < scored[j].Grant.ID
	})
	return scored
}
