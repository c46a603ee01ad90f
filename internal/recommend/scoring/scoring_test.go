// internal/recommend/scoring/scoring_test.go
package scoring

import (
	"testing"
	"time"

	"grantmatch-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }

func daysFromNow(d int) *time.Time {
	t := testNow.AddDate(0, 0, d)
	return &t
}

func TestScore_PerfectMatch(t *testing.T) {
	engine := NewEngineAt(testNow)

	profile := &models.PreferenceProfile{
		UserID:                "user-1",
		Topics:                []string{"AI"},
		FundingMin:            0,
		FundingMax:            1000000,
		Agencies:              []string{"NSF"},
		DeadlineToleranceDays: 90,
	}
	grant := &models.Grant{
		ID:         "grant-1",
		Categories: []string{"AI"},
		AmountMax:  f64(500000),
		AgencyCode: "NSF",
		CloseAt:    daysFromNow(30),
	}

	score, err := engine.Score(grant, profile)
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)
}

func TestScore_SparseGrantWithAcceptingProfile(t *testing.T) {
	engine := NewEngineAt(testNow)

	// Empty topics/agencies, tolerance "any", unspecified funding accepted
	// at half credit: (10+20)/(20+20) = 75.
	profile := &models.PreferenceProfile{
		UserID:                    "user-1",
		DeadlineToleranceDays:     0,
		AcceptUnspecifiedFunding:  true,
		AcceptUnspecifiedDeadline: true,
	}
	grant := &models.Grant{ID: "grant-1", IsRolling: true}

	score, err := engine.Score(grant, profile)
	require.NoError(t, err)
	assert.Equal(t, 75.0, score)
}

func TestScore_NoApplicableFactorsReturnsBaseline(t *testing.T) {
	engine := NewEngineAt(testNow)

	profile := &models.PreferenceProfile{UserID: "user-1"}
	grant := &models.Grant{ID: "grant-1"}

	score, err := engine.Score(grant, profile)
	require.NoError(t, err)
	assert.Equal(t, BaselineScore, score)
}

func TestScore_Factors(t *testing.T) {
	engine := NewEngineAt(testNow)

	tests := []struct {
		name     string
		profile  *models.PreferenceProfile
		grant    *models.Grant
		expected float64
	}{
		{
			name: "partial topic overlap",
			profile: &models.PreferenceProfile{
				Topics: []string{"AI", "Health"},
			},
			grant: &models.Grant{
				ID:         "g1",
				Categories: []string{"AI", "Education", "Climate"},
			},
			// 40 * 1/2 applicable at 40 -> 50
			expected: 50.0,
		},
		{
			name: "funding ceiling above max within half ratio",
			profile: &models.PreferenceProfile{
				FundingMin: 0,
				FundingMax: 100000,
			},
			grant: &models.Grant{ID: "g2", AmountMax: f64(125000)},
			// earned 20 * (100000/125000) = 16 over weight 20 -> 80
			expected: 80.0,
		},
		{
			name: "funding ceiling far above max earns nothing",
			profile: &models.PreferenceProfile{
				FundingMax: 100000,
			},
			grant:    &models.Grant{ID: "g3", AmountMax: f64(300000)},
			expected: 0.0,
		},
		{
			name: "funding ceiling below min within half ratio",
			profile: &models.PreferenceProfile{
				FundingMin: 100000,
				FundingMax: 1000000,
			},
			grant: &models.Grant{ID: "g4", AmountMax: f64(60000)},
			// 20 * (60000/100000) = 12 over 20 -> 60
			expected: 60.0,
		},
		{
			name: "agency mismatch scores zero but stays applicable",
			profile: &models.PreferenceProfile{
				Agencies: []string{"NSF", "NIH"},
			},
			grant:    &models.Grant{ID: "g5", AgencyCode: "DOE"},
			expected: 0.0,
		},
		{
			name: "deadline within 1.5x tolerance earns half",
			profile: &models.PreferenceProfile{
				DeadlineToleranceDays: 30,
			},
			grant:    &models.Grant{ID: "g6", CloseAt: daysFromNow(40)},
			expected: 50.0,
		},
		{
			name: "deadline beyond 1.5x tolerance earns nothing",
			profile: &models.PreferenceProfile{
				DeadlineToleranceDays: 30,
			},
			grant:    &models.Grant{ID: "g7", CloseAt: daysFromNow(90)},
			expected: 0.0,
		},
		{
			name: "tolerance zero accepts any deadline",
			profile: &models.PreferenceProfile{
				DeadlineToleranceDays: 0,
			},
			grant:    &models.Grant{ID: "g8", CloseAt: daysFromNow(365)},
			expected: 100.0,
		},
		{
			name: "unspecified funding rejected when flag is off",
			profile: &models.PreferenceProfile{
				Agencies:                 []string{"NSF"},
				AcceptUnspecifiedFunding: false,
			},
			grant: &models.Grant{ID: "g9", AgencyCode: "NSF"},
			// funding and deadline both inapplicable (no data, flags off),
			// so only the agency factor counts: 20/20 -> 100
			expected: 100.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := engine.Score(tt.grant, tt.profile)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, score, 0.0001)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 100.0)
		})
	}
}

func TestScore_MalformedGrant(t *testing.T) {
	engine := NewEngineAt(testNow)
	profile := models.DefaultProfile("user-1")

	_, err := engine.Score(&models.Grant{ID: ""}, profile)
	assert.ErrorIs(t, err, ErrMalformedGrant)

	_, err = engine.Score(&models.Grant{ID: "g1", AmountMax: f64(-5)}, profile)
	assert.ErrorIs(t, err, ErrMalformedGrant)

	_, err = engine.Score(&models.Grant{ID: "g1", AmountMin: f64(100), AmountMax: f64(50)}, profile)
	assert.ErrorIs(t, err, ErrMalformedGrant)
}

func TestScoreBatch_RanksAndSkipsMalformed(t *testing.T) {
	engine := NewEngineAt(testNow)

	profile := &models.PreferenceProfile{
		UserID:                "user-1",
		Topics:                []string{"AI"},
		Agencies:              []string{"NSF"},
		DeadlineToleranceDays: 90,
	}

	grants := []models.Grant{
		{ID: "g-bad", AmountMin: f64(10), AmountMax: f64(1)}, // malformed
		{ID: "g-mid", Categories: []string{"AI"}, AgencyCode: "DOE", CloseAt: daysFromNow(10)},
		{ID: "g-top", Categories: []string{"AI"}, AgencyCode: "NSF", CloseAt: daysFromNow(10)},
	}

	scored := engine.ScoreBatch(grants, profile, nil)
	require.Len(t, scored, 3)

	assert.Equal(t, "g-top", scored[0].Grant.ID)
	assert.Equal(t, "g-mid", scored[1].Grant.ID)
	assert.Equal(t, "g-bad", scored[2].Grant.ID)
	assert.Equal(t, 0.0, scored[2].Score)
}

func TestScoreBatch_TieBreakByID(t *testing.T) {
	engine := NewEngineAt(testNow)
	profile := &models.PreferenceProfile{UserID: "user-1"}

	grants := []models.Grant{{ID: "b"}, {ID: "a"}, {ID: "c"}}
	scored := engine.ScoreBatch(grants, profile, nil)

	require.Len(t, scored, 3)
	assert.Equal(t, "a", scored[0].Grant.ID)
	assert.Equal(t, "b", scored[1].Grant.ID)
	assert.Equal(t, "c", scored[2].Grant.ID)
}
