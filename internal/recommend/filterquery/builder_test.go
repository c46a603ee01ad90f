// internal/recommend/filterquery/builder_test.go
package filterquery

import (
	"encoding/json"
	"testing"

	"grantmatch-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

// asJSON round-trips the body so assertions can use the string form
// actually sent to the index.
func asJSON(t *testing.T, body map[string]interface{}) string {
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return string(data)
}

func TestBuild_PaginationMath(t *testing.T) {
	spec := &models.FilterSpec{}

	q, err := Build(spec, 2, 6)
	require.NoError(t, err)
	assert.Equal(t, 6, q.From)
	assert.Equal(t, 6, q.Size)

	q, err = Build(spec, 1, 6)
	require.NoError(t, err)
	assert.Equal(t, 0, q.From)
}

func TestBuild_RejectsNonPositivePage(t *testing.T) {
	spec := &models.FilterSpec{}

	_, err := Build(spec, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidPage)

	_, err = Build(spec, -1, 10)
	assert.ErrorIs(t, err, ErrInvalidPage)

	_, err = Build(spec, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestBuild_ClampsPageSize(t *testing.T) {
	q, err := Build(&models.FilterSpec{}, 1, 500)
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, q.Size)
}

func TestBuild_OnlyNullIgnoresBounds(t *testing.T) {
	spec := &models.FilterSpec{
		Funding: models.RangeFilter{
			Min:      f64(1000),
			Max:      f64(5000),
			OnlyNull: true,
		},
	}

	q, err := Build(spec, 1, 10)
	require.NoError(t, err)

	body := asJSON(t, q.Body)
	assert.Contains(t, body, `"must_not":[{"exists":{"field":"amount_max"}}]`)
	assert.NotContains(t, body, `"range"`)
}

func TestBuild_ExcludeNullAddsExplicitExists(t *testing.T) {
	spec := &models.FilterSpec{
		Funding: models.RangeFilter{
			Min:         f64(1000),
			Max:         f64(5000),
			IncludeNull: false,
		},
	}

	q, err := Build(spec, 1, 10)
	require.NoError(t, err)

	body := asJSON(t, q.Body)
	assert.Contains(t, body, `"exists":{"field":"amount_max"}`)
	assert.Contains(t, body, `"range":{"amount_max":{"gte":1000,"lte":5000}}`)
}

func TestBuild_IncludeNullPassesUnsetThrough(t *testing.T) {
	spec := &models.FilterSpec{
		Deadline: models.RangeFilter{
			Max:         f64(1767225600000),
			IncludeNull: true,
		},
	}

	q, err := Build(spec, 1, 10)
	require.NoError(t, err)

	body := asJSON(t, q.Body)
	assert.Contains(t, body, `"minimum_should_match":1`)
	assert.Contains(t, body, `"range":{"close_at":{"lte":1767225600000}}`)
	assert.Contains(t, body, `"must_not":[{"exists":{"field":"close_at"}}]`)
}

func TestBuild_RejectsInvertedRange(t *testing.T) {
	spec := &models.FilterSpec{
		Funding: models.RangeFilter{Min: f64(100), Max: f64(10)},
	}

	_, err := Build(spec, 1, 10)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestBuild_MultiValuedFieldsUseTerms(t *testing.T) {
	spec := &models.FilterSpec{
		Topics:   []string{"AI", "Health"},
		Agencies: []string{"NSF"},
		Keywords: "climate resilience",
	}

	q, err := Build(spec, 1, 10)
	require.NoError(t, err)

	body := asJSON(t, q.Body)
	assert.Contains(t, body, `"terms":{"categories":["AI","Health"]}`)
	assert.Contains(t, body, `"terms":{"agency_code":["NSF"]}`)
	assert.Contains(t, body, `"multi_match"`)
}

func TestBuild_SortTable(t *testing.T) {
	tests := []struct {
		sortKey string
		want    string
	}{
		{"deadline_soonest", `{"close_at":{"missing":"_last","order":"asc"}}`},
		{"deadline_latest", `{"close_at":{"missing":"_first","order":"desc"}}`},
		{"funding_highest", `{"amount_max":{"missing":"_last","order":"desc"}}`},
		{"funding_lowest", `{"amount_max":{"missing":"_first","order":"asc"}}`},
		{"newest", `{"posted_at":{"missing":"_last","order":"desc"}}`},
		{"relevance", `{"_score":{"order":"desc"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.sortKey, func(t *testing.T) {
			q, err := Build(&models.FilterSpec{SortKey: tt.sortKey}, 1, 10)
			require.NoError(t, err)
			assert.Contains(t, asJSON(t, q.Body), tt.want)
		})
	}
}

func TestBuild_UnknownSortKey(t *testing.T) {
	_, err := Build(&models.FilterSpec{SortKey: "shiniest"}, 1, 10)
	assert.ErrorIs(t, err, ErrUnknownSortKey)
}

func TestBuild_EmptySpecIsMatchAll(t *testing.T) {
	q, err := Build(&models.FilterSpec{}, 1, 10)
	require.NoError(t, err)

	// Untouched range dimensions emit no clause at all, so grants with
	// unset funding or deadline still match.
	body := asJSON(t, q.Body)
	assert.Contains(t, body, `"match_all"`)
	assert.NotContains(t, body, `"exists"`)
	assert.NotContains(t, body, `"range"`)
}

func TestBuildCandidates_ExcludesIDs(t *testing.T) {
	spec := &models.FilterSpec{Topics: []string{"AI"}}

	q, err := BuildCandidates(spec, []string{"g1", "g2"}, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, q.From)
	assert.Equal(t, 30, q.Size)

	body := asJSON(t, q.Body)
	assert.Contains(t, body, `"ids":{"values":["g1","g2"]}`)
}
