// internal/recommend/filterquery/builder.go
package filterquery

import (
	"errors"
	"fmt"

	"grantmatch-workers/internal/models"
)

var (
	ErrInvalidPage    = errors.New("page must be >= 1")
	ErrInvalidSize    = errors.New("pageSize must be >= 1")
	ErrUnknownSortKey = errors.New("unknown sort key")
	ErrInvalidRange   = errors.New("range min must not exceed max")
)

// MaxPageSize caps a single fetch; larger requests are clamped.
const MaxPageSize = 100

// Index field names in the grants index.
const (
	fieldCategories = "categories"
	fieldAgency     = "agency_code"
	fieldAmountMax  = "amount_max"
	fieldCloseAt    = "close_at"
	fieldPostedAt   = "posted_at"
)

// sortSpec maps a public sort key to its index attribute, direction and
// null ordering. Nulls sort last for "soonest deadline" and "highest
// funding" so sparse documents cannot dominate the top ranks.
type sortSpec struct {
	field   string
	order   string
	missing string
}

var sortTable = map[string]sortSpec{
	"relevance":        {field: "_score", order: "desc"},
	"deadline_soonest": {field: fieldCloseAt, order: "asc", missing: "_last"},
	"deadline_latest":  {field: fieldCloseAt, order: "desc", missing: "_first"},
	"funding_highest":  {field: fieldAmountMax, order: "desc", missing: "_last"},
	"funding_lowest":   {field: fieldAmountMax, order: "asc", missing: "_first"},
	"newest":           {field: fieldPostedAt, order: "desc", missing: "_last"},
}

// DefaultSortKey is applied when the spec leaves SortKey empty.
const DefaultSortKey = "relevance"

// Query is a ready-to-execute Elasticsearch search: body plus pagination
// window. The grant store marshals Body and issues the request.
type Query struct {
	Body map[string]interface{}
	From int
	Size int
}

// Build translates a filter spec plus 1-based page into query parameters.
// All validation happens here, before any I/O.
func Build(spec *models.FilterSpec, page, pageSize int) (*Query, error) {
	if page <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPage, page)
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, pageSize)
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	body, err := buildBody(spec, nil)
	if err != nil {
		return nil, err
	}

	return &Query{
		Body: body,
		From: (page - 1) * pageSize,
		Size: pageSize,
	}, nil
}

// BuildCandidates builds a replenishment fetch: same filter semantics, but
// with an explicit exclusion list and no pagination window beyond limit.
func BuildCandidates(spec *models.FilterSpec, excludeIDs []string, limit int) (*Query, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, limit)
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	body, err := buildBody(spec, excludeIDs)
	if err != nil {
		return nil, err
	}

	return &Query{Body: body, From: 0, Size: limit}, nil
}

func buildBody(spec *models.FilterSpec, excludeIDs []string) (map[string]interface{}, error) {
	mustClauses := []interface{}{}
	filterClauses := []interface{}{}
	mustNotClauses := []interface{}{}

	if spec.Keywords != "" {
		mustClauses = append(mustClauses, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  spec.Keywords,
				"fields": []string{"title^3", "summary^2", "categories"},
				"type":   "best_fields",
			},
		})
	}

	// OR within a multi-valued field, AND across fields.
	if len(spec.Topics) > 0 {
		filterClauses = append(filterClauses, map[string]interface{}{
			"terms": map[string]interface{}{fieldCategories: spec.Topics},
		})
	}
	if len(spec.Agencies) > 0 {
		filterClauses = append(filterClauses, map[string]interface{}{
			"terms": map[string]interface{}{fieldAgency: spec.Agencies},
		})
	}

	var err error
	filterClauses, mustNotClauses, err = applyRange(filterClauses, mustNotClauses, fieldAmountMax, spec.Funding)
	if err != nil {
		return nil, err
	}
	filterClauses, mustNotClauses, err = applyRange(filterClauses, mustNotClauses, fieldCloseAt, spec.Deadline)
	if err != nil {
		return nil, err
	}

	if len(excludeIDs) > 0 {
		mustNotClauses = append(mustNotClauses, map[string]interface{}{
			"ids": map[string]interface{}{"values": excludeIDs},
		})
	}

	boolQuery := map[string]interface{}{}
	if len(mustClauses) > 0 {
		boolQuery["must"] = mustClauses
	}
	if len(filterClauses) > 0 {
		boolQuery["filter"] = filterClauses
	}
	if len(mustNotClauses) > 0 {
		boolQuery["must_not"] = mustNotClauses
	}

	var query map[string]interface{}
	if len(boolQuery) == 0 {
		query = map[string]interface{}{"match_all": map[string]interface{}{}}
	} else {
		query = map[string]interface{}{"bool": boolQuery}
	}

	sortClause, err := buildSort(spec.SortKey)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"query": query,
		"sort":  sortClause,
	}, nil
}

// applyRange encodes the four-way null handling of a range filter.
//
// OnlyNull selects exclusively documents with the attribute unset. Otherwise
// bounds apply, and unset values need explicit treatment either way: the
// index does not include or exclude missing fields by default under a range
// clause, so IncludeNull=false adds an exists filter and IncludeNull=true
// lets unset documents pass regardless of bounds via a should branch.
func applyRange(filters, mustNots []interface{}, field string, rf models.RangeFilter) ([]interface{}, []interface{}, error) {
	if rf.IsZero() {
		return filters, mustNots, nil
	}

	if rf.OnlyNull {
		mustNots = append(mustNots, existsClause(field))
		return filters, mustNots, nil
	}

	if rf.Min != nil && rf.Max != nil && *rf.Min > *rf.Max {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidRange, field)
	}

	bounds := map[string]interface{}{}
	if rf.Min != nil {
		bounds["gte"] = *rf.Min
	}
	if rf.Max != nil {
		bounds["lte"] = *rf.Max
	}

	var rangeClause map[string]interface{}
	if len(bounds) > 0 {
		rangeClause = map[string]interface{}{
			"range": map[string]interface{}{field: bounds},
		}
	}

	switch {
	case rf.IncludeNull && rangeClause != nil:
		filters = append(filters, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []interface{}{
					rangeClause,
					map[string]interface{}{
						"bool": map[string]interface{}{
							"must_not": []interface{}{existsClause(field)},
						},
					},
				},
				"minimum_should_match": 1,
			},
		})
	case rf.IncludeNull:
		// No bounds and nulls allowed: nothing to constrain.
	default:
		filters = append(filters, existsClause(field))
		if rangeClause != nil {
			filters = append(filters, rangeClause)
		}
	}

	return filters, mustNots, nil
}

func existsClause(field string) map[string]interface{} {
	return map[string]interface{}{
		"exists": map[string]interface{}{"field": field},
	}
}

func buildSort(sortKey string) ([]interface{}, error) {
	if sortKey == "" {
		sortKey = DefaultSortKey
	}
	spec, ok := sortTable[sortKey]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSortKey, sortKey)
	}

	options := map[string]interface{}{"order": spec.order}
	if spec.missing != "" {
		options["missing"] = spec.missing
	}

	// Secondary sort on id keeps pagination stable across pages.
	return []interface{}{
		map[string]interface{}{spec.field: options},
		map[string]interface{}{"id": map[string]interface{}{"order": "asc"}},
	}, nil
}

// SortKeys lists the accepted sort keys, for input validation messages.
func SortKeys() []string {
	keys := make([]string, 0, len(sortTable))
	for k := range sortTable {
		keys = append(keys, k)
	}
	return keys
}
