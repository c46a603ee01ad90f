// internal/models/filter.go
package models

// RangeFilter is one range-typed filter dimension. The four controls are
// independent: OnlyNull wins over everything, otherwise Min/Max bound the
// value and IncludeNull decides whether unset values pass.
type RangeFilter struct {
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	IncludeNull bool     `json:"includeNull"`
	OnlyNull    bool     `json:"onlyNull"`
}

// IsZero reports whether the filter constrains anything at all. An
// untouched dimension emits no clause, so grants with or without the
// attribute pass; excluding unset values takes an explicit bound (which
// adds the exists predicate when IncludeNull is false) or OnlyNull.
func (r RangeFilter) IsZero() bool {
	return r.Min == nil && r.Max == nil && !r.IncludeNull && !r.OnlyNull
}

// FilterSpec is the multi-dimensional grant filter. Multi-valued fields
// combine OR-within-field; the fields combine with AND.
type FilterSpec struct {
	Keywords string      `json:"keywords,omitempty"`
	Topics   []string    `json:"topics,omitempty"`
	Agencies []string    `json:"agencies,omitempty"`
	Funding  RangeFilter `json:"funding"`
	// Deadline bounds are epoch milliseconds; the grants index stores
	// close_at as a date field, which accepts epoch_millis range bounds.
	Deadline RangeFilter `json:"deadline"`
	SortKey  string      `json:"sortBy,omitempty"`
}
