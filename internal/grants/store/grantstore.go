// internal/grants/store/grantstore.go
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"grantmatch-workers/internal/common/errors"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/models"
	"grantmatch-workers/internal/recommend/filterquery"

	"github.com/elastic/go-elasticsearch/v8"
)

// grantDoc is the grants index document shape. Field names follow the
// index mapping, not the API model.
type grantDoc struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	ExternalURL string     `json:"external_url"`
	AgencyCode  string     `json:"agency_code"`
	AgencyName  string     `json:"agency_name"`
	Categories  []string   `json:"categories"`
	AmountMin   *float64   `json:"amount_min"`
	AmountMax   *float64   `json:"amount_max"`
	CloseAt     *time.Time `json:"close_at"`
	IsRolling   bool       `json:"is_rolling"`
	PostedAt    *time.Time `json:"posted_at"`
}

func (d *grantDoc) toModel() models.Grant {
	return models.Grant{
		ID:          d.ID,
		Title:       d.Title,
		Summary:     d.Summary,
		ExternalURL: d.ExternalURL,
		AgencyCode:  d.AgencyCode,
		AgencyName:  d.AgencyName,
		Categories:  d.Categories,
		AmountMin:   d.AmountMin,
		AmountMax:   d.AmountMax,
		CloseAt:     d.CloseAt,
		IsRolling:   d.IsRolling,
		PostedAt:    d.PostedAt,
	}
}

// SearchResult carries one page of grants plus the total hit count for
// pagination metadata.
type SearchResult struct {
	Grants    []models.Grant
	TotalHits int64
	Took      int64
}

// GrantStore reads the grants index. The index is owned by the ingestion
// pipeline; this store never writes to it.
type GrantStore struct {
	es     *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewGrantStore(es *elasticsearch.Client, index string, log logger.Logger) *GrantStore {
	return &GrantStore{
		es:     es,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "grant-store"}),
	}
}

// Search executes a prepared filter query and decodes the page of hits.
func (s *GrantStore) Search(ctx context.Context, q *filterquery.Query) (*SearchResult, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(q.Body); err != nil {
		return nil, errors.NewSearchQueryFailedError("filter", err)
	}

	start := time.Now()
	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(&buf),
		s.es.Search.WithFrom(q.From),
		s.es.Search.WithSize(q.Size),
		s.es.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewSearchTimeoutError("filter")
		}
		return nil, errors.NewElasticsearchConnectionFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == 404 {
			return nil, errors.NewIndexNotFoundError(s.index)
		}
		return nil, errors.NewSearchQueryFailedError("filter", fmt.Errorf("search failed: %s", res.Status()))
	}

	result, err := decodeSearchResponse(res.Body)
	if err != nil {
		return nil, errors.NewSearchQueryFailedError("filter", err)
	}
	result.Took = time.Since(start).Milliseconds()

	return result, nil
}

// FetchCandidates retrieves scoring candidates for replenishment. The
// profile's topics narrow retrieval when present; ranking is the scoring
// engine's job, so candidates come back newest first.
func (s *GrantStore) FetchCandidates(ctx context.Context, profile *models.PreferenceProfile, excludeIDs []string, limit int) ([]models.Grant, error) {
	spec := &models.FilterSpec{
		Topics:   profile.Topics,
		Funding:  models.RangeFilter{IncludeNull: true},
		Deadline: models.RangeFilter{IncludeNull: true},
		SortKey:  "newest",
	}

	q, err := filterquery.BuildCandidates(spec, excludeIDs, limit)
	if err != nil {
		return nil, errors.NewCandidateFetchFailedError(err)
	}

	result, err := s.Search(ctx, q)
	if err != nil {
		if stdErr, ok := err.(*errors.StandardError); ok && stdErr.Code == errors.ErrCodeIndexNotFound {
			return nil, err
		}
		return nil, errors.NewCandidateFetchFailedError(err)
	}

	return result.Grants, nil
}

// GetByIDs resolves grant documents for a list of IDs, preserving the
// input order. Unknown IDs are skipped.
func (s *GrantStore) GetByIDs(ctx context.Context, ids []string) ([]models.Grant, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{
			"ids": map[string]interface{}{"values": ids},
		},
	}

	result, err := s.Search(ctx, &filterquery.Query{Body: body, From: 0, Size: len(ids)})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Grant, len(result.Grants))
	for _, g := range result.Grants {
		byID[g.ID] = g
	}

	out := make([]models.Grant, 0, len(ids))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func decodeSearchResponse(body io.Reader) (*SearchResult, error) {
	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source grantDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	result := &SearchResult{TotalHits: r.Hits.Total.Value}
	for _, hit := range r.Hits.Hits {
		doc := hit.Source
		result.Grants = append(result.Grants, doc.toModel())
	}
	return result, nil
}
