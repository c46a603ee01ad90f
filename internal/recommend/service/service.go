// internal/recommend/service/service.go
package service

import (
	"context"

	commonerrors "grantmatch-workers/internal/common/errors"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/grants/store"
	"grantmatch-workers/internal/models"
	"grantmatch-workers/internal/recommend/activeset"
	"grantmatch-workers/internal/recommend/filterquery"
	"grantmatch-workers/internal/recommend/interaction"
)

// GrantSource resolves grant documents for presentation and filtering.
type GrantSource interface {
	Search(ctx context.Context, q *filterquery.Query) (*store.SearchResult, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Grant, error)
}

// RecommendedGrant is one entry of a user's recommendation set, resolved
// to its full document.
type RecommendedGrant struct {
	Grant models.Grant `json:"grant"`
	Score float64      `json:"score"`
	Rank  int          `json:"rank"`
}

// FilterResult is one page of filtered grants plus pagination metadata.
type FilterResult struct {
	Grants     []models.Grant `json:"grants"`
	TotalHits  int64          `json:"totalHits"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

// Service is the single entry point the workers call. It composes the
// active set manager, the interaction synchronizer and the grant source.
type Service struct {
	sets   *activeset.Manager
	sync   *interaction.Synchronizer
	grants GrantSource
	logger logger.Logger
}

func New(sets *activeset.Manager, sync *interaction.Synchronizer, grants GrantSource, log logger.Logger) *Service {
	return &Service{
		sets:   sets,
		sync:   sync,
		grants: grants,
		logger: log.WithFields(map[string]interface{}{"component": "recommend-service"}),
	}
}

// GetRecommended returns up to targetCount entries of the user's active
// set resolved to full grant documents, in set order. targetCount is
// clamped to the configured set bound; zero or negative requests the
// bound. An undersized set triggers a synchronous fill.
func (s *Service) GetRecommended(ctx context.Context, userID string, targetCount int) ([]RecommendedGrant, error) {
	bound := s.sets.TargetCount()
	if targetCount <= 0 || targetCount > bound {
		targetCount = bound
	}

	entries := s.sets.ActiveSet(userID)
	if len(entries) < targetCount {
		s.sets.Replenish(ctx, userID, targetCount-len(entries))
		entries = s.sets.ActiveSet(userID)
	}
	if len(entries) == 0 {
		return []RecommendedGrant{}, nil
	}
	if len(entries) > targetCount {
		entries = entries[:targetCount]
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.GrantID
	}

	grants, err := s.grants.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Grant, len(grants))
	for _, g := range grants {
		byID[g.ID] = g
	}

	out := make([]RecommendedGrant, 0, len(entries))
	for _, e := range entries {
		g, ok := byID[e.GrantID]
		if !ok {
			// The document vanished from the index since it was recommended.
			s.logger.Warn("recommended grant missing from index", map[string]interface{}{
				"userId":  userID,
				"grantId": e.GrantID,
			})
			continue
		}
		out = append(out, RecommendedGrant{Grant: g, Score: e.Score, Rank: e.Rank})
	}
	return out, nil
}

// ApplyAction records a user action on a grant. Re-applying the active
// action undoes it.
func (s *Service) ApplyAction(ctx context.Context, userID, grantID string, action models.Action) (*interaction.Result, error) {
	return s.sync.ApplyAction(ctx, userID, grantID, action)
}

// UndoAction clears the action currently active on the pair. A named
// action must match the active one; ActionNone clears whatever is
// active. A pair with no active action is left untouched.
func (s *Service) UndoAction(ctx context.Context, userID, grantID string, action models.Action) (*interaction.Result, error) {
	current, err := s.sync.CurrentAction(ctx, userID, grantID)
	if err != nil {
		return nil, err
	}
	if current == models.ActionNone {
		return &interaction.Result{Effective: models.ActionNone, Previous: models.ActionNone}, nil
	}
	if action != models.ActionNone && action != current {
		return nil, commonerrors.NewActionMismatchError(string(action), string(current))
	}
	return s.sync.ApplyAction(ctx, userID, grantID, current)
}

// CurrentAction reports the active action on a pair.
func (s *Service) CurrentAction(ctx context.Context, userID, grantID string) (models.Action, error) {
	return s.sync.CurrentAction(ctx, userID, grantID)
}

// GetByAction lists the grants a user has marked with the given action,
// resolved to full documents.
func (s *Service) GetByAction(ctx context.Context, userID string, action models.Action) ([]models.Grant, error) {
	ids, err := s.sync.GrantsByAction(ctx, userID, action)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.Grant{}, nil
	}
	return s.grants.GetByIDs(ctx, ids)
}

// FilterAndPage validates the filter spec, executes it and returns one
// page with pagination metadata.
func (s *Service) FilterAndPage(ctx context.Context, spec *models.FilterSpec, page, pageSize int) (*FilterResult, error) {
	q, err := filterquery.Build(spec, page, pageSize)
	if err != nil {
		return nil, err
	}

	result, err := s.grants.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	totalPages := int(result.TotalHits) / q.Size
	if int(result.TotalHits)%q.Size > 0 {
		totalPages++
	}

	grants := result.Grants
	if grants == nil {
		grants = []models.Grant{}
	}

	return &FilterResult{
		Grants:     grants,
		TotalHits:  result.TotalHits,
		Page:       page,
		PageSize:   q.Size,
		TotalPages: totalPages,
	}, nil
}

// EndSession tears down the user's in-memory state. The ledger persists.
func (s *Service) EndSession(userID string) {
	s.sets.EndSession(userID)
	s.sync.EndSession(userID)
}

// Wait blocks until background replenishments settle. Used on shutdown.
func (s *Service) Wait() {
	s.sets.Wait()
}
