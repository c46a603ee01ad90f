// internal/recommend/service/service_test.go
package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	commonerrors "grantmatch-workers/internal/common/errors"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/grants/store"
	"grantmatch-workers/internal/models"
	"grantmatch-workers/internal/recommend/activeset"
	"grantmatch-workers/internal/recommend/filterquery"
	"grantmatch-workers/internal/recommend/interaction"
	"grantmatch-workers/internal/recommend/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLedger backs both the synchronizer and the set manager in tests.
type memLedger struct {
	mu     sync.Mutex
	active map[string]map[string]models.Action // userID -> grantID -> action
}

func newMemLedger() *memLedger {
	return &memLedger{active: make(map[string]map[string]models.Action)}
}

func (m *memLedger) userMap(userID string) map[string]models.Action {
	if m.active[userID] == nil {
		m.active[userID] = make(map[string]models.Action)
	}
	return m.active[userID]
}

func (m *memLedger) RecordAction(_ context.Context, userID, grantID string, action models.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userMap(userID)[grantID] = action
	return nil
}

func (m *memLedger) ClearAction(_ context.Context, userID, grantID string, _ models.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.userMap(userID), grantID)
	return nil
}

func (m *memLedger) ActiveItems(_ context.Context, userID string) (map[string]models.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Action)
	for k, v := range m.userMap(userID) {
		out[k] = v
	}
	return out, nil
}

type fakeProfiles struct{}

func (fakeProfiles) GetPreferenceProfile(_ context.Context, userID string) (*models.PreferenceProfile, error) {
	return models.DefaultProfile(userID), nil
}

// fakeGrants serves a fixed pool both as candidate source and document
// resolver.
type fakeGrants struct {
	mu   sync.Mutex
	pool []models.Grant
}

func (f *fakeGrants) FetchCandidates(_ context.Context, _ *models.PreferenceProfile, excludeIDs []string, limit int) ([]models.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	var out []models.Grant
	for _, g := range f.pool {
		if excluded[g.ID] {
			continue
		}
		out = append(out, g)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeGrants) Search(_ context.Context, q *filterquery.Query) (*store.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	end := q.From + q.Size
	if end > len(f.pool) {
		end = len(f.pool)
	}
	var page []models.Grant
	if q.From < len(f.pool) {
		page = append(page, f.pool[q.From:end]...)
	}
	return &store.SearchResult{Grants: page, TotalHits: int64(len(f.pool))}, nil
}

func (f *fakeGrants) GetByIDs(_ context.Context, ids []string) ([]models.Grant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	byID := make(map[string]models.Grant, len(f.pool))
	for _, g := range f.pool {
		byID[g.ID] = g
	}
	var out []models.Grant
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			out = append(out, g)
		}
	}
	return out, nil
}

func pool(n int) []models.Grant {
	out := make([]models.Grant, n)
	for i := range out {
		out[i] = models.Grant{
			ID:         fmt.Sprintf("grant-%02d", i),
			Title:      fmt.Sprintf("Grant %02d", i),
			AgencyCode: "HHS",
		}
	}
	return out
}

func newTestService(t *testing.T, target int, grants *fakeGrants) (*Service, *activeset.Manager) {
	t.Helper()
	log := logger.NewTestLogger(t)
	led := newMemLedger()

	sets := activeset.NewManager(
		activeset.Config{TargetCount: target, FetchTimeout: 5 * time.Second},
		grants, led, fakeProfiles{},
		scoring.NewEngineAt(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		log,
	)
	syn := interaction.NewSynchronizer(led, sets, log)
	return New(sets, syn, grants, log), sets
}

func TestGetRecommended_FillsOnFirstCall(t *testing.T) {
	grants := &fakeGrants{pool: pool(20)}
	svc, _ := newTestService(t, 10, grants)

	recs, err := svc.GetRecommended(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 10)

	for i, r := range recs {
		assert.Equal(t, i+1, r.Rank)
		assert.NotEmpty(t, r.Grant.Title)
	}
}

func TestApplyAction_EvictsFromRecommendations(t *testing.T) {
	grants := &fakeGrants{pool: pool(20)}
	svc, sets := newTestService(t, 5, grants)
	ctx := context.Background()

	recs, err := svc.GetRecommended(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 5)

	target := recs[0].Grant.ID
	res, err := svc.ApplyAction(ctx, "user-1", target, models.ActionSaved)
	require.NoError(t, err)
	assert.Equal(t, models.ActionSaved, res.Effective)

	sets.Wait()

	recs, err = svc.GetRecommended(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	for _, r := range recs {
		assert.NotEqual(t, target, r.Grant.ID)
	}
}

func TestUndoAction_ClearsActiveAction(t *testing.T) {
	grants := &fakeGrants{pool: pool(20)}
	svc, _ := newTestService(t, 5, grants)
	ctx := context.Background()

	_, err := svc.ApplyAction(ctx, "user-1", "grant-00", models.ActionIgnored)
	require.NoError(t, err)

	res, err := svc.UndoAction(ctx, "user-1", "grant-00", models.ActionNone)
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, res.Effective)
	assert.Equal(t, models.ActionIgnored, res.Previous)

	current, err := svc.CurrentAction(ctx, "user-1", "grant-00")
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, current)
}

func TestGetRecommended_TargetCountClamped(t *testing.T) {
	grants := &fakeGrants{pool: pool(20)}
	svc, _ := newTestService(t, 10, grants)
	ctx := context.Background()

	recs, err := svc.GetRecommended(ctx, "user-1", 3)
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	// Requests above the configured bound clamp down to it.
	recs, err = svc.GetRecommended(ctx, "user-1", 50)
	require.NoError(t, err)
	assert.Len(t, recs, 10)
}

func TestUndoAction_VerifiesNamedAction(t *testing.T) {
	grants := &fakeGrants{pool: pool(20)}
	svc, _ := newTestService(t, 5, grants)
	ctx := context.Background()

	_, err := svc.ApplyAction(ctx, "user-1", "grant-00", models.ActionSaved)
	require.NoError(t, err)

	_, err = svc.UndoAction(ctx, "user-1", "grant-00", models.ActionIgnored)
	var stdErr *commonerrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, commonerrors.ErrCodeInvalidAction, stdErr.Code)

	// The mismatch leaves the action active; the matching name clears it.
	current, err := svc.CurrentAction(ctx, "user-1", "grant-00")
	require.NoError(t, err)
	assert.Equal(t, models.ActionSaved, current)

	res, err := svc.UndoAction(ctx, "user-1", "grant-00", models.ActionSaved)
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, res.Effective)
	assert.Equal(t, models.ActionSaved, res.Previous)
}

func TestUndoAction_NoopWithoutActiveAction(t *testing.T) {
	grants := &fakeGrants{pool: pool(5)}
	svc, _ := newTestService(t, 5, grants)

	res, err := svc.UndoAction(context.Background(), "user-1", "grant-00", models.ActionNone)
	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, res.Effective)
	assert.Equal(t, models.ActionNone, res.Previous)
}

func TestGetByAction_ResolvesDocuments(t *testing.T) {
	grants := &fakeGrants{pool: pool(20)}
	svc, _ := newTestService(t, 5, grants)
	ctx := context.Background()

	_, err := svc.ApplyAction(ctx, "user-1", "grant-03", models.ActionSaved)
	require.NoError(t, err)
	_, err = svc.ApplyAction(ctx, "user-1", "grant-01", models.ActionSaved)
	require.NoError(t, err)

	saved, err := svc.GetByAction(ctx, "user-1", models.ActionSaved)
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "grant-01", saved[0].ID)
	assert.Equal(t, "grant-03", saved[1].ID)
	assert.Equal(t, "Grant 01", saved[0].Title)
}

func TestFilterAndPage_PaginationMetadata(t *testing.T) {
	grants := &fakeGrants{pool: pool(23)}
	svc, _ := newTestService(t, 5, grants)

	result, err := svc.FilterAndPage(context.Background(), &models.FilterSpec{}, 2, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(23), result.TotalHits)
	assert.Equal(t, 2, result.Page)
	assert.Equal(t, 10, result.PageSize)
	assert.Equal(t, 3, result.TotalPages)
	assert.Len(t, result.Grants, 10)
	assert.Equal(t, "grant-10", result.Grants[0].ID)
}

func TestFilterAndPage_RejectsBadPage(t *testing.T) {
	grants := &fakeGrants{pool: pool(5)}
	svc, _ := newTestService(t, 5, grants)

	_, err := svc.FilterAndPage(context.Background(), &models.FilterSpec{}, 0, 10)
	assert.ErrorIs(t, err, filterquery.ErrInvalidPage)
}

func TestEndSession_FreshSetAfterTeardown(t *testing.T) {
	grants := &fakeGrants{pool: pool(20)}
	svc, _ := newTestService(t, 5, grants)
	ctx := context.Background()

	recs, err := svc.GetRecommended(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 5)

	_, err = svc.ApplyAction(ctx, "user-1", recs[0].Grant.ID, models.ActionApplied)
	require.NoError(t, err)
	svc.Wait()

	svc.EndSession("user-1")

	// Fresh fill still excludes ledger-active grants.
	recs, err = svc.GetRecommended(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	for _, r := range recs {
		assert.NotEqual(t, "grant-00", r.Grant.ID)
	}
}
