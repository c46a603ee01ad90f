// internal/workers/recommendation/get-recommended/handler_test.go
package getrecommended

import (
	"context"
	"errors"
	"testing"

	commonerrors "grantmatch-workers/internal/common/errors"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/models"
	"grantmatch-workers/internal/recommend/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecommender struct {
	recs      []service.RecommendedGrant
	err       error
	gotTarget int
}

func (f *fakeRecommender) GetRecommended(_ context.Context, _ string, targetCount int) ([]service.RecommendedGrant, error) {
	f.gotTarget = targetCount
	return f.recs, f.err
}

func TestExecute_ReturnsRecommendations(t *testing.T) {
	recs := []service.RecommendedGrant{
		{Grant: models.Grant{ID: "grant-1", Title: "Rural Health"}, Score: 88, Rank: 1},
		{Grant: models.Grant{ID: "grant-2", Title: "STEM Ed"}, Score: 74, Rank: 2},
	}
	h := NewHandler(LoadConfig(), &fakeRecommender{recs: recs}, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "grant-1", out.Recommendations[0].Grant.ID)
	assert.Equal(t, 1, out.Recommendations[0].Rank)
}

func TestExecute_EmptySetIsNotAnError(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeRecommender{recs: []service.RecommendedGrant{}}, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1"})
	require.NoError(t, err)
	assert.Zero(t, out.Count)
	assert.Empty(t, out.Recommendations)
}

func TestExecute_RequiresUserID(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeRecommender{}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{})
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestExecute_PropagatesServiceError(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeRecommender{err: errors.New("search unavailable")}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{UserID: "user-1"})
	assert.Error(t, err)
}

func TestExecute_PassesTargetCount(t *testing.T) {
	fake := &fakeRecommender{recs: []service.RecommendedGrant{}}
	h := NewHandler(LoadConfig(), fake, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{UserID: "user-1", TargetCount: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, fake.gotTarget)

	_, err = h.Execute(context.Background(), &Input{UserID: "user-1"})
	require.NoError(t, err)
	assert.Zero(t, fake.gotTarget)
}

func TestFailureCode_UsesStructuredCode(t *testing.T) {
	err := commonerrors.NewCandidateFetchFailedError(errors.New("search unavailable"))
	assert.Equal(t, "CANDIDATE_FETCH_FAILED", failureCode(err))
	assert.True(t, commonerrors.IsRetryableErrorCode(commonerrors.ErrCodeCandidateFetchFailed))

	assert.Equal(t, "RECOMMENDATION_FAILED", failureCode(errors.New("plain")))
}
