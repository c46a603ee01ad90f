// internal/workers/recommendation/get-grants-by-action/handler_test.go
package getgrantsbyaction

import (
	"context"
	"errors"
	"testing"

	commonerrors "grantmatch-workers/internal/common/errors"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	grants []models.Grant
	err    error

	gotAction models.Action
}

func (f *fakeLister) GetByAction(_ context.Context, _ string, action models.Action) ([]models.Grant, error) {
	f.gotAction = action
	return f.grants, f.err
}

func TestExecute_ListsSavedGrants(t *testing.T) {
	lister := &fakeLister{grants: []models.Grant{
		{ID: "grant-1", Title: "Rural Health"},
		{ID: "grant-2", Title: "STEM Ed"},
	}}
	h := NewHandler(LoadConfig(), lister, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", Action: "saved"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, models.ActionSaved, lister.gotAction)
	assert.Equal(t, "grant-1", out.Grants[0].ID)
}

func TestExecute_EmptyListIsNotAnError(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeLister{grants: []models.Grant{}}, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", Action: "ignored"})
	require.NoError(t, err)
	assert.Zero(t, out.Count)
	assert.Empty(t, out.Grants)
}

func TestExecute_RejectsUnknownAction(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeLister{}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{UserID: "user-1", Action: "none"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExecute_RequiresUserID(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeLister{}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{Action: "saved"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExecute_PropagatesServiceError(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeLister{err: errors.New("index unavailable")}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{UserID: "user-1", Action: "applied"})
	assert.Error(t, err)
}

func TestFailureCode_UsesStructuredCode(t *testing.T) {
	err := commonerrors.NewCandidateFetchFailedError(errors.New("index unavailable"))
	assert.Equal(t, "CANDIDATE_FETCH_FAILED", failureCode(err))
	assert.True(t, commonerrors.IsRetryableErrorCode(commonerrors.ErrCodeCandidateFetchFailed))

	assert.Equal(t, "CANDIDATE_FETCH_FAILED", failureCode(errors.New("plain")))
}
