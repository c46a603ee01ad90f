// internal/workers/recommendation/apply-grant-action/handler_test.go
package applygrantaction

import (
	"context"
	"errors"
	"fmt"
	"testing"

	commonerrors "grantmatch-workers/internal/common/errors"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/models"
	"grantmatch-workers/internal/recommend/interaction"
	"grantmatch-workers/internal/recommend/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApplier struct {
	result *interaction.Result
	err    error

	gotUserID  string
	gotGrantID string
	gotAction  models.Action
}

func (f *fakeApplier) ApplyAction(_ context.Context, userID, grantID string, action models.Action) (*interaction.Result, error) {
	f.gotUserID = userID
	f.gotGrantID = grantID
	f.gotAction = action
	return f.result, f.err
}

func TestExecute_AppliesAction(t *testing.T) {
	applier := &fakeApplier{result: &interaction.Result{Effective: models.ActionSaved, Previous: models.ActionNone}}
	h := NewHandler(LoadConfig(), applier, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1", Action: "saved"})
	require.NoError(t, err)
	assert.Equal(t, "saved", out.EffectiveAction)
	assert.Equal(t, "none", out.PreviousAction)
	assert.False(t, out.Undone)
	assert.Equal(t, models.ActionSaved, applier.gotAction)
	assert.Equal(t, "user-1", applier.gotUserID)
	assert.Equal(t, "grant-1", applier.gotGrantID)
}

func TestExecute_ToggleReportsUndone(t *testing.T) {
	applier := &fakeApplier{result: &interaction.Result{Effective: models.ActionNone, Previous: models.ActionSaved}}
	h := NewHandler(LoadConfig(), applier, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1", Action: "saved"})
	require.NoError(t, err)
	assert.Equal(t, "none", out.EffectiveAction)
	assert.Equal(t, "saved", out.PreviousAction)
	assert.True(t, out.Undone)
}

func TestExecute_RejectsUnknownAction(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeApplier{}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1", Action: "starred"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExecute_RequiresUserAndGrant(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeApplier{}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{GrantID: "grant-1", Action: "saved"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = h.Execute(context.Background(), &Input{UserID: "user-1", Action: "saved"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExecute_PropagatesLedgerFailure(t *testing.T) {
	applier := &fakeApplier{err: errors.New("ledger write failed")}
	h := NewHandler(LoadConfig(), applier, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1", Action: "applied"})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidInput)
}

func TestLedgerFailureKeepsRetryableCode(t *testing.T) {
	wrapped := fmt.Errorf("%w: %w", ledger.ErrWriteFailed, commonerrors.NewLedgerWriteFailedError(assert.AnError))
	applier := &fakeApplier{err: wrapped}
	h := NewHandler(LoadConfig(), applier, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1", Action: "applied"})
	require.Error(t, err)

	// The structured code survives the wrapping, so job-level handling
	// fails with retries rather than throwing a terminal BPMN error.
	var stdErr *commonerrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, commonerrors.ErrCodeLedgerWriteFailed, stdErr.Code)
	assert.True(t, commonerrors.IsRetryableErrorCode(stdErr.Code))
	assert.Equal(t, "LEDGER_WRITE_FAILED", failureCode(err))
}
