// internal/workers/recommendation/undo-grant-action/handler_test.go
package undograntaction

import (
	"context"
	"errors"
	"testing"

	commonerrors "grantmatch-workers/internal/common/errors"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/models"
	"grantmatch-workers/internal/recommend/interaction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUndoer struct {
	result *interaction.Result
	err    error

	gotAction models.Action
}

func (f *fakeUndoer) UndoAction(_ context.Context, _, _ string, action models.Action) (*interaction.Result, error) {
	f.gotAction = action
	return f.result, f.err
}

func TestExecute_ClearsActiveAction(t *testing.T) {
	undoer := &fakeUndoer{result: &interaction.Result{Effective: models.ActionNone, Previous: models.ActionApplied}}
	h := NewHandler(LoadConfig(), undoer, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1"})
	require.NoError(t, err)
	assert.Equal(t, "applied", out.ClearedAction)
	assert.True(t, out.Undone)
}

func TestExecute_NoActiveActionIsNoop(t *testing.T) {
	undoer := &fakeUndoer{result: &interaction.Result{Effective: models.ActionNone, Previous: models.ActionNone}}
	h := NewHandler(LoadConfig(), undoer, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1"})
	require.NoError(t, err)
	assert.Equal(t, "none", out.ClearedAction)
	assert.False(t, out.Undone)
}

func TestExecute_RequiresBothIDs(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeUndoer{}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{UserID: "user-1"})
	assert.ErrorIs(t, err, ErrMissingIDs)

	_, err = h.Execute(context.Background(), &Input{GrantID: "grant-1"})
	assert.ErrorIs(t, err, ErrMissingIDs)
}

func TestExecute_PassesNamedAction(t *testing.T) {
	undoer := &fakeUndoer{result: &interaction.Result{Effective: models.ActionNone, Previous: models.ActionSaved}}
	h := NewHandler(LoadConfig(), undoer, logger.NewTestLogger(t))

	out, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1", Action: "saved"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionSaved, undoer.gotAction)
	assert.True(t, out.Undone)
}

func TestExecute_RejectsUnknownAction(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeUndoer{}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1", Action: "starred"})
	assert.ErrorIs(t, err, ErrMissingIDs)
}

func TestExecute_PropagatesLedgerFailure(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeUndoer{err: errors.New("ledger unavailable")}, logger.NewTestLogger(t))

	_, err := h.Execute(context.Background(), &Input{UserID: "user-1", GrantID: "grant-1"})
	assert.Error(t, err)
}

func TestFailureCode_UsesStructuredCode(t *testing.T) {
	err := commonerrors.NewLedgerWriteFailedError(errors.New("connection reset"))
	assert.Equal(t, "LEDGER_WRITE_FAILED", failureCode(err))

	mismatch := commonerrors.NewActionMismatchError("saved", "ignored")
	assert.Equal(t, "INVALID_ACTION", failureCode(mismatch))
	assert.False(t, commonerrors.IsRetryableErrorCode(mismatch.Code))
}
