// internal/workers/recommendation/undo-grant-action/handler.go
package undograntaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	commonerrors "grantmatch-workers/internal/common/errors"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/common/metrics"
	"grantmatch-workers/internal/models"
	"grantmatch-workers/internal/recommend/interaction"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "undo-grant-action"
)

var (
	ErrMissingIDs = errors.New("INVALID_INPUT")
)

// ActionUndoer is the slice of the recommendation service this worker uses.
type ActionUndoer interface {
	UndoAction(ctx context.Context, userID, grantID string, action models.Action) (*interaction.Result, error)
}

type Handler struct {
	config       *Config
	service      ActionUndoer
	logger       logger.Logger
	errorHandler *commonerrors.ErrorHandler
}

func NewHandler(config *Config, svc ActionUndoer, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		service:      svc,
		logger:       scoped,
		errorHandler: commonerrors.NewErrorHandler(scoped),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, "PARSE_ERROR").Inc()
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		if errors.Is(err, ErrMissingIDs) {
			metrics.WorkerJobsFailed.WithLabelValues(TaskType, "INVALID_INPUT").Inc()
			h.failJob(client, job, "INVALID_INPUT", err.Error())
			return
		}
		// Ledger failures carry a StandardError; the shared handler fails
		// retryable codes with retries instead of throwing terminally.
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, failureCode(err)).Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserID == "" || input.GrantID == "" {
		return nil, fmt.Errorf("%w: userId and grantId are required", ErrMissingIDs)
	}

	action := models.ActionNone
	if input.Action != "" {
		var err error
		action, err = models.ParseAction(input.Action)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingIDs, err)
		}
	}

	result, err := h.service.UndoAction(ctx, input.UserID, input.GrantID, action)
	if err != nil {
		return nil, err
	}

	return &Output{
		ClearedAction: string(result.Previous),
		Undone:        result.Previous != models.ActionNone,
	}, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

// failureCode labels the failure metric with the structured code when
// one is attached.
func failureCode(err error) string {
	var stdErr *commonerrors.StandardError
	if errors.As(err, &stdErr) {
		return string(stdErr.Code)
	}
	return "LEDGER_WRITE_FAILED"
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
