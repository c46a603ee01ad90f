// internal/workers/grants/filter-grants/handler.go
package filtergrants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	commonerrors "grantmatch-workers/internal/common/errors"
	"grantmatch-workers/internal/common/logger"
	"grantmatch-workers/internal/common/metrics"
	"grantmatch-workers/internal/models"
	"grantmatch-workers/internal/recommend/filterquery"
	"grantmatch-workers/internal/recommend/service"
	"grantmatch-workers/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "filter-grants"

	defaultPage     = 1
	defaultPageSize = 20
)

// GrantFilterer is the slice of the recommendation service this worker uses.
type GrantFilterer interface {
	FilterAndPage(ctx context.Context, spec *models.FilterSpec, page, pageSize int) (*service.FilterResult, error)
}

type Handler struct {
	config       *Config
	service      GrantFilterer
	activity     *registry.Activity
	logger       logger.Logger
	errorHandler *commonerrors.ErrorHandler
}

// NewHandler builds the worker handler. activity carries the registry
// input schema for this task type; nil skips schema validation.
func NewHandler(config *Config, svc GrantFilterer, activity *registry.Activity, log logger.Logger) *Handler {
	scoped := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		service:      svc,
		activity:     activity,
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

	if msg, ok := h.validateSchema(job.Variables); !ok {
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, "FILTER_VALIDATION_FAILED").Inc()
		h.failJob(client, job, "FILTER_VALIDATION_FAILED", msg)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		if isValidationError(err) {
			metrics.WorkerJobsFailed.WithLabelValues(TaskType, "FILTER_VALIDATION_FAILED").Inc()
			h.failJob(client, job, "FILTER_VALIDATION_FAILED", err.Error())
			return
		}
		// Infrastructure failures carry a StandardError; route them through
		// the shared handler so retryable codes fail with retries instead
		// of throwing a terminal BPMN error.
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, "SEARCH_QUERY_FAILED").Inc()
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	page := input.Page
	if page == 0 {
		page = defaultPage
	}
	pageSize := input.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}

	result, err := h.service.FilterAndPage(ctx, &input.Filters, page, pageSize)
	if err != nil {
		return nil, err
	}

	return &Output{
		Grants:     result.Grants,
		TotalHits:  result.TotalHits,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
	}, nil
}

// validateSchema checks the job payload against the registry input
// schema. A broken registry must not block jobs, so anything short of a
// definite validation failure passes through with a warning.
func (h *Handler) validateSchema(variables string) (string, bool) {
	if h.activity == nil {
		return "", true
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &payload); err != nil {
		return "", true
	}

	result, err := h.activity.ValidateInput(payload)
	if err != nil {
		h.logger.Warn("input schema validation unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return "", true
	}
	if !result.Valid {
		return strings.Join(result.GetErrorMessages(), "; "), false
	}
	return "", true
}

// isValidationError separates caller mistakes from search infrastructure
// failures so the workflow does not retry a request that can never succeed.
func isValidationError(err error) bool {
	return errors.Is(err, filterquery.ErrInvalidPage) ||
		errors.Is(err, filterquery.ErrInvalidSize) ||
		errors.Is(err, filterquery.ErrUnknownSortKey) ||
		errors.Is(err, filterquery.ErrInvalidRange)
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
