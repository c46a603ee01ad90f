// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"go.uber.org/zap"
)

// HandlerFunc is the callback signature every worker package exposes as
// Handler.Handle.
type HandlerFunc func(client worker.JobClient, job entities.Job)

// WorkerSettings controls job polling for a single task type.
type WorkerSettings struct {
	MaxJobsActive int
	Timeout       time.Duration
}

// Worker owns an open Zeebe job subscription for one task type.
type Worker struct {
	worker   worker.JobWorker
	logger   *zap.Logger
	taskType string
}

// NewWorker opens a job subscription on the client's connection. The
// returned Worker must be closed before the client.
func (c *Client) NewWorker(taskType string, settings WorkerSettings, handler HandlerFunc, log *zap.Logger) *Worker {
	jobWorker := c.client.NewJobWorker().
		JobType(taskType).
		Handler(worker.JobHandler(handler)).
		MaxJobsActive(settings.MaxJobsActive).
		Timeout(settings.Timeout).
		Open()

	log.Info("worker started",
		zap.String("taskType", taskType),
		zap.Int("maxJobsActive", settings.MaxJobsActive),
		zap.Duration("timeout", settings.Timeout),
	)

	return &Worker{
		worker:   jobWorker,
		logger:   log,
		taskType: taskType,
	}
}

func (w *Worker) Close() {
	w.logger.Info("stopping worker", zap.String("taskType", w.taskType))
	w.worker.Close()
}
