// Package workflows implements the Workflow Abstractions (§4.1): the
// capability-polymorphic family of scraping/download steps a task
// dispatches to, each sharing the same pre/post task bookkeeping. It is
// grounded on the original BaseWorkflow and its five concrete abstract
// subclasses (seed-urls, results-scrape, results-multiscrape,
// project-scrape, project-download), generalized here to a single Workflow
// interface implemented by a small family of kind-specific wrappers rather
// than a class hierarchy, since Go favors composition over inheritance.
package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-pipeline/internal/interfaces"
	"github.com/ternarybob/quaero-pipeline/internal/models"
)

// ExecuteInput carries the six arguments every workflow kind's execute
// receives from the dispatcher (§4.1), mirroring the original's positional
// parameter list.
type ExecuteInput struct {
	MessageID        string
	DeliveryAttempts int
	JobID            string
	TaskID           string
	Source           string
	URL              string
}

// Deps bundles the collaborators a concrete workflow needs: the storage
// gateway, the bus, and a logger. Concrete bank workflows take a Deps plus
// their own strategy implementation, which holds its own fetcher.
type Deps struct {
	Storage interfaces.StorageGateway
	Bus     interfaces.Bus
	Logger  arbor.ILogger
}

// Workflow is the contract the dispatcher invokes for every task (§4.1).
type Workflow interface {
	// NextWorkflow names the workflow_type follow-up tasks should carry,
	// or "" if this workflow kind produces no follow-up tasks.
	NextWorkflow() string
	Execute(ctx context.Context, in ExecuteInput) error
}

// bookkeeping centralizes the four-step pattern every concrete workflow
// kind below performs around its own scrape/download logic: stamp
// processing_start_utc and retry_count, run the kind-specific body, record
// success or failure on the task, and re-raise any failure (§4.1 steps 1-4).
func bookkeeping(ctx context.Context, deps Deps, in ExecuteInput, label string, body func(update *models.TaskUpdate) error) error {
	now := time.Now().UTC()
	update := models.TaskUpdate{
		ID:                 in.TaskID,
		ProcessingStartUTC: &now,
		RetryCount:         in.DeliveryAttempts - 1,
	}

	deps.Logger.Info().
		Str("job_id", in.JobID).
		Str("source", in.Source).
		Str("task_id", in.TaskID).
		Str("message_id", in.MessageID).
		Msg(fmt.Sprintf("Processing %s workflow", label))

	if err := body(&update); err != nil {
		errorMessage := fmt.Sprintf("%s workflow failed for message %q: %v", label, in.MessageID, err)
		deps.Logger.Error().Err(err).Str("task_id", in.TaskID).Msg(errorMessage)

		failedAt := time.Now().UTC()
		update.Status = models.StageError
		update.LastFailedAtUTC = &failedAt
		update.LastErrorMessage = errorMessage
		if updateErr := deps.Storage.UpdateTask(ctx, update); updateErr != nil {
			deps.Logger.Error().Err(updateErr).Str("task_id", in.TaskID).Msg("Failed to record task failure")
		}

		return errors.New(errorMessage)
	}

	completedAt := time.Now().UTC()
	update.Status = models.StageCompleted
	update.ProcessingEndUTC = &completedAt
	return deps.Storage.UpdateTask(ctx, update)
}

// PersistAndPublish bulk-creates follow-up tasks and publishes one bus
// message per created task. Every workflow kind that produces follow-up
// tasks calls it; the Job Queueing Entrypoint (internal/queuer) does not,
// and runs its own insert-then-publish loop for starter tasks.
func PersistAndPublish(ctx context.Context, deps Deps, jobID, source, workflowType string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	items := make([]TaskSpec, len(urls))
	for i, url := range urls {
		items[i] = TaskSpec{URL: url, WorkflowType: workflowType}
	}
	return PersistAndPublishMixed(ctx, deps, jobID, source, items)
}

// TaskSpec pairs a URL with the workflow_type its follow-up task should
// carry, for workflow kinds whose follow-up tasks don't all share one
// workflow_type (e.g. the regulatory-filing history workflow, which files
// some URLs as filing-scrape and others as filing-archive in one execute
// call, §4.5).
type TaskSpec struct {
	URL          string
	WorkflowType string
}

// PersistAndPublishMixed is the general form of PersistAndPublish: each item
// may carry its own workflow_type.
func PersistAndPublishMixed(ctx context.Context, deps Deps, jobID, source string, items []TaskSpec) error {
	if len(items) == 0 {
		return nil
	}

	requests := make([]models.TaskRequest, len(items))
	for i, item := range items {
		requests[i] = models.TaskRequest{
			JobID:        jobID,
			Status:       string(models.StageNotStarted),
			Source:       source,
			URL:          item.URL,
			WorkflowType: item.WorkflowType,
		}
	}

	tasks, err := deps.Storage.BulkCreateTasks(ctx, requests)
	if err != nil {
		return fmt.Errorf("failed to insert new tasks for %s: %w", source, err)
	}

	for _, task := range tasks {
		msg := models.TaskMessage{
			ID:           task.ID,
			JobID:        task.JobID,
			Source:       task.Source,
			WorkflowType: task.WorkflowType,
			URL:          task.URL,
		}
		if err := deps.Bus.PublishTask(ctx, msg); err != nil {
			return fmt.Errorf("failed to publish all %d task messages for %s: %w", len(tasks), source, err)
		}
	}

	return nil
}
