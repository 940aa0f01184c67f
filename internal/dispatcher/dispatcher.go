// Package dispatcher implements the Task Dispatcher (§4.3): a long-running
// pull-dispatch-ack loop over the Message Bus Client's retrieval queue,
// handing each message to the Workflow Registry and tracking quiescence so
// the transform stage can be triggered once a cohort of tasks drains. It is
// grounded on the teacher's internal/queue.WorkerPool (ticker-driven poll,
// staggered worker start) and original_source's run_workflows.py main loop
// (encountered_jobs set, messages_in_previous_batch flag, two-phase audit).
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-pipeline/internal/common"
	"github.com/ternarybob/quaero-pipeline/internal/interfaces"
	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/workflows"
)

// Registry is the subset of internal/registry's API the dispatcher depends
// on, named here so tests can substitute a fake for the package-level
// registry that PackageRegistry adapts.
type Registry interface {
	Build(source, workflowType string, deps workflows.Deps) (workflows.Workflow, error)
}

// Config controls the dispatcher's poll cadence and parallelism (§4.3,
// bound to BusConfig/WorkersConfig at the cmd/dispatcher entrypoint).
type Config struct {
	MaxWorkers   int
	MaxBatchSize int
	PollInterval time.Duration
}

// Dispatcher runs the pull-dispatch-ack main loop described in §4.3.
type Dispatcher struct {
	bus      interfaces.Bus
	storage  interfaces.StorageGateway
	registry Registry
	logger   arbor.ILogger
	config   Config

	deps workflows.Deps

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Dispatcher. deps is the shared collaborator bundle every
// concrete workflow receives; bus/storage are also pulled out individually
// since the dispatcher itself pulls/acks and audits independently of any
// one workflow's execute call.
func New(bus interfaces.Bus, storage interfaces.StorageGateway, reg Registry, logger arbor.ILogger, config Config) *Dispatcher {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 8
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 10
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		bus:      bus,
		storage:  storage,
		registry: reg,
		logger:   logger,
		config:   config,
		deps:     workflows.Deps{Storage: storage, Bus: bus, Logger: logger},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Run executes the main loop described in §4.3 until ctx is canceled or
// Stop is called. It is the dispatcher's entire lifecycle: pull a batch,
// fan it out to up to MaxWorkers goroutines, and once a pull returns empty
// immediately after a non-empty pull, audit the cohort of jobs touched
// since the last audit.
func (d *Dispatcher) Run(ctx context.Context) error {
	encounteredJobs := make(map[string]struct{})
	hadMessagesLastCycle := false

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.ctx.Done():
			return nil
		case <-ticker.C:
		}

		batch, err := d.bus.PullBatch(ctx, d.config.MaxBatchSize)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to pull task batch")
			continue
		}

		if len(batch) > 0 {
			d.logger.Info().Int("count", len(batch)).Msg("Processing task batch")
			jobIDs := d.dispatchBatch(ctx, batch)
			for _, jobID := range jobIDs {
				encounteredJobs[jobID] = struct{}{}
			}
			hadMessagesLastCycle = true
			continue
		}

		if hadMessagesLastCycle {
			d.logger.Info().Msg("End of new messages after previous batch; auditing encountered jobs")
			jobs := make([]string, 0, len(encounteredJobs))
			for jobID := range encounteredJobs {
				jobs = append(jobs, jobID)
			}
			if err := d.audit(ctx, jobs); err != nil {
				d.logger.Error().Err(err).Msg("Audit failed")
			}
			encounteredJobs = make(map[string]struct{})
			hadMessagesLastCycle = false
			continue
		}

		d.logger.Debug().Msg("No new messages to process")
	}
}

// Stop cancels the main loop. Safe to call once.
func (d *Dispatcher) Stop() {
	d.cancel()
}

// dispatchBatch runs handle(message) across up to MaxWorkers goroutines and
// collects the job_id of every message that completed successfully,
// mirroring the original's ThreadPoolExecutor.map fan-out over one pulled
// batch. Each worker goroutine runs under common.SafeGo so a panic in one
// workflow's Execute (a source-specific scraping bug, say) is recovered,
// logged, and doesn't take the rest of the batch -- or the dispatcher
// process -- down with it.
func (d *Dispatcher) dispatchBatch(ctx context.Context, batch []interfaces.ReceivedMessage) []string {
	sem := make(chan struct{}, d.config.MaxWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var jobIDs []string

	for _, msg := range batch {
		msg := msg
		wg.Add(1)
		sem <- struct{}{}
		common.SafeGo(d.logger, "dispatcher.dispatchBatch:"+msg.MessageID, func() {
			defer wg.Done()
			defer func() { <-sem }()

			jobID, err := d.handle(ctx, msg)
			if err != nil {
				d.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to process message")
				return
			}

			mu.Lock()
			jobIDs = append(jobIDs, jobID)
			mu.Unlock()

			if err := msg.Ack(ctx); err != nil {
				d.logger.Warn().Err(err).Str("message_id", msg.MessageID).Msg("Failed to ack message")
			}
		})
	}

	wg.Wait()
	return jobIDs
}

// handle resolves one message's (source, workflow_type) to a registered
// workflow and executes it (§4.3 handle(message)). On failure the message
// is deliberately left unacked so the bus redelivers it up to its
// configured limit.
func (d *Dispatcher) handle(ctx context.Context, msg interfaces.ReceivedMessage) (jobID string, err error) {
	task := msg.Task

	wf, err := d.registry.Build(task.Source, task.WorkflowType, d.deps)
	if err != nil {
		return "", fmt.Errorf("invalid input workflow encountered: %w", err)
	}

	in := workflows.ExecuteInput{
		MessageID:        msg.MessageID,
		DeliveryAttempts: msg.DeliveryAttempts,
		JobID:            task.JobID,
		TaskID:           task.ID,
		Source:           task.Source,
		URL:              task.URL,
	}

	if err := wf.Execute(ctx, in); err != nil {
		return "", err
	}

	return task.JobID, nil
}

// audit marks the end of the data-load stage for each job encountered
// since the last audit and publishes the cleaning-stage trigger message
// for each (§4.3 audit(jobs)). Publish failures are fatal -- they are
// job-level data-correctness issues -- but every job is still attempted and
// the job-status update, being best-effort bookkeeping, is always tried
// even for jobs whose publish failed.
func (d *Dispatcher) audit(ctx context.Context, jobs []string) error {
	if len(jobs) == 0 {
		return nil
	}

	completedAt := time.Now().UTC()
	completedAtStr := completedAt.Format(models.AuditTimestampLayout)

	var publishErr error
	for _, jobID := range jobs {
		msg := models.AuditMessage{JobID: jobID, TimeCompletedUTC: completedAtStr}
		if err := d.bus.PublishAudit(ctx, msg); err != nil {
			publishErr = fmt.Errorf("failed to publish notification signaling end of data collection stage for job %q: %w", jobID, err)
			d.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to publish audit message")
		}
	}

	for _, jobID := range jobs {
		stage := models.StageCompleted
		update := models.JobUpdate{ID: jobID, DataLoadStage: &stage, DataLoadEnd: &completedAt}
		if err := d.storage.UpdateJob(ctx, update); err != nil {
			d.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to update job status following completion of data collection stage")
		}
	}

	return publishErr
}
