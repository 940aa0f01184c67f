// Package queuer implements the Job Queueing Entrypoint (§4.4): the
// trigger-to-starter-tasks algorithm served over HTTP by cmd/queuer. It is
// grounded on the registry's starter-workflow table plus spec.md §4.4's
// five-step algorithm; the original system served the equivalent trigger
// from a Google Cloud Function rather than a standing HTTP handler, so the
// handler shape here follows the teacher's own plain http.ServeMux style
// instead (internal/server/routes.go).
package queuer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-pipeline/internal/interfaces"
	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/registry"
)

// TriggerRequest is the payload an upstream trigger system posts (§4.4).
type TriggerRequest struct {
	Sources []string `json:"sources" validate:"required,min=1,dive,required"`
}

var requestValidator = validator.New()

// ErrBadRequest marks a Trigger failure as the caller's fault (an unknown
// or mixed source list) rather than a storage/bus infrastructure failure,
// so ServeHTTP can tell the two apart (§6: 400 on bad input, 500 on
// store/bus errors).
var ErrBadRequest = errors.New("bad request")

// TriggerResponse summarizes the job created and the tasks queued for it.
type TriggerResponse struct {
	JobID       string `json:"job_id"`
	WasCreated  bool   `json:"was_created"`
	TasksQueued int    `json:"tasks_queued"`
}

// Queuer implements the §4.4 algorithm against an injected storage gateway
// and bus.
type Queuer struct {
	Storage interfaces.StorageGateway
	Bus     interfaces.Bus
	Logger  arbor.ILogger
}

// resolveJobType validates sources and determines whether they belong to a
// single job type (§4.4 steps 1-3): unknown sources fail, and a mix of
// regulatory-filing and development-bank sources fails since they belong to
// distinct job types.
func resolveJobType(sources []string) (models.JobType, []string, error) {
	seen := make(map[string]struct{}, len(sources))
	var unique []string
	for _, s := range sources {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		unique = append(unique, s)
	}
	sort.Strings(unique)

	var hasFilingSource, hasBankSource bool
	for _, s := range unique {
		if !registry.HasStarterWorkflow(s) {
			return "", nil, fmt.Errorf("unknown source %q: %w", s, ErrBadRequest)
		}
		if s == registry.FORM13F {
			hasFilingSource = true
		} else {
			hasBankSource = true
		}
	}

	if hasFilingSource && hasBankSource {
		return "", nil, fmt.Errorf("regulatory-filing sources cannot be mixed with development-bank sources in one trigger: %w", ErrBadRequest)
	}

	jobType := models.JobTypeDevelopmentProjects
	if hasFilingSource {
		jobType = models.JobTypeRegulatoryFilings
	}
	return jobType, unique, nil
}

// Trigger runs the full §4.4 algorithm: validate sources, create or reuse
// the job, bulk-create starter tasks (idempotent via conflict-ignore on the
// storage side), and publish one message per newly-created task.
func (q *Queuer) Trigger(ctx context.Context, invocationID string, sources []string) (TriggerResponse, error) {
	jobType, unique, err := resolveJobType(sources)
	if err != nil {
		return TriggerResponse{}, err
	}

	created, err := q.Storage.CreateJob(ctx, invocationID, jobType)
	if err != nil {
		return TriggerResponse{}, fmt.Errorf("failed to create job: %w", err)
	}

	requests := make([]models.TaskRequest, 0, len(unique))
	for _, source := range unique {
		workflowType, err := registry.StarterWorkflow(source)
		if err != nil {
			return TriggerResponse{}, err
		}
		requests = append(requests, models.TaskRequest{
			JobID:        created.Job.ID,
			Status:       string(models.StageNotStarted),
			Source:       source,
			URL:          "",
			WorkflowType: workflowType,
		})
	}

	tasks, err := q.Storage.BulkCreateTasks(ctx, requests)
	if err != nil {
		return TriggerResponse{}, fmt.Errorf("failed to insert starter tasks: %w", err)
	}

	for _, task := range tasks {
		msg := models.TaskMessage{
			ID:           task.ID,
			JobID:        task.JobID,
			Source:       task.Source,
			WorkflowType: task.WorkflowType,
			URL:          task.URL,
		}
		if err := q.Bus.PublishTask(ctx, msg); err != nil {
			return TriggerResponse{}, fmt.Errorf("failed to publish starter task messages: %w", err)
		}
	}

	return TriggerResponse{JobID: created.Job.ID, WasCreated: created.WasCreated, TasksQueued: len(tasks)}, nil
}

// ServeHTTP handles the trigger endpoint: decode {sources}, compose the
// invocation id from the trigger system's job-name/trace headers, and run
// Trigger.
func (q *Queuer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request: invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := requestValidator.Struct(req); err != nil {
		http.Error(w, fmt.Sprintf("bad request: %v", err), http.StatusBadRequest)
		return
	}

	jobName := r.Header.Get("X-Job-Name")
	trace := r.Header.Get("X-Trace-Id")
	invocationID := jobName + "-" + trace

	resp, err := q.Trigger(r.Context(), invocationID, req.Sources)
	if err != nil {
		q.Logger.Error().Err(err).Strs("sources", req.Sources).Msg("Trigger failed")
		if errors.Is(err, ErrBadRequest) || errors.Is(err, registry.ErrUnregistered) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
