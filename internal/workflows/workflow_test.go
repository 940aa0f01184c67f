package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/ternarybob/quaero-pipeline/internal/common"
	"github.com/ternarybob/quaero-pipeline/internal/interfaces"
	"github.com/ternarybob/quaero-pipeline/internal/models"
)

type fakeStorage struct {
	interfaces.StorageGateway
	createTasksIn []models.TaskRequest
	updates       []models.TaskUpdate
	stagedRows    []models.StagedProject
	createTasksFn func([]models.TaskRequest) ([]models.Task, error)
}

func (f *fakeStorage) BulkCreateTasks(ctx context.Context, requests []models.TaskRequest) ([]models.Task, error) {
	f.createTasksIn = append(f.createTasksIn, requests...)
	if f.createTasksFn != nil {
		return f.createTasksFn(requests)
	}
	tasks := make([]models.Task, len(requests))
	for i, r := range requests {
		tasks[i] = models.Task{ID: "task-" + r.URL, JobID: r.JobID, Source: r.Source, WorkflowType: r.WorkflowType, URL: r.URL}
	}
	return tasks, nil
}

func (f *fakeStorage) UpdateTask(ctx context.Context, update models.TaskUpdate) error {
	f.updates = append(f.updates, update)
	return nil
}

func (f *fakeStorage) BulkInsertStagedProjects(ctx context.Context, rows []models.StagedProject) error {
	f.stagedRows = append(f.stagedRows, rows...)
	return nil
}

type fakeBus struct {
	interfaces.Bus
	published []models.TaskMessage
	publishErr error
}

func (f *fakeBus) PublishTask(ctx context.Context, msg models.TaskMessage) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

type fakeSeedStrategy struct {
	urls []string
	err  error
}

func (f *fakeSeedStrategy) GenerateSeedURLs(ctx context.Context) ([]string, error) {
	return f.urls, f.err
}

func newTestDeps(storage *fakeStorage, bus *fakeBus) Deps {
	return Deps{Storage: storage, Bus: bus, Logger: common.GetLogger()}
}

func TestSeedWorkflowSuccess(t *testing.T) {
	storage := &fakeStorage{}
	bus := &fakeBus{}
	w := &SeedWorkflow{
		Deps:     newTestDeps(storage, bus),
		Strategy: &fakeSeedStrategy{urls: []string{"https://example.com/a", "https://example.com/b"}},
		Next:     models.WorkflowResultsPage,
	}

	err := w.Execute(context.Background(), ExecuteInput{
		MessageID: "m1", DeliveryAttempts: 1, JobID: "job1", TaskID: "task1", Source: "adb",
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if len(storage.createTasksIn) != 2 {
		t.Fatalf("expected 2 created tasks, got %d", len(storage.createTasksIn))
	}
	if len(bus.published) != 2 {
		t.Fatalf("expected 2 published messages, got %d", len(bus.published))
	}
	if len(storage.updates) != 1 || storage.updates[0].Status != models.StageCompleted {
		t.Fatalf("expected exactly one completed task update, got %+v", storage.updates)
	}
}

func TestSeedWorkflowFailureRecordsErrorAndReturnsWrapped(t *testing.T) {
	storage := &fakeStorage{}
	bus := &fakeBus{}
	w := &SeedWorkflow{
		Deps:     newTestDeps(storage, bus),
		Strategy: &fakeSeedStrategy{err: errors.New("site unreachable")},
		Next:     models.WorkflowResultsPage,
	}

	err := w.Execute(context.Background(), ExecuteInput{
		MessageID: "m1", DeliveryAttempts: 2, JobID: "job1", TaskID: "task1", Source: "adb",
	})
	if err == nil {
		t.Fatal("expected Execute to return an error")
	}
	if len(bus.published) != 0 {
		t.Fatalf("expected no publishes on failure, got %d", len(bus.published))
	}
	if len(storage.updates) != 1 || storage.updates[0].Status != models.StageError {
		t.Fatalf("expected exactly one error task update, got %+v", storage.updates)
	}
	if storage.updates[0].RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1 (num_delivery_attempts - 1)", storage.updates[0].RetryCount)
	}
}

func TestProjectScrapeWorkflowHasNoNextWorkflow(t *testing.T) {
	w := &ProjectScrapeWorkflow{}
	if w.NextWorkflow() != "" {
		t.Errorf("NextWorkflow() = %q, want empty (terminal workflow kind)", w.NextWorkflow())
	}
}

func TestPersistAndPublishNoURLsIsNoOp(t *testing.T) {
	storage := &fakeStorage{}
	bus := &fakeBus{}
	if err := PersistAndPublish(context.Background(), newTestDeps(storage, bus), "job1", "adb", models.WorkflowResultsPage, nil); err != nil {
		t.Fatalf("PersistAndPublish returned error: %v", err)
	}
	if len(storage.createTasksIn) != 0 || len(bus.published) != 0 {
		t.Fatal("expected no storage or bus calls for an empty URL list")
	}
}
