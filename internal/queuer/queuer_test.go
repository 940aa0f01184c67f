package queuer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ternarybob/quaero-pipeline/internal/common"
	"github.com/ternarybob/quaero-pipeline/internal/interfaces"
	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/registry"
)

func TestResolveJobTypeRejectsUnknownSource(t *testing.T) {
	if _, _, err := resolveJobType([]string{"ADB", "NOT-A-SOURCE"}); err == nil {
		t.Fatal("expected an error for an unregistered source")
	}
}

func TestResolveJobTypeRejectsMixedBankAndFilingSources(t *testing.T) {
	if _, _, err := resolveJobType([]string{registry.ADB, registry.FORM13F}); err == nil {
		t.Fatal("expected an error mixing a bank source with the regulatory-filing source")
	}
}

func TestResolveJobTypeDeduplicatesAndSortsSources(t *testing.T) {
	jobType, unique, err := resolveJobType([]string{registry.KFW, registry.ADB, registry.ADB})
	if err != nil {
		t.Fatalf("resolveJobType: %v", err)
	}
	if jobType != models.JobTypeDevelopmentProjects {
		t.Errorf("jobType = %q, want development-projects", jobType)
	}
	if len(unique) != 2 {
		t.Fatalf("expected duplicate ADB entries collapsed, got %v", unique)
	}
	if unique[0] != registry.ADB || unique[1] != registry.KFW {
		t.Errorf("expected sources sorted as [ADB KFW], got %v", unique)
	}
}

func TestResolveJobTypeRecognizesFilingOnlySources(t *testing.T) {
	jobType, unique, err := resolveJobType([]string{registry.FORM13F})
	if err != nil {
		t.Fatalf("resolveJobType: %v", err)
	}
	if jobType != models.JobTypeRegulatoryFilings {
		t.Errorf("jobType = %q, want regulatory-filings", jobType)
	}
	if len(unique) != 1 {
		t.Errorf("unique = %v", unique)
	}
}

type fakeStorage struct {
	interfaces.StorageGateway
	createdJob models.CreateJobResult
	tasks      []models.Task
}

func (s *fakeStorage) CreateJob(ctx context.Context, invocationID string, jobType models.JobType) (models.CreateJobResult, error) {
	return s.createdJob, nil
}

func (s *fakeStorage) BulkCreateTasks(ctx context.Context, requests []models.TaskRequest) ([]models.Task, error) {
	return s.tasks, nil
}

type fakeBus struct {
	interfaces.Bus
	published []models.TaskMessage
}

func (b *fakeBus) PublishTask(ctx context.Context, msg models.TaskMessage) error {
	b.published = append(b.published, msg)
	return nil
}

func TestTriggerPublishesOneMessagePerNewlyCreatedTask(t *testing.T) {
	storage := &fakeStorage{
		createdJob: models.CreateJobResult{Job: models.Job{ID: "job-1"}, WasCreated: true},
		tasks: []models.Task{
			{ID: "task-1", JobID: "job-1", Source: registry.ADB, WorkflowType: models.WorkflowSeedURLs},
			{ID: "task-2", JobID: "job-1", Source: registry.KFW, WorkflowType: models.WorkflowDownload},
		},
	}
	bus := &fakeBus{}
	q := &Queuer{Storage: storage, Bus: bus}

	resp, err := q.Trigger(context.Background(), "job-name-trace1", []string{registry.ADB, registry.KFW})
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if resp.JobID != "job-1" || resp.TasksQueued != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if len(bus.published) != 2 {
		t.Fatalf("expected 2 published messages, got %d", len(bus.published))
	}
}

type erroringStorage struct {
	interfaces.StorageGateway
}

func (s *erroringStorage) CreateJob(ctx context.Context, invocationID string, jobType models.JobType) (models.CreateJobResult, error) {
	return models.CreateJobResult{}, errors.New("connection refused")
}

func postTrigger(t *testing.T, q *Queuer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	q.ServeHTTP(rec, req)
	return rec
}

func TestServeHTTPReturns400OnUnknownSource(t *testing.T) {
	q := &Queuer{Storage: &fakeStorage{}, Bus: &fakeBus{}, Logger: common.GetLogger()}
	rec := postTrigger(t, q, `{"sources":["NOT-A-SOURCE"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestServeHTTPReturns500OnStorageFailure(t *testing.T) {
	q := &Queuer{Storage: &erroringStorage{}, Bus: &fakeBus{}, Logger: common.GetLogger()}
	rec := postTrigger(t, q, `{"sources":["`+registry.ADB+`"]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestServeHTTPReturns400OnEmptySourcesList(t *testing.T) {
	q := &Queuer{Storage: &fakeStorage{}, Bus: &fakeBus{}, Logger: common.GetLogger()}
	rec := postTrigger(t, q, `{"sources":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
