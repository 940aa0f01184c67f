package transform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/quaero-pipeline/internal/common"
	"github.com/ternarybob/quaero-pipeline/internal/models"
)

func pushBody(t *testing.T, jobID string) []byte {
	t.Helper()
	data, err := json.Marshal(jobIDPayload{JobID: jobID})
	if err != nil {
		t.Fatalf("marshal jobIDPayload: %v", err)
	}
	envelope := map[string]any{
		"message": map[string]any{
			"data": base64.StdEncoding.EncodeToString(data),
		},
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

func TestServeHTTPReturns201OnSuccessfulRun(t *testing.T) {
	storage := &fakeStorage{}
	svc := &Service{Storage: storage, Standardizer: testStandardizer(), Logger: common.GetLogger()}
	h := &Handler{Service: svc}

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(pushBody(t, "job-42")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body = %s", rec.Code, rec.Body.String())
	}
}

func TestServeHTTPReturns400OnMalformedEnvelope(t *testing.T) {
	svc := &Service{Storage: &fakeStorage{}, Standardizer: testStandardizer(), Logger: common.GetLogger()}
	h := &Handler{Service: svc}

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleJobRunsBothAlgorithmsToExhaustion(t *testing.T) {
	storage := &fakeStorage{
		stagedProjects: []models.StagedProject{
			{ID: "p1", Source: "ADB", Status: "active", URL: "https://adb.org/1"},
		},
		stagedInvestments: []models.StagedInvestment{
			{ID: "i1", CompanyCIK: "0001", FilingAccNo: "acc-1", CUSIP: "123456789"},
		},
	}
	svc := &Service{Storage: storage, Standardizer: testStandardizer(), Logger: common.GetLogger()}

	if err := svc.HandleJob(context.Background(), "job-1"); err != nil {
		t.Fatalf("HandleJob: %v", err)
	}

	if len(storage.upsertedProjects) != 1 {
		t.Errorf("expected the staged project to be upserted, got %d", len(storage.upsertedProjects))
	}
	if len(storage.upsertedCompanies) != 1 {
		t.Errorf("expected the staged investment's company to be upserted, got %d", len(storage.upsertedCompanies))
	}
	if len(storage.stagedProjects) != 0 || len(storage.stagedInvestments) != 0 {
		t.Error("expected both staged queues drained by HandleJob")
	}
}
