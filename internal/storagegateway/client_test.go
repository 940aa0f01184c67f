package storagegateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ternarybob/quaero-pipeline/internal/common"
	"github.com/ternarybob/quaero-pipeline/internal/models"
)

// countingUpsertServer replies to every POST with one echoed-back record per
// input record (so BulkUpsertProjects has something to decode), and counts
// how many requests it received.
func countingUpsertServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		var rows []models.CanonicalProject
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}))
}

func TestBulkUpsertProjectsChunksAt1000Records(t *testing.T) {
	var calls int
	srv := countingUpsertServer(t, &calls)
	defer srv.Close()

	client := New(srv.URL, 0, common.GetLogger())

	rows := make([]models.CanonicalProject, 1501)
	for i := range rows {
		rows[i] = models.CanonicalProject{ID: "unused"}
	}

	out, err := client.BulkUpsertProjects(context.Background(), rows)
	if err != nil {
		t.Fatalf("BulkUpsertProjects: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 for 1501 records at batch_size=1000", calls)
	}
	if len(out) != 1501 {
		t.Fatalf("len(out) = %d, want 1501", len(out))
	}
}

func TestBulkInsertStagedProjectsChunksAt1000Records(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL, 0, common.GetLogger())

	rows := make([]models.StagedProject, 2000)
	if err := client.BulkInsertStagedProjects(context.Background(), rows); err != nil {
		t.Fatalf("BulkInsertStagedProjects: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 for 2000 records at batch_size=1000", calls)
	}
}

func TestBulkInsertStagedProjectsSendsNoRequestForEmptyInput(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	client := New(srv.URL, 0, common.GetLogger())
	if err := client.BulkInsertStagedProjects(context.Background(), nil); err != nil {
		t.Fatalf("BulkInsertStagedProjects: %v", err)
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 for empty input", calls)
	}
}

func TestDeleteStagedProjectsChunksIDsAt1000(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL, 0, common.GetLogger())

	ids := make([]string, 1500)
	for i := range ids {
		ids[i] = "id"
	}
	if err := client.DeleteStagedProjects(context.Background(), ids); err != nil {
		t.Fatalf("DeleteStagedProjects: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 for 1500 ids at batch_size=1000", calls)
	}
}
