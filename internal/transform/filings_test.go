package transform

import (
	"context"
	"testing"

	"github.com/ternarybob/quaero-pipeline/internal/common"
	"github.com/ternarybob/quaero-pipeline/internal/models"
)

func TestProcessInvestmentBatchBuildsCompaniesFormsAndDedupesInvestments(t *testing.T) {
	storage := &fakeStorage{}
	svc := &Service{Storage: storage, Logger: common.GetLogger()}

	staged := []models.StagedInvestment{
		{
			ID: "staged-1", CompanyCIK: "0001", CompanyName: "Example Capital Management",
			FilingAccNo: "0001-23-000001", FormFiledAt: "2023-02-10",
			CUSIP: "123456789", Manager: "Example Capital Management",
			Shares: amountPtr(1000), Value: amountPtr(50000),
		},
		{
			// Same form, same CUSIP+manager as above: should dedupe away.
			ID: "staged-2", CompanyCIK: "0001", CompanyName: "Example Capital Management",
			FilingAccNo: "0001-23-000001", FormFiledAt: "2023-02-10",
			CUSIP: "123456789", Manager: "Example Capital Management",
			Shares: amountPtr(1000), Value: amountPtr(50000),
		},
		{
			// Different CUSIP, same form: distinct investment row.
			ID: "staged-3", CompanyCIK: "0001", CompanyName: "Example Capital Management",
			FilingAccNo: "0001-23-000001", FormFiledAt: "2023-02-10",
			CUSIP: "987654321", Manager: "Example Capital Management",
			Shares: amountPtr(200), Value: amountPtr(9000),
		},
	}

	if err := svc.processInvestmentBatch(context.Background(), staged); err != nil {
		t.Fatalf("processInvestmentBatch: %v", err)
	}

	if len(storage.upsertedCompanies) != 1 {
		t.Fatalf("expected 1 unique company, got %d", len(storage.upsertedCompanies))
	}
	if len(storage.upsertedForms) != 1 {
		t.Fatalf("expected 1 unique form, got %d", len(storage.upsertedForms))
	}
	if storage.upsertedForms[0].CompanyID != storage.upsertedCompanies[0].ID {
		t.Errorf("form CompanyID = %q, want %q", storage.upsertedForms[0].CompanyID, storage.upsertedCompanies[0].ID)
	}
	if len(storage.upsertedInvestments) != 2 {
		t.Fatalf("expected 2 deduplicated investments, got %d", len(storage.upsertedInvestments))
	}
	if len(storage.deletedInvestmentIDs) != 3 {
		t.Errorf("expected all 3 staged rows deleted, got %v", storage.deletedInvestmentIDs)
	}
}

func TestFetchStockMetadataReturnsEmptyMapWithoutStocksClient(t *testing.T) {
	storage := &fakeStorage{}
	svc := &Service{Storage: storage, Logger: common.GetLogger(), Stocks: nil}

	// Stocks is nil: fetchStockMetadata must return an empty map, never panic.
	metadata := svc.fetchStockMetadata(context.Background(), []models.StagedInvestment{
		{CUSIP: "123456789"},
	})
	if len(metadata) != 0 {
		t.Errorf("expected empty metadata map with nil Stocks client, got %v", metadata)
	}
}

// The loop below is a copy of the CUSIP collection loop in
// fetchStockMetadata; the test does not call fetchStockMetadata itself.
func TestCUSIPCollectionSkipsBlanksAndRepeats(t *testing.T) {
	staged := []models.StagedInvestment{
		{CUSIP: "AAA"}, {CUSIP: "AAA"}, {CUSIP: ""}, {CUSIP: "BBB"},
	}

	cusipSet := make(map[string]struct{})
	var cusips []string
	for _, row := range staged {
		if row.CUSIP == "" {
			continue
		}
		if _, ok := cusipSet[row.CUSIP]; ok {
			continue
		}
		cusipSet[row.CUSIP] = struct{}{}
		cusips = append(cusips, row.CUSIP)
	}

	if len(cusips) != 2 {
		t.Fatalf("expected 2 unique non-empty CUSIPs, got %v", cusips)
	}
}
