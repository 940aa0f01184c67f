package transform

import (
	"context"
	"fmt"

	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/stocks"
)

// RunRegulatoryFilings repeatedly fetches and processes batches of staged
// investments until none remain (§4.6 "Regulatory-filing transform").
func (s *Service) RunRegulatoryFilings(ctx context.Context) error {
	for {
		staged, err := s.Storage.GetStagedInvestments(ctx, s.batchSize())
		if err != nil {
			return fmt.Errorf("failed to fetch staged investments: %w", err)
		}
		if len(staged) == 0 {
			return nil
		}

		if err := s.processInvestmentBatch(ctx, staged); err != nil {
			return err
		}
	}
}

func (s *Service) processInvestmentBatch(ctx context.Context, staged []models.StagedInvestment) error {
	// Step 1: build unique company records from (CIK, Name) pairs.
	companiesByCIK := make(map[string]models.Company)
	var companyOrder []string
	for _, row := range staged {
		if _, ok := companiesByCIK[row.CompanyCIK]; !ok {
			companyOrder = append(companyOrder, row.CompanyCIK)
		}
		companiesByCIK[row.CompanyCIK] = models.Company{CIK: row.CompanyCIK, Name: row.CompanyName}
	}
	companies := make([]models.Company, 0, len(companyOrder))
	for _, cik := range companyOrder {
		companies = append(companies, companiesByCIK[cik])
	}
	upsertedCompanies, err := s.Storage.BulkUpsertCompanies(ctx, companies)
	if err != nil {
		return fmt.Errorf("failed to upsert companies: %w", err)
	}
	companyIDByCIK := make(map[string]string, len(upsertedCompanies))
	for _, c := range upsertedCompanies {
		companyIDByCIK[c.CIK] = c.ID
	}

	// Step 2: build unique form records keyed by accession number, merged
	// with the company id resolved above.
	type formKey struct{ cik, accNo string }
	formsByKey := make(map[formKey]models.Form)
	var formOrder []formKey
	for _, row := range staged {
		key := formKey{cik: row.CompanyCIK, accNo: row.FilingAccNo}
		if _, ok := formsByKey[key]; !ok {
			formOrder = append(formOrder, key)
		}
		formsByKey[key] = models.Form{
			CompanyID:   companyIDByCIK[row.CompanyCIK],
			CIK:         row.CompanyCIK,
			AccessionNo: row.FilingAccNo,
			FiledAt:     row.FormFiledAt,
		}
	}
	forms := make([]models.Form, 0, len(formOrder))
	for _, key := range formOrder {
		forms = append(forms, formsByKey[key])
	}
	upsertedForms, err := s.Storage.BulkUpsertForms(ctx, forms)
	if err != nil {
		return fmt.Errorf("failed to upsert forms: %w", err)
	}
	formIDByKey := make(map[formKey]string, len(upsertedForms))
	for _, f := range upsertedForms {
		formIDByKey[formKey{cik: f.CIK, accNo: f.AccessionNo}] = f.ID
	}

	// Step 3: enrich by CUSIP via the stock-metadata service.
	metadataByCUSIP := s.fetchStockMetadata(ctx, staged)

	// Step 4: dedupe by (FormID, CUSIP, Manager) and build investment rows.
	type investmentKey struct{ formID, cusip, manager string }
	seen := make(map[investmentKey]struct{})
	var investments []models.Investment
	for _, row := range staged {
		formID := formIDByKey[formKey{cik: row.CompanyCIK, accNo: row.FilingAccNo}]
		key := investmentKey{formID: formID, cusip: row.CUSIP, manager: row.Manager}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		inv := models.Investment{
			FormID:  formID,
			CUSIP:   row.CUSIP,
			Manager: row.Manager,
			Shares:  row.Shares,
			Value:   row.Value,
		}
		if meta, ok := metadataByCUSIP[row.CUSIP]; ok {
			inv.MarketSector = meta.MarketSector
			inv.Ticker = meta.Ticker
			inv.Exchange = meta.ExchangeCode
			inv.SecurityType = meta.SecurityType
		}
		investments = append(investments, inv)
	}

	if len(investments) > 0 {
		if err := s.Storage.BulkUpsertInvestments(ctx, investments); err != nil {
			return fmt.Errorf("failed to upsert investments: %w", err)
		}
	}

	// Step 5: delete the processed staged rows.
	ids := make([]string, len(staged))
	for i, row := range staged {
		ids[i] = row.ID
	}
	if err := s.Storage.DeleteStagedInvestments(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete processed staged investments: %w", err)
	}

	return nil
}

// fetchStockMetadata resolves metadata for every distinct CUSIP in the
// batch. A lookup failure is logged and leaves the batch without
// enrichment rather than failing the upsert.
func (s *Service) fetchStockMetadata(ctx context.Context, staged []models.StagedInvestment) map[string]stocks.Metadata {
	out := make(map[string]stocks.Metadata)
	if s.Stocks == nil {
		return out
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
	if len(cusips) == 0 {
		return out
	}

	results, err := s.Stocks.FetchMetadata(ctx, cusips)
	if err != nil {
		s.Logger.Warn().Err(err).Int("cusips", len(cusips)).Msg("Unable to fetch stock metadata for batch; investments will upsert unenriched")
		return out
	}
	for _, meta := range results {
		out[meta.CUSIP] = meta
	}
	return out
}
