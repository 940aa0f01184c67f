// Package transform implements the Transform Stage (§4.6): the
// development-projects and regulatory-filing batch pipelines that turn
// staged scrape output into canonical, query-ready records. It is grounded
// on original_source/pipeline/transform/jobs.py's ProjectTransformClient
// and its filing-transform counterpart, composing internal/currency,
// internal/standardize, and internal/stocks the same way.
package transform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-pipeline/internal/currency"
	"github.com/ternarybob/quaero-pipeline/internal/interfaces"
	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/standardize"
	"github.com/ternarybob/quaero-pipeline/internal/stocks"
)

// DefaultBatchSize matches spec.md §4.6's "batch size ~5000".
const DefaultBatchSize = 5000

// Service runs both transform algorithms against an injected storage
// gateway and the enrichment clients (§4.6).
type Service struct {
	Storage      interfaces.StorageGateway
	Standardizer *standardize.Standardizer
	Currency     *currency.Client
	Stocks       *stocks.Client
	Logger       arbor.ILogger
	BatchSize    int
}

func (s *Service) batchSize() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// RunDevelopmentProjects repeatedly fetches and processes batches of staged
// projects until none remain (§4.6 "Development-projects transform").
func (s *Service) RunDevelopmentProjects(ctx context.Context) error {
	for {
		staged, err := s.Storage.GetStagedProjects(ctx, s.batchSize())
		if err != nil {
			return fmt.Errorf("failed to fetch staged projects: %w", err)
		}
		if len(staged) == 0 {
			return nil
		}

		if err := s.processProjectBatch(ctx, staged); err != nil {
			return err
		}
	}
}

func (s *Service) processProjectBatch(ctx context.Context, staged []models.StagedProject) error {
	banks, err := s.Storage.GetBanks(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch bank reference data: %w", err)
	}
	countries, err := s.Storage.GetCountries(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch country reference data: %w", err)
	}
	sectors, err := s.Storage.GetSectors(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch sector reference data: %w", err)
	}

	bankByAbbr := make(map[string]models.Bank, len(banks))
	for _, b := range banks {
		bankByAbbr[strings.ToUpper(b.Abbreviation)] = b
	}
	countryByName := make(map[string]models.Country, len(countries))
	for _, c := range countries {
		countryByName[c.Name] = c
	}
	sectorByName := make(map[string]models.Sector, len(sectors))
	for _, sec := range sectors {
		sectorByName[sec.Name] = sec
	}

	// Steps 2-7: standardize, normalize, join, clean, dedupe by URL.
	byURL := make(map[string]models.CanonicalProject)
	var order []string
	for _, row := range staged {
		canonical := s.buildCanonicalProject(row, bankByAbbr, countryByName)
		if _, exists := byURL[canonical.URL]; !exists {
			order = append(order, canonical.URL)
		}
		byURL[canonical.URL] = canonical
	}
	deduped := make([]models.CanonicalProject, 0, len(order))
	for _, url := range order {
		deduped = append(deduped, byURL[url])
	}

	// Step 8: bulk-upsert canonical projects.
	upserted, err := s.Storage.BulkUpsertProjects(ctx, deduped)
	if err != nil {
		return fmt.Errorf("failed to upsert canonical projects: %w", err)
	}

	// Step 9: explode country/sector lists into association rows.
	var countryRows []models.ProjectCountryAssociation
	var sectorRows []models.ProjectSectorAssociation
	for _, p := range upserted {
		for _, name := range splitCleanList(p.Countries) {
			if c, ok := countryByName[name]; ok {
				countryRows = append(countryRows, models.ProjectCountryAssociation{ProjectID: p.ID, CountryID: c.ID})
			}
		}
		for _, name := range splitCleanList(p.Sectors) {
			if sec, ok := sectorByName[name]; ok {
				sectorRows = append(sectorRows, models.ProjectSectorAssociation{ProjectID: p.ID, SectorID: sec.ID})
			}
		}
	}
	if len(countryRows) > 0 {
		if err := s.Storage.BulkInsertProjectCountries(ctx, countryRows); err != nil {
			return fmt.Errorf("failed to insert project-country associations: %w", err)
		}
	}
	if len(sectorRows) > 0 {
		if err := s.Storage.BulkInsertProjectSectors(ctx, sectorRows); err != nil {
			return fmt.Errorf("failed to insert project-sector associations: %w", err)
		}
	}

	// Step 10: delete the processed staged rows.
	ids := make([]string, len(staged))
	for i, row := range staged {
		ids[i] = row.ID
	}
	if err := s.Storage.DeleteStagedProjects(ctx, ids); err != nil {
		return fmt.Errorf("failed to delete processed staged projects: %w", err)
	}

	return nil
}

func (s *Service) buildCanonicalProject(row models.StagedProject, bankByAbbr map[string]models.Bank, countryByName map[string]models.Country) models.CanonicalProject {
	status := s.Standardizer.MapStatus(row.Status)
	countries := s.Standardizer.MapCountries(row.Countries)
	sectors := s.Standardizer.MapSectors(row.Sectors)

	canonical := models.CanonicalProject{
		Source:         row.Source,
		Number:         row.Number,
		Name:           cleanWhitespace(row.Name),
		Status:         status,
		Countries:      countries,
		Sectors:        sectors,
		TotalAmountUSD: row.TotalAmountUSD,
		URL:            strings.TrimSpace(row.URL),
	}

	if bank, ok := bankByAbbr[strings.ToUpper(row.Source)]; ok {
		canonical.BankID = bank.ID
	}

	canonical.NormalizedAmount = s.normalizeAmount(row, countries, countryByName)
	return canonical
}

// normalizeAmount applies step 5: look up the first standardized country's
// ISO-2 code and convert the staged amount to constant reference-year
// dollars. Any lookup failure is logged and yields a null amount rather
// than failing the batch.
func (s *Service) normalizeAmount(row models.StagedProject, countries string, countryByName map[string]models.Country) *float64 {
	if s.Currency == nil || row.TotalAmount == nil || row.TotalAmountCurrency == "" {
		return nil
	}

	year, ok := approvalYear(row.ApprovedDate)
	if !ok {
		return nil
	}

	first := firstListItem(countries)
	if first == "" {
		return nil
	}
	country, ok := countryByName[first]
	if !ok || country.ISOCode == "" {
		s.Logger.Warn().Str("url", row.URL).Str("country", first).Msg("Unable to normalize currency: no ISO code on file for country")
		return nil
	}

	amount, err := s.Currency.Normalize(year, country.ISOCode, row.TotalAmountCurrency, *row.TotalAmount)
	if err != nil {
		s.Logger.Warn().Err(err).Str("url", row.URL).Msg("Unable to normalize currency for record")
		return nil
	}
	return &amount
}

func approvalYear(rawDate string) (int, bool) {
	if rawDate == "" {
		return 0, false
	}
	parsed, err := time.Parse("2006-01-02", rawDate)
	if err != nil {
		return 0, false
	}
	return parsed.Year(), true
}

func firstListItem(commaJoined string) string {
	parts := splitCleanList(commaJoined)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

func splitCleanList(commaJoined string) []string {
	if commaJoined == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(commaJoined, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func cleanWhitespace(raw string) string {
	fields := strings.Fields(raw)
	return strings.Join(fields, " ")
}
