package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ternarybob/quaero-pipeline/internal/common"
	"github.com/ternarybob/quaero-pipeline/internal/currency"
	"github.com/ternarybob/quaero-pipeline/internal/interfaces"
	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/standardize"
)

type fakeStorage struct {
	interfaces.StorageGateway

	banks     []models.Bank
	countries []models.Country
	sectors   []models.Sector

	stagedProjects    []models.StagedProject
	stagedInvestments []models.StagedInvestment

	upsertedProjects      []models.CanonicalProject
	insertedCountryAssocs []models.ProjectCountryAssociation
	insertedSectorAssocs  []models.ProjectSectorAssociation
	deletedProjectIDs     []string

	upsertedCompanies    []models.Company
	upsertedForms        []models.Form
	upsertedInvestments  []models.Investment
	deletedInvestmentIDs []string
}

func (s *fakeStorage) GetBanks(ctx context.Context) ([]models.Bank, error) { return s.banks, nil }
func (s *fakeStorage) GetCountries(ctx context.Context) ([]models.Country, error) {
	return s.countries, nil
}
func (s *fakeStorage) GetSectors(ctx context.Context) ([]models.Sector, error) { return s.sectors, nil }

func (s *fakeStorage) GetStagedProjects(ctx context.Context, limit int) ([]models.StagedProject, error) {
	out := s.stagedProjects
	s.stagedProjects = nil
	return out, nil
}

func (s *fakeStorage) GetStagedInvestments(ctx context.Context, limit int) ([]models.StagedInvestment, error) {
	out := s.stagedInvestments
	s.stagedInvestments = nil
	return out, nil
}

func (s *fakeStorage) BulkUpsertProjects(ctx context.Context, rows []models.CanonicalProject) ([]models.CanonicalProject, error) {
	out := make([]models.CanonicalProject, len(rows))
	for i, r := range rows {
		r.ID = "project-" + r.URL
		out[i] = r
	}
	s.upsertedProjects = append(s.upsertedProjects, out...)
	return out, nil
}

func (s *fakeStorage) BulkInsertProjectCountries(ctx context.Context, rows []models.ProjectCountryAssociation) error {
	s.insertedCountryAssocs = append(s.insertedCountryAssocs, rows...)
	return nil
}

func (s *fakeStorage) BulkInsertProjectSectors(ctx context.Context, rows []models.ProjectSectorAssociation) error {
	s.insertedSectorAssocs = append(s.insertedSectorAssocs, rows...)
	return nil
}

func (s *fakeStorage) DeleteStagedProjects(ctx context.Context, ids []string) error {
	s.deletedProjectIDs = append(s.deletedProjectIDs, ids...)
	return nil
}

func (s *fakeStorage) BulkUpsertCompanies(ctx context.Context, rows []models.Company) ([]models.Company, error) {
	out := make([]models.Company, len(rows))
	for i, r := range rows {
		r.ID = "company-" + r.CIK
		out[i] = r
	}
	s.upsertedCompanies = append(s.upsertedCompanies, out...)
	return out, nil
}

func (s *fakeStorage) BulkUpsertForms(ctx context.Context, rows []models.Form) ([]models.Form, error) {
	out := make([]models.Form, len(rows))
	for i, r := range rows {
		r.ID = "form-" + r.CIK + "-" + r.AccessionNo
		out[i] = r
	}
	s.upsertedForms = append(s.upsertedForms, out...)
	return out, nil
}

func (s *fakeStorage) BulkUpsertInvestments(ctx context.Context, rows []models.Investment) error {
	s.upsertedInvestments = append(s.upsertedInvestments, rows...)
	return nil
}

func (s *fakeStorage) DeleteStagedInvestments(ctx context.Context, ids []string) error {
	s.deletedInvestmentIDs = append(s.deletedInvestmentIDs, ids...)
	return nil
}

func testStandardizer() *standardize.Standardizer {
	return standardize.NewFromMaps(
		map[string][]string{"Viet Nam": {"vietnam", "vie"}, "India": {"india"}},
		map[string][]string{"Water and Sanitation": {"water"}},
		map[string][]string{"Ongoing": {"active"}},
	)
}

func amountPtr(v float64) *float64 { return &v }

func TestProcessProjectBatchNormalizesJoinsAndDedupesByURL(t *testing.T) {
	storage := &fakeStorage{
		banks:     []models.Bank{{ID: "bank-1", Abbreviation: "ADB", Name: "Asian Development Bank"}},
		countries: []models.Country{{ID: "country-1", Name: "Viet Nam", ISOCode: "VN"}},
		sectors:   []models.Sector{{ID: "sector-1", Name: "Water and Sanitation"}},
	}
	curr := currency.New(0)
	curr.LoadFrom(
		[]currency.Rate{{Year: 2020, CountryCode: "VN", CurrencyCode: "USD", ExchangeRate: 1}},
		[]currency.Deflator{{Year: 2020, Value: 110}},
	)

	svc := &Service{
		Storage:      storage,
		Standardizer: testStandardizer(),
		Currency:     curr,
		Logger:       common.GetLogger(),
	}

	staged := []models.StagedProject{
		{
			ID: "staged-1", Source: "ADB", Name: "Urban Water Supply Upgrade",
			Status: "active", Countries: "vietnam", Sectors: "water",
			ApprovedDate: "2020-03-01", TotalAmount: amountPtr(100), TotalAmountCurrency: "USD",
			URL: "https://adb.org/projects/1",
		},
		{
			// Duplicate URL with a later field value; should collapse to one row.
			ID: "staged-2", Source: "ADB", Name: "Urban Water Supply Upgrade  ",
			Status: "active", Countries: "vietnam", Sectors: "water",
			ApprovedDate: "2020-03-01", TotalAmount: amountPtr(100), TotalAmountCurrency: "USD",
			URL: "https://adb.org/projects/1",
		},
	}

	err := svc.processProjectBatch(context.Background(), staged)
	require.NoError(t, err)

	require.Len(t, storage.upsertedProjects, 1, "expected dedup to 1 project")
	p := storage.upsertedProjects[0]
	require.Equal(t, "Ongoing", p.Status)
	require.Equal(t, "Viet Nam", p.Countries)
	require.Equal(t, "bank-1", p.BankID)
	require.NotNil(t, p.NormalizedAmount)
	require.Equal(t, 90.91, *p.NormalizedAmount)

	require.Len(t, storage.insertedCountryAssocs, 1)
	require.Equal(t, "country-1", storage.insertedCountryAssocs[0].CountryID)
	require.Len(t, storage.insertedSectorAssocs, 1)
	require.Equal(t, "sector-1", storage.insertedSectorAssocs[0].SectorID)
	require.Len(t, storage.deletedProjectIDs, 2, "expected both staged rows deleted")
}

func TestProcessProjectBatchLeavesAmountNilWhenRateMissing(t *testing.T) {
	storage := &fakeStorage{
		countries: []models.Country{{ID: "country-1", Name: "India", ISOCode: "IN"}},
	}
	curr := currency.New(0) // no rates loaded

	svc := &Service{Storage: storage, Standardizer: testStandardizer(), Currency: curr, Logger: common.GetLogger()}

	staged := []models.StagedProject{
		{
			ID: "staged-1", Source: "KFW", Countries: "india", Status: "active",
			ApprovedDate: "2021-06-15", TotalAmount: amountPtr(50), TotalAmountCurrency: "EUR",
			URL: "https://kfw.de/projects/1",
		},
	}

	err := svc.processProjectBatch(context.Background(), staged)
	require.NoError(t, err)
	require.Nil(t, storage.upsertedProjects[0].NormalizedAmount, "expected nil normalized amount on missing rate")
}

func TestFirstListItemReturnsFirstTrimmedItemOrEmpty(t *testing.T) {
	if got := firstListItem(""); got != "" {
		t.Errorf("firstListItem(\"\") = %q, want empty", got)
	}
	if got := firstListItem("India, Viet Nam"); got != "India" {
		t.Errorf("firstListItem = %q, want India", got)
	}
}

func TestApprovalYearRejectsMalformedDates(t *testing.T) {
	if _, ok := approvalYear(""); ok {
		t.Error("expected ok=false for empty date")
	}
	if _, ok := approvalYear("not-a-date"); ok {
		t.Error("expected ok=false for malformed date")
	}
	year, ok := approvalYear("2019-11-02")
	if !ok || year != 2019 {
		t.Errorf("approvalYear = %d, %v; want 2019, true", year, ok)
	}
}

func TestCleanWhitespaceCollapsesRuns(t *testing.T) {
	if got := cleanWhitespace("  Urban   Water\tSupply  "); got != "Urban Water Supply" {
		t.Errorf("cleanWhitespace = %q", got)
	}
}
