// Package forms implements the regulatory-filing source's concrete
// strategies (§4.5): Form 13F submission history, archived submission, and
// information-table scraping against the SEC's EDGAR system. It is
// grounded on the original pipeline/scrapers/forms/form13f.py module.
package forms

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/quaero-pipeline/internal/fetcher"
	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/registry"
	"github.com/ternarybob/quaero-pipeline/internal/workflows"
	"github.com/ternarybob/quaero-pipeline/internal/workflows/strategy"
)

//go:embed config/companies.json
var companiesConfig embed.FS

const form13FAbbreviation = "13F-HR"
const oldFormatCutoffYear = 2013

const entitySubmissionsHistoryBaseURL = "https://data.sec.gov/submissions/CIK%s.json"
const archivedHistoryBaseURL = "https://data.sec.gov/submissions/%s"
const filedFormBaseURL = "https://www.sec.gov/Archives/edgar/data/%s/%s/%s-index.htm"
const secBaseURL = "https://www.sec.gov"

type company struct {
	CIK  string `json:"cik"`
	Name string `json:"name"`
}

// form13fSeed generates one submission-history URL per configured company
// (grounded on Form13FSeedUrlsWorkflow).
type form13fSeed struct{}

func (s *form13fSeed) GenerateSeedURLs(ctx context.Context) ([]string, error) {
	raw, err := companiesConfig.ReadFile("config/companies.json")
	if err != nil {
		return nil, fmt.Errorf("failed to seed Form 13F URLs: error loading companies config: %w", err)
	}

	var companies []company
	if err := json.Unmarshal(raw, &companies); err != nil {
		return nil, fmt.Errorf("failed to seed Form 13F URLs: companies config improperly formed: %w", err)
	}

	urls := make([]string, len(companies))
	for i, c := range companies {
		urls[i] = fmt.Sprintf(entitySubmissionsHistoryBaseURL, c.CIK)
	}
	return urls, nil
}

type submissionsHistory struct {
	CIK     string `json:"cik"`
	Filings struct {
		Files []struct {
			Name string `json:"name"`
		} `json:"files"`
		Recent struct {
			Form            []string `json:"form"`
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
		} `json:"recent"`
	} `json:"filings"`
}

// form13fHistory parses a company's SEC submission history JSON into
// filing-scrape tasks for recent 13F-HR filings filed in or after 2013, and
// filing-archive tasks for the entity's archived submission files -- unless
// a recent filing older than 2013 was seen, in which case no archived files
// are queued at all, since every filing in them predates the parseable
// information-table format (grounded on Form13FHistoryScrapeWorkflow).
type form13fHistory struct {
	fetcher *fetcher.Fetcher
}

func (s *form13fHistory) ScrapeFilingHistory(ctx context.Context, url string) ([]strategy.FilingHistoryTask, error) {
	body, status, err := s.fetcher.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error retrieving Form 13F company filing history: %w", err)
	}
	if status >= 300 {
		return nil, fmt.Errorf("error retrieving Form 13F company filing history: %q returned status %d", url, status)
	}

	var history submissionsHistory
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, fmt.Errorf("could not decode JSON from %q: %w", url, err)
	}

	return parseSubmissionsHistory(history), nil
}

// parseSubmissionsHistory is the pure routing half of ScrapeFilingHistory,
// split out so the 2013-cutoff and old-format-suppresses-archive rules can
// be tested against constructed fixtures without a network round trip.
func parseSubmissionsHistory(history submissionsHistory) []strategy.FilingHistoryTask {
	recent := history.Filings.Recent
	var tasks []strategy.FilingHistoryTask
	encounteredOldFormat := false

	for i := 0; i < len(recent.AccessionNumber); i++ {
		if i >= len(recent.Form) || recent.Form[i] != form13FAbbreviation {
			continue
		}

		year, ok := filingYear(recent.FilingDate, i)
		if ok && year < oldFormatCutoffYear {
			encounteredOldFormat = true
			continue
		}

		accNo := recent.AccessionNumber[i]
		filingURL := fmt.Sprintf(filedFormBaseURL, history.CIK, strings.ReplaceAll(accNo, "-", ""), accNo)
		tasks = append(tasks, strategy.FilingHistoryTask{URL: filingURL, WorkflowType: models.WorkflowFilingScrape})
	}

	if !encounteredOldFormat {
		for _, f := range history.Filings.Files {
			archiveURL := fmt.Sprintf(archivedHistoryBaseURL, f.Name)
			tasks = append(tasks, strategy.FilingHistoryTask{URL: archiveURL, WorkflowType: models.WorkflowFilingArchive})
		}
	}

	return tasks
}

func filingYear(dates []string, idx int) (int, bool) {
	if idx >= len(dates) || dates[idx] == "" {
		return 0, false
	}
	parsed, err := time.Parse("2006-01-02", dates[idx])
	if err != nil {
		return 0, false
	}
	return parsed.Year(), true
}

type archivedSubmissions struct {
	Form            []string `json:"form"`
	AccessionNumber []string `json:"accessionNumber"`
}

var cikFromArchiveURLPattern = regexp.MustCompile(`CIK(\d{10})-`)

// form13fArchive parses one archived-submissions payload for its 13F-HR
// filing URLs (grounded on Form13FArchiveScrapeWorkflow).
type form13fArchive struct {
	fetcher *fetcher.Fetcher
}

func (s *form13fArchive) ScrapeArchivedFilings(ctx context.Context, url string) ([]string, error) {
	body, status, err := s.fetcher.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error retrieving Form 13F archived submissions: %w", err)
	}
	if status >= 300 {
		return nil, fmt.Errorf("error retrieving Form 13F archived submissions: %q returned status %d", url, status)
	}

	var archive archivedSubmissions
	if err := json.Unmarshal(body, &archive); err != nil {
		return nil, fmt.Errorf("could not decode JSON from %q: %w", url, err)
	}

	match := cikFromArchiveURLPattern.FindStringSubmatch(url)
	if match == nil {
		return nil, fmt.Errorf("could not parse CIK from archive URL %q", url)
	}
	cik := match[1]

	var urls []string
	for i, form := range archive.Form {
		if form != form13FAbbreviation {
			continue
		}
		if i >= len(archive.AccessionNumber) {
			continue
		}
		accNo := archive.AccessionNumber[i]
		urls = append(urls, fmt.Sprintf(filedFormBaseURL, cik, strings.ReplaceAll(accNo, "-", ""), accNo))
	}
	return urls, nil
}

var dateDigitsPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
var companyFilerSuffixPattern = regexp.MustCompile(`(.*)\s\(Filer\)`)

// form13fScrape scrapes a filing's home page for its information-table URL
// and metadata, then scrapes that table into staged investment rows
// (grounded on Form13FInvestmentScrapeWorkflow).
type form13fScrape struct {
	fetcher *fetcher.Fetcher
}

func (s *form13fScrape) ScrapeInvestments(ctx context.Context, url string) ([]models.StagedInvestment, error) {
	companyCIK, accNo, err := parseFilingURL(url)
	if err != nil {
		return nil, err
	}

	metadata, infoTableURL, err := s.parseFormHomePage(ctx, url)
	if err != nil {
		return nil, err
	}
	if infoTableURL == "" {
		return nil, nil
	}

	body, status, err := s.fetcher.Get(ctx, infoTableURL)
	if err != nil {
		return nil, fmt.Errorf("error retrieving Form 13F information table: %w", err)
	}
	if status >= 300 {
		return nil, fmt.Errorf("error retrieving Form 13F information table: %q returned status %d", infoTableURL, status)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("error parsing %q: %w", infoTableURL, err)
	}

	table := doc.Find(`table[summary="Form 13F-NT Header Information"]`).First()
	rows := table.Find("tr")
	const headerRows = 3

	var investments []models.StagedInvestment
	rows.Each(func(i int, row *goquery.Selection) {
		if i < headerRows {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 12 {
			return
		}

		shares := parseDigits(cells.Eq(4).Text())
		value := parseDigits(cells.Eq(3).Text())

		investments = append(investments, models.StagedInvestment{
			CompanyCIK:  companyCIK,
			CompanyName: metadata.companyName,
			FormName:    metadata.formName,
			FilingAccNo: accNo,
			FormFiledAt: metadata.filedAt,
			CUSIP:       strings.TrimSpace(cells.Eq(2).Text()),
			Manager:     replaceNullCell(cells.Eq(8).Text()),
			Shares:      shares,
			Value:       value,
		})
	})

	return investments, nil
}

// formHomePageMetadata is the cover-page data carried alongside each
// investment row (grounded on the original's filing_data dict).
type formHomePageMetadata struct {
	formName    string
	companyName string
	filedAt     string
}

func (s *form13fScrape) parseFormHomePage(ctx context.Context, url string) (formHomePageMetadata, string, error) {
	body, status, err := s.fetcher.Get(ctx, url)
	if err != nil {
		return formHomePageMetadata{}, "", fmt.Errorf("error retrieving Form 13F company filing page: %w", err)
	}
	if status >= 300 {
		return formHomePageMetadata{}, "", fmt.Errorf("error retrieving Form 13F company filing page: %q returned status %d", url, status)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return formHomePageMetadata{}, "", fmt.Errorf("error parsing %q: %w", url, err)
	}

	metadata := parseFormHomePageDoc(doc)

	table := doc.Find("table.tableFile").First()
	var infoTableURL string
	table.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if strings.TrimSpace(cell.Text()) != "INFORMATION TABLE" {
			return true
		}
		row := cell.Closest("tr")
		row.Find("td a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if strings.Contains(strings.ToLower(href), "html") {
				infoTableURL = secBaseURL + href
				return false
			}
			return true
		})
		return infoTableURL == ""
	})
	return metadata, infoTableURL, nil
}

// parseFormHomePageDoc is the pure HTML-extraction half of
// parseFormHomePage, split out so the "(Filer)" suffix stripping and
// yyyy-mm-dd date extraction can be tested against an in-memory document.
func parseFormHomePageDoc(doc *goquery.Document) formHomePageMetadata {
	var metadata formHomePageMetadata

	formDiv := doc.Find("#formDiv").First()
	metadata.formName = strings.TrimSpace(formDiv.Find("strong").First().Text())

	formDiv.Find("div.infoHead").Each(func(_ int, header *goquery.Selection) {
		if strings.TrimSpace(header.Text()) != "Filing Date" {
			return
		}
		value := header.Next().Text()
		metadata.filedAt = dateDigitsPattern.FindString(value)
	})

	rawName := strings.TrimSpace(doc.Find("span.companyName").First().Text())
	if match := companyFilerSuffixPattern.FindStringSubmatch(rawName); match != nil {
		metadata.companyName = strings.TrimSpace(match[1])
	} else {
		metadata.companyName = rawName
	}

	return metadata
}

var cikFromFilingURLPattern = regexp.MustCompile(`/data/(\d+)/`)

func parseFilingURL(url string) (cik, accNo string, err error) {
	match := cikFromFilingURLPattern.FindStringSubmatch(url)
	if match == nil {
		return "", "", fmt.Errorf("could not parse CIK from filing URL %q", url)
	}
	cik = fmt.Sprintf("%010s", match[1])

	parts := strings.Split(url, "/")
	accNo = strings.TrimSuffix(parts[len(parts)-1], "-index.htm")
	return cik, accNo, nil
}

func parseDigits(raw string) *float64 {
	cleaned := strings.NewReplacer(",", "", ".", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return nil
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &value
}

func replaceNullCell(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == " " {
		return ""
	}
	return trimmed
}

func init() {
	sharedFetcher := fetcher.New(30*time.Second,
		fetcher.WithRandomDelay(1*time.Second, 10*time.Second),
	)

	registry.RegisterWorkflow(registry.FORM13F, models.WorkflowSeedURLs, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.SeedWorkflow{Deps: deps, Strategy: &form13fSeed{}, Next: models.WorkflowFilingHistory}
	})
	registry.RegisterWorkflow(registry.FORM13F, models.WorkflowFilingHistory, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.FilingHistoryWorkflow{Deps: deps, Strategy: &form13fHistory{fetcher: sharedFetcher}}
	})
	registry.RegisterWorkflow(registry.FORM13F, models.WorkflowFilingArchive, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.FilingArchiveWorkflow{Deps: deps, Strategy: &form13fArchive{fetcher: sharedFetcher}, Next: models.WorkflowFilingScrape}
	})
	registry.RegisterWorkflow(registry.FORM13F, models.WorkflowFilingScrape, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.FilingScrapeWorkflow{Deps: deps, Strategy: &form13fScrape{fetcher: sharedFetcher}}
	})
}
