// Package banks implements the concrete, source-specific strategies behind
// each Workflow kind (§4.1 Non-goals: "the specific parsing logic inside any
// single source workflow is not part of the core workflow model" -- the
// model lives in internal/workflows; this package is the model's tenants).
// Each file is grounded on the matching original scrapers/banks/<bank>.py
// module and registers its strategies into internal/registry from init().
package banks

import (
	"context"
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
)

var loanAmountPattern = regexp.MustCompile(`[\d,\.]+`)

// adbSeed generates ADB search-result page URLs by reading the pager's last
// page number off the first results page (grounded on AdbSeedUrlsWorkflow).
type adbSeed struct {
	fetcher *fetcher.Fetcher
}

const adbSearchResultsBaseURL = "https://www.adb.org/projects?page=%d"
const adbFirstPageNum = 0

func (s *adbSeed) GenerateSeedURLs(ctx context.Context) ([]string, error) {
	lastPage, err := s.findLastPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ADB search result pages to crawl: %w", err)
	}

	urls := make([]string, 0, lastPage-adbFirstPageNum+1)
	for n := adbFirstPageNum; n <= lastPage; n++ {
		urls = append(urls, fmt.Sprintf(adbSearchResultsBaseURL, n))
	}
	return urls, nil
}

func (s *adbSeed) findLastPage(ctx context.Context) (int, error) {
	firstPage := fmt.Sprintf(adbSearchResultsBaseURL, adbFirstPageNum)
	body, _, err := s.fetcher.Get(ctx, firstPage)
	if err != nil {
		return 0, fmt.Errorf("error retrieving last page number at %q: %w", firstPage, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return 0, fmt.Errorf("error parsing %q: %w", firstPage, err)
	}

	href, ok := doc.Find("li.pager-last a").Attr("href")
	if !ok {
		return 0, fmt.Errorf("no pager-last link found on %q", firstPage)
	}
	parts := strings.Split(href, "=")
	return strconv.Atoi(parts[len(parts)-1])
}

// adbResultsScrape scrapes project page URLs out of a single search-results
// page (grounded on AdbResultsScrapeWorkflow).
type adbResultsScrape struct {
	fetcher *fetcher.Fetcher
}

const adbProjectPageBaseURL = "https://www.adb.org/print"

func (s *adbResultsScrape) ScrapeResultsPage(ctx context.Context, url string) ([]string, error) {
	body, _, err := s.fetcher.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error scraping project page URLs from %q: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("error parsing %q: %w", url, err)
	}

	var urls []string
	doc.Find("div.list div.item").Each(func(_ int, item *goquery.Selection) {
		href, ok := item.Find("a").First().Attr("href")
		if !ok {
			return
		}
		urls = append(urls, adbProjectPageBaseURL+href)
	})
	return urls, nil
}

// adbProjectScrape scrapes one ADB project page for a CanonicalProject-bound
// record (grounded on AdbProjectScrapeWorkflow).
type adbProjectScrape struct {
	fetcher *fetcher.Fetcher
}

func (s *adbProjectScrape) ScrapeProjectPage(ctx context.Context, url string) ([]models.StagedProject, error) {
	body, _, err := s.fetcher.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error scraping ADB project page %q: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("error parsing %q: %w", url, err)
	}

	table := doc.Find("table").First()
	field := func(label string) string {
		cell := findLabeledCell(table, label)
		return strings.TrimSpace(cell)
	}

	name := field("Project Name")
	number := field("Project Number")
	status := field("Project Status")
	countries := adbCountries(table)
	sectors := adbSectors(table)
	companies := adbCompanies(doc)
	total, currency := adbFinancing(doc)
	approved := adbApprovalDate(doc)

	record := models.StagedProject{
		Source:              registry.ADB,
		Number:              number,
		Name:                name,
		Status:              status,
		Countries:           countries,
		Sectors:             sectors,
		Affiliates:          companies,
		ApprovedDate:        approved,
		TotalAmountCurrency: currency,
		URL:                 strings.Replace(url, "/print", "", 1),
	}
	if total > 0 {
		record.TotalAmount = &total
		usd := total
		record.TotalAmountUSD = &usd
	}
	return []models.StagedProject{record}, nil
}

func findLabeledCell(table *goquery.Selection, label string) string {
	var result string
	table.Find("td, th").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if strings.TrimSpace(cell.Text()) != label {
			return true
		}
		sibling := cell.Next()
		result = sibling.Text()
		return false
	})
	return result
}

func adbCountries(table *goquery.Selection) string {
	raw := findLabeledCell(table, "Country / Economy")
	if raw == "" {
		raw = findLabeledCell(table, "Country")
	}
	parts := strings.Split(raw, ",")
	if len(parts) == 2 {
		return strings.TrimSpace(parts[1]) + " " + strings.TrimSpace(parts[0])
	}
	return strings.TrimSpace(raw)
}

func adbSectors(table *goquery.Selection) string {
	var names []string
	table.Find("strong.sector").Each(func(_ int, s *goquery.Selection) {
		names = append(names, strings.TrimSpace(s.Text()))
	})
	if len(names) == 0 {
		return ""
	}
	return strings.Join(names, ", ")
}

func adbCompanies(doc *goquery.Document) string {
	var names []string
	doc.Find("span.address-company").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			names = append(names, text)
		}
	})
	return strings.Join(names, ", ")
}

func adbFinancing(doc *goquery.Document) (float64, string) {
	var total float64
	doc.Find("table.financing").Each(func(_ int, t *goquery.Selection) {
		t.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() < 2 {
				return
			}
			label := strings.TrimSpace(cells.First().Text())
			if label != "ADB" {
				return
			}
			match := loanAmountPattern.FindString(cells.Eq(1).Text())
			if match == "" {
				return
			}
			value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
			if err == nil {
				total += value * 1_000_000
			}
		})
	})
	if total == 0 {
		return 0, ""
	}
	return total, "USD"
}

func adbApprovalDate(doc *goquery.Document) string {
	raw := ""
	doc.Find("td, th").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if strings.TrimSpace(cell.Text()) != "Approval" {
			return true
		}
		raw = strings.TrimSpace(cell.Next().Text())
		return false
	})
	if raw == "" {
		return ""
	}
	parsed, err := time.Parse("2 Jan 2006", raw)
	if err != nil {
		return ""
	}
	return parsed.Format("2006-01-02")
}

func init() {
	sharedFetcher := fetcher.New(30*time.Second,
		fetcher.WithRandomDelay(1*time.Second, 4*time.Second),
		fetcher.WithUserAgents(defaultUserAgents),
	)

	registry.RegisterWorkflow(registry.ADB, models.WorkflowSeedURLs, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.SeedWorkflow{Deps: deps, Strategy: &adbSeed{fetcher: sharedFetcher}, Next: models.WorkflowResultsPage}
	})
	registry.RegisterWorkflow(registry.ADB, models.WorkflowResultsPage, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.ResultsScrapeWorkflow{Deps: deps, Strategy: &adbResultsScrape{fetcher: sharedFetcher}, Next: models.WorkflowProjectPage}
	})
	registry.RegisterWorkflow(registry.ADB, models.WorkflowProjectPage, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.ProjectScrapeWorkflow{Deps: deps, Strategy: &adbProjectScrape{fetcher: sharedFetcher}}
	})
}

// defaultUserAgents is the rotation pool shared by every goquery-based bank
// strategy in this package, standing in for the original's
// user_agent_headers.json config file (§5).
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
}
