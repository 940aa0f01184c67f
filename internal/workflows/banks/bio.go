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

const bioSearchResultsBaseURL = "https://www.bio-invest.be/en/investments/p%d?search="
const bioFirstPageNum = 1
const bioProjectsPerPage = 9

// bioSeed paginates BIO's investment listing, computing the last page from
// the total result count shown on the first page (grounded on
// BioSeedUrlsWorkflow).
type bioSeed struct {
	fetcher *fetcher.Fetcher
}

func (s *bioSeed) GenerateSeedURLs(ctx context.Context) ([]string, error) {
	lastPage, err := s.findLastPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate BIO search result pages to crawl: %w", err)
	}

	urls := make([]string, 0, lastPage-bioFirstPageNum+1)
	for n := bioFirstPageNum; n <= lastPage; n++ {
		urls = append(urls, fmt.Sprintf(bioSearchResultsBaseURL, n))
	}
	return urls, nil
}

func (s *bioSeed) findLastPage(ctx context.Context) (int, error) {
	firstPage := fmt.Sprintf(bioSearchResultsBaseURL, bioFirstPageNum)
	body, _, err := s.fetcher.Get(ctx, firstPage)
	if err != nil {
		return 0, fmt.Errorf("error retrieving last page number at %q: %w", firstPage, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return 0, fmt.Errorf("error parsing %q: %w", firstPage, err)
	}

	text := strings.TrimSpace(doc.Find("div.js-filter-results small").First().Text())
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, fmt.Errorf("no result count found on %q", firstPage)
	}
	numResults, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("unparseable result count %q on %q: %w", fields[0], firstPage, err)
	}

	lastPage := numResults / bioProjectsPerPage
	if numResults%bioProjectsPerPage > 0 {
		lastPage++
	}
	return lastPage, nil
}

var bioLoanAmountPattern = regexp.MustCompile(`[\d,\.]+`)

// bioResultsMultiScrape scrapes both project URLs and partial project
// records (name, date, countries, loan amount) from a single listing page,
// since BIO's card layout exposes that data without a detail-page visit
// (grounded on BioResultsMultiScrapeWorkflow).
type bioResultsMultiScrape struct {
	fetcher *fetcher.Fetcher
}

func (s *bioResultsMultiScrape) ScrapeResultsPage(ctx context.Context, url string) ([]string, []models.StagedProject, error) {
	body, _, err := s.fetcher.Get(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("error scraping BIO results page %q: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing %q: %w", url, err)
	}

	urls, projects := parseBioResultsPage(doc)
	return urls, projects, nil
}

// parseBioResultsPage is the pure extraction half of ScrapeResultsPage,
// split out so it can run against an in-memory fixture document in tests.
func parseBioResultsPage(doc *goquery.Document) ([]string, []models.StagedProject) {
	var urls []string
	var projects []models.StagedProject

	doc.Find("div.card").Each(func(_ int, card *goquery.Selection) {
		header := card.Find("h3.card__title").First()
		name := strings.TrimSpace(header.Text())
		href, _ := header.Find("a").Attr("href")

		disclosed := ""
		if dateText := strings.TrimSpace(card.Find(".icon--calendar").Parent().Text()); dateText != "" {
			if parsed, err := time.Parse("02/01/2006", dateText); err == nil {
				disclosed = parsed.Format("2006-01-02")
			}
		}

		countries := ""
		if countryText := strings.TrimSpace(card.Find(".icon--location").Parent().Text()); countryText != "" {
			parts := strings.Split(countryText, ",")
			for i, p := range parts {
				parts[i] = strings.TrimSpace(p)
			}
			countries = strings.Join(parts, ", ")
		}

		var amount *float64
		currency := ""
		if amountText := strings.TrimSpace(card.Find(".icon--euro").Parent().Text()); amountText != "" {
			if match := bioLoanAmountPattern.FindString(amountText); match != "" {
				if value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64); err == nil {
					amount = &value
					currency = "EUR"
				}
			}
		}

		urls = append(urls, href)
		projects = append(projects, models.StagedProject{
			Source:              registry.BIO,
			Name:                name,
			DisclosedDate:       disclosed,
			Countries:           countries,
			TotalAmount:         amount,
			TotalAmountCurrency: currency,
			URL:                 href,
		})
	})

	return urls, projects
}

// bioProjectPartialScrape scrapes a BIO project detail page for the fields
// its listing cards lack: companies and a derived sector (grounded on
// BioProjectPartialScrapeWorkflow).
type bioProjectPartialScrape struct {
	fetcher *fetcher.Fetcher
}

func (s *bioProjectPartialScrape) ScrapeProjectPagePartial(ctx context.Context, url string) ([]models.StagedProject, error) {
	body, _, err := s.fetcher.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error scraping BIO project page %q: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("error parsing %q: %w", url, err)
	}

	labeled := func(label string) string {
		var result string
		doc.Find("*").EachWithBreak(func(_ int, node *goquery.Selection) bool {
			if node.Children().Length() > 0 || strings.TrimSpace(node.Text()) != label {
				return true
			}
			result = strings.TrimSpace(node.Parent().Find("p").First().Text())
			return false
		})
		return result
	}

	companies := labeled("Organisation")
	investmentField := labeled("Investment field")
	investmentActivity := labeled("Activity")

	sectors := fmt.Sprintf("%s: %s", investmentField, investmentActivity)
	switch strings.ToLower(investmentField) {
	case "investment companies & funds", "financial institutions":
		sectors = "Finance"
	}

	return []models.StagedProject{{
		Source:     registry.BIO,
		Sectors:    sectors,
		Affiliates: companies,
		URL:        url,
	}}, nil
}

func init() {
	sharedFetcher := fetcher.New(30*time.Second, fetcher.WithUserAgents(defaultUserAgents))

	registry.RegisterWorkflow(registry.BIO, models.WorkflowSeedURLs, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.SeedWorkflow{Deps: deps, Strategy: &bioSeed{fetcher: sharedFetcher}, Next: models.WorkflowResultsPageMulti}
	})
	registry.RegisterWorkflow(registry.BIO, models.WorkflowResultsPageMulti, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.ResultsMultiScrapeWorkflow{Deps: deps, Strategy: &bioResultsMultiScrape{fetcher: sharedFetcher}, Next: models.WorkflowProjectPagePartial}
	})
	registry.RegisterWorkflow(registry.BIO, models.WorkflowProjectPagePartial, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.ProjectPartialScrapeWorkflow{Deps: deps, Strategy: &bioProjectPartialScrape{fetcher: sharedFetcher}}
	})
}
