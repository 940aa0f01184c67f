package banks

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/registry"
	"github.com/ternarybob/quaero-pipeline/internal/workflows"
)

// ebrdRenderer renders a URL in a headless Chrome tab and returns the fully
// hydrated DOM as HTML. EBRD's project search and detail pages populate
// their pager and finance summary fields client-side, which plain GET
// requests (as the original scraper used) can no longer retrieve reliably;
// chromedp replaces requests.get for this source only. The tab's headers
// are set via the CDP Network domain directly rather than through chromedp's
// high-level helpers, so the same user-agent rotation the plain-HTTP fetcher
// applies to its requests also applies to this rendered source.
type ebrdRenderer struct {
	navigateTimeout time.Duration
	userAgents      []string
	next            uint32
}

func (r *ebrdRenderer) rotateUserAgent() string {
	if len(r.userAgents) == 0 {
		return ""
	}
	idx := atomic.AddUint32(&r.next, 1) - 1
	return r.userAgents[int(idx)%len(r.userAgents)]
}

func (r *ebrdRenderer) render(ctx context.Context, url string) (string, error) {
	timeout := r.navigateTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	actions := []chromedp.Action{network.Enable()}
	if ua := r.rotateUserAgent(); ua != "" {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers{"User-Agent": ua}))
	}
	actions = append(actions,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)

	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html))
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("failed to render %q: %w", url, err)
	}
	return html, nil
}

const ebrdSearchResultsBaseURL = "https://www.ebrd.com/cs/Satellite?c=Page&cid=1395238314964&d=&pagename=EBRD/Page/SolrSearchAndFilterPSD&page=%d&safSortBy=PublicationDate_sort&safSortOrder=descending"
const ebrdProjectPageBaseURL = "https://www.ebrd.com"
const ebrdFirstPageNum = 1

// ebrdSeed paginates EBRD's project search, reading the rendered page's
// hidden maxPage input (grounded on EbrdSeedUrlsWorkflow).
type ebrdSeed struct {
	renderer *ebrdRenderer
}

func (s *ebrdSeed) GenerateSeedURLs(ctx context.Context) ([]string, error) {
	lastPage, err := s.findLastPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate search result pages to crawl: %w", err)
	}

	urls := make([]string, 0, lastPage-ebrdFirstPageNum+1)
	for n := ebrdFirstPageNum; n <= lastPage; n++ {
		urls = append(urls, fmt.Sprintf(ebrdSearchResultsBaseURL, n))
	}
	return urls, nil
}

func (s *ebrdSeed) findLastPage(ctx context.Context) (int, error) {
	firstPage := fmt.Sprintf(ebrdSearchResultsBaseURL, ebrdFirstPageNum)
	html, err := s.renderer.render(ctx, firstPage)
	if err != nil {
		return 0, fmt.Errorf("error retrieving last page number at %q: %w", firstPage, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("error parsing %q: %w", firstPage, err)
	}

	value, ok := doc.Find("input#maxPage").Attr("value")
	if !ok {
		return 0, fmt.Errorf("no maxPage input found on %q", firstPage)
	}
	return strconv.Atoi(value)
}

// ebrdResultsScrape scrapes project page URLs from a single rendered search
// results page (grounded on EbrdResultsScrapeWorkflow).
type ebrdResultsScrape struct {
	renderer *ebrdRenderer
}

func (s *ebrdResultsScrape) ScrapeResultsPage(ctx context.Context, url string) ([]string, error) {
	html, err := s.renderer.render(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error scraping EBRD project page URLs from %q: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("error parsing %q: %w", url, err)
	}

	var urls []string
	doc.Find("tr.post").Each(func(_ int, row *goquery.Selection) {
		href, ok := row.Find("a").First().Attr("href")
		if ok && strings.HasPrefix(href, ebrdProjectPageBaseURL) {
			urls = append(urls, href)
		}
	})
	return urls, nil
}

var ebrdFinanceSummaryPattern = regexp.MustCompile(`EBRD Finance Summary(.*)`)

// ebrdProjectScrape scrapes one rendered EBRD project page for a project
// record (grounded on EbrdProjectScrapeWorkflow).
type ebrdProjectScrape struct {
	renderer *ebrdRenderer
}

func (s *ebrdProjectScrape) ScrapeProjectPage(ctx context.Context, url string) ([]models.StagedProject, error) {
	html, err := s.renderer.render(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error scraping EBRD project page %q: %w", url, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("error parsing %q: %w", url, err)
	}

	field := func(label string) string {
		var result string
		doc.Find("*").EachWithBreak(func(_ int, node *goquery.Selection) bool {
			if node.Children().Length() > 0 || strings.TrimSpace(node.Text()) != label {
				return true
			}
			result = strings.TrimSpace(node.Next().Text())
			return false
		})
		return result
	}
	fieldMatching := func(pattern *regexp.Regexp) string {
		var result string
		doc.Find("*").EachWithBreak(func(_ int, node *goquery.Selection) bool {
			if node.Children().Length() > 0 || !pattern.MatchString(strings.TrimSpace(node.Text())) {
				return true
			}
			result = strings.TrimSpace(node.Next().Text())
			return false
		})
		return result
	}

	number := field("Project number:")
	name := strings.TrimSpace(doc.Find("h1").First().Text())
	status := field("Status:")
	date := field("PSD disclosed:")
	loanAmount := fieldMatching(ebrdFinanceSummaryPattern)
	sectors := field("Business sector:")
	countries := field("Location:")
	companies := strings.TrimSpace(field("Client Information"))

	disclosed := ""
	if date != "" {
		if parsed, err := time.Parse("2 Jan 2006", date); err == nil {
			disclosed = parsed.Format("2006-01-02")
		}
	}

	companies = strings.NewReplacer("\r", "", "\n", "", "\t", "").Replace(companies)

	var amount *float64
	currency := ""
	if loanAmount != "" {
		parts := strings.SplitN(strings.Trim(loanAmount, "\r\n\t "), " ", 2)
		if len(parts) == 2 {
			currency = parts[0]
			value, err := strconv.ParseFloat(strings.ReplaceAll(parts[1], ",", ""), 64)
			if err == nil {
				amount = &value
			}
		}
	}

	return []models.StagedProject{{
		Source:              registry.EBRD,
		Number:              number,
		Name:                name,
		Status:              status,
		DisclosedDate:       disclosed,
		TotalAmount:         amount,
		TotalAmountCurrency: currency,
		Sectors:             sectors,
		Countries:           countries,
		Affiliates:          companies,
		URL:                 url,
	}}, nil
}

func init() {
	renderer := &ebrdRenderer{navigateTimeout: 45 * time.Second, userAgents: defaultUserAgents}

	registry.RegisterWorkflow(registry.EBRD, models.WorkflowSeedURLs, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.SeedWorkflow{Deps: deps, Strategy: &ebrdSeed{renderer: renderer}, Next: models.WorkflowResultsPage}
	})
	registry.RegisterWorkflow(registry.EBRD, models.WorkflowResultsPage, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.ResultsScrapeWorkflow{Deps: deps, Strategy: &ebrdResultsScrape{renderer: renderer}, Next: models.WorkflowProjectPage}
	})
	registry.RegisterWorkflow(registry.EBRD, models.WorkflowProjectPage, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.ProjectScrapeWorkflow{Deps: deps, Strategy: &ebrdProjectScrape{renderer: renderer}}
	})
}
