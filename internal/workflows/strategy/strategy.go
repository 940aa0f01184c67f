// Package strategy defines the bank-specific contracts each workflow kind
// delegates to (§4.1). Each concrete strategy type implements exactly one of
// these interfaces, and a source (e.g. ADB, KFW, EBRD) supplies one strategy
// per workflow_type it registers; internal/workflows wires each into the
// shared bookkeeping the matching workflow kind performs.
package strategy

import (
	"context"

	"github.com/ternarybob/quaero-pipeline/internal/models"
)

// Seed generates the first batch of URLs for a source (§4.1 seed-urls).
type Seed interface {
	GenerateSeedURLs(ctx context.Context) ([]string, error)
}

// ResultsScrape scrapes a single search-results page for project page URLs
// (§4.1 results-page).
type ResultsScrape interface {
	ScrapeResultsPage(ctx context.Context, url string) ([]string, error)
}

// ResultsMultiScrape scrapes a results page for both project page URLs and
// partial project records in the same request, used when the listing page
// carries data the detail page lacks (§4.1 results-page-multi).
type ResultsMultiScrape interface {
	ScrapeResultsPage(ctx context.Context, url string) ([]string, []models.StagedProject, error)
}

// ProjectScrape scrapes one project detail page into one or more staged
// project records (§4.1 project-page).
type ProjectScrape interface {
	ScrapeProjectPage(ctx context.Context, url string) ([]models.StagedProject, error)
}

// ProjectPartialScrape scrapes one project detail page into records that
// will be reconciled with an earlier partial record from the same project's
// results-page-multi pass (§4.1 project-page-partial).
type ProjectPartialScrape interface {
	ScrapeProjectPagePartial(ctx context.Context, url string) ([]models.StagedProject, error)
}

// Download fetches and cleans an entire source's project records from a
// single download endpoint, with no follow-up tasks (§4.1 download).
type Download interface {
	DownloadURL() string
	GetProjects(ctx context.Context, url string) ([]byte, error)
	CleanProjects(ctx context.Context, raw []byte) ([]models.StagedProject, error)
}

// FilingHistoryTask is one URL queued by FilingHistory, tagged with the
// workflow_type its own follow-up task should run under (§4.5: recent
// filings route to filing-scrape, archived ones to filing-archive, unless
// an old-format recent filing was seen, which suppresses every archived
// URL).
type FilingHistoryTask struct {
	URL          string
	WorkflowType string
}

// FilingHistory parses a company's SEC submission history into the mixed
// set of follow-up filing tasks described above (§4.5).
type FilingHistory interface {
	ScrapeFilingHistory(ctx context.Context, url string) ([]FilingHistoryTask, error)
}

// FilingArchive parses one archived-submissions JSON payload into filing
// page URLs, all routed to the same follow-up workflow_type (§4.5).
type FilingArchive interface {
	ScrapeArchivedFilings(ctx context.Context, url string) ([]string, error)
}

// FilingScrape scrapes one filing's information table into staged
// investment rows, with no follow-up tasks (§4.5, §4.6).
type FilingScrape interface {
	ScrapeInvestments(ctx context.Context, url string) ([]models.StagedInvestment, error)
}
