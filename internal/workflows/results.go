package workflows

import (
	"context"
	"time"

	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/workflows/strategy"
)

// ResultsScrapeWorkflow scrapes a search-results page for project page URLs
// and queues them as project-page tasks (§4.1, grounded on the original
// ResultsScrapeWorkflow).
type ResultsScrapeWorkflow struct {
	Deps     Deps
	Strategy strategy.ResultsScrape
	Next     string
}

func (w *ResultsScrapeWorkflow) NextWorkflow() string { return w.Next }

func (w *ResultsScrapeWorkflow) Execute(ctx context.Context, in ExecuteInput) error {
	return bookkeeping(ctx, w.Deps, in, "results-page", func(update *models.TaskUpdate) error {
		scrapeStart := time.Now().UTC()
		update.ScrapingStartUTC = &scrapeStart
		urls, err := w.Strategy.ScrapeResultsPage(ctx, in.URL)
		scrapeEnd := time.Now().UTC()
		update.ScrapingEndUTC = &scrapeEnd
		if err != nil {
			return err
		}
		return PersistAndPublish(ctx, w.Deps, in.JobID, in.Source, w.Next, urls)
	})
}

// ResultsMultiScrapeWorkflow scrapes a search-results page for both project
// page URLs and partial project records, persisting the records directly
// and queuing the URLs as project-page-partial tasks (§4.1, grounded on the
// original ResultsMultiScrapeWorkflow).
type ResultsMultiScrapeWorkflow struct {
	Deps     Deps
	Strategy strategy.ResultsMultiScrape
	Next     string
}

func (w *ResultsMultiScrapeWorkflow) NextWorkflow() string { return w.Next }

func (w *ResultsMultiScrapeWorkflow) Execute(ctx context.Context, in ExecuteInput) error {
	return bookkeeping(ctx, w.Deps, in, "results-page-multi", func(update *models.TaskUpdate) error {
		scrapeStart := time.Now().UTC()
		update.ScrapingStartUTC = &scrapeStart
		urls, projects, err := w.Strategy.ScrapeResultsPage(ctx, in.URL)
		scrapeEnd := time.Now().UTC()
		update.ScrapingEndUTC = &scrapeEnd
		if err != nil {
			return err
		}

		for i := range projects {
			projects[i].TaskID = in.TaskID
		}
		if len(projects) > 0 {
			if err := w.Deps.Storage.BulkInsertStagedProjects(ctx, projects); err != nil {
				return err
			}
		}

		return PersistAndPublish(ctx, w.Deps, in.JobID, in.Source, w.Next, urls)
	})
}
