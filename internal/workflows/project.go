package workflows

import (
	"context"
	"time"

	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/workflows/strategy"
)

// ProjectScrapeWorkflow scrapes a single project detail page into one or
// more staged project records and produces no follow-up tasks (§4.1,
// grounded on the original ProjectScrapeWorkflow).
type ProjectScrapeWorkflow struct {
	Deps     Deps
	Strategy strategy.ProjectScrape
}

func (w *ProjectScrapeWorkflow) NextWorkflow() string { return "" }

func (w *ProjectScrapeWorkflow) Execute(ctx context.Context, in ExecuteInput) error {
	return bookkeeping(ctx, w.Deps, in, "project-page", func(update *models.TaskUpdate) error {
		scrapeStart := time.Now().UTC()
		update.ScrapingStartUTC = &scrapeStart
		records, err := w.Strategy.ScrapeProjectPage(ctx, in.URL)
		scrapeEnd := time.Now().UTC()
		update.ScrapingEndUTC = &scrapeEnd
		if err != nil {
			return err
		}

		for i := range records {
			records[i].TaskID = in.TaskID
		}
		return w.Deps.Storage.BulkInsertStagedProjects(ctx, records)
	})
}

// ProjectPartialScrapeWorkflow scrapes a project detail page whose record
// is reconciled during the transform stage with an earlier partial record
// from a results-page-multi pass (§4.1 project-page-partial). It shares the
// original's project-scrape bookkeeping exactly; only the workflow_type and
// upstream origin differ.
type ProjectPartialScrapeWorkflow struct {
	Deps     Deps
	Strategy strategy.ProjectPartialScrape
}

func (w *ProjectPartialScrapeWorkflow) NextWorkflow() string { return "" }

func (w *ProjectPartialScrapeWorkflow) Execute(ctx context.Context, in ExecuteInput) error {
	return bookkeeping(ctx, w.Deps, in, "project-page-partial", func(update *models.TaskUpdate) error {
		scrapeStart := time.Now().UTC()
		update.ScrapingStartUTC = &scrapeStart
		records, err := w.Strategy.ScrapeProjectPagePartial(ctx, in.URL)
		scrapeEnd := time.Now().UTC()
		update.ScrapingEndUTC = &scrapeEnd
		if err != nil {
			return err
		}

		for i := range records {
			records[i].TaskID = in.TaskID
		}
		return w.Deps.Storage.BulkInsertStagedProjects(ctx, records)
	})
}
