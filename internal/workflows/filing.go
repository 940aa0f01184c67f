package workflows

import (
	"context"
	"time"

	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/workflows/strategy"
)

// FilingHistoryWorkflow parses a company's SEC submission history into a
// mixed set of filing-scrape and filing-archive follow-up tasks in one
// execute call (§4.5, grounded on the original Form13FHistoryScrapeWorkflow).
// Its next workflow_type is decided per task rather than fixed, so it
// reports models.WorkflowDynamic rather than a single string.
type FilingHistoryWorkflow struct {
	Deps     Deps
	Strategy strategy.FilingHistory
}

func (w *FilingHistoryWorkflow) NextWorkflow() string { return models.WorkflowDynamic }

func (w *FilingHistoryWorkflow) Execute(ctx context.Context, in ExecuteInput) error {
	return bookkeeping(ctx, w.Deps, in, "filing-history", func(update *models.TaskUpdate) error {
		scrapeStart := time.Now().UTC()
		update.ScrapingStartUTC = &scrapeStart
		tasks, err := w.Strategy.ScrapeFilingHistory(ctx, in.URL)
		scrapeEnd := time.Now().UTC()
		update.ScrapingEndUTC = &scrapeEnd
		if err != nil {
			return err
		}

		items := make([]TaskSpec, len(tasks))
		for i, t := range tasks {
			items[i] = TaskSpec{URL: t.URL, WorkflowType: t.WorkflowType}
		}
		return PersistAndPublishMixed(ctx, w.Deps, in.JobID, in.Source, items)
	})
}

// FilingArchiveWorkflow parses one archived-submissions payload into
// filing-scrape follow-up tasks (§4.5, grounded on the original
// Form13FArchiveScrapeWorkflow).
type FilingArchiveWorkflow struct {
	Deps     Deps
	Strategy strategy.FilingArchive
	Next     string
}

func (w *FilingArchiveWorkflow) NextWorkflow() string { return w.Next }

func (w *FilingArchiveWorkflow) Execute(ctx context.Context, in ExecuteInput) error {
	return bookkeeping(ctx, w.Deps, in, "filing-archive", func(update *models.TaskUpdate) error {
		scrapeStart := time.Now().UTC()
		update.ScrapingStartUTC = &scrapeStart
		urls, err := w.Strategy.ScrapeArchivedFilings(ctx, in.URL)
		scrapeEnd := time.Now().UTC()
		update.ScrapingEndUTC = &scrapeEnd
		if err != nil {
			return err
		}
		return PersistAndPublish(ctx, w.Deps, in.JobID, in.Source, w.Next, urls)
	})
}

// FilingScrapeWorkflow scrapes one filing's information table into staged
// investment rows, with no follow-up tasks (§4.5, §4.6, grounded on the
// original Form13FInvestmentScrapeWorkflow).
type FilingScrapeWorkflow struct {
	Deps     Deps
	Strategy strategy.FilingScrape
}

func (w *FilingScrapeWorkflow) NextWorkflow() string { return "" }

func (w *FilingScrapeWorkflow) Execute(ctx context.Context, in ExecuteInput) error {
	return bookkeeping(ctx, w.Deps, in, "filing-scrape", func(update *models.TaskUpdate) error {
		scrapeStart := time.Now().UTC()
		update.ScrapingStartUTC = &scrapeStart
		investments, err := w.Strategy.ScrapeInvestments(ctx, in.URL)
		scrapeEnd := time.Now().UTC()
		update.ScrapingEndUTC = &scrapeEnd
		if err != nil {
			return err
		}

		for i := range investments {
			investments[i].TaskID = in.TaskID
		}
		if len(investments) == 0 {
			return nil
		}
		return w.Deps.Storage.BulkInsertStagedInvestments(ctx, investments)
	})
}
