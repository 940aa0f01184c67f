package workflows

import (
	"context"

	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/workflows/strategy"
)

// SeedWorkflow generates the initial set of URLs for a source and queues
// them as tasks of the Next workflow_type (results-page for most sources)
// (§4.1, grounded on the original SeedUrlsWorkflow).
type SeedWorkflow struct {
	Deps     Deps
	Strategy strategy.Seed
	Next     string
}

func (w *SeedWorkflow) NextWorkflow() string { return w.Next }

func (w *SeedWorkflow) Execute(ctx context.Context, in ExecuteInput) error {
	return bookkeeping(ctx, w.Deps, in, "seed-urls", func(update *models.TaskUpdate) error {
		urls, err := w.Strategy.GenerateSeedURLs(ctx)
		if err != nil {
			return err
		}
		if err := PersistAndPublish(ctx, w.Deps, in.JobID, in.Source, w.Next, urls); err != nil {
			return err
		}
		return nil
	})
}
