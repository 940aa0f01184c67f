package workflows

import (
	"context"

	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/workflows/strategy"
)

// DownloadWorkflow downloads and cleans an entire source's project records
// from a single endpoint, with no follow-up tasks (§4.1, grounded on the
// original ProjectDownloadWorkflow).
type DownloadWorkflow struct {
	Deps     Deps
	Strategy strategy.Download
}

func (w *DownloadWorkflow) NextWorkflow() string { return "" }

func (w *DownloadWorkflow) Execute(ctx context.Context, in ExecuteInput) error {
	return bookkeeping(ctx, w.Deps, in, "download", func(update *models.TaskUpdate) error {
		raw, err := w.Strategy.GetProjects(ctx, w.Strategy.DownloadURL())
		if err != nil {
			return err
		}

		records, err := w.Strategy.CleanProjects(ctx, raw)
		if err != nil {
			return err
		}

		for i := range records {
			records[i].TaskID = in.TaskID
		}
		return w.Deps.Storage.BulkInsertStagedProjects(ctx, records)
	})
}
