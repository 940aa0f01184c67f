package banks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/quaero-pipeline/internal/fetcher"
	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/registry"
	"github.com/ternarybob/quaero-pipeline/internal/workflows"
)

// kfwRecord is the shape of one element of KFW's project JSON download,
// grounded on the column names clean_projects renames from in kfw.py.
type kfwRecord struct {
	ProjNr       string  `json:"projnr"`
	Title        string  `json:"title"`
	Status       string  `json:"status"`
	Amount       float64 `json:"amount"`
	Focus        string  `json:"focus"`
	Country      string  `json:"country"`
	Responsible  string  `json:"responsible"`
	HostDate     string  `json:"hostDate"`
}

const kfwDownloadURL = "https://www.kfw-entwicklungsbank.de/ipfz/Projektdatenbank/download/json"
const kfwProjectsBaseURL = "https://www.kfw-entwicklungsbank.de/ipfz/Projektdatenbank"

// kfwDownload downloads the whole project table as one JSON document and
// cleans it into the staged schema (grounded on KfwDownloadWorkflow).
type kfwDownload struct {
	fetcher *fetcher.Fetcher
}

func (d *kfwDownload) DownloadURL() string { return kfwDownloadURL }

func (d *kfwDownload) GetProjects(ctx context.Context, downloadURL string) ([]byte, error) {
	body, _, err := d.fetcher.Get(ctx, downloadURL)
	if err != nil {
		return nil, fmt.Errorf("error retrieving JSON project data from KFW: %w", err)
	}
	return body, nil
}

func (d *kfwDownload) CleanProjects(ctx context.Context, raw []byte) ([]models.StagedProject, error) {
	var records []kfwRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("error cleaning KFW project data: %w", err)
	}

	out := make([]models.StagedProject, 0, len(records))
	for _, r := range records {
		amountEUR := r.Amount * 1_000_000
		disclosed := kfwFormatDate(r.HostDate)

		out = append(out, models.StagedProject{
			Source:              registry.KFW,
			Number:              r.ProjNr,
			Name:                r.Title,
			Status:              r.Status,
			Sectors:             r.Focus,
			Countries:           r.Country,
			Affiliates:          r.Responsible,
			DisclosedDate:       disclosed,
			TotalAmount:         &amountEUR,
			TotalAmountCurrency: "EUR",
			URL:                 kfwProjectURL(r),
		})
	}
	return out, nil
}

func kfwProjectURL(r kfwRecord) string {
	slug := strings.ReplaceAll(r.Title, " ", "-")
	return fmt.Sprintf("%s/%s-%s.htm", kfwProjectsBaseURL, url.PathEscape(slug), url.PathEscape(r.ProjNr))
}

func kfwFormatDate(raw string) string {
	if raw == "" {
		return ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

func init() {
	sharedFetcher := fetcher.New(60*time.Second, fetcher.WithUserAgents(defaultUserAgents))

	registry.RegisterWorkflow(registry.KFW, models.WorkflowDownload, func(deps workflows.Deps) workflows.Workflow {
		return &workflows.DownloadWorkflow{Deps: deps, Strategy: &kfwDownload{fetcher: sharedFetcher}}
	})
}
