// Package storagegateway implements interfaces.StorageGateway as a plain
// JSON-over-HTTP client. The relational schema and migrations behind the
// gateway are owned by a separate service and are explicitly out of core
// scope (spec §1); this client only has to speak the operations §6 names.
package storagegateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero-pipeline/internal/interfaces"
	"github.com/ternarybob/quaero-pipeline/internal/models"
)

// Client is the HTTP-backed StorageGateway. It owns no retry policy beyond
// the one http.Client timeout: callers (workflows, the dispatcher, the
// transform stage) decide whether a gateway error is retryable.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
}

// defaultBulkBatchSize caps every bulk write at 1000 records per POST,
// matching the original's _perform_bulk_operation batch math
// (num_batches = records // batch_size, plus one for the remainder).
const defaultBulkBatchSize = 1000

// bulkPost POSTs rows to path in chunks of at most defaultBulkBatchSize,
// discarding any response body.
func bulkPost[T any](ctx context.Context, c *Client, path string, rows []T) error {
	for i := 0; i < len(rows); i += defaultBulkBatchSize {
		end := min(i+defaultBulkBatchSize, len(rows))
		if err := c.do(ctx, http.MethodPost, path, rows[i:end], nil); err != nil {
			return err
		}
	}
	return nil
}

// bulkPostWithResult POSTs rows to path in chunks of at most
// defaultBulkBatchSize, concatenating each chunk's decoded response.
func bulkPostWithResult[T, R any](ctx context.Context, c *Client, path string, rows []T) ([]R, error) {
	var out []R
	for i := 0; i < len(rows); i += defaultBulkBatchSize {
		end := min(i+defaultBulkBatchSize, len(rows))
		var chunk []R
		if err := c.do(ctx, http.MethodPost, path, rows[i:end], &chunk); err != nil {
			return out, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// bulkPostIDs POSTs {"ids": [...]} to path in chunks of at most
// defaultBulkBatchSize ids.
func bulkPostIDs(ctx context.Context, c *Client, path string, ids []string) error {
	for i := 0; i < len(ids); i += defaultBulkBatchSize {
		end := min(i+defaultBulkBatchSize, len(ids))
		if err := c.do(ctx, http.MethodPost, path, map[string][]string{"ids": ids[i:end]}, nil); err != nil {
			return err
		}
	}
	return nil
}

var _ interfaces.StorageGateway = (*Client)(nil)

// New creates a Client against baseURL with the given request timeout.
func New(baseURL string, timeout time.Duration, logger arbor.ILogger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body for %s %s: %w", method, path, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request for %s %s: %w", method, path, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("storage gateway request failed for %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read storage gateway response for %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= 300 {
		return fmt.Errorf("storage gateway returned %d for %s %s: %s", resp.StatusCode, method, path, string(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode storage gateway response for %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) CreateJob(ctx context.Context, invocationID string, jobType models.JobType) (models.CreateJobResult, error) {
	var result models.CreateJobResult
	req := map[string]any{"invocation_id": invocationID, "job_type": jobType}
	err := c.do(ctx, http.MethodPost, "/jobs", req, &result)
	return result, err
}

func (c *Client) UpdateJob(ctx context.Context, update models.JobUpdate) error {
	return c.do(ctx, http.MethodPatch, "/jobs/"+update.ID, update, nil)
}

func (c *Client) BulkCreateTasks(ctx context.Context, requests []models.TaskRequest) ([]models.Task, error) {
	return bulkPostWithResult[models.TaskRequest, models.Task](ctx, c, "/tasks/bulk", requests)
}

func (c *Client) UpdateTask(ctx context.Context, update models.TaskUpdate) error {
	return c.do(ctx, http.MethodPatch, "/tasks/"+update.ID, update, nil)
}

func (c *Client) BulkInsertStagedProjects(ctx context.Context, rows []models.StagedProject) error {
	return bulkPost(ctx, c, "/staged-projects/bulk", rows)
}

func (c *Client) BulkInsertStagedInvestments(ctx context.Context, rows []models.StagedInvestment) error {
	return bulkPost(ctx, c, "/staged-investments/bulk", rows)
}

func (c *Client) GetStagedProjects(ctx context.Context, limit int) ([]models.StagedProject, error) {
	var rows []models.StagedProject
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/staged-projects?limit=%d", limit), nil, &rows)
	return rows, err
}

func (c *Client) GetStagedInvestments(ctx context.Context, limit int) ([]models.StagedInvestment, error) {
	var rows []models.StagedInvestment
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/staged-investments?limit=%d", limit), nil, &rows)
	return rows, err
}

func (c *Client) DeleteStagedProjects(ctx context.Context, ids []string) error {
	return bulkPostIDs(ctx, c, "/staged-projects/delete", ids)
}

func (c *Client) DeleteStagedInvestments(ctx context.Context, ids []string) error {
	return bulkPostIDs(ctx, c, "/staged-investments/delete", ids)
}

func (c *Client) GetBanks(ctx context.Context) ([]models.Bank, error) {
	var rows []models.Bank
	err := c.do(ctx, http.MethodGet, "/banks", nil, &rows)
	return rows, err
}

func (c *Client) GetCountries(ctx context.Context) ([]models.Country, error) {
	var rows []models.Country
	err := c.do(ctx, http.MethodGet, "/countries", nil, &rows)
	return rows, err
}

func (c *Client) GetSectors(ctx context.Context) ([]models.Sector, error) {
	var rows []models.Sector
	err := c.do(ctx, http.MethodGet, "/sectors", nil, &rows)
	return rows, err
}

func (c *Client) BulkUpsertCompanies(ctx context.Context, rows []models.Company) ([]models.Company, error) {
	return bulkPostWithResult[models.Company, models.Company](ctx, c, "/companies/upsert", rows)
}

func (c *Client) BulkUpsertForms(ctx context.Context, rows []models.Form) ([]models.Form, error) {
	return bulkPostWithResult[models.Form, models.Form](ctx, c, "/forms/upsert", rows)
}

func (c *Client) BulkUpsertInvestments(ctx context.Context, rows []models.Investment) error {
	return bulkPost(ctx, c, "/investments/upsert", rows)
}

func (c *Client) BulkUpsertProjects(ctx context.Context, rows []models.CanonicalProject) ([]models.CanonicalProject, error) {
	return bulkPostWithResult[models.CanonicalProject, models.CanonicalProject](ctx, c, "/projects/upsert", rows)
}

func (c *Client) BulkInsertProjectCountries(ctx context.Context, rows []models.ProjectCountryAssociation) error {
	return bulkPost(ctx, c, "/project-countries/bulk", rows)
}

func (c *Client) BulkInsertProjectSectors(ctx context.Context, rows []models.ProjectSectorAssociation) error {
	return bulkPost(ctx, c, "/project-sectors/bulk", rows)
}
