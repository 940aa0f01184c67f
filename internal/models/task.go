package models

import "time"

// Workflow type identifiers: the closed set named in spec §6.
const (
	WorkflowSeedURLs           = "seed-urls"
	WorkflowResultsPage        = "results-page"
	WorkflowResultsPageMulti   = "results-page-multi"
	WorkflowProjectPage        = "project-page"
	WorkflowProjectPagePartial = "project-page-partial"
	WorkflowDownload           = "download"
	WorkflowFilingHistory      = "filing-history"
	WorkflowFilingArchive      = "filing-archive"
	WorkflowFilingScrape       = "filing-scrape"
	WorkflowDynamic            = "dynamic"
)

// TaskStatus is an alias of Stage: a task's status uses the same
// NotStarted/InProgress/Completed/Error vocabulary as a Job's stages.
type TaskStatus = Stage

// TaskRequest is the shape used to bulk-create new tasks (§4.4 step 5, §8).
type TaskRequest struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	Source       string `json:"source"`
	URL          string `json:"url"`
	WorkflowType string `json:"workflow_type"`
}

// Task is one unit of scraping work belonging to a job (§3).
// Unique key: (JobID, Source, WorkflowType, URL).
type Task struct {
	ID                 string     `json:"id"`
	JobID              string     `json:"job_id"`
	Source             string     `json:"source"`
	WorkflowType       string     `json:"workflow_type"`
	URL                string     `json:"url"`
	Status             TaskStatus `json:"status"`
	ProcessingStartUTC *time.Time `json:"processing_start_utc,omitempty"`
	ProcessingEndUTC   *time.Time `json:"processing_end_utc,omitempty"`
	ScrapingStartUTC   *time.Time `json:"scraping_start_utc,omitempty"`
	ScrapingEndUTC     *time.Time `json:"scraping_end_utc,omitempty"`
	LastFailedAtUTC    *time.Time `json:"last_failed_at_utc,omitempty"`
	LastErrorMessage   string     `json:"last_error_message,omitempty"`
	RetryCount         int        `json:"retry_count"`
}

// TaskUpdate carries the fields an executing workflow mutates over the
// course of a single execute() call (§4.1 step 1-4).
type TaskUpdate struct {
	ID                 string     `json:"id"`
	Status             TaskStatus `json:"status,omitempty"`
	ProcessingStartUTC *time.Time `json:"processing_start_utc,omitempty"`
	ProcessingEndUTC   *time.Time `json:"processing_end_utc,omitempty"`
	ScrapingStartUTC   *time.Time `json:"scraping_start_utc,omitempty"`
	ScrapingEndUTC     *time.Time `json:"scraping_end_utc,omitempty"`
	LastFailedAtUTC    *time.Time `json:"last_failed_at_utc,omitempty"`
	LastErrorMessage   string     `json:"last_error_message,omitempty"`
	RetryCount         int        `json:"retry_count"`
}

// TaskMessage is the JSON envelope placed on the bus for one task (§6).
type TaskMessage struct {
	ID           string `json:"id"`
	JobID        string `json:"job_id"`
	Source       string `json:"source"`
	WorkflowType string `json:"workflow_type"`
	URL          string `json:"url"`
}

// AuditMessage is published once per job after quiescence to trigger the
// transform stage (§4.3, §6).
type AuditMessage struct {
	JobID           string `json:"job_id"`
	TimeCompletedUTC string `json:"time_completed_utc"`
}

// AuditTimestampLayout is the exact layout used for AuditMessage.TimeCompletedUTC,
// matching the original implementation's `%Y_%m_%d_%H_%M_%S` strftime format.
const AuditTimestampLayout = "2006_01_02_15_04_05"
