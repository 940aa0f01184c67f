// Package interfaces defines the collaborator contracts the core consumes
// but does not own: the Storage Gateway (§6 outbound store API) and the
// Message Bus Client (§4.3, §5). Both are implemented outside this package
// (internal/storagegateway, internal/bus) and injected into workflows,
// the dispatcher, and the transform stage through these interfaces.
package interfaces

import (
	"context"

	"github.com/ternarybob/quaero-pipeline/internal/models"
)

// StorageGateway is the JSON-over-HTTP contract the core depends on. The
// relational schema and migrations behind it are explicitly out of core
// scope (spec §1); this interface only names the operations §6 lists.
type StorageGateway interface {
	CreateJob(ctx context.Context, invocationID string, jobType models.JobType) (models.CreateJobResult, error)
	UpdateJob(ctx context.Context, update models.JobUpdate) error

	BulkCreateTasks(ctx context.Context, requests []models.TaskRequest) ([]models.Task, error)
	UpdateTask(ctx context.Context, update models.TaskUpdate) error

	BulkInsertStagedProjects(ctx context.Context, rows []models.StagedProject) error
	BulkInsertStagedInvestments(ctx context.Context, rows []models.StagedInvestment) error
	GetStagedProjects(ctx context.Context, limit int) ([]models.StagedProject, error)
	GetStagedInvestments(ctx context.Context, limit int) ([]models.StagedInvestment, error)
	DeleteStagedProjects(ctx context.Context, ids []string) error
	DeleteStagedInvestments(ctx context.Context, ids []string) error

	GetBanks(ctx context.Context) ([]models.Bank, error)
	GetCountries(ctx context.Context) ([]models.Country, error)
	GetSectors(ctx context.Context) ([]models.Sector, error)

	BulkUpsertCompanies(ctx context.Context, rows []models.Company) ([]models.Company, error)
	BulkUpsertForms(ctx context.Context, rows []models.Form) ([]models.Form, error)
	BulkUpsertInvestments(ctx context.Context, rows []models.Investment) error
	BulkUpsertProjects(ctx context.Context, rows []models.CanonicalProject) ([]models.CanonicalProject, error)
	BulkInsertProjectCountries(ctx context.Context, rows []models.ProjectCountryAssociation) error
	BulkInsertProjectSectors(ctx context.Context, rows []models.ProjectSectorAssociation) error
}
