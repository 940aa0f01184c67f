// Package registry implements the Workflow Registry (§4.2): the two-map
// lookup from a bank abbreviation to its starter workflow_type, and from a
// "{source}-{workflow_type}" key to the constructor for that concrete
// workflow. It is grounded on the original StarterWorkflowRegistry and
// WorkflowClassRegistry, which held the same two maps as Python dicts with
// a raise-on-miss lookup; static registration is favored here over
// reflection-based discovery per §9's open design question, since the set
// of sources is fixed at build time.
package registry

import (
	"errors"
	"fmt"

	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/workflows"
)

// ErrUnregistered is returned by StarterWorkflow and Build when no
// workflow is registered for the requested source (and, for Build, the
// requested workflow_type). Callers can test for it with errors.Is to tell
// a bad request apart from an infrastructure failure.
var ErrUnregistered = errors.New("no workflow registered")

// Bank abbreviations, matching the original's *_ABBREVIATION constants.
const (
	ADB  = "ADB"
	AFDB = "AFDB"
	AIIB = "AIIB"
	BIO  = "BIO"
	DEG  = "DEG"
	DFC  = "DFC"
	EBRD = "EBRD"
	EIB  = "EIB"
	FMO  = "FMO"
	IDB  = "IDB"
	IFC  = "IFC"
	KFW  = "KFW"
	MIGA = "MIGA"
	NBIM = "NBIM"
	PRO  = "PRO"
	UNDP = "UNDP"
	WB   = "WB"

	// FORM13F is the regulatory-filing source (§4.5), distinct from the
	// development-bank project sources above.
	FORM13F = "FORM-13F"
)

// starterWorkflows maps a bank abbreviation to the workflow_type its first
// task is created with, the exact mapping in the original's
// StarterWorkflowRegistry._REGISTRY.
var starterWorkflows = map[string]string{
	ADB:  models.WorkflowSeedURLs,
	AFDB: models.WorkflowSeedURLs,
	AIIB: models.WorkflowSeedURLs,
	BIO:  models.WorkflowSeedURLs,
	DEG:  models.WorkflowDownload,
	DFC:  models.WorkflowDownload,
	EBRD: models.WorkflowSeedURLs,
	EIB:  models.WorkflowSeedURLs,
	FMO:  models.WorkflowSeedURLs,
	IDB:  models.WorkflowSeedURLs,
	IFC:  models.WorkflowSeedURLs,
	KFW:  models.WorkflowDownload,
	MIGA: models.WorkflowSeedURLs,
	NBIM: models.WorkflowDownload,
	PRO:  models.WorkflowSeedURLs,
	UNDP: models.WorkflowSeedURLs,
	WB:   models.WorkflowDownload,

	FORM13F: models.WorkflowSeedURLs,
}

// StarterWorkflow returns the workflow_type the Job Queueing Entrypoint
// assigns to the first task created for bankAbbr (§4.2, §4.4).
func StarterWorkflow(bankAbbr string) (string, error) {
	wf, ok := starterWorkflows[bankAbbr]
	if !ok {
		return "", fmt.Errorf("invalid starter workflow requested: no source registered for %q: %w", bankAbbr, ErrUnregistered)
	}
	return wf, nil
}

// HasStarterWorkflow reports whether bankAbbr has a registered starter
// workflow.
func HasStarterWorkflow(bankAbbr string) bool {
	_, ok := starterWorkflows[bankAbbr]
	return ok
}

// StarterSources lists every registered bank abbreviation, optionally
// filtered to those whose starter workflow_type equals workflowType.
func StarterSources(workflowType string) []string {
	var out []string
	for source, wf := range starterWorkflows {
		if workflowType == "" || wf == workflowType {
			out = append(out, source)
		}
	}
	return out
}

// Constructor builds the concrete Workflow for one "{source}-{workflow_type}"
// registry key, given the shared Deps every workflow kind takes.
type Constructor func(deps workflows.Deps) workflows.Workflow

// workflowClasses maps "{source}-{workflow_type}" to the constructor for
// that concrete workflow, the Go equivalent of the original's
// WorkflowClassRegistry._REGISTRY mapping string keys to workflow classes.
// Populated by RegisterWorkflow, normally called once per source package's
// init().
var workflowClasses = map[string]Constructor{}

// RegisterWorkflow adds source-workflowType to the class registry. Source
// packages under internal/workflows/banks call this from an init() function
// so that importing the package for its side effect is enough to make its
// workflows available through Build.
func RegisterWorkflow(source, workflowType string, ctor Constructor) {
	workflowClasses[key(source, workflowType)] = ctor
}

// Build instantiates the concrete Workflow registered for source and
// workflowType, or an error if none has been registered (§4.2).
func Build(source, workflowType string, deps workflows.Deps) (workflows.Workflow, error) {
	ctor, ok := workflowClasses[key(source, workflowType)]
	if !ok {
		return nil, fmt.Errorf("invalid input workflow encountered: %s-%s is not registered: %w", source, workflowType, ErrUnregistered)
	}
	return ctor(deps), nil
}

func key(source, workflowType string) string {
	return source + "-" + workflowType
}
