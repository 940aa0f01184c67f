package dispatcher

import (
	"github.com/ternarybob/quaero-pipeline/internal/registry"
	"github.com/ternarybob/quaero-pipeline/internal/workflows"
)

// PackageRegistry adapts internal/registry's package-level Build function to
// the Registry interface, since that package exposes free functions rather
// than a struct (its state is populated by each source package's init()).
type PackageRegistry struct{}

func (PackageRegistry) Build(source, workflowType string, deps workflows.Deps) (workflows.Workflow, error) {
	return registry.Build(source, workflowType, deps)
}
