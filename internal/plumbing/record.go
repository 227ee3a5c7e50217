package plumbing

import (
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
	"github.com/Lbyrigitte/pmd-analysis/internal/pmd"
	"github.com/Lbyrigitte/pmd-analysis/internal/report"
)

// RecordBuilder turns the per-commit dependencies into a single result record.
// It tolerates upstream failures: a commit whose snapshot, inventory or analysis
// broke still yields a record, tagged with the failure reason.
type RecordBuilder struct {
	l core.Logger
}

// DependencyCommitRecord is the name of the dependency provided by RecordBuilder.
const DependencyCommitRecord = "commit_record"

func (rb *RecordBuilder) Name() string {
	return "RecordBuilder"
}

func (rb *RecordBuilder) Provides() []string {
	return []string{DependencyCommitRecord}
}

func (rb *RecordBuilder) Requires() []string {
	return []string{DependencyInventory, DependencyViolations}
}

// ToleratesFailures makes the pipeline call Consume even when an upstream
// dependency is missing because of a commit-local failure.
func (rb *RecordBuilder) ToleratesFailures() bool {
	return true
}

func (rb *RecordBuilder) ListConfigurationOptions() []core.ConfigurationOption {
	return []core.ConfigurationOption{}
}

func (rb *RecordBuilder) Configure(facts map[string]interface{}) error {
	if l, exists := facts[core.ConfigLogger].(core.Logger); exists {
		rb.l = l
	}
	return nil
}

func (rb *RecordBuilder) Initialize(repository *git.Repository) error {
	if rb.l == nil {
		rb.l = core.NewLogger()
	}
	return nil
}

func (rb *RecordBuilder) Consume(deps map[string]interface{}) (map[string]interface{}, error) {
	commit := deps[core.DependencyCommit].(*object.Commit)
	ordinal := deps[core.DependencyIndex].(int)
	descriptor := report.Describe(commit, ordinal)
	failure, _ := deps[core.DependencyFailure].(*core.Failure)
	inventory, _ := deps[DependencyInventory].(*report.Inventory)
	violations, _ := deps[DependencyViolations].(*pmd.Report)
	record := report.Build(descriptor, inventory, violations, failure)
	return map[string]interface{}{DependencyCommitRecord: record}, nil
}

func init() {
	core.Registry.Register(&RecordBuilder{})
}
