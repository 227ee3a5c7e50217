package leaves

import (
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/pkg/errors"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
	"github.com/Lbyrigitte/pmd-analysis/internal/plumbing"
	"github.com/Lbyrigitte/pmd-analysis/internal/report"
	"github.com/Lbyrigitte/pmd-analysis/internal/storage"
)

// SummaryAnalysis folds every commit record into the run-level summary and
// writes it as <output>/summary.json once the traversal ends.
type SummaryAnalysis struct {
	// Location labels the analyzed repository in the summary document.
	Location string

	state *report.SummaryState
	store *storage.Store
	l     core.Logger
}

// FactSummaryLocation propagates the repository path or URL being analyzed.
const FactSummaryLocation = "Summary.Location"

func (summary *SummaryAnalysis) Name() string {
	return "Summary"
}

func (summary *SummaryAnalysis) Provides() []string {
	return []string{}
}

func (summary *SummaryAnalysis) Requires() []string {
	return []string{plumbing.DependencyCommitRecord}
}

// ToleratesFailures lets failed commits reach the fold, where they only feed the
// failure roll, never the averages.
func (summary *SummaryAnalysis) ToleratesFailures() bool {
	return true
}

func (summary *SummaryAnalysis) ListConfigurationOptions() []core.ConfigurationOption {
	return []core.ConfigurationOption{}
}

func (summary *SummaryAnalysis) Flag() string {
	return "summary"
}

func (summary *SummaryAnalysis) Description() string {
	return "Aggregates the whole run into repository-level statistics, warning counts and trends."
}

func (summary *SummaryAnalysis) Configure(facts map[string]interface{}) error {
	if l, exists := facts[core.ConfigLogger].(core.Logger); exists {
		summary.l = l
	}
	if val, exists := facts[FactSummaryLocation].(string); exists {
		summary.Location = val
	}
	if val, exists := facts[FactStore].(*storage.Store); exists {
		summary.store = val
	}
	return nil
}

func (summary *SummaryAnalysis) Initialize(repository *git.Repository) error {
	if summary.l == nil {
		summary.l = core.NewLogger()
	}
	summary.state = report.NewSummaryState(summary.Location)
	return nil
}

func (summary *SummaryAnalysis) Consume(deps map[string]interface{}) (map[string]interface{}, error) {
	record := deps[plumbing.DependencyCommitRecord].(*report.CommitRecord)
	summary.state.Fold(record)
	return nil, nil
}

func (summary *SummaryAnalysis) Finalize() interface{} {
	result := summary.state.Finalize()
	if summary.store != nil {
		if err := summary.store.SaveSummary(result); err != nil {
			summary.l.Errorf("cannot save the summary: %v", err)
		}
	}
	return result
}

// Serialize prints the summary digest in a human readable form.
func (summary *SummaryAnalysis) Serialize(result interface{}, writer io.Writer) error {
	record, ok := result.(*report.SummaryRecord)
	if !ok {
		return errors.New("unexpected summary result type")
	}
	repo := record.StatOfRepository
	fmt.Fprintf(writer, "  location: %s\n", record.Location)
	fmt.Fprintf(writer, "  commits: %d\n", repo.NumberOfCommits)
	fmt.Fprintf(writer, "  failed commits: %d\n", repo.NumberOfFailedCommits)
	fmt.Fprintf(writer, "  avg java files: %.2f\n", repo.AvgOfNumJavaFiles)
	fmt.Fprintf(writer, "  avg warnings: %.2f\n", repo.AvgOfNumWarnings)
	fmt.Fprintf(writer, "  total violations: %d\n", repo.TotalViolations)
	fmt.Fprintf(writer, "  density trend: %s\n", record.TemporalTrends.DensityDirection)
	if len(record.RuleStatistics) > 0 {
		fmt.Fprintf(writer, "  top rules:\n")
		top := record.RuleStatistics
		if len(top) > 10 {
			top = top[:10]
		}
		for _, rule := range top {
			fmt.Fprintf(writer, "    - %s: %d in %d commits\n",
				rule.Rule, rule.Total, rule.CommitsAffected)
		}
	}
	return nil
}

func init() {
	core.Registry.Register(&SummaryAnalysis{})
}
