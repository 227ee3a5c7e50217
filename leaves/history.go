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

// HistoryAnalysis writes every commit record under <output>/commits/ as it is
// produced, so a run interrupted half-way keeps everything processed so far.
// Re-processing a commit replaces its prior record; a stale one never survives
// next to a freshly aggregated summary.
type HistoryAnalysis struct {
	// OutputDir is the root of the output layout.
	OutputDir string

	store       *storage.Store
	saved       int
	overwritten int
	failures    []report.FailedCommit
	l           core.Logger
}

// HistoryResult is returned by HistoryAnalysis.Finalize().
type HistoryResult struct {
	// OutputDir is where the records were written.
	OutputDir string
	// SavedCommits is the number of records written by this run.
	SavedCommits int
	// OverwrittenCommits is the number of records which replaced one from a
	// previous run.
	OverwrittenCommits int
	// FailedCommits names the commits which ended with a commit-local failure.
	FailedCommits []report.FailedCommit
}

const (
	// ConfigHistoryOutputDir is the name of the output directory option.
	ConfigHistoryOutputDir = "History.OutputDir"
	// FactStore propagates a shared *storage.Store to the leaves.
	FactStore = "Output.Store"
)

func (history *HistoryAnalysis) Name() string {
	return "History"
}

func (history *HistoryAnalysis) Provides() []string {
	return []string{}
}

func (history *HistoryAnalysis) Requires() []string {
	return []string{plumbing.DependencyCommitRecord}
}

// ToleratesFailures keeps failed commits in the history: their records carry the
// failure tag instead of being dropped.
func (history *HistoryAnalysis) ToleratesFailures() bool {
	return true
}

func (history *HistoryAnalysis) ListConfigurationOptions() []core.ConfigurationOption {
	options := [...]core.ConfigurationOption{{
		Name:        ConfigHistoryOutputDir,
		Description: "Directory to write the commit records and the summary to.",
		Flag:        "output-dir",
		Type:        core.PathConfigurationOption,
		Default:     "output"},
	}
	return options[:]
}

func (history *HistoryAnalysis) Flag() string {
	return "history"
}

func (history *HistoryAnalysis) Description() string {
	return "Persists one JSON record per analyzed commit, including the failed ones."
}

func (history *HistoryAnalysis) Configure(facts map[string]interface{}) error {
	if l, exists := facts[core.ConfigLogger].(core.Logger); exists {
		history.l = l
	}
	if val, exists := facts[ConfigHistoryOutputDir].(string); exists {
		history.OutputDir = val
	}
	if val, exists := facts[FactStore].(*storage.Store); exists {
		history.store = val
	}
	return nil
}

func (history *HistoryAnalysis) Initialize(repository *git.Repository) error {
	if history.l == nil {
		history.l = core.NewLogger()
	}
	if history.OutputDir == "" {
		history.OutputDir = "output"
	}
	if history.store == nil {
		store, err := storage.NewStore(history.OutputDir)
		if err != nil {
			return err
		}
		history.store = store
	}
	history.saved = 0
	history.overwritten = 0
	history.failures = nil
	return nil
}

func (history *HistoryAnalysis) Consume(deps map[string]interface{}) (map[string]interface{}, error) {
	record := deps[plumbing.DependencyCommitRecord].(*report.CommitRecord)
	if record.Failed() {
		history.failures = append(history.failures, report.FailedCommit{
			Hash:   record.Commit.Hash,
			Reason: record.FailureReason,
		})
	}
	if history.store.HasCommit(record.Commit.Hash) {
		history.overwritten++
	}
	if err := history.store.SaveCommit(record); err != nil {
		return nil, errors.Wrapf(err, "cannot save commit %s", record.Commit.Hash)
	}
	history.saved++
	return nil, nil
}

func (history *HistoryAnalysis) Finalize() interface{} {
	return HistoryResult{
		OutputDir:          history.OutputDir,
		SavedCommits:       history.saved,
		OverwrittenCommits: history.overwritten,
		FailedCommits:      history.failures,
	}
}

// Serialize prints the history digest in a human readable form.
func (history *HistoryAnalysis) Serialize(result interface{}, writer io.Writer) error {
	historyResult := result.(HistoryResult)
	fmt.Fprintf(writer, "  output: %s\n", historyResult.OutputDir)
	fmt.Fprintf(writer, "  saved: %d\n", historyResult.SavedCommits)
	if historyResult.OverwrittenCommits > 0 {
		fmt.Fprintf(writer, "  overwritten: %d\n", historyResult.OverwrittenCommits)
	}
	fmt.Fprintf(writer, "  failed: %d\n", len(historyResult.FailedCommits))
	for _, failed := range historyResult.FailedCommits {
		fmt.Fprintf(writer, "    - %s: %s\n", failed.Hash, failed.Reason)
	}
	return nil
}

func init() {
	core.Registry.Register(&HistoryAnalysis{})
}
