package plumbing

import (
	"context"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
	"github.com/Lbyrigitte/pmd-analysis/internal/pmd"
	"github.com/Lbyrigitte/pmd-analysis/internal/report"
)

// AnalyzerRun executes the static analyzer over a materialized snapshot and
// provides the raw XML report bytes. Commits without any inventoried file
// short-circuit to an empty report; no process is spawned for them.
type AnalyzerRun struct {
	// Binary is the path of the analyzer launcher.
	Binary string
	// Ruleset is the path of the ruleset file passed to every run.
	Ruleset string
	// TimeoutSeconds bounds one analyzer invocation.
	TimeoutSeconds int

	analyzer pmd.Analyzer
	l        core.Logger
}

const (
	// ConfigAnalyzerRuleset is the name of the ruleset path option.
	ConfigAnalyzerRuleset = "Analyzer.Ruleset"
	// ConfigAnalyzerTimeout is the name of the per-commit timeout option.
	ConfigAnalyzerTimeout = "Analyzer.TimeoutSeconds"
	// FactAnalyzerBinary propagates the resolved analyzer launcher path.
	FactAnalyzerBinary = "Analyzer.Binary"
	// FactAnalyzer overrides the analyzer implementation, mainly for tests.
	FactAnalyzer = "Analyzer.Instance"
	// DependencyAnalyzerReport is the name of the dependency provided by AnalyzerRun.
	DependencyAnalyzerReport = "pmd_report"

	// DefaultAnalyzerTimeoutSeconds bounds one analyzer run unless overridden.
	DefaultAnalyzerTimeoutSeconds = 300
)

func (a *AnalyzerRun) Name() string {
	return "AnalyzerRun"
}

func (a *AnalyzerRun) Provides() []string {
	return []string{DependencyAnalyzerReport}
}

func (a *AnalyzerRun) Requires() []string {
	return []string{DependencySnapshot, DependencyInventory}
}

func (a *AnalyzerRun) ListConfigurationOptions() []core.ConfigurationOption {
	options := [...]core.ConfigurationOption{{
		Name:        ConfigAnalyzerRuleset,
		Description: "Path of the PMD ruleset XML applied to every commit.",
		Flag:        "ruleset",
		Type:        core.PathConfigurationOption,
		Default:     ""}, {
		Name:        ConfigAnalyzerTimeout,
		Description: "Maximum number of seconds one PMD invocation may take.",
		Flag:        "analysis-timeout",
		Type:        core.IntConfigurationOption,
		Default:     DefaultAnalyzerTimeoutSeconds},
	}
	return options[:]
}

func (a *AnalyzerRun) Configure(facts map[string]interface{}) error {
	if l, exists := facts[core.ConfigLogger].(core.Logger); exists {
		a.l = l
	}
	if val, exists := facts[ConfigAnalyzerRuleset].(string); exists {
		a.Ruleset = val
	}
	if val, exists := facts[ConfigAnalyzerTimeout].(int); exists {
		a.TimeoutSeconds = val
	}
	if val, exists := facts[FactAnalyzerBinary].(string); exists {
		a.Binary = val
	}
	if val, exists := facts[FactAnalyzer].(pmd.Analyzer); exists {
		a.analyzer = val
	}
	return nil
}

func (a *AnalyzerRun) Initialize(repository *git.Repository) error {
	if a.l == nil {
		a.l = core.NewLogger()
	}
	if a.TimeoutSeconds <= 0 {
		a.TimeoutSeconds = DefaultAnalyzerTimeoutSeconds
	}
	if a.analyzer == nil {
		a.analyzer = pmd.NewRunner(a.Binary, time.Duration(a.TimeoutSeconds)*time.Second, a.l)
	}
	return nil
}

func (a *AnalyzerRun) Consume(deps map[string]interface{}) (map[string]interface{}, error) {
	snapshot := deps[DependencySnapshot].(*Snapshot)
	inventory := deps[DependencyInventory].(*report.Inventory)
	if inventory.Count() == 0 {
		return map[string]interface{}{DependencyAnalyzerReport: []byte{}}, nil
	}
	ctx, _ := deps[core.DependencyRunContext].(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := a.analyzer.Analyze(ctx, snapshot.Root, a.Ruleset)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{DependencyAnalyzerReport: raw}, nil
}

func init() {
	core.Registry.Register(&AnalyzerRun{})
}
