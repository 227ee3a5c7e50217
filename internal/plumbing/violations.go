package plumbing

import (
	"github.com/go-git/go-git/v5"
	"github.com/pkg/errors"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
	"github.com/Lbyrigitte/pmd-analysis/internal/pmd"
)

// ViolationParse normalizes raw analyzer XML into the violation model. Output
// which cannot be parsed at all is a commit-local failure; a truncated report
// keeps its valid prefix and logs a warning.
type ViolationParse struct {
	l core.Logger
}

// DependencyViolations is the name of the dependency provided by ViolationParse.
const DependencyViolations = "violations"

func (v *ViolationParse) Name() string {
	return "ViolationParse"
}

func (v *ViolationParse) Provides() []string {
	return []string{DependencyViolations}
}

func (v *ViolationParse) Requires() []string {
	return []string{DependencySnapshot, DependencyAnalyzerReport}
}

func (v *ViolationParse) ListConfigurationOptions() []core.ConfigurationOption {
	return []core.ConfigurationOption{}
}

func (v *ViolationParse) Configure(facts map[string]interface{}) error {
	if l, exists := facts[core.ConfigLogger].(core.Logger); exists {
		v.l = l
	}
	return nil
}

func (v *ViolationParse) Initialize(repository *git.Repository) error {
	if v.l == nil {
		v.l = core.NewLogger()
	}
	return nil
}

func (v *ViolationParse) Consume(deps map[string]interface{}) (map[string]interface{}, error) {
	snapshot := deps[DependencySnapshot].(*Snapshot)
	raw := deps[DependencyAnalyzerReport].([]byte)
	parsed, err := pmd.Parse(raw, snapshot.Root)
	if err != nil {
		return nil, core.NewFailure(core.FailureMalformedOutput,
			errors.Wrapf(err, "cannot parse the report of commit %s", snapshot.Hash))
	}
	if parsed.TruncatedAfter >= 0 {
		v.l.Warnf("commit %s: report truncated, kept the first %d violations",
			snapshot.Hash, parsed.TruncatedAfter)
	}
	if parsed.ProcessingErrors > 0 {
		v.l.Warnf("commit %s: PMD reported %d file processing errors",
			snapshot.Hash, parsed.ProcessingErrors)
	}
	return map[string]interface{}{DependencyViolations: parsed}, nil
}

func init() {
	core.Registry.Register(&ViolationParse{})
}
