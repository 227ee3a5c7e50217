package plumbing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
	"github.com/Lbyrigitte/pmd-analysis/internal/pmd"
)

func TestViolationParseMeta(t *testing.T) {
	parse := &ViolationParse{}
	assert.Equal(t, "ViolationParse", parse.Name())
	assert.Equal(t, []string{DependencyViolations}, parse.Provides())
	assert.Equal(t, []string{DependencySnapshot, DependencyAnalyzerReport}, parse.Requires())
}

func TestViolationParseConsume(t *testing.T) {
	parse := &ViolationParse{}
	require.NoError(t, parse.Initialize(nil))
	raw := `<pmd xmlns="http://pmd.sourceforge.net/report/2.0.0">` +
		`<file name="/scratch/deadbeef/A.java">` +
		`<violation beginline="1" endline="1" begincolumn="1" endcolumn="2" ` +
		`rule="GodClass" ruleset="Design" priority="2">Too big.</violation></file></pmd>`
	result, err := parse.Consume(map[string]interface{}{
		DependencySnapshot:       &Snapshot{Hash: "deadbeef", Root: "/scratch/deadbeef"},
		DependencyAnalyzerReport: []byte(raw),
	})
	require.NoError(t, err)
	parsed := result[DependencyViolations].(*pmd.Report)
	require.Len(t, parsed.Violations, 1)
	assert.Equal(t, "GodClass", parsed.Violations[0].Rule)
	assert.Equal(t, "A.java", parsed.Violations[0].File)
}

func TestViolationParseEmptyReport(t *testing.T) {
	parse := &ViolationParse{}
	require.NoError(t, parse.Initialize(nil))
	result, err := parse.Consume(map[string]interface{}{
		DependencySnapshot:       &Snapshot{Hash: "deadbeef", Root: "/scratch/deadbeef"},
		DependencyAnalyzerReport: []byte{},
	})
	require.NoError(t, err)
	parsed := result[DependencyViolations].(*pmd.Report)
	assert.Empty(t, parsed.Violations)
}

func TestViolationParseMalformedIsCommitLocal(t *testing.T) {
	parse := &ViolationParse{}
	require.NoError(t, parse.Initialize(nil))
	_, err := parse.Consume(map[string]interface{}{
		DependencySnapshot:       &Snapshot{Hash: "deadbeef", Root: "/scratch/deadbeef"},
		DependencyAnalyzerReport: []byte("<html>502 Bad Gateway</html>"),
	})
	require.Error(t, err)
	failure := core.AsFailure(err)
	require.NotNil(t, failure)
	assert.Equal(t, core.FailureMalformedOutput, failure.Reason)
}
