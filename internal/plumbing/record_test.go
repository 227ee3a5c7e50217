package plumbing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
	"github.com/Lbyrigitte/pmd-analysis/internal/pmd"
	"github.com/Lbyrigitte/pmd-analysis/internal/report"
	"github.com/Lbyrigitte/pmd-analysis/internal/test"
)

func fixtureCommitDeps(t *testing.T) map[string]interface{} {
	t.Helper()
	repo, hashes := test.NewRepository(test.CommitFixture{
		Message: "add foo",
		When:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Files:   map[string]string{"Foo.java": "class Foo {}\n"},
	})
	return map[string]interface{}{
		core.DependencyCommit: test.Commit(repo, hashes[0]),
		core.DependencyIndex:  0,
	}
}

func TestRecordBuilderMeta(t *testing.T) {
	builder := &RecordBuilder{}
	assert.Equal(t, "RecordBuilder", builder.Name())
	assert.Equal(t, []string{DependencyCommitRecord}, builder.Provides())
	assert.Equal(t, []string{DependencyInventory, DependencyViolations}, builder.Requires())
	assert.True(t, builder.ToleratesFailures())
}

func TestRecordBuilderAnalyzedCommit(t *testing.T) {
	builder := &RecordBuilder{}
	require.NoError(t, builder.Initialize(nil))
	deps := fixtureCommitDeps(t)
	deps[DependencyInventory] = &report.Inventory{
		Files:      []report.FileStat{{Path: "Foo.java", Lines: 1}},
		TotalLines: 1,
	}
	deps[DependencyViolations] = &pmd.Report{
		Violations: []pmd.Violation{{
			Rule: "GodClass", Priority: 2, File: "Foo.java", Line: 1, Message: "m",
		}},
		TruncatedAfter: -1,
	}
	result, err := builder.Consume(deps)
	require.NoError(t, err)
	record := result[DependencyCommitRecord].(*report.CommitRecord)
	assert.Equal(t, report.StatusAnalyzed, record.Status)
	assert.Empty(t, record.FailureReason)
	assert.Equal(t, "add foo", record.Commit.Message)
	assert.Equal(t, 0, record.Commit.Ordinal)
	assert.Equal(t, 1, record.JavaFiles.Count())
	assert.Equal(t, 1, record.Analysis.ViolationCount)
	assert.Equal(t, 1.0, record.Statistics.ViolationsPerFile)
}

func TestRecordBuilderFailedCommit(t *testing.T) {
	builder := &RecordBuilder{}
	require.NoError(t, builder.Initialize(nil))
	deps := fixtureCommitDeps(t)
	deps[core.DependencyFailure] = core.NewFailuref(core.FailureTimeout, "too slow")
	result, err := builder.Consume(deps)
	require.NoError(t, err)
	record := result[DependencyCommitRecord].(*report.CommitRecord)
	assert.Equal(t, report.StatusFailed, record.Status)
	assert.Equal(t, "timeout", record.FailureReason)
	assert.Zero(t, record.Analysis.ViolationCount)
	assert.NotNil(t, record.Analysis.Violations)
	assert.NotNil(t, record.JavaFiles.Files)
}
