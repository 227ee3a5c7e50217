package plumbing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
	"github.com/Lbyrigitte/pmd-analysis/internal/report"
	"github.com/Lbyrigitte/pmd-analysis/internal/test"
)

// failingCreateFS denies creating one path, forcing a mid-checkout error.
type failingCreateFS struct {
	billy.Filesystem
	fail string
}

func (fs failingCreateFS) Create(filename string) (billy.File, error) {
	if filename == fs.fail {
		return nil, os.ErrPermission
	}
	return fs.Filesystem.Create(filename)
}

func fixtureMaterializer(t *testing.T) (*Materializer, map[string]billy.Filesystem) {
	t.Helper()
	materializer := &Materializer{ScratchBase: t.TempDir()}
	created := map[string]billy.Filesystem{}
	materializer.newFS = func(root string) billy.Filesystem {
		fs := memfs.New()
		created[root] = fs
		return fs
	}
	return materializer, created
}

func TestMaterializerMeta(t *testing.T) {
	materializer := &Materializer{}
	assert.Equal(t, "Materializer", materializer.Name())
	assert.Equal(t, []string{DependencySnapshot}, materializer.Provides())
	assert.Empty(t, materializer.Requires())
	options := materializer.ListConfigurationOptions()
	require.Len(t, options, 1)
	assert.Equal(t, ConfigSnapshotScratchBase, options[0].Name)
	require.NoError(t, materializer.Configure(map[string]interface{}{
		ConfigSnapshotScratchBase: "/tmp/scratch",
	}))
	assert.Equal(t, "/tmp/scratch", materializer.ScratchBase)
}

func TestMaterializerConsume(t *testing.T) {
	repo, hashes := test.NewRepository(test.CommitFixture{
		Message: "initial",
		When:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Files: map[string]string{
			"src/main/java/com/example/Foo.java": "class Foo {}\n",
			"README.md":                          "hello\n",
		},
	})
	materializer, created := fixtureMaterializer(t)
	require.NoError(t, materializer.Initialize(repo))
	commit := test.Commit(repo, hashes[0])

	result, err := materializer.Consume(map[string]interface{}{
		core.DependencyCommit: commit,
		core.DependencyIndex:  0,
	})
	require.NoError(t, err)
	snapshot := result[DependencySnapshot].(*Snapshot)
	assert.Equal(t, hashes[0].String(), snapshot.Hash)
	require.Contains(t, created, snapshot.Root)

	content, err := util.ReadFile(snapshot.FS, "src/main/java/com/example/Foo.java")
	require.NoError(t, err)
	assert.Equal(t, "class Foo {}\n", string(content))
	content, err = util.ReadFile(snapshot.FS, "README.md")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))
}

func TestMaterializerSeparateRootsPerCommit(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo, hashes := test.NewRepository(
		test.CommitFixture{
			Message: "first",
			When:    base,
			Files:   map[string]string{"A.java": "class A {}\n"},
		},
		test.CommitFixture{
			Message: "second",
			When:    base.Add(time.Hour),
			Files:   map[string]string{"B.java": "class B {}\n"},
		},
	)
	materializer, _ := fixtureMaterializer(t)
	require.NoError(t, materializer.Initialize(repo))

	roots := map[string]bool{}
	for _, hash := range hashes {
		result, err := materializer.Consume(map[string]interface{}{
			core.DependencyCommit: test.Commit(repo, hash),
			core.DependencyIndex:  len(roots),
		})
		require.NoError(t, err)
		snapshot := result[DependencySnapshot].(*Snapshot)
		roots[snapshot.Root] = true
		materializer.Release()
	}
	assert.Len(t, roots, 2)
}

func TestMaterializerReleaseIsIdempotent(t *testing.T) {
	materializer, _ := fixtureMaterializer(t)
	require.NoError(t, materializer.Initialize(nil))
	materializer.Release()
	materializer.Release()
	materializer.Dispose()
}

func TestMaterializerReleaseCleansPartialCheckout(t *testing.T) {
	repo, hashes := test.NewRepository(test.CommitFixture{
		Message: "initial",
		When:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Files: map[string]string{
			"A.java": "class A {}\n",
			"B.java": "class B {}\n",
		},
	})
	base := t.TempDir()
	materializer := &Materializer{ScratchBase: base}
	require.NoError(t, materializer.Initialize(repo))
	materializer.newFS = func(root string) billy.Filesystem {
		return failingCreateFS{Filesystem: osfs.New(root), fail: "B.java"}
	}

	_, err := materializer.Consume(map[string]interface{}{
		core.DependencyCommit: test.Commit(repo, hashes[0]),
		core.DependencyIndex:  0,
	})
	require.Error(t, err)
	failure := core.AsFailure(err)
	require.NotNil(t, failure)
	assert.Equal(t, core.FailureCheckout, failure.Reason)

	// the half-written directory belongs to Release, not to luck
	root := filepath.Join(base, hashes[0].String())
	_, statErr := os.Stat(root)
	require.NoError(t, statErr)
	materializer.Release()
	_, statErr = os.Stat(root)
	assert.True(t, os.IsNotExist(statErr))
}

// recordSink collects the commit records which reach the end of the plumbing.
type recordSink struct {
	records []*report.CommitRecord
}

func (sink *recordSink) Name() string            { return "RecordSink" }
func (sink *recordSink) Provides() []string      { return []string{} }
func (sink *recordSink) Requires() []string      { return []string{DependencyCommitRecord} }
func (sink *recordSink) ToleratesFailures() bool { return true }
func (sink *recordSink) ListConfigurationOptions() []core.ConfigurationOption {
	return []core.ConfigurationOption{}
}
func (sink *recordSink) Configure(facts map[string]interface{}) error { return nil }
func (sink *recordSink) Initialize(repository *git.Repository) error  { return nil }
func (sink *recordSink) Consume(deps map[string]interface{}) (map[string]interface{}, error) {
	sink.records = append(sink.records, deps[DependencyCommitRecord].(*report.CommitRecord))
	return nil, nil
}

func TestPipelineCheckoutFailureRecord(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo, _ := test.NewRepository(
		test.CommitFixture{
			Message: "good",
			When:    base,
			Files:   map[string]string{"A.java": "class A {}\n"},
		},
		test.CommitFixture{
			Message: "bad",
			When:    base.Add(time.Hour),
			Files:   map[string]string{"B.java": "class B {}\n"},
		},
	)
	materializer := &Materializer{ScratchBase: t.TempDir()}
	materializer.newFS = func(root string) billy.Filesystem {
		return failingCreateFS{Filesystem: memfs.New(), fail: "B.java"}
	}
	sink := &recordSink{}
	pipeline := core.NewPipeline(repo)
	pipeline.AddItem(materializer)
	pipeline.AddItem(&SourceInventory{})
	pipeline.AddItem(&AnalyzerRun{})
	pipeline.AddItem(&ViolationParse{})
	pipeline.AddItem(&RecordBuilder{})
	pipeline.AddItem(sink)
	require.NoError(t, pipeline.Initialize(map[string]interface{}{
		FactAnalyzer: &test.FakeAnalyzer{Output: []byte{}},
	}))
	commits, err := pipeline.Commits(false)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	results, err := pipeline.Run(context.Background(), commits)
	require.NoError(t, err)
	assert.Equal(t, 1, results[nil].(*core.CommonAnalysisResult).FailedCommitsNumber)

	// the broken commit still yields a record, tagged with the checkout reason
	require.Len(t, sink.records, 2)
	assert.Equal(t, report.StatusAnalyzed, sink.records[0].Status)
	assert.Equal(t, report.StatusFailed, sink.records[1].Status)
	assert.Equal(t, string(core.FailureCheckout), sink.records[1].FailureReason)
}
