package storage

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lbyrigitte/pmd-analysis/internal/report"
)

func fixtureStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "output"))
	require.NoError(t, err)
	return store
}

func fixtureRecord(hash string) *report.CommitRecord {
	return &report.CommitRecord{
		Commit: report.Descriptor{
			Hash:      hash,
			ShortHash: hash[:8],
			Date:      "2024-03-01T12:00:00Z",
		},
		Status: report.StatusAnalyzed,
		JavaFiles: report.Inventory{
			Files:      []report.FileStat{{Path: "Foo.java", Lines: 10}},
			TotalLines: 10,
		},
	}
}

func TestNewStoreLayout(t *testing.T) {
	store := fixtureStore(t)
	for _, dir := range []string{"commits", "logs"} {
		info, err := os.Stat(filepath.Join(store.Base, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestNewStoreReusesExistingLayout(t *testing.T) {
	store := fixtureStore(t)
	again, err := NewStore(store.Base)
	require.NoError(t, err)
	assert.Equal(t, store.Base, again.Base)
}

func TestSaveAndLoadCommit(t *testing.T) {
	store := fixtureStore(t)
	record := fixtureRecord("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	require.NoError(t, store.SaveCommit(record))
	assert.True(t, store.HasCommit(record.Commit.Hash))

	loaded, err := store.LoadCommit(record.Commit.Hash)
	require.NoError(t, err)
	assert.Equal(t, record.Commit.Hash, loaded.Commit.Hash)
	assert.Equal(t, record.JavaFiles, loaded.JavaFiles)
}

func TestSaveCommitIsAtomic(t *testing.T) {
	store := fixtureStore(t)
	record := fixtureRecord("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	require.NoError(t, store.SaveCommit(record))
	// no staging leftovers next to the record
	entries, err := ioutil.ReadDir(filepath.Join(store.Base, "commits"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, record.Commit.Hash+".json", entries[0].Name())
}

func TestListCommits(t *testing.T) {
	store := fixtureStore(t)
	hashes := []string{
		"cccccccccccccccccccccccccccccccccccccccc",
		"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}
	for _, hash := range hashes {
		require.NoError(t, store.SaveCommit(fixtureRecord(hash)))
	}
	listed, err := store.ListCommits()
	require.NoError(t, err)
	assert.Equal(t, []string{hashes[1], hashes[0]}, listed)
}

func TestSaveAndLoadSummary(t *testing.T) {
	store := fixtureStore(t)
	summary := &report.SummaryRecord{
		Location:       "/repos/example",
		StatOfWarnings: map[string]int{"GodClass": 3},
	}
	require.NoError(t, store.SaveSummary(summary))
	loaded, err := store.LoadSummary()
	require.NoError(t, err)
	assert.Equal(t, summary.Location, loaded.Location)
	assert.Equal(t, summary.StatOfWarnings, loaded.StatOfWarnings)
}

func TestOpenRunLog(t *testing.T) {
	store := fixtureStore(t)
	file, err := store.OpenRunLog()
	require.NoError(t, err)
	_, err = file.WriteString("started\n")
	require.NoError(t, err)
	require.NoError(t, file.Close())
	entries, err := ioutil.ReadDir(filepath.Join(store.Base, "logs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "run-")
}

func TestLoadMissingCommit(t *testing.T) {
	store := fixtureStore(t)
	_, err := store.LoadCommit("0000000000000000000000000000000000000000")
	assert.Error(t, err)
}
