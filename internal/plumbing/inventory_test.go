package plumbing

import (
	"os"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lbyrigitte/pmd-analysis/internal/report"
)

// unreadableFS denies reading one path, the way a checkout with a broken
// permission bit would.
type unreadableFS struct {
	billy.Filesystem
	path string
}

func (fs unreadableFS) Open(filename string) (billy.File, error) {
	if filename == fs.path {
		return nil, os.ErrPermission
	}
	return fs.Filesystem.Open(filename)
}

func fixtureSnapshot(t *testing.T, files map[string]string) *Snapshot {
	t.Helper()
	fs := memfs.New()
	for path, content := range files {
		require.NoError(t, util.WriteFile(fs, path, []byte(content), 0666))
	}
	return &Snapshot{Hash: "deadbeef", Root: "/scratch/deadbeef", FS: fs}
}

func fixtureInventory(t *testing.T) *SourceInventory {
	t.Helper()
	inventory := &SourceInventory{}
	require.NoError(t, inventory.Initialize(nil))
	t.Cleanup(inventory.Dispose)
	return inventory
}

func consumeInventory(t *testing.T, fs *Snapshot) *report.Inventory {
	t.Helper()
	inventory := fixtureInventory(t)
	result, err := inventory.Consume(map[string]interface{}{DependencySnapshot: fs})
	require.NoError(t, err)
	return result[DependencyInventory].(*report.Inventory)
}

func TestInventoryCollectsJavaFiles(t *testing.T) {
	snapshot := fixtureSnapshot(t, map[string]string{
		"src/main/java/Foo.java": "class Foo {\n}\n",
		"src/test/java/Bar.java": "class Bar {}\n",
		"README.md":              "docs\n",
		"pom.xml":                "<project/>\n",
	})
	inventory := consumeInventory(t, snapshot)
	require.Len(t, inventory.Files, 2)
	// sorted by path
	assert.Equal(t, "src/main/java/Foo.java", inventory.Files[0].Path)
	assert.Equal(t, 2, inventory.Files[0].Lines)
	assert.Equal(t, "src/test/java/Bar.java", inventory.Files[1].Path)
	assert.Equal(t, 1, inventory.Files[1].Lines)
	assert.Equal(t, 3, inventory.TotalLines)
}

func TestInventorySkipsBuildDirectories(t *testing.T) {
	snapshot := fixtureSnapshot(t, map[string]string{
		"src/Main.java":           "class Main {}\n",
		".git/objects/Fake.java":  "not really\n",
		"target/classes/Gen.java": "generated\n",
		"build/out/Gen.java":      "generated\n",
		"bin/Tool.java":           "generated\n",
		"nested/target/Deep.java": "generated\n",
	})
	inventory := consumeInventory(t, snapshot)
	require.Len(t, inventory.Files, 1)
	assert.Equal(t, "src/Main.java", inventory.Files[0].Path)
}

func TestInventorySkipsUnreadableFiles(t *testing.T) {
	snapshot := fixtureSnapshot(t, map[string]string{
		"Good.java": "class Good {}\n",
		"Bad.java":  "class Bad {}\n",
	})
	snapshot.FS = unreadableFS{Filesystem: snapshot.FS, path: "Bad.java"}
	inventory := consumeInventory(t, snapshot)
	require.Len(t, inventory.Files, 1)
	assert.Equal(t, "Good.java", inventory.Files[0].Path)
	assert.Equal(t, 1, inventory.TotalLines)
}

func TestInventoryEmptyCommit(t *testing.T) {
	snapshot := fixtureSnapshot(t, map[string]string{"README.md": "docs\n"})
	inventory := consumeInventory(t, snapshot)
	assert.NotNil(t, inventory.Files)
	assert.Empty(t, inventory.Files)
	assert.Zero(t, inventory.TotalLines)
	assert.Zero(t, inventory.Count())
}

func TestInventoryMeta(t *testing.T) {
	inventory := &SourceInventory{}
	assert.Equal(t, "SourceInventory", inventory.Name())
	assert.Equal(t, []string{DependencyInventory}, inventory.Provides())
	assert.Equal(t, []string{DependencySnapshot}, inventory.Requires())
	assert.Empty(t, inventory.ListConfigurationOptions())
}

func TestCountLines(t *testing.T) {
	cases := []struct {
		content string
		lines   int
	}{
		{"", 0},
		{"\n", 1},
		{"one line without newline", 1},
		{"a\nb\nc\n", 3},
		{"a\nb", 2},
	}
	for _, c := range cases {
		assert.Equal(t, c.lines, countLines([]byte(c.content)), "%q", c.content)
	}
}
