package plumbing

import (
	"bytes"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Jeffail/tunny"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/pkg/errors"
	"github.com/src-d/enry/v2"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
	"github.com/Lbyrigitte/pmd-analysis/internal/report"
)

// SourceInventory walks a snapshot and collects the Java source files with their
// line counts. Directories which never hold sources of interest are pruned.
type SourceInventory struct {
	pool *tunny.Pool
	l    core.Logger
}

// DependencyInventory is the name of the dependency provided by SourceInventory.
const DependencyInventory = "inventory"

// skippedDirs are never descended into while walking a snapshot.
var skippedDirs = map[string]bool{
	".git":   true,
	"target": true,
	"build":  true,
	"bin":    true,
}

func (inv *SourceInventory) Name() string {
	return "SourceInventory"
}

func (inv *SourceInventory) Provides() []string {
	return []string{DependencyInventory}
}

func (inv *SourceInventory) Requires() []string {
	return []string{DependencySnapshot}
}

func (inv *SourceInventory) ListConfigurationOptions() []core.ConfigurationOption {
	return []core.ConfigurationOption{}
}

func (inv *SourceInventory) Configure(facts map[string]interface{}) error {
	if l, exists := facts[core.ConfigLogger].(core.Logger); exists {
		inv.l = l
	}
	return nil
}

func (inv *SourceInventory) Initialize(repository *git.Repository) error {
	if inv.l == nil {
		inv.l = core.NewLogger()
	}
	inv.pool = tunny.NewFunc(runtime.NumCPU(), func(payload interface{}) interface{} {
		return countLines(payload.([]byte))
	})
	return nil
}

// Consume walks the snapshot filesystem and emits the sorted inventory. A commit
// without any Java file yields an empty inventory, not an error, and an
// unreadable file is skipped with a warning rather than failing the commit.
func (inv *SourceInventory) Consume(deps map[string]interface{}) (map[string]interface{}, error) {
	snapshot := deps[DependencySnapshot].(*Snapshot)
	result := &report.Inventory{Files: []report.FileStat{}}
	err := util.Walk(snapshot.FS, ".", func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if skippedDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !isJava(name) {
			return nil
		}
		content, err := util.ReadFile(snapshot.FS, name)
		if err != nil {
			inv.l.Warnf("commit %s: skipping unreadable file %s: %v",
				snapshot.Hash, name, err)
			return nil
		}
		result.Files = append(result.Files, report.FileStat{
			Path:  name,
			Lines: inv.pool.Process(content).(int),
		})
		return nil
	})
	if err != nil {
		return nil, core.NewFailure(core.FailureInventory,
			errors.Wrapf(err, "cannot inventory commit %s", snapshot.Hash))
	}
	result.SortFiles()
	for _, file := range result.Files {
		result.TotalLines += file.Lines
	}
	return map[string]interface{}{DependencyInventory: result}, nil
}

func (inv *SourceInventory) Dispose() {
	if inv.pool != nil {
		inv.pool.Close()
		inv.pool = nil
	}
}

func isJava(name string) bool {
	if strings.HasSuffix(name, ".java") {
		return true
	}
	return enry.GetLanguage(path.Base(name), nil) == "Java"
}

// countLines counts the lines of a text buffer the way an editor would: a final
// byte which is not a newline still opens a line.
func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	lines := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		lines++
	}
	return lines
}

func init() {
	core.Registry.Register(&SourceInventory{})
}
