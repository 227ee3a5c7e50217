package plumbing

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
)

// Snapshot is a commit's tree materialized on a filesystem. Root is the
// OS-level path handed to external tools; FS is the same directory as a billy
// filesystem for in-process consumers.
type Snapshot struct {
	Hash string
	Root string
	FS   billy.Filesystem
}

// Materializer writes each commit's full tree into a private scratch directory
// and removes it again once the commit has been consumed downstream. It is the
// first stage of the per-commit pipeline.
type Materializer struct {
	// ScratchBase is the directory under which per-commit dirs are created.
	// Empty means a fresh temporary directory per run.
	ScratchBase string

	repository *git.Repository
	base       string
	ownsBase   bool
	current    string
	newFS      func(root string) billy.Filesystem
	l          core.Logger
}

const (
	// ConfigSnapshotScratchBase is the name of the scratch directory option.
	ConfigSnapshotScratchBase = "Snapshot.ScratchBase"
	// DependencySnapshot is the name of the dependency provided by Materializer.
	DependencySnapshot = "snapshot"
)

func (m *Materializer) Name() string {
	return "Materializer"
}

func (m *Materializer) Provides() []string {
	return []string{DependencySnapshot}
}

func (m *Materializer) Requires() []string {
	return []string{}
}

func (m *Materializer) ListConfigurationOptions() []core.ConfigurationOption {
	options := [...]core.ConfigurationOption{{
		Name:        ConfigSnapshotScratchBase,
		Description: "Directory to materialize commit snapshots under. Empty means a temporary directory.",
		Flag:        "scratch-dir",
		Type:        core.PathConfigurationOption,
		Default:     ""},
	}
	return options[:]
}

func (m *Materializer) Configure(facts map[string]interface{}) error {
	if l, exists := facts[core.ConfigLogger].(core.Logger); exists {
		m.l = l
	}
	if val, exists := facts[ConfigSnapshotScratchBase].(string); exists {
		m.ScratchBase = val
	}
	return nil
}

func (m *Materializer) Initialize(repository *git.Repository) error {
	if m.l == nil {
		m.l = core.NewLogger()
	}
	m.repository = repository
	m.base = m.ScratchBase
	m.ownsBase = false
	if m.base == "" {
		base, err := ioutil.TempDir("", "pmdhist-snapshot-")
		if err != nil {
			return errors.Wrap(err, "cannot create the scratch directory")
		}
		m.base = base
		m.ownsBase = true
	} else if err := os.MkdirAll(m.base, 0777); err != nil {
		return errors.Wrapf(err, "cannot create the scratch directory %s", m.base)
	}
	if m.newFS == nil {
		m.newFS = func(root string) billy.Filesystem {
			return osfs.New(root)
		}
	}
	m.current = ""
	return nil
}

// Consume writes the commit's complete tree under <base>/<hash>. Any checkout
// problem is commit-local: the snapshot of one broken commit must not stop the
// traversal.
func (m *Materializer) Consume(deps map[string]interface{}) (map[string]interface{}, error) {
	commit := deps[core.DependencyCommit].(*object.Commit)
	hash := commit.Hash.String()
	root := filepath.Join(m.base, hash)
	fs := m.newFS(root)
	// claim the directory first: Release must clean up a partial checkout too
	m.current = root
	if err := m.checkout(commit, fs); err != nil {
		return nil, core.NewFailure(core.FailureCheckout,
			errors.Wrapf(err, "cannot materialize commit %s", hash))
	}
	return map[string]interface{}{DependencySnapshot: &Snapshot{
		Hash: hash,
		Root: root,
		FS:   fs,
	}}, nil
}

func (m *Materializer) checkout(commit *object.Commit, fs billy.Filesystem) error {
	fileIter, err := commit.Files()
	if err != nil {
		return err
	}
	defer fileIter.Close()
	return fileIter.ForEach(func(file *object.File) error {
		reader, err := file.Reader()
		if err != nil {
			return errors.Wrapf(err, "cannot read %s", file.Name)
		}
		defer reader.Close()
		if dir := filepath.Dir(file.Name); dir != "." {
			if err := fs.MkdirAll(dir, 0777); err != nil {
				return errors.Wrapf(err, "cannot create %s", dir)
			}
		}
		writer, err := fs.Create(file.Name)
		if err != nil {
			return errors.Wrapf(err, "cannot create %s", file.Name)
		}
		_, err = io.Copy(writer, reader)
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		return errors.Wrapf(err, "cannot write %s", file.Name)
	})
}

// Release removes the current commit's snapshot. The pipeline calls it after
// every commit, including failed ones.
func (m *Materializer) Release() {
	if m.current == "" {
		return
	}
	if err := os.RemoveAll(m.current); err != nil {
		m.l.Warnf("failed to remove the snapshot %s: %v", m.current, err)
	}
	m.current = ""
}

// Dispose removes the whole scratch base if the materializer created it.
func (m *Materializer) Dispose() {
	m.Release()
	if m.ownsBase {
		if err := os.RemoveAll(m.base); err != nil {
			m.l.Warnf("failed to remove the scratch directory %s: %v", m.base, err)
		}
		m.ownsBase = false
	}
}

func init() {
	core.Registry.Register(&Materializer{})
}
