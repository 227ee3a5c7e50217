// Package storage persists the analysis documents under the output directory:
// one JSON file per commit, one run-level summary, plus the run logs.
package storage

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/Lbyrigitte/pmd-analysis/internal/report"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the directory layout of one analysis run.
type Store struct {
	// Base is the output directory root.
	Base string
}

const (
	commitsDir  = "commits"
	logsDir     = "logs"
	summaryFile = "summary.json"
)

// NewStore creates the output directory layout. Existing directories are reused,
// so interrupted runs can be resumed in place.
func NewStore(base string) (*Store, error) {
	for _, dir := range []string{base, filepath.Join(base, commitsDir), filepath.Join(base, logsDir)} {
		if err := os.MkdirAll(dir, 0777); err != nil {
			return nil, errors.Wrapf(err, "cannot create the output directory %s", dir)
		}
	}
	return &Store{Base: base}, nil
}

// CommitPath returns the path of one commit's record file.
func (s *Store) CommitPath(hash string) string {
	return filepath.Join(s.Base, commitsDir, hash+".json")
}

// HasCommit reports whether the record of the given commit already exists.
func (s *Store) HasCommit(hash string) bool {
	_, err := os.Stat(s.CommitPath(hash))
	return err == nil
}

// SaveCommit writes one commit record. The write goes through a temporary file
// and a rename, so a record is either fully present or absent, never torn.
func (s *Store) SaveCommit(record *report.CommitRecord) error {
	return s.writeJSON(s.CommitPath(record.Commit.Hash), record)
}

// LoadCommit reads a previously saved commit record.
func (s *Store) LoadCommit(hash string) (*report.CommitRecord, error) {
	raw, err := ioutil.ReadFile(s.CommitPath(hash))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read the record of commit %s", hash)
	}
	record := &report.CommitRecord{}
	if err := json.Unmarshal(raw, record); err != nil {
		return nil, errors.Wrapf(err, "cannot parse the record of commit %s", hash)
	}
	return record, nil
}

// ListCommits returns the hashes of all the saved commit records, sorted.
func (s *Store) ListCommits() ([]string, error) {
	entries, err := ioutil.ReadDir(filepath.Join(s.Base, commitsDir))
	if err != nil {
		return nil, errors.Wrap(err, "cannot list the commit records")
	}
	hashes := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		hashes = append(hashes, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(hashes)
	return hashes, nil
}

// SaveSummary writes the run-level summary document.
func (s *Store) SaveSummary(summary *report.SummaryRecord) error {
	return s.writeJSON(filepath.Join(s.Base, summaryFile), summary)
}

// LoadSummary reads the run-level summary document.
func (s *Store) LoadSummary() (*report.SummaryRecord, error) {
	raw, err := ioutil.ReadFile(filepath.Join(s.Base, summaryFile))
	if err != nil {
		return nil, errors.Wrap(err, "cannot read the summary")
	}
	summary := &report.SummaryRecord{}
	if err := json.Unmarshal(raw, summary); err != nil {
		return nil, errors.Wrap(err, "cannot parse the summary")
	}
	return summary, nil
}

// OpenRunLog creates a timestamped log file for the current run.
func (s *Store) OpenRunLog() (*os.File, error) {
	name := "run-" + time.Now().Format("20060102-150405") + ".log"
	file, err := os.Create(filepath.Join(s.Base, logsDir, name))
	return file, errors.Wrap(err, "cannot create the run log")
}

func (s *Store) writeJSON(path string, value interface{}) error {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "cannot serialize %s", path)
	}
	tmp, err := ioutil.TempFile(filepath.Dir(path), ".tmp-")
	if err != nil {
		return errors.Wrapf(err, "cannot stage %s", path)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "cannot write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "cannot write %s", path)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "cannot commit %s", path)
}
