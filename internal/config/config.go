// Package config loads the optional YAML run configuration. Every field mirrors
// a command line flag; explicit flags win over the file.
package config

import (
	"io/ioutil"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// PMDConfig groups the analyzer acquisition settings.
type PMDConfig struct {
	// Version of the PMD distribution to download when Path is empty.
	Version string `yaml:"version"`
	// Path of an existing PMD launcher to use instead of downloading.
	Path string `yaml:"path"`
	// SkipDownload fails instead of downloading when no installation is found.
	SkipDownload bool `yaml:"skip_download"`
}

// RunConfig is the file form of a whole analysis run.
type RunConfig struct {
	Repository      string    `yaml:"repository"`
	OutputDir       string    `yaml:"output_dir"`
	Ruleset         string    `yaml:"ruleset"`
	MaxCommits      int       `yaml:"max_commits"`
	FirstParent     bool      `yaml:"first_parent"`
	AnalysisTimeout int       `yaml:"analysis_timeout"`
	PMD             PMDConfig `yaml:"pmd"`
	Verbose         bool      `yaml:"verbose"`
}

// Load reads and parses a run configuration file.
func Load(path string) (*RunConfig, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read the configuration %s", path)
	}
	cfg := &RunConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse the configuration %s", path)
	}
	return cfg, nil
}
