package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"

	"github.com/Lbyrigitte/pmd-analysis/internal/toposort"
)

// ConfigurationOptionType represents the possible types of a ConfigurationOption's value.
type ConfigurationOptionType int

const (
	// BoolConfigurationOption reflects the boolean value type.
	BoolConfigurationOption ConfigurationOptionType = iota
	// IntConfigurationOption reflects the integer value type.
	IntConfigurationOption
	// StringConfigurationOption reflects the string value type.
	StringConfigurationOption
	// FloatConfigurationOption reflects a floating point value type.
	FloatConfigurationOption
	// PathConfigurationOption reflects the file system path value type.
	PathConfigurationOption
)

// String() returns an empty string for the boolean type, "int" for integers and "string" for
// strings. It is used in the command line interface to show the argument's type.
func (opt ConfigurationOptionType) String() string {
	switch opt {
	case BoolConfigurationOption:
		return ""
	case IntConfigurationOption:
		return "int"
	case StringConfigurationOption:
		return "string"
	case FloatConfigurationOption:
		return "float"
	case PathConfigurationOption:
		return "path"
	}
	log.Panicf("Invalid ConfigurationOptionType value %d", opt)
	return ""
}

// ConfigurationOption allows for the unified, retrospective way to setup PipelineItem-s.
type ConfigurationOption struct {
	// Name identifies the configuration option in facts.
	Name string
	// Description represents the help text about the configuration option.
	Description string
	// Flag corresponds to the CLI token with "--" prepended. When empty, the flag
	// is derived from Name by the registry.
	Flag string
	// Type specifies the kind of the configuration option's value.
	Type ConfigurationOptionType
	// Default is the initial value of the configuration option.
	Default interface{}
}

// FormatDefault converts the default value of ConfigurationOption to string.
// Used in the command line interface to show the argument's default value.
func (opt ConfigurationOption) FormatDefault() string {
	if opt.Type != StringConfigurationOption && opt.Type != PathConfigurationOption {
		return fmt.Sprint(opt.Default)
	}
	return fmt.Sprintf("\"%s\"", opt.Default)
}

// PipelineItem is the interface for all the units in the per-commit analysis pipeline.
type PipelineItem interface {
	// Name returns the name of the analysis.
	Name() string
	// Provides returns the list of keys of reusable calculated entities.
	// Other items may depend on them.
	Provides() []string
	// Requires returns the list of keys of needed entities which must be supplied in Consume().
	Requires() []string
	// ListConfigurationOptions returns the list of available options which can be consumed by Configure().
	ListConfigurationOptions() []ConfigurationOption
	// Configure performs the initial setup of the object by applying parameters from facts.
	// It allows to create PipelineItems in a universal way.
	Configure(facts map[string]interface{}) error
	// Initialize prepares and resets the item. Consume() requires Initialize()
	// to be called at least once beforehand.
	Initialize(*git.Repository) error
	// Consume processes the next commit.
	// deps contains the required entities which match Requires(). Besides, it always includes
	// DependencyCommit and DependencyIndex.
	// Returns the calculated entities which match Provides().
	// A *Failure return value is contained to the current commit; any other error
	// aborts the whole run.
	Consume(deps map[string]interface{}) (map[string]interface{}, error)
}

// FailureTolerantPipelineItem is consumed even when an upstream item failed on the
// current commit and some of its Requires() are therefore missing from deps. The
// failure is available under DependencyFailure.
type FailureTolerantPipelineItem interface {
	PipelineItem
	// ToleratesFailures is a marker; the value is ignored.
	ToleratesFailures() bool
}

// ScopedPipelineItem holds per-commit resources. Release() is invoked by the
// pipeline after each commit's processing interval, on every exit path.
type ScopedPipelineItem interface {
	PipelineItem
	// Release frees the resources scoped to the last consumed commit.
	Release()
}

// DisposablePipelineItem enables resources cleanup after finishing running the pipeline.
type DisposablePipelineItem interface {
	PipelineItem
	// Dispose frees any previously allocated unmanaged resources. No Consume() calls are possible
	// afterwards. The item needs to be Initialize()-d again.
	Dispose()
}

// LeafPipelineItem corresponds to the top level pipeline items which produce the end results.
type LeafPipelineItem interface {
	PipelineItem
	// Flag returns the cmdline switch to run the analysis. Should be dash-lower-case
	// without the leading dashes.
	Flag() string
	// Description returns the text which explains what the analysis is doing.
	// Should start with a capital letter and end with a dot.
	Description() string
	// Finalize returns the result of the analysis.
	Finalize() interface{}
	// Serialize encodes the object returned by Finalize() to a human readable text form.
	Serialize(result interface{}, writer io.Writer) error
}

// CommonAnalysisResult holds the information which is always extracted at Pipeline.Run().
type CommonAnalysisResult struct {
	// BeginTime is the time of the first commit in the analysed sequence.
	BeginTime int64
	// EndTime is the time of the last commit in the analysed sequence.
	EndTime int64
	// CommitsNumber is the number of commits in the analysed sequence.
	CommitsNumber int
	// FailedCommitsNumber is the number of commits which ended with a commit-local failure.
	FailedCommitsNumber int
	// RunTime is the duration of Pipeline.Run().
	RunTime time.Duration
	// RunTimePerItem is the time elapsed by each PipelineItem.
	RunTimePerItem map[string]float64
}

// BeginTimeAsTime converts the UNIX timestamp of the beginning to Go time.
func (car *CommonAnalysisResult) BeginTimeAsTime() time.Time {
	return time.Unix(car.BeginTime, 0)
}

// EndTimeAsTime converts the UNIX timestamp of the ending to Go time.
func (car *CommonAnalysisResult) EndTimeAsTime() time.Time {
	return time.Unix(car.EndTime, 0)
}

// Pipeline is the core entity which carries the registered PipelineItems and executes them
// over a sequence of commits, one commit fully processed before the next begins.
type Pipeline struct {
	// OnProgress is the callback which is invoked in Run() to report progress.
	// The first argument is the number of completed steps, the second is the total
	// number of steps and the third is some description of the current action.
	OnProgress func(int, int, string)

	// DryRun indicates whether the items are not executed.
	DryRun bool

	// DumpPlan indicates whether to print the resolved execution order to stderr.
	DumpPlan bool

	// repository points to the analysed Git repository struct from go-git.
	repository *git.Repository

	// items are the registered building blocks in the pipeline. The order defines the
	// execution sequence.
	items []PipelineItem

	// the collection of parameters to create items.
	facts map[string]interface{}

	// the logger for printing output.
	l Logger
}

const (
	// ConfigPipelineDAGPath is the name of the Pipeline configuration option (Pipeline.Initialize())
	// which enables saving the items DAG to the specified file.
	ConfigPipelineDAGPath = "Pipeline.DAGPath"
	// ConfigPipelineDryRun is the name of the Pipeline configuration option (Pipeline.Initialize())
	// which disables Configure() and Initialize() invocation on each PipelineItem during the
	// Pipeline initialization.
	// Subsequent Run() calls are going to fail. Useful with ConfigPipelineDAGPath=true.
	ConfigPipelineDryRun = "Pipeline.DryRun"
	// ConfigPipelineCommits is the name of the Pipeline configuration option (Pipeline.Initialize())
	// which allows to specify the custom commit sequence. By default, Pipeline.Commits() is used.
	ConfigPipelineCommits = "Pipeline.Commits"
	// DependencyCommit is the name of one of the entities in `deps` supplied to PipelineItem.Consume()
	// which always exists. It corresponds to the currently analyzed commit.
	DependencyCommit = "commit"
	// DependencyIndex is the name of one of the entities in `deps` supplied to PipelineItem.Consume()
	// which always exists. It corresponds to the currently analyzed commit's position in the
	// traversal, 0-based.
	DependencyIndex = "index"
	// DependencyFailure is the name of the entity which appears in `deps` once an upstream
	// item failed on the current commit. It carries the corresponding *Failure.
	DependencyFailure = "failure"
	// DependencyRunContext is the name of one of the entities in `deps` supplied to
	// PipelineItem.Consume() which always exists. It carries the context.Context passed
	// to Run(), so blocking items stop when the run is cancelled.
	DependencyRunContext = "run_context"
	// MessageFinalize is the status text reported before calling LeafPipelineItem.Finalize()-s.
	MessageFinalize = "finalize"
)

// NewPipeline initializes a new instance of Pipeline struct.
func NewPipeline(repository *git.Repository) *Pipeline {
	return &Pipeline{
		repository: repository,
		items:      []PipelineItem{},
		facts:      map[string]interface{}{},
		l:          NewLogger(),
	}
}

// GetFact returns the value of the fact with the specified name.
func (pipeline *Pipeline) GetFact(name string) interface{} {
	return pipeline.facts[name]
}

// SetFact sets the value of the fact with the specified name.
func (pipeline *Pipeline) SetFact(name string, value interface{}) {
	pipeline.facts[name] = value
}

// DeployItem inserts a PipelineItem into the pipeline. It also recursively creates all of it's
// dependencies (PipelineItem.Requires()). Returns the same item as specified in the arguments.
func (pipeline *Pipeline) DeployItem(item PipelineItem) PipelineItem {
	var queue []PipelineItem
	queue = append(queue, item)
	added := map[string]PipelineItem{}
	for _, item := range pipeline.items {
		added[item.Name()] = item
	}
	added[item.Name()] = item
	pipeline.AddItem(item)
	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]
		for _, dep := range head.Requires() {
			for _, sibling := range Registry.Summon(dep) {
				if _, exists := added[sibling.Name()]; !exists {
					added[sibling.Name()] = sibling
					queue = append(queue, sibling)
					pipeline.AddItem(sibling)
				}
			}
		}
	}
	return item
}

// AddItem inserts a PipelineItem into the pipeline. It does not check any dependencies.
// See also: DeployItem().
func (pipeline *Pipeline) AddItem(item PipelineItem) PipelineItem {
	pipeline.items = append(pipeline.items, item)
	return item
}

// RemoveItem deletes a PipelineItem from the pipeline. It leaves all the rest of the items intact.
func (pipeline *Pipeline) RemoveItem(item PipelineItem) {
	for i, reg := range pipeline.items {
		if reg == item {
			pipeline.items = append(pipeline.items[:i], pipeline.items[i+1:]...)
			return
		}
	}
}

// Len returns the number of items in the pipeline.
func (pipeline *Pipeline) Len() int {
	return len(pipeline.items)
}

// Commits returns the list of commits from the history over the HEAD, in ascending
// chronological order by committer time. Equal timestamps are broken by the hash so
// that the traversal is deterministic for a fixed repository state.
// `firstParent` follows only the first parent after each merge (`git log --first-parent`).
func (pipeline *Pipeline) Commits(firstParent bool) ([]*object.Commit, error) {
	var result []*object.Commit
	repository := pipeline.repository
	head, err := pipeline.HeadCommit()
	if err != nil {
		return nil, err
	}
	if firstParent {
		commit := head
		for commit != nil {
			result = append(result, commit)
			if commit.NumParents() == 0 {
				break
			}
			commit, err = commit.Parent(0)
			if err != nil {
				return nil, errors.Wrap(err, "unable to walk the first parent chain")
			}
		}
	} else {
		cit, err := repository.Log(&git.LogOptions{From: head.Hash})
		if err != nil {
			return nil, errors.Wrap(err, "unable to collect the commit history")
		}
		defer cit.Close()
		err = cit.ForEach(func(commit *object.Commit) error {
			result = append(result, commit)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].Committer.When.Unix(), result[j].Committer.When.Unix()
		if ti != tj {
			return ti < tj
		}
		return result[i].Hash.String() < result[j].Hash.String()
	})
	return result, nil
}

// HeadCommit returns the latest commit in the repository (HEAD).
func (pipeline *Pipeline) HeadCommit() (*object.Commit, error) {
	head, err := pipeline.repository.Head()
	if err != nil {
		return nil, errors.Wrap(err, "unable to find the head reference")
	}
	commit, err := pipeline.repository.CommitObject(head.Hash())
	if err != nil {
		return nil, errors.Wrap(err, "unable to resolve the head commit")
	}
	return commit, nil
}

func (pipeline *Pipeline) resolve(dumpPath string) error {
	graph := toposort.NewGraph()
	sort.Slice(pipeline.items, func(i, j int) bool {
		return pipeline.items[i].Name() < pipeline.items[j].Name()
	})
	name2item := map[string]PipelineItem{}
	for _, item := range pipeline.items {
		name := item.Name()
		if _, exists := name2item[name]; exists {
			pipeline.l.Criticalf("duplicated pipeline item name: %s", name)
			return errors.New("duplicated pipeline item name")
		}
		graph.AddNode(name)
		name2item[name] = item
		for _, key := range item.Provides() {
			key = "[" + key + "]"
			graph.AddNode(key)
			if graph.AddEdge(name, key) > 1 {
				pipeline.l.Criticalf("%s is provided by more than one item: %v",
					key, graph.FindParents(key))
				return errors.New("ambiguous graph")
			}
		}
	}
	for _, item := range pipeline.items {
		for _, key := range item.Requires() {
			key = "[" + key + "]"
			if graph.AddEdge(key, item.Name()) == 0 {
				pipeline.l.Criticalf("unsatisfied dependency: %s -> %s", key, item.Name())
				return errors.New("unsatisfied dependency")
			}
		}
	}
	strplan, ok := graph.Toposort()
	if !ok {
		pipeline.l.Critical("failed to resolve pipeline dependencies: cycle detected")
		return errors.New("topological sort failure")
	}
	pipeline.items = make([]PipelineItem, 0, len(name2item))
	for _, key := range strplan {
		if item, ok := name2item[key]; ok {
			pipeline.items = append(pipeline.items, item)
		}
	}
	if pipeline.DumpPlan {
		fmt.Fprintf(os.Stderr, "plan: %s\n", strings.Join(strplan, " -> "))
	}
	if dumpPath != "" {
		err := ioutil.WriteFile(dumpPath, []byte(graph.Serialize(strplan)), 0666)
		if err != nil {
			return errors.Wrapf(err, "unable to write the DAG to %s", dumpPath)
		}
		absPath, _ := filepath.Abs(dumpPath)
		pipeline.l.Infof("wrote the DAG to %s\n", absPath)
	}
	return nil
}

// Initialize prepares the pipeline for the execution (Run()). This function
// resolves the execution order, Configure()-s and Initialize()-s the items in it in the
// topological dependency order. `facts` are passed inside Configure(). They are mutable.
func (pipeline *Pipeline) Initialize(facts map[string]interface{}) error {
	if facts == nil {
		facts = map[string]interface{}{}
	}
	// set logger from facts, otherwise publish the pipeline's logger as the fact
	if l, exists := facts[ConfigLogger].(Logger); exists {
		pipeline.l = l
	} else {
		facts[ConfigLogger] = pipeline.l
	}
	if _, exists := facts[ConfigPipelineCommits]; !exists {
		var err error
		facts[ConfigPipelineCommits], err = pipeline.Commits(false)
		if err != nil {
			return errors.Wrap(err, "failed to list the commits")
		}
	}
	dumpPath, _ := facts[ConfigPipelineDAGPath].(string)
	if err := pipeline.resolve(dumpPath); err != nil {
		return err
	}
	if dryRun, exists := facts[ConfigPipelineDryRun].(bool); exists {
		pipeline.DryRun = dryRun
		if dryRun {
			return nil
		}
	}
	for _, item := range pipeline.items {
		if err := item.Configure(facts); err != nil {
			return errors.Wrapf(err, "%s failed to configure", item.Name())
		}
	}
	for _, item := range pipeline.items {
		if err := item.Initialize(pipeline.repository); err != nil {
			return errors.Wrapf(err, "%s failed to initialize", item.Name())
		}
	}
	return nil
}

// Run method executes the pipeline.
//
// `commits` is a slice with the git commits to analyse, in traversal order.
// Commits are processed strictly sequentially. A *Failure returned by an item is
// contained to the current commit: the downstream items which lost their inputs are
// skipped (except FailureTolerantPipelineItem-s, which observe the failure), the
// commit's scoped resources are released, and the run proceeds to the next commit.
// Cancelling ctx stops the run before the next commit's processing begins.
//
// Returns the mapping from each LeafPipelineItem to the corresponding analysis result.
// There is always a "nil" record with CommonAnalysisResult.
func (pipeline *Pipeline) Run(
	ctx context.Context, commits []*object.Commit) (map[LeafPipelineItem]interface{}, error) {
	startRunTime := time.Now()
	onProgress := pipeline.OnProgress
	if onProgress == nil {
		onProgress = func(int, int, string) {}
	}
	progressSteps := len(commits) + 2
	runTimePerItem := map[string]float64{}
	failedCommits := 0

	for index, commit := range commits {
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(),
				"run cancelled before commit #%d %s", index+1, commit.Hash.String())
		default:
		}
		if pipeline.DryRun {
			onProgress(index+1, progressSteps, commit.Hash.String())
			continue
		}
		err := func() error {
			defer func() {
				for _, item := range pipeline.items {
					if scoped, ok := item.(ScopedPipelineItem); ok {
						scoped.Release()
					}
				}
			}()
			state := map[string]interface{}{
				DependencyCommit:     commit,
				DependencyIndex:      index,
				DependencyRunContext: ctx,
			}
			for _, item := range pipeline.items {
				_, tolerant := item.(FailureTolerantPipelineItem)
				satisfied := true
				for _, dep := range item.Requires() {
					if _, exists := state[dep]; !exists {
						satisfied = false
						break
					}
				}
				if !satisfied && !tolerant {
					continue
				}
				startTime := time.Now()
				update, err := item.Consume(state)
				runTimePerItem[item.Name()] += time.Now().Sub(startTime).Seconds()
				if err != nil {
					failure := AsFailure(err)
					if failure == nil {
						pipeline.l.Criticalf("%s failed on commit #%d %s: %v",
							item.Name(), index+1, commit.Hash.String(), err)
						return err
					}
					if _, exists := state[DependencyFailure]; !exists {
						state[DependencyFailure] = failure
					}
					pipeline.l.Warnf("%s failed on commit #%d %s: %v",
						item.Name(), index+1, commit.Hash.String(), failure)
					continue
				}
				for _, key := range item.Provides() {
					val, ok := update[key]
					if !ok {
						err := fmt.Errorf("%s: Consume() did not return %s", item.Name(), key)
						pipeline.l.Critical(err)
						return err
					}
					state[key] = val
				}
			}
			if _, failed := state[DependencyFailure]; failed {
				failedCommits++
			}
			return nil
		}()
		if err != nil {
			return nil, err
		}
		onProgress(index+1, progressSteps, commit.Hash.String())
	}

	onProgress(len(commits)+1, progressSteps, MessageFinalize)
	result := map[LeafPipelineItem]interface{}{}
	if !pipeline.DryRun {
		for _, item := range pipeline.items {
			if casted, ok := item.(DisposablePipelineItem); ok {
				casted.Dispose()
			}
			if casted, ok := item.(LeafPipelineItem); ok {
				result[casted] = casted.Finalize()
			}
		}
	}
	onProgress(progressSteps, progressSteps, "")
	common := &CommonAnalysisResult{
		CommitsNumber:       len(commits),
		FailedCommitsNumber: failedCommits,
		RunTime:             time.Since(startRunTime),
		RunTimePerItem:      runTimePerItem,
	}
	if len(commits) > 0 {
		common.BeginTime = commits[0].Committer.When.Unix()
		common.EndTime = commits[len(commits)-1].Committer.When.Unix()
	}
	result[nil] = common
	return result, nil
}

// LoadCommitsFromFile reads the file by the specified FS path and generates the sequence of commits
// by interpreting each line as a Git commit hash.
func LoadCommitsFromFile(path string, repository *git.Repository) ([]*object.Commit, error) {
	var file io.ReadCloser
	if path != "-" {
		var err error
		file, err = os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
	} else {
		file = os.Stdin
	}
	scanner := bufio.NewScanner(file)
	var commits []*object.Commit
	for scanner.Scan() {
		hash := plumbing.NewHash(scanner.Text())
		if hash.IsZero() {
			return nil, errors.New("invalid commit hash " + scanner.Text())
		}
		commit, err := repository.CommitObject(hash)
		if err != nil {
			return nil, err
		}
		commits = append(commits, commit)
	}
	return commits, nil
}

// GetSensibleRemote extracts a remote URL of the repository to identify it.
func GetSensibleRemote(repository *git.Repository) string {
	if r, err := repository.Remotes(); err == nil && len(r) > 0 {
		return r[0].Config().URLs[0]
	}
	return "<no remote>"
}
