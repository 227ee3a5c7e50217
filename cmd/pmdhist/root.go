package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"text/template"
	"unicode"

	"github.com/Masterminds/sprig"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	gitstorage "github.com/go-git/go-git/v5/storage"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"
	progress "gopkg.in/cheggaaa/pb.v1"

	pmdhist "github.com/Lbyrigitte/pmd-analysis"
	"github.com/Lbyrigitte/pmd-analysis/internal/config"
	"github.com/Lbyrigitte/pmd-analysis/internal/core"
	"github.com/Lbyrigitte/pmd-analysis/internal/plumbing"
	"github.com/Lbyrigitte/pmd-analysis/internal/pmd"
	"github.com/Lbyrigitte/pmd-analysis/internal/storage"
	"github.com/Lbyrigitte/pmd-analysis/leaves"
)

// oneLineWriter splits the output data by lines and outputs one on top of another using '\r'.
// It also does some dark magic to handle Git statuses.
type oneLineWriter struct {
	Writer io.Writer
}

func (writer oneLineWriter) Write(p []byte) (n int, err error) {
	strp := strings.TrimSpace(string(p))
	if strings.HasSuffix(strp, "done.") || len(strp) == 0 {
		strp = "cloning..."
	} else {
		strp = strings.Replace(strp, "\n", "\033[2K\r", -1)
	}
	_, err = writer.Writer.Write([]byte("\033[2K\r"))
	if err != nil {
		return
	}
	n, err = writer.Writer.Write([]byte(strp))
	return
}

func loadSSHIdentity(sshIdentity string) (*ssh.PublicKeys, error) {
	actual, err := homedir.Expand(sshIdentity)
	if err != nil {
		return nil, err
	}
	return ssh.NewPublicKeysFromFile("git", actual, "")
}

func loadRepository(uri string, cachePath string, disableStatus bool, sshIdentity string) *git.Repository {
	var repository *git.Repository
	var backend gitstorage.Storer
	var err error
	if strings.Contains(uri, "://") || regexp.MustCompile("^[A-Za-z]\\w*@[A-Za-z0-9][\\w.]*:").MatchString(uri) {
		if cachePath != "" {
			backend = filesystem.NewStorage(osfs.New(cachePath), cache.NewObjectLRUDefault())
			_, err = os.Stat(cachePath)
			if !os.IsNotExist(err) {
				log.Printf("warning: deleted %s\n", cachePath)
				os.RemoveAll(cachePath)
			}
		} else {
			backend = memory.NewStorage()
		}
		cloneOptions := &git.CloneOptions{URL: uri}
		if !disableStatus {
			fmt.Fprint(os.Stderr, "connecting...\r")
			cloneOptions.Progress = oneLineWriter{Writer: os.Stderr}
		}

		if sshIdentity != "" {
			auth, err := loadSSHIdentity(sshIdentity)
			if err != nil {
				log.Printf("Failed loading SSH Identity %s\n", err)
			}
			cloneOptions.Auth = auth
		}

		repository, err = git.Clone(backend, nil, cloneOptions)
		if !disableStatus {
			fmt.Fprint(os.Stderr, "\033[2K\r")
		}
	} else {
		if uri[len(uri)-1] == os.PathSeparator {
			uri = uri[:len(uri)-1]
		}
		repository, err = git.PlainOpen(uri)
	}
	if err != nil {
		log.Panicf("failed to open %s: %v", uri, err)
	}
	return repository
}

// applyConfigFile copies the file values into the flags which the user did not
// set explicitly, so the precedence is flags > file > defaults.
func applyConfigFile(cmd *cobra.Command, path string) {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal(err)
	}
	flags := cmd.Flags()
	set := func(name, value string) {
		if !flags.Changed(name) {
			if err := flags.Set(name, value); err != nil {
				log.Fatalf("bad configuration value for %s: %v", name, err)
			}
		}
	}
	if cfg.OutputDir != "" {
		set("output-dir", cfg.OutputDir)
	}
	if cfg.Ruleset != "" {
		set("ruleset", cfg.Ruleset)
	}
	if cfg.MaxCommits > 0 {
		set("max-commits", fmt.Sprint(cfg.MaxCommits))
	}
	if cfg.FirstParent {
		set("first-parent", "true")
	}
	if cfg.AnalysisTimeout > 0 {
		set("analysis-timeout", fmt.Sprint(cfg.AnalysisTimeout))
	}
	if cfg.PMD.Version != "" {
		set("pmd-version", cfg.PMD.Version)
	}
	if cfg.PMD.Path != "" {
		set("pmd-path", cfg.PMD.Path)
	}
	if cfg.PMD.SkipDownload {
		set("skip-download", "true")
	}
}

// resolveAnalyzer locates or downloads the PMD distribution and checks that a
// JVM is available, before any commit is touched.
func resolveAnalyzer(ctx context.Context, version, pmdPath, installDir string,
	skipDownload bool, l core.Logger) string {
	if err := pmd.CheckJava(ctx); err != nil {
		log.Fatalf("java is required to run PMD: %v", err)
	}
	installer := pmd.NewInstaller(version, installDir, skipDownload, l)
	binary, err := installer.Resolve(ctx, pmdPath)
	if err != nil {
		log.Fatalf("cannot set up PMD: %v", err)
	}
	return binary
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pmdhist",
	Short: "Run PMD over the whole history of a Git repository.",
	Long: `pmdhist walks the commit history of a Java Git repository in chronological order,
materializes every commit into a scratch directory, runs the PMD static analyzer over it and
collects the violations into one JSON record per commit plus a run-level summary. A commit
which cannot be checked out or analyzed is recorded as failed and the traversal continues.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		getBool := func(name string) bool {
			value, err := flags.GetBool(name)
			if err != nil {
				panic(err)
			}
			return value
		}
		getString := func(name string) string {
			value, err := flags.GetString(name)
			if err != nil {
				panic(err)
			}
			return value
		}
		getInt := func(name string) int {
			value, err := flags.GetInt(name)
			if err != nil {
				panic(err)
			}
			return value
		}
		if configPath := getString("config"); configPath != "" {
			applyConfigFile(cmd, configPath)
		}
		firstParent := getBool("first-parent")
		commitsFile := getString("commits")
		head := getBool("head")
		maxCommits := getInt("max-commits")
		disableStatus := getBool("quiet")
		sshIdentity := getString("ssh-identity")

		uri := args[0]
		cachePath := ""
		if len(args) == 2 {
			cachePath = args[1]
		}
		repository := loadRepository(uri, cachePath, disableStatus, sshIdentity)

		outputDir, _ := cmdlineFacts[leaves.ConfigHistoryOutputDir].(string)
		if outputDir == "" {
			outputDir = "output"
		}
		store, err := storage.NewStore(outputDir)
		if err != nil {
			log.Fatal(err)
		}
		runLog, err := store.OpenRunLog()
		if err != nil {
			log.Fatal(err)
		}
		defer runLog.Close()
		logger := core.NewLoggerTo(
			io.MultiWriter(os.Stderr, runLog), io.MultiWriter(os.Stderr, runLog))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dryRun, _ := cmdlineFacts[pmdhist.ConfigPipelineDryRun].(bool)
		if !dryRun {
			binary := resolveAnalyzer(ctx, getString("pmd-version"), getString("pmd-path"),
				getString("pmd-dir"), getBool("skip-download"), logger)
			cmdlineFacts[plumbing.FactAnalyzerBinary] = binary
		}
		cmdlineFacts[core.ConfigLogger] = logger
		cmdlineFacts[leaves.FactStore] = store
		cmdlineFacts[leaves.FactSummaryLocation] = uri

		// core logic
		pipeline := pmdhist.NewPipeline(repository)
		var bar *progress.ProgressBar
		if !disableStatus {
			pipeline.OnProgress = func(commit, length int, action string) {
				if bar == nil {
					bar = progress.New(length)
					bar.Callback = func(msg string) {
						os.Stderr.WriteString("\033[2K\r" + msg)
					}
					bar.NotPrint = true
					bar.ShowPercent = false
					bar.ShowSpeed = false
					bar.SetMaxWidth(80).Start()
				}
				if action == pmdhist.MessageFinalize {
					bar.Finish()
					fmt.Fprint(os.Stderr, "\033[2K\rfinalizing...")
				} else {
					bar.Set(commit).Postfix(" [" + action + "] ")
				}
			}
		}

		var commits []*object.Commit
		if commitsFile == "" {
			if !head {
				fmt.Fprint(os.Stderr, "git log...\r")
				commits, err = pipeline.Commits(firstParent)
			} else {
				var commit *object.Commit
				commit, err = pipeline.HeadCommit()
				commits = []*object.Commit{commit}
			}
		} else {
			commits, err = pmdhist.LoadCommitsFromFile(commitsFile, repository)
		}
		if err != nil {
			log.Fatalf("failed to list the commits: %v", err)
		}
		if maxCommits > 0 && len(commits) > maxCommits {
			commits = commits[:maxCommits]
		}
		cmdlineFacts[pmdhist.ConfigPipelineCommits] = commits
		var deployed []pmdhist.LeafPipelineItem
		anyLeaf := false
		for _, valPtr := range cmdlineDeployed {
			anyLeaf = anyLeaf || *valPtr
		}
		for name, valPtr := range cmdlineDeployed {
			// without explicit targets, every analysis runs
			if *valPtr || !anyLeaf {
				item := pipeline.DeployItem(pmdhist.Registry.Summon(name)[0])
				if !dryRun {
					deployed = append(deployed, item.(pmdhist.LeafPipelineItem))
				}
			}
		}
		err = pipeline.Initialize(cmdlineFacts)
		if err != nil {
			log.Fatal(err)
		}
		results, err := pipeline.Run(ctx, commits)
		if err != nil {
			log.Fatalf("failed to run the pipeline: %v", err)
		}
		if !disableStatus {
			fmt.Fprint(os.Stderr, "\033[2K\r")
			// if not a terminal, the user will not see the output, so show the status
			if !terminal.IsTerminal(int(os.Stdout.Fd())) {
				fmt.Fprint(os.Stderr, "writing...\r")
			}
		}
		printResults(uri, deployed, results)
	},
}

func printResults(
	uri string, deployed []pmdhist.LeafPipelineItem,
	results map[pmdhist.LeafPipelineItem]interface{}) {
	commonResult := results[nil].(*pmdhist.CommonAnalysisResult)

	fmt.Println("pmdhist:")
	fmt.Printf("  version: %d\n", pmdhist.BinaryVersion)
	fmt.Println("  hash:", pmdhist.BinaryGitHash)
	fmt.Println("  repository:", uri)
	fmt.Println("  begin_unix_time:", commonResult.BeginTime)
	fmt.Println("  end_unix_time:", commonResult.EndTime)
	fmt.Println("  commits:", commonResult.CommitsNumber)
	fmt.Println("  failed_commits:", commonResult.FailedCommitsNumber)
	fmt.Println("  run_time:", commonResult.RunTime.Nanoseconds()/1e6)

	for _, item := range deployed {
		result := results[item]
		fmt.Printf("%s:\n", item.Name())
		if err := item.Serialize(result, os.Stdout); err != nil {
			panic(err)
		}
	}
}

// trimRightSpace removes the trailing whitespace characters.
func trimRightSpace(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// rpad adds padding to the right of a string.
func rpad(s string, padding int) string {
	return fmt.Sprintf(fmt.Sprintf("%%-%ds", padding), s)
}

// tmpl was adapted from cobra/cobra.go
func tmpl(w io.Writer, text string, data interface{}) error {
	var templateFuncs = template.FuncMap{
		"trim":                    strings.TrimSpace,
		"trimRightSpace":          trimRightSpace,
		"trimTrailingWhitespaces": trimRightSpace,
		"rpad":                    rpad,
		"gt":                      cobra.Gt,
		"eq":                      cobra.Eq,
	}
	for k, v := range sprig.TxtFuncMap() {
		templateFuncs[k] = v
	}
	t := template.New("top")
	t.Funcs(templateFuncs)
	template.Must(t.Parse(text))
	return t.Execute(w, data)
}

func formatUsage(c *cobra.Command) error {
	// the default UsageFunc() does some private magic c.mergePersistentFlags()
	// this should stay on top
	localFlags := c.LocalFlags()
	leafItems := pmdhist.Registry.GetLeaves()
	plumbingItems := pmdhist.Registry.GetPlumbingItems()
	filter := map[string]bool{}
	for _, l := range leafItems {
		filter[l.Flag()] = true
		for _, cfg := range l.ListConfigurationOptions() {
			filter[flagOf(cfg)] = true
		}
	}
	for _, i := range plumbingItems {
		for _, cfg := range i.ListConfigurationOptions() {
			filter[flagOf(cfg)] = true
		}
	}

	for key := range filter {
		localFlags.Lookup(key).Hidden = true
	}
	args := map[string]interface{}{
		"c":        c,
		"leaves":   leafItems,
		"plumbing": plumbingItems,
	}

	helpTemplate := `Usage:{{if .c.Runnable}}
  {{.c.UseLine}}{{end}}{{if .c.HasAvailableSubCommands}}
  {{.c.CommandPath}} [command]{{end}}{{if gt (len .c.Aliases) 0}}

Aliases:
  {{.c.NameAndAliases}}{{end}}{{if .c.HasExample}}

Examples:
{{.c.Example}}{{end}}{{if .c.HasAvailableSubCommands}}

Available Commands:{{range .c.Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .c.HasAvailableLocalFlags}}

Flags:
{{range $line := .c.LocalFlags.FlagUsages | trimTrailingWhitespaces | split "\n"}}
{{- $desc := splitList "   " $line | last}}
{{- $offset := sub ($desc | len) ($desc | trim | len)}}
{{- $indent := splitList "   " $line | initial | join "   " | len | add 3 | add $offset | int}}
{{- $wrap := sub 120 $indent | int}}
{{- splitList "   " $line | initial | join "   "}}   {{cat "!" $desc | wrap $wrap | indent $indent | substr $indent -1 | substr 2 -1}}
{{end}}{{end}}

Analysis Targets:{{range .leaves}}
      --{{rpad .Flag 40}}Runs {{.Name}} analysis.{{wrap 72 .Description | nindent 48}}{{range .ListConfigurationOptions}}
          --{{if .Type.String}}{{rpad (print .Flag " " .Type.String) 40}}{{else}}{{rpad .Flag 40}}{{end}}
          {{- $desc := dict "desc" .Description}}
          {{- if .Default}}{{$_ := set $desc "desc" (print .Description " The default value is " .FormatDefault ".")}}
          {{- end}}
          {{- $desc := pluck "desc" $desc | first}}
          {{- $desc | wrap 68 | indent 52 | substr 52 -1}}{{end}}
{{end}}

Plumbing Options:{{range .plumbing}}{{$name := .Name}}{{range .ListConfigurationOptions}}
      --{{if .Type.String}}{{rpad (print .Flag " " .Type.String " [" $name "]") 40}}{{else}}{{rpad (print .Flag " [" $name "]") 40}}
        {{- end}}
        {{- $desc := dict "desc" .Description}}
        {{- if .Default}}{{$_ := set $desc "desc" (print .Description " The default value is " .FormatDefault ".")}}
        {{- end}}
        {{- $desc := pluck "desc" $desc | first}}{{$desc | wrap 72 | indent 48 | substr 48 -1}}{{end}}{{end}}{{if .c.HasAvailableInheritedFlags}}

Global Flags:
{{.c.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .c.HasHelpSubCommands}}

Additional help topics:{{range .c.Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .c.HasAvailableSubCommands}}

Use "{{.c.CommandPath}} [command] --help" for more information about a command.{{end}}
`
	err := tmpl(c.OutOrStderr(), helpTemplate, args)
	for key := range filter {
		localFlags.Lookup(key).Hidden = false
	}
	if err != nil {
		c.Println(err)
	}
	return err
}

func flagOf(opt pmdhist.ConfigurationOption) string {
	if opt.Flag != "" {
		return opt.Flag
	}
	return core.FlagFromName(opt.Name)
}

// versionCmd prints the version and the Git commit hash
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information and exit.",
	Long:  ``,
	Args:  cobra.MaximumNArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version: %d\nGit:     %s\n", pmdhist.BinaryVersion, pmdhist.BinaryGitHash)
	},
}

var cmdlineFacts map[string]interface{}
var cmdlineDeployed map[string]*bool

func init() {
	rootFlags := rootCmd.Flags()
	rootFlags.String("commits", "", "Path to the text file with the "+
		"commit history to follow instead of the default 'git log'. "+
		"The format is the list of hashes, each hash on a "+
		"separate line. The first hash is the root.")
	err := rootCmd.MarkFlagFilename("commits")
	if err != nil {
		panic(err)
	}
	rootFlags.Bool("head", false, "Analyze only the latest commit.")
	rootFlags.Bool("first-parent", false, "Follow only the first parent in the commit history - "+
		"\"git log --first-parent\".")
	rootFlags.Int("max-commits", 0, "Stop after this many commits. 0 means the whole history.")
	rootFlags.String("config", "", "Path to a YAML file with the run configuration. "+
		"Explicit flags take precedence over the file.")
	err = rootCmd.MarkFlagFilename("config")
	if err != nil {
		panic(err)
	}
	rootFlags.String("pmd-version", pmd.DefaultVersion, "Version of the PMD distribution "+
		"to download when --pmd-path is not given.")
	rootFlags.String("pmd-path", "", "Path to an existing PMD launcher to use instead of downloading.")
	err = rootCmd.MarkFlagFilename("pmd-path")
	if err != nil {
		panic(err)
	}
	rootFlags.String("pmd-dir", "pmd", "Directory to install the downloaded PMD distribution into.")
	rootFlags.Bool("skip-download", false, "Fail instead of downloading PMD "+
		"when no installation is found.")
	rootFlags.Bool("quiet", !terminal.IsTerminal(int(os.Stdin.Fd())),
		"Do not print status updates to stderr.")
	rootFlags.String("ssh-identity", "", "Path to SSH identity file (e.g., ~/.ssh/id_rsa) to clone from an SSH remote.")
	err = rootCmd.MarkFlagFilename("ssh-identity")
	if err != nil {
		panic(err)
	}
	cmdlineFacts, cmdlineDeployed = pmdhist.Registry.AddFlags(rootFlags)
	rootCmd.SetUsageFunc(formatUsage)
	rootCmd.AddCommand(versionCmd)
	versionCmd.SetUsageFunc(versionCmd.UsageFunc())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
