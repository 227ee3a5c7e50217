package pmd

import (
	"context"
	"io/ioutil"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
)

// Analyzer runs a static analyzer over a materialized snapshot and returns the
// raw report bytes. Implementations must bound their own execution time.
// The pipeline is tested against a fake implementation returning canned output.
type Analyzer interface {
	Analyze(ctx context.Context, sourceDir, rulesetPath string) ([]byte, error)
}

// PMD exit codes, see https://docs.pmd-code.org/latest/pmd_userdocs_cli_reference.html.
const (
	exitNoViolations     = 0
	exitViolationsFound  = 4
	exitProcessingErrors = 5
)

// Runner invokes the PMD launcher as an isolated subprocess.
type Runner struct {
	// Binary is the absolute path of the PMD launcher script.
	Binary string
	// Timeout bounds one invocation. On expiry the subprocess is killed and the
	// commit is failed with reason "timeout".
	Timeout time.Duration

	l core.Logger
}

// NewRunner constructs a Runner around an installed PMD launcher.
func NewRunner(binary string, timeout time.Duration, logger core.Logger) *Runner {
	if logger == nil {
		logger = core.NewLogger()
	}
	return &Runner{Binary: binary, Timeout: timeout, l: logger}
}

// Analyze runs `pmd check` over sourceDir with the given ruleset and returns the
// XML report bytes.
//
// Exit codes 0 and 4 are success; 4 only means violations were found. Exit code
// 5 means PMD hit per-file processing errors but still produced a usable partial
// report, which is logged and kept. Anything else is a commit-local crash
// failure, and exceeding Timeout is a commit-local timeout failure; neither
// aborts the run.
func (r *Runner) Analyze(ctx context.Context, sourceDir, rulesetPath string) ([]byte, error) {
	reportFile, err := ioutil.TempFile("", "pmd-report-*.xml")
	if err != nil {
		return nil, errors.Wrap(err, "unable to allocate the report file")
	}
	reportPath := reportFile.Name()
	reportFile.Close()
	defer os.Remove(reportPath)

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, r.Binary, "check",
		"-d", sourceDir,
		"-R", rulesetPath,
		"-f", "xml",
		"-r", reportPath,
		"--no-cache",
		"--fail-on-violation=false")
	terminateGroup(cmd)
	// a descendant which survives the kill must not hold the output pipe open
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, core.NewFailuref(core.FailureTimeout,
			"analyzer exceeded the time budget of %s", r.Timeout)
	}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, core.NewFailure(core.FailureCrash,
				errors.Wrap(err, "unable to start the analyzer"))
		}
		switch code := exitErr.ExitCode(); code {
		case exitViolationsFound:
			// expected when findings exist
		case exitProcessingErrors:
			r.l.Warnf("analyzer reported processing errors, keeping the partial report: %s",
				firstLine(output))
		default:
			return nil, core.NewFailuref(core.FailureCrash,
				"analyzer exited with code %d: %s", code, firstLine(output))
		}
	}
	raw, err := ioutil.ReadFile(reportPath)
	if err != nil {
		return nil, core.NewFailure(core.FailureCrash,
			errors.Wrap(err, "unable to read the analyzer report"))
	}
	return raw, nil
}

// CheckJava verifies that a Java runtime is reachable through PATH. PMD is a
// JVM tool; failing fast here turns a confusing subprocess error into a clear
// fatal run-level one.
func CheckJava(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(checkCtx, "java", "-version")
	if output, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err,
			"java is not available, install Java 11+ and ensure it is in PATH (%s)",
			firstLine(output))
	}
	return nil
}

func firstLine(output []byte) string {
	text := strings.TrimSpace(string(output))
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return text
}
