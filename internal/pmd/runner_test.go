package pmd

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
)

// fakeLauncher writes a shell script which mimics the PMD CLI: it copies the
// canned report into the path after the -r flag and exits with the given code.
func fakeLauncher(t *testing.T, report string, exitCode int, sleep string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("the fake launcher is a POSIX shell script")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "pmd")
	body := fmt.Sprintf(`#!/bin/sh
%s
while [ $# -gt 0 ]; do
  if [ "$1" = "-r" ]; then
    report="$2"
    shift
  fi
  shift
done
cat > "$report" <<'EOF'
%s
EOF
exit %d
`, sleep, report, exitCode)
	require.NoError(t, ioutil.WriteFile(script, []byte(body), 0755))
	return script
}

const fakeReport = `<pmd xmlns="http://pmd.sourceforge.net/report/2.0.0">` +
	`<file name="A.java"><violation beginline="1" endline="1" begincolumn="1" ` +
	`endcolumn="1" rule="R" ruleset="S" priority="3">m</violation></file></pmd>`

func TestRunnerViolationsFoundIsSuccess(t *testing.T) {
	binary := fakeLauncher(t, fakeReport, 4, "")
	runner := NewRunner(binary, time.Minute, nil)
	raw, err := runner.Analyze(context.Background(), t.TempDir(), "ruleset.xml")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "violation")
}

func TestRunnerCleanExit(t *testing.T) {
	binary := fakeLauncher(t, `<pmd xmlns="http://pmd.sourceforge.net/report/2.0.0"></pmd>`, 0, "")
	runner := NewRunner(binary, time.Minute, nil)
	raw, err := runner.Analyze(context.Background(), t.TempDir(), "ruleset.xml")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<pmd")
}

func TestRunnerProcessingErrorsKeepPartialReport(t *testing.T) {
	binary := fakeLauncher(t, fakeReport, 5, "")
	runner := NewRunner(binary, time.Minute, nil)
	raw, err := runner.Analyze(context.Background(), t.TempDir(), "ruleset.xml")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "violation")
}

func TestRunnerCrashIsCommitLocal(t *testing.T) {
	binary := fakeLauncher(t, "", 1, "")
	runner := NewRunner(binary, time.Minute, nil)
	_, err := runner.Analyze(context.Background(), t.TempDir(), "ruleset.xml")
	require.Error(t, err)
	failure := core.AsFailure(err)
	require.NotNil(t, failure)
	assert.Equal(t, core.FailureCrash, failure.Reason)
}

func TestRunnerMissingBinary(t *testing.T) {
	runner := NewRunner(filepath.Join(t.TempDir(), "nope"), time.Minute, nil)
	_, err := runner.Analyze(context.Background(), t.TempDir(), "ruleset.xml")
	require.Error(t, err)
	failure := core.AsFailure(err)
	require.NotNil(t, failure)
	assert.Equal(t, core.FailureCrash, failure.Reason)
}

func TestRunnerTimeout(t *testing.T) {
	// the script forks the sleeper, so the kill must reach the whole process
	// group or the output pipe stays open for the sleeper's full runtime
	binary := fakeLauncher(t, fakeReport, 4, "sleep 5")
	runner := NewRunner(binary, 100*time.Millisecond, nil)
	start := time.Now()
	_, err := runner.Analyze(context.Background(), t.TempDir(), "ruleset.xml")
	require.Error(t, err)
	failure := core.AsFailure(err)
	require.NotNil(t, failure)
	assert.Equal(t, core.FailureTimeout, failure.Reason)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCheckJavaMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	assert.Error(t, CheckJava(context.Background()))
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", firstLine([]byte("  one\ntwo\n")))
	assert.Equal(t, "", firstLine(nil))
}
