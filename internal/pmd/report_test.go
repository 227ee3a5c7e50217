package pmd

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = `<?xml version="1.0" encoding="UTF-8"?>
<pmd xmlns="http://pmd.sourceforge.net/report/2.0.0" version="7.15.0" timestamp="2024-03-01T12:00:00">
<file name="/scratch/abc/src/main/java/com/example/Foo.java">
<violation beginline="10" endline="12" begincolumn="5" endcolumn="20" rule="UnusedLocalVariable" ruleset="Best Practices" priority="3">
Avoid unused local variables such as 'x'.
</violation>
<violation beginline="30" endline="30" begincolumn="1" endcolumn="8" rule="EmptyCatchBlock" ruleset="Error Prone" priority="1">
Avoid empty catch blocks
</violation>
</file>
<file name="/scratch/abc/src/main/java/com/example/Bar.java">
<violation beginline="3" endline="3" begincolumn="1" endcolumn="10" rule="UnusedLocalVariable" ruleset="Best Practices" priority="3">
Avoid unused local variables such as 'y'.
</violation>
</file>
<error filename="/scratch/abc/src/main/java/com/example/Broken.java" msg="PMDException: cannot parse"/>
</pmd>
`

func TestParseSampleReport(t *testing.T) {
	report, err := Parse([]byte(sampleReport), "/scratch/abc")
	require.NoError(t, err)
	require.Len(t, report.Violations, 3)
	assert.Equal(t, -1, report.TruncatedAfter)
	assert.Equal(t, 1, report.ProcessingErrors)

	first := report.Violations[0]
	assert.Equal(t, "UnusedLocalVariable", first.Rule)
	assert.Equal(t, "Best Practices", first.Ruleset)
	assert.Equal(t, 3, first.Priority)
	assert.Equal(t, "src/main/java/com/example/Foo.java", first.File)
	assert.Equal(t, 10, first.Line)
	assert.Equal(t, 5, first.Column)
	assert.Equal(t, 12, first.EndLine)
	assert.Equal(t, 20, first.EndColumn)
	assert.Equal(t, "Avoid unused local variables such as 'x'.", first.Message)

	assert.Equal(t, 2, report.FilesWithViolations())
	assert.Equal(t, []string{"EmptyCatchBlock", "UnusedLocalVariable"}, report.Rules())
}

func TestParseWithoutNamespace(t *testing.T) {
	raw := `<pmd version="6.55.0"><file name="A.java">` +
		`<violation beginline="1" endline="1" begincolumn="1" endcolumn="2" ` +
		`rule="GodClass" ruleset="Design" priority="2">Too big.</violation></file></pmd>`
	report, err := Parse([]byte(raw), "")
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "GodClass", report.Violations[0].Rule)
	assert.Equal(t, "A.java", report.Violations[0].File)
}

func TestParseEmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   \n\t"} {
		report, err := Parse([]byte(raw), "/scratch/abc")
		require.NoError(t, err)
		assert.Empty(t, report.Violations)
		assert.Equal(t, -1, report.TruncatedAfter)
	}
}

func TestParseEmptyReport(t *testing.T) {
	raw := `<?xml version="1.0"?><pmd xmlns="http://pmd.sourceforge.net/report/2.0.0"></pmd>`
	report, err := Parse([]byte(raw), "/scratch/abc")
	require.NoError(t, err)
	assert.Empty(t, report.Violations)
}

func TestParseMalformed(t *testing.T) {
	for _, raw := range []string{
		"not xml at all",
		`{"this": "is json"}`,
		`<html><body>502 Bad Gateway</body></html>`,
	} {
		_, err := Parse([]byte(raw), "")
		require.Error(t, err, raw)
		assert.Equal(t, ErrMalformed, errors.Cause(err))
	}
}

func TestParseTruncated(t *testing.T) {
	truncated := `<pmd><file name="A.java">` +
		`<violation beginline="1" endline="1" begincolumn="1" endcolumn="2" ` +
		`rule="GodClass" ruleset="Design" priority="2">Too big.</violation></file>` +
		`<file name="B.java"><violation beginline="5"`
	report, err := Parse([]byte(truncated), "")
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, 1, report.TruncatedAfter)
}

func TestCanonicalRule(t *testing.T) {
	cases := map[string]string{
		"UnusedLocalVariable":                                 "UnusedLocalVariable",
		"java.bestpractices.UnusedLocalVariable":              "UnusedLocalVariable",
		"category/java/bestpractices.xml/UnusedLocalVariable": "UnusedLocalVariable",
		" SpacedRule ": "SpacedRule",
	}
	for raw, expected := range cases {
		assert.Equal(t, expected, CanonicalRule(raw), raw)
	}
}

func TestParseKeepsAbsolutePathOutsideRoot(t *testing.T) {
	raw := `<pmd><file name="/elsewhere/C.java">` +
		`<violation beginline="1" endline="1" begincolumn="1" endcolumn="1" ` +
		`rule="R" ruleset="S" priority="4">m</violation></file></pmd>`
	report, err := Parse([]byte(raw), "/scratch/abc")
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, "/elsewhere/C.java", report.Violations[0].File)
}
