package pmd

import (
	"bytes"
	"encoding/xml"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Violation is one normalized rule infraction reported by the analyzer.
type Violation struct {
	// Rule is the canonical rule identifier, stable across analyzer versions.
	Rule string `json:"rule"`
	// Ruleset is the human readable ruleset name the rule belongs to.
	Ruleset string `json:"ruleset,omitempty"`
	// Priority is the PMD priority, 1 (highest) to 5 (lowest).
	Priority int `json:"priority"`
	// File is the path of the offending file, relative to the snapshot root.
	File string `json:"file"`
	// Line is the first line of the reported range.
	Line int `json:"line"`
	// Column is the first column of the reported range.
	Column int `json:"column,omitempty"`
	// EndLine is the last line of the reported range.
	EndLine int `json:"end_line,omitempty"`
	// EndColumn is the last column of the reported range.
	EndColumn int `json:"end_column,omitempty"`
	// Message is the rule's explanation text.
	Message string `json:"message"`
}

// Report is the normalized result of one analyzer invocation.
type Report struct {
	// Violations are ordered the way the analyzer emitted them.
	Violations []Violation
	// ProcessingErrors counts the <error> entries of the report - files the
	// analyzer could not process. They do not fail the commit.
	ProcessingErrors int
	// TruncatedAfter is the number of violations recovered before the report
	// became structurally invalid, or -1 when the whole report parsed cleanly.
	TruncatedAfter int
}

// FilesWithViolations returns the number of distinct files with at least one violation.
func (r *Report) FilesWithViolations() int {
	files := map[string]struct{}{}
	for _, v := range r.Violations {
		files[v.File] = struct{}{}
	}
	return len(files)
}

// Rules returns the sorted list of distinct canonical rule identifiers.
func (r *Report) Rules() []string {
	set := map[string]struct{}{}
	for _, v := range r.Violations {
		set[v.Rule] = struct{}{}
	}
	rules := make([]string, 0, len(set))
	for rule := range set {
		rules = append(rules, rule)
	}
	sort.Strings(rules)
	return rules
}

// ErrMalformed is returned by Parse when no structurally valid prefix of the
// analyzer output could be recovered.
var ErrMalformed = errors.New("malformed analyzer output")

// CanonicalRule reduces a rule identifier to its canonical short form. The
// analyzer reports rules under several namespacing conventions depending on the
// version: "UnusedLocalVariable", "java.bestpractices.UnusedLocalVariable" or
// "category/java/bestpractices.xml/UnusedLocalVariable". The canonical form is
// the last segment.
func CanonicalRule(raw string) string {
	rule := raw
	if idx := strings.LastIndexByte(rule, '/'); idx >= 0 {
		rule = rule[idx+1:]
	}
	if idx := strings.LastIndexByte(rule, '.'); idx >= 0 {
		rule = rule[idx+1:]
	}
	return strings.TrimSpace(rule)
}

type xmlViolation struct {
	BeginLine   int    `xml:"beginline,attr"`
	EndLine     int    `xml:"endline,attr"`
	BeginColumn int    `xml:"begincolumn,attr"`
	EndColumn   int    `xml:"endcolumn,attr"`
	Rule        string `xml:"rule,attr"`
	Ruleset     string `xml:"ruleset,attr"`
	Priority    int    `xml:"priority,attr"`
	Message     string `xml:",chardata"`
}

type xmlFile struct {
	Name       string         `xml:"name,attr"`
	Violations []xmlViolation `xml:"violation"`
}

// Parse decodes the analyzer's XML report into a normalized Report.
//
// The decoder matches local element names only, so both the namespaced
// (xmlns="http://pmd.sourceforge.net/report/2.0.0") and the bare variants are
// accepted. File paths are rebased onto the snapshot root. Empty input is a
// valid report with no violations.
//
// When the document is only partially valid, the structurally sound prefix is
// kept and Report.TruncatedAfter records how much was recovered; ErrMalformed
// is returned only if nothing could be recovered at all.
func Parse(raw []byte, snapshotRoot string) (*Report, error) {
	report := &Report{TruncatedAfter: -1}
	if len(bytes.TrimSpace(raw)) == 0 {
		return report, nil
	}
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	sawRoot := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			if !sawRoot || len(report.Violations) == 0 {
				return nil, errors.Wrap(ErrMalformed, err.Error())
			}
			report.TruncatedAfter = len(report.Violations)
			return report, nil
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "pmd":
			sawRoot = true
		case "file":
			var file xmlFile
			if err := decoder.DecodeElement(&file, &start); err != nil {
				if len(report.Violations) == 0 {
					return nil, errors.Wrap(ErrMalformed, err.Error())
				}
				report.TruncatedAfter = len(report.Violations)
				return report, nil
			}
			name := relativeTo(file.Name, snapshotRoot)
			for _, v := range file.Violations {
				report.Violations = append(report.Violations, Violation{
					Rule:      CanonicalRule(v.Rule),
					Ruleset:   v.Ruleset,
					Priority:  v.Priority,
					File:      name,
					Line:      v.BeginLine,
					Column:    v.BeginColumn,
					EndLine:   v.EndLine,
					EndColumn: v.EndColumn,
					Message:   strings.TrimSpace(v.Message),
				})
			}
		case "error":
			report.ProcessingErrors++
			if err := decoder.Skip(); err != nil && err != io.EOF {
				report.TruncatedAfter = len(report.Violations)
				return report, nil
			}
		}
	}
	if !sawRoot {
		return nil, errors.Wrap(ErrMalformed, "missing <pmd> root element")
	}
	return report, nil
}

func relativeTo(name, root string) string {
	if root == "" || !filepath.IsAbs(name) {
		return filepath.ToSlash(name)
	}
	rel, err := filepath.Rel(root, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(name)
	}
	return filepath.ToSlash(rel)
}
