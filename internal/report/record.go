package report

import (
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/Lbyrigitte/pmd-analysis/internal/core"
	"github.com/Lbyrigitte/pmd-analysis/internal/pmd"
)

// StatusAnalyzed marks a commit whose analysis completed, possibly with zero findings.
const StatusAnalyzed = "analyzed"

// StatusFailed marks a commit which hit a commit-local failure in any stage.
const StatusFailed = "failed"

// Signature identifies an author or committer.
type Signature struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Descriptor carries the identity and metadata of one commit. It is produced once
// from the go-git commit object and never mutated afterwards.
type Descriptor struct {
	Hash      string    `json:"hash"`
	ShortHash string    `json:"short_hash"`
	Author    Signature `json:"author"`
	Committer Signature `json:"committer"`
	// Date is the committer timestamp in RFC 3339 form.
	Date string `json:"date"`
	// Timestamp is the committer timestamp as UNIX seconds.
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
	// Ordinal is the commit's 0-based position in the selected traversal.
	Ordinal int `json:"ordinal"`
}

// Describe builds the immutable descriptor of a commit at the given traversal position.
func Describe(commit *object.Commit, ordinal int) Descriptor {
	return Descriptor{
		Hash:      commit.Hash.String(),
		ShortHash: commit.Hash.String()[:8],
		Author:    Signature{Name: commit.Author.Name, Email: commit.Author.Email},
		Committer: Signature{Name: commit.Committer.Name, Email: commit.Committer.Email},
		Date:      commit.Committer.When.Format(time.RFC3339),
		Timestamp: commit.Committer.When.Unix(),
		Message:   strings.TrimSpace(commit.Message),
		Ordinal:   ordinal,
	}
}

// FileStat describes one source file of interest inside a snapshot.
type FileStat struct {
	Path  string `json:"path"`
	Lines int    `json:"lines"`
}

// Inventory is the subset of a snapshot classified as source files of interest,
// with their line counts.
type Inventory struct {
	Files      []FileStat `json:"files"`
	TotalLines int        `json:"total_lines"`
}

// Count returns the number of inventoried files.
func (inv *Inventory) Count() int {
	return len(inv.Files)
}

// Analysis summarizes the normalized analyzer findings of one commit.
type Analysis struct {
	ViolationCount      int             `json:"violation_count"`
	FilesWithViolations int             `json:"files_with_violations"`
	RulesViolated       []string        `json:"rules_violated"`
	ProcessingErrors    int             `json:"processing_errors,omitempty"`
	Violations          []pmd.Violation `json:"violations"`
}

// Statistics carries the derived per-commit metrics.
type Statistics struct {
	ViolationsPerFile        float64 `json:"violations_per_file"`
	ViolationsPer1000Lines   float64 `json:"violations_per_1000_lines"`
	FilesWithViolationsRatio float64 `json:"files_with_violations_ratio"`
	AverageLinesPerFile      float64 `json:"average_lines_per_file"`
	// QualityRatio is 1/(1+violations per file): 1 for a clean commit, strictly
	// decreasing in violation density, never below 0.
	QualityRatio         float64        `json:"quality_ratio"`
	ViolationsByPriority map[int]int    `json:"violation_by_priority"`
	RuleFrequency        map[string]int `json:"rule_frequency"`
}

// CommitRecord is the per-commit result document. Exactly one record exists per
// processed commit hash; a failed commit produces a failure-tagged record, not a
// missing one. Records are written once and never updated.
type CommitRecord struct {
	Commit        Descriptor `json:"commit"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failure_reason,omitempty"`
	JavaFiles     Inventory  `json:"java_files"`
	Analysis      Analysis   `json:"pmd_analysis"`
	Statistics    Statistics `json:"statistics"`
	ProcessedAt   string     `json:"processed_at"`
}

// Failed reports whether the commit ended with a commit-local failure.
func (r *CommitRecord) Failed() bool {
	return r.Status == StatusFailed
}

// Build assembles the record of one commit. A nil failure means the commit was
// analyzed; rep may still be nil for an analyzed commit with no source files.
// A commit with zero files yields all-zero metrics, never a division fault.
func Build(desc Descriptor, inv *Inventory, rep *pmd.Report, failure *core.Failure) *CommitRecord {
	record := &CommitRecord{
		Commit:      desc,
		Status:      StatusAnalyzed,
		ProcessedAt: time.Now().Format(time.RFC3339),
	}
	if failure != nil {
		record.Status = StatusFailed
		record.FailureReason = string(failure.Reason)
	}
	if inv != nil {
		record.JavaFiles = *inv
	}
	if record.JavaFiles.Files == nil {
		record.JavaFiles.Files = []FileStat{}
	}
	if rep == nil {
		rep = &pmd.Report{TruncatedAfter: -1}
	}
	record.Analysis = Analysis{
		ViolationCount:      len(rep.Violations),
		FilesWithViolations: rep.FilesWithViolations(),
		RulesViolated:       rep.Rules(),
		ProcessingErrors:    rep.ProcessingErrors,
		Violations:          rep.Violations,
	}
	if record.Analysis.Violations == nil {
		record.Analysis.Violations = []pmd.Violation{}
	}
	record.Statistics = deriveStatistics(&record.JavaFiles, &record.Analysis)
	return record
}

func deriveStatistics(inv *Inventory, analysis *Analysis) Statistics {
	stats := Statistics{
		ViolationsByPriority: map[int]int{},
		RuleFrequency:        map[string]int{},
	}
	files := inv.Count()
	violations := analysis.ViolationCount
	if files > 0 {
		stats.ViolationsPerFile = float64(violations) / float64(files)
		stats.FilesWithViolationsRatio = float64(analysis.FilesWithViolations) / float64(files)
		stats.AverageLinesPerFile = float64(inv.TotalLines) / float64(files)
	}
	if inv.TotalLines > 0 {
		stats.ViolationsPer1000Lines = float64(violations) / float64(inv.TotalLines) * 1000
	}
	stats.QualityRatio = 1 / (1 + stats.ViolationsPerFile)
	for _, v := range analysis.Violations {
		stats.ViolationsByPriority[v.Priority]++
		stats.RuleFrequency[v.Rule]++
	}
	return stats
}

// SortFiles orders the inventory files by path for deterministic output.
func (inv *Inventory) SortFiles() {
	sort.Slice(inv.Files, func(i, j int) bool {
		return inv.Files[i].Path < inv.Files[j].Path
	})
}
