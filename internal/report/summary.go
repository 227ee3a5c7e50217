package report

import (
	"sort"
	"time"
)

// RepositoryStat aggregates the whole run at the commit level. Averages are taken
// over analyzed commits only; failed ones are counted apart and never dilute them.
type RepositoryStat struct {
	NumberOfCommits       int     `json:"number_of_commits"`
	NumberOfFailedCommits int     `json:"number_of_failed_commits"`
	AvgOfNumJavaFiles     float64 `json:"avg_of_num_java_files"`
	AvgOfNumWarnings      float64 `json:"avg_of_num_warnings"`
	FirstCommitDate       string  `json:"first_commit_date,omitempty"`
	LastCommitDate        string  `json:"last_commit_date,omitempty"`
	TotalViolations       int     `json:"total_violations"`
	TotalJavaFiles        int     `json:"total_java_files"`
}

// RuleStat aggregates one rule across the run.
type RuleStat struct {
	Rule             string  `json:"rule"`
	Total            int     `json:"total"`
	CommitsAffected  int     `json:"commits_affected"`
	AveragePerCommit float64 `json:"average_per_commit"`
}

// TrendDirection labels how a metric moved over the run.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendWorsening TrendDirection = "worsening"
	TrendStable    TrendDirection = "stable"
)

// TemporalTrends carries the least-squares slopes of the density metrics over the
// traversal order, plus a coarse direction label.
type TemporalTrends struct {
	ViolationsPerFileSlope      float64        `json:"violations_per_file_slope"`
	ViolationsPer1000LinesSlope float64        `json:"violations_per_1000_lines_slope"`
	JavaFilesSlope              float64        `json:"java_files_slope"`
	DensityDirection            TrendDirection `json:"density_direction"`
}

// QualityMetrics are the run-level code-health indicators.
type QualityMetrics struct {
	ViolationDensity float64 `json:"violation_density"`
	CleanFileRatio   float64 `json:"clean_file_ratio"`
	AverageQuality   float64 `json:"average_quality_ratio"`
}

// FailedCommit names one commit-local failure in the summary.
type FailedCommit struct {
	Hash   string `json:"hash"`
	Reason string `json:"reason"`
}

// SummaryRecord is the single run-level roll-up document.
type SummaryRecord struct {
	Location           string                  `json:"location"`
	GeneratedAt        string                  `json:"generated_at"`
	StatOfRepository   RepositoryStat          `json:"stat_of_repository"`
	StatOfWarnings     map[string]int          `json:"stat_of_warnings"`
	WarningsByPriority map[int]int             `json:"violation_by_priority"`
	Distributions      map[string]Distribution `json:"distributions"`
	RuleStatistics     []RuleStat              `json:"rule_statistics"`
	TemporalTrends     TemporalTrends          `json:"temporal_trends"`
	QualityMetrics     QualityMetrics          `json:"quality_metrics"`
	FailedCommits      []FailedCommit          `json:"failed_commits"`
}

// SummaryState accumulates commit records into the data needed for a SummaryRecord.
// Fold is pure with respect to the records: feeding the same records in the same
// order always yields the same summary.
type SummaryState struct {
	location string

	analyzed int
	failed   []FailedCommit

	firstDate string
	lastDate  string

	totalFiles      int
	totalLines      int
	totalViolations int
	cleanFiles      int

	warnings    map[string]int
	ruleCommits map[string]int
	byPriority  map[int]int

	filesSeries   []float64
	warnSeries    []float64
	perFileSeries []float64
	perKLOCSeries []float64
	qualitySeries []float64
	linesPerFile  []float64
}

// NewSummaryState starts an empty accumulation for the given repository location.
func NewSummaryState(location string) *SummaryState {
	return &SummaryState{
		location:    location,
		warnings:    map[string]int{},
		ruleCommits: map[string]int{},
		byPriority:  map[int]int{},
	}
}

// Fold absorbs one commit record. Failed commits contribute only to the failure
// roll; analyzed ones feed every aggregate, including zero-file commits.
func (s *SummaryState) Fold(record *CommitRecord) {
	if record.Failed() {
		s.failed = append(s.failed, FailedCommit{
			Hash:   record.Commit.Hash,
			Reason: record.FailureReason,
		})
		return
	}
	s.analyzed++
	if s.firstDate == "" {
		s.firstDate = record.Commit.Date
	}
	s.lastDate = record.Commit.Date

	files := record.JavaFiles.Count()
	s.totalFiles += files
	s.totalLines += record.JavaFiles.TotalLines
	s.totalViolations += record.Analysis.ViolationCount
	s.cleanFiles += files - record.Analysis.FilesWithViolations

	for rule, n := range record.Statistics.RuleFrequency {
		s.warnings[rule] += n
		s.ruleCommits[rule]++
	}
	for priority, n := range record.Statistics.ViolationsByPriority {
		s.byPriority[priority] += n
	}

	s.filesSeries = append(s.filesSeries, float64(files))
	s.warnSeries = append(s.warnSeries, float64(record.Analysis.ViolationCount))
	s.perFileSeries = append(s.perFileSeries, record.Statistics.ViolationsPerFile)
	s.perKLOCSeries = append(s.perKLOCSeries, record.Statistics.ViolationsPer1000Lines)
	s.qualitySeries = append(s.qualitySeries, record.Statistics.QualityRatio)
	s.linesPerFile = append(s.linesPerFile, record.Statistics.AverageLinesPerFile)
}

// Finalize closes the accumulation and emits the summary document.
func (s *SummaryState) Finalize() *SummaryRecord {
	summary := &SummaryRecord{
		Location:    s.location,
		GeneratedAt: time.Now().Format(time.RFC3339),
		StatOfRepository: RepositoryStat{
			NumberOfCommits:       s.analyzed,
			NumberOfFailedCommits: len(s.failed),
			FirstCommitDate:       s.firstDate,
			LastCommitDate:        s.lastDate,
			TotalViolations:       s.totalViolations,
			TotalJavaFiles:        s.totalFiles,
		},
		StatOfWarnings:     s.warnings,
		WarningsByPriority: s.byPriority,
		Distributions: map[string]Distribution{
			"java_files":                DescribeSample(s.filesSeries),
			"violations":                DescribeSample(s.warnSeries),
			"violations_per_file":       DescribeSample(s.perFileSeries),
			"violations_per_1000_lines": DescribeSample(s.perKLOCSeries),
			"average_lines_per_file":    DescribeSample(s.linesPerFile),
		},
		FailedCommits: s.failed,
	}
	if summary.FailedCommits == nil {
		summary.FailedCommits = []FailedCommit{}
	}
	if s.analyzed > 0 {
		n := float64(s.analyzed)
		summary.StatOfRepository.AvgOfNumJavaFiles = float64(s.totalFiles) / n
		summary.StatOfRepository.AvgOfNumWarnings = float64(s.totalViolations) / n
	}

	summary.RuleStatistics = make([]RuleStat, 0, len(s.warnings))
	for rule, total := range s.warnings {
		stat := RuleStat{
			Rule:            rule,
			Total:           total,
			CommitsAffected: s.ruleCommits[rule],
		}
		if s.analyzed > 0 {
			stat.AveragePerCommit = float64(total) / float64(s.analyzed)
		}
		summary.RuleStatistics = append(summary.RuleStatistics, stat)
	}
	sort.Slice(summary.RuleStatistics, func(i, j int) bool {
		left, right := summary.RuleStatistics[i], summary.RuleStatistics[j]
		if left.Total != right.Total {
			return left.Total > right.Total
		}
		return left.Rule < right.Rule
	})

	xs := make([]float64, len(s.perFileSeries))
	for i := range xs {
		xs[i] = float64(i)
	}
	summary.TemporalTrends = TemporalTrends{
		ViolationsPerFileSlope:      slope(xs, s.perFileSeries),
		ViolationsPer1000LinesSlope: slope(xs, s.perKLOCSeries),
		JavaFilesSlope:              slope(xs, s.filesSeries),
	}
	summary.TemporalTrends.DensityDirection = classifyTrend(
		summary.TemporalTrends.ViolationsPerFileSlope)

	if s.totalLines > 0 {
		summary.QualityMetrics.ViolationDensity =
			float64(s.totalViolations) / float64(s.totalLines) * 1000
	}
	if s.totalFiles > 0 {
		summary.QualityMetrics.CleanFileRatio =
			float64(s.cleanFiles) / float64(s.totalFiles)
	}
	summary.QualityMetrics.AverageQuality = DescribeSample(s.qualitySeries).Mean
	return summary
}

// classifyTrend maps a slope to a direction with a small dead zone so that noise
// around zero reads as stable.
func classifyTrend(perFileSlope float64) TrendDirection {
	const epsilon = 1e-3
	switch {
	case perFileSlope > epsilon:
		return TrendWorsening
	case perFileSlope < -epsilon:
		return TrendImproving
	default:
		return TrendStable
	}
}
