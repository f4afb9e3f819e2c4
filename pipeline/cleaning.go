package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cardiopredict/clinical"
)

// CleaningRule 清洗规则
type CleaningRule interface {
	Apply(*Sample) error
	Name() string
}

// CleaningPolicy decides what happens to rows with quality issues.
type CleaningPolicy string

const (
	// CleanKeep reports issues but keeps every row, matching how the dataset
	// has always been trained on.
	CleanKeep CleaningPolicy = "keep"
	// CleanDrop removes rows with any issue.
	CleanDrop CleaningPolicy = "drop"
	// CleanImpute replaces zero measurements with the column median before
	// the rules run, then drops rows that still have issues.
	CleanImpute CleaningPolicy = "impute"
)

func ParseCleaningPolicy(s string) (CleaningPolicy, error) {
	switch p := CleaningPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return CleanKeep, nil
	case CleanKeep, CleanDrop, CleanImpute:
		return p, nil
	}
	return "", fmt.Errorf("unknown cleaning policy %q", s)
}

// QualityIssue 质量问题
type QualityIssue struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"` // low, medium, high
	Message  string `json:"message"`
	Line     int    `json:"line"`
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Flagged        int64            `json:"flagged"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// DataCleaner 数据清洗器. Duplicate detection remembers every row it has seen,
// so use one cleaner per dataset.
type DataCleaner struct {
	policy CleaningPolicy
	rules  []CleaningRule

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewDataCleaner 创建数据清洗器
func NewDataCleaner(policy CleaningPolicy) *DataCleaner {
	cleaner := &DataCleaner{
		policy: policy,
		stats:  CleaningStats{Issues: make(map[string]int64)},
	}

	// 默认规则
	cleaner.AddRule(NewZeroMeasurementRule())
	cleaner.AddRule(NewRangeValidationRule())
	cleaner.AddRule(NewDuplicateDetectionRule())
	return cleaner
}

// AddRule 添加清洗规则
func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

func (dc *DataCleaner) Policy() CleaningPolicy {
	return dc.policy
}

// Clean 清洗数据. The input slice is not modified.
func (dc *DataCleaner) Clean(samples []Sample) ([]Sample, []QualityIssue) {
	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	work := append([]Sample(nil), samples...)
	if dc.policy == CleanImpute {
		dc.stats.Corrected += int64(imputeZeroMeasurements(work))
	}

	cleaned := make([]Sample, 0, len(work))
	var issues []QualityIssue
	for i := range work {
		sample := &work[i]
		dc.stats.TotalProcessed++

		var sampleIssues []QualityIssue
		for _, rule := range dc.rules {
			if err := rule.Apply(sample); err != nil {
				sampleIssues = append(sampleIssues, QualityIssue{
					Rule:     rule.Name(),
					Severity: severityOf(rule),
					Message:  err.Error(),
					Line:     sample.Line,
				})
				dc.stats.Issues[rule.Name()]++
			}
		}

		if len(sampleIssues) == 0 {
			dc.stats.Passed++
			cleaned = append(cleaned, *sample)
			continue
		}
		issues = append(issues, sampleIssues...)
		if dc.policy == CleanKeep {
			dc.stats.Flagged++
			cleaned = append(cleaned, *sample)
			continue
		}
		dc.stats.Rejected++
	}

	dc.stats.LastClean = time.Now()
	return cleaned, issues
}

// GetStats 获取统计信息
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

type severityRule interface {
	Severity() string
}

func severityOf(rule CleaningRule) string {
	if s, ok := rule.(severityRule); ok {
		return s.Severity()
	}
	return "high"
}

// ============ 清洗规则实现 ============

// RangeValidationRule applies the same plausibility ranges and category checks
// as request validation.
type RangeValidationRule struct {
	validator clinical.Validator
}

func NewRangeValidationRule() *RangeValidationRule {
	return &RangeValidationRule{validator: clinical.NewValidator(clinical.PolicyStrict)}
}

func (r *RangeValidationRule) Name() string {
	return "range_validation"
}

func (r *RangeValidationRule) Apply(sample *Sample) error {
	err := r.validator.ValidateRecord(sample.Record)
	if verr, ok := err.(*clinical.ValidationError); ok {
		return fmt.Errorf("%s", strings.Join(verr.Messages(), "; "))
	}
	return err
}

// ZeroMeasurementRule flags resting blood pressure or cholesterol recorded as
// 0, which the source dataset uses for "not measured".
type ZeroMeasurementRule struct{}

func NewZeroMeasurementRule() *ZeroMeasurementRule {
	return &ZeroMeasurementRule{}
}

func (r *ZeroMeasurementRule) Name() string {
	return "zero_measurement"
}

func (r *ZeroMeasurementRule) Severity() string {
	return "medium"
}

func (r *ZeroMeasurementRule) Apply(sample *Sample) error {
	var missing []string
	if sample.Record.RestingBP == 0 {
		missing = append(missing, ColumnRestingBP)
	}
	if sample.Record.Cholesterol == 0 {
		missing = append(missing, ColumnCholesterol)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing measurement: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DuplicateDetectionRule 重复检测规则
type DuplicateDetectionRule struct {
	seenMap map[string]int
	mu      sync.Mutex
}

func NewDuplicateDetectionRule() *DuplicateDetectionRule {
	return &DuplicateDetectionRule{seenMap: make(map[string]int)}
}

func (r *DuplicateDetectionRule) Name() string {
	return "duplicate_detection"
}

func (r *DuplicateDetectionRule) Severity() string {
	return "low"
}

func (r *DuplicateDetectionRule) Apply(sample *Sample) error {
	key := fmt.Sprintf("%+v|%d", sample.Record, sample.Label)

	r.mu.Lock()
	defer r.mu.Unlock()

	if first, exists := r.seenMap[key]; exists {
		return fmt.Errorf("duplicate of line %d", first)
	}
	r.seenMap[key] = sample.Line
	return nil
}

// imputeZeroMeasurements replaces zero RestingBP and Cholesterol values with
// the median of the non-zero values and returns how many rows changed.
func imputeZeroMeasurements(samples []Sample) int {
	var bp, chol []float64
	for _, s := range samples {
		if s.Record.RestingBP > 0 {
			bp = append(bp, float64(s.Record.RestingBP))
		}
		if s.Record.Cholesterol > 0 {
			chol = append(chol, float64(s.Record.Cholesterol))
		}
	}
	bpMedian := int(calculateMedian(bp) + 0.5)
	cholMedian := int(calculateMedian(chol) + 0.5)

	corrected := 0
	for i := range samples {
		changed := false
		if samples[i].Record.RestingBP == 0 && bpMedian > 0 {
			samples[i].Record.RestingBP = bpMedian
			changed = true
		}
		if samples[i].Record.Cholesterol == 0 && cholMedian > 0 {
			samples[i].Record.Cholesterol = cholMedian
			changed = true
		}
		if changed {
			corrected++
		}
	}
	return corrected
}

// calculateMedian 计算中位数
func calculateMedian(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}
