// Package grading 把逐题识别结果对照答案键换算成分数、百分比、等级与
// 及格状态。全部为确定性算术，重复评分同一份输入必然得到相同结果。
package grading

import (
	"sort"

	"omr_grading_backend/internal/detect"
	"omr_grading_backend/internal/util"
)

// KeyEntry 答案键中的一题。CorrectOption 为 nil 表示该题不计分
// （如被教师作废），不计入总分。
type KeyEntry struct {
	QuestionNumber int
	CorrectOption  *string
	Marks          int // 分值，缺省 1
}

// Cutoff 等级分界：百分比达到 MinPercentage（含）即为 Grade
type Cutoff struct {
	MinPercentage float64 `mapstructure:"min_percentage"`
	Grade         string  `mapstructure:"grade"`
}

// DefaultCutoffs 缺省等级表。分界属于配置，调用方可整体替换。
func DefaultCutoffs() []Cutoff {
	return []Cutoff{
		{MinPercentage: 90, Grade: "A"},
		{MinPercentage: 75, Grade: "B"},
		{MinPercentage: 60, Grade: "C"},
		{MinPercentage: 40, Grade: "D"},
		{MinPercentage: 0, Grade: "F"},
	}
}

// Policy 评分策略
type Policy struct {
	Cutoffs []Cutoff
	// MultiMarkCredit 多涂是否给部分分。目前固定零分，字段保留给
	// 后续启用部分给分时使用。
	MultiMarkCredit bool
}

func DefaultPolicy() Policy {
	return Policy{Cutoffs: DefaultCutoffs()}
}

// GradeFor 按分界表求等级
func GradeFor(cutoffs []Cutoff, percentage float64) string {
	sorted := make([]Cutoff, len(cutoffs))
	copy(sorted, cutoffs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinPercentage > sorted[j].MinPercentage })
	for _, c := range sorted {
		if percentage >= c.MinPercentage {
			return c.Grade
		}
	}
	if len(sorted) > 0 {
		return sorted[len(sorted)-1].Grade
	}
	return ""
}

// QuestionResult 单题评分明细。DetectedOption 为 nil 表示空白或多涂，
// 多涂时 DetectedOptions 保留全部检出字母，绝不静默丢弃。
type QuestionResult struct {
	QuestionNumber  int      `json:"questionNumber"`
	DetectedOption  *string  `json:"detectedOption"`
	DetectedOptions []string `json:"detectedOptions,omitempty"`
	CorrectOption   *string  `json:"correctOption"`
	AwardedMarks    int      `json:"awardedMarks"`
	Confidence      float64  `json:"confidence"`
}

// Score 一份提交的评分结果
type Score struct {
	ObtainedMarks   int
	TotalMarks      int
	Percentage      float64
	Grade           string
	Passed          bool
	QuestionResults []QuestionResult
}

// Grade 对照答案键评分。passingMarks 为及格线（含）。
// 没有任何计分题时无法评分，返回 ConfigurationError。
func Grade(dets []detect.QuestionDetection, key []KeyEntry, passingMarks int, policy Policy) (*Score, error) {
	if len(key) == 0 {
		return nil, util.NewConfigurationError("answer key is empty")
	}
	if len(policy.Cutoffs) == 0 {
		policy.Cutoffs = DefaultCutoffs()
	}

	byQuestion := make(map[int]detect.QuestionDetection, len(dets))
	for _, d := range dets {
		byQuestion[d.Question] = d
	}

	ordered := make([]KeyEntry, len(key))
	copy(ordered, key)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].QuestionNumber < ordered[j].QuestionNumber })

	score := &Score{QuestionResults: make([]QuestionResult, 0, len(ordered))}

	for _, entry := range ordered {
		marks := entry.Marks
		if marks <= 0 {
			marks = 1
		}

		det := byQuestion[entry.QuestionNumber]
		qr := QuestionResult{
			QuestionNumber: entry.QuestionNumber,
			CorrectOption:  entry.CorrectOption,
			Confidence:     det.Confidence,
		}
		if single, ok := det.Single(); ok {
			qr.DetectedOption = &single
		} else if det.Multiple() {
			qr.DetectedOptions = det.Options
		}

		// 不计分题：不进总分，得 0
		if entry.CorrectOption == nil {
			score.QuestionResults = append(score.QuestionResults, qr)
			continue
		}
		score.TotalMarks += marks

		// 只有唯一且精确匹配才给分；空白、多涂、错选一律 0
		if single, ok := det.Single(); ok && single == *entry.CorrectOption {
			qr.AwardedMarks = marks
			score.ObtainedMarks += marks
		}
		score.QuestionResults = append(score.QuestionResults, qr)
	}

	if score.TotalMarks == 0 {
		return nil, util.NewConfigurationError("exam has no gradable questions")
	}

	score.Percentage = util.Round2(100 * float64(score.ObtainedMarks) / float64(score.TotalMarks))
	score.Grade = GradeFor(policy.Cutoffs, score.Percentage)
	score.Passed = score.ObtainedMarks >= passingMarks

	return score, nil
}
