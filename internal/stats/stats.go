// Package stats 对一场考试的全部成绩做班级层面的汇总。纯函数，
// 每次查询整体重算；考试班级规模有限，不做增量维护。
package stats

import (
	"sort"
	"time"

	"omr_grading_backend/internal/util"
)

// ResultView 汇总所需的成绩字段最小视图
type ResultView struct {
	ResultID      string    `json:"resultId"`
	SubmissionID  string    `json:"submissionId"`
	StudentID     string    `json:"studentId,omitempty"`
	ObtainedMarks int       `json:"obtainedMarks"`
	TotalMarks    int       `json:"totalMarks"`
	Percentage    float64   `json:"percentage"`
	Grade         string    `json:"grade"`
	Passed        bool      `json:"passed"`
	ProcessedAt   time.Time `json:"processedAt"`
}

// Ranked 带名次的成绩
type Ranked struct {
	Rank int `json:"rank"`
	ResultView
}

// Class 班级统计
type Class struct {
	Count            int      `json:"count"`
	MeanPercentage   float64  `json:"meanPercentage"`
	MedianPercentage float64  `json:"medianPercentage"`
	PassCount        int      `json:"passCount"`
	Ranked           []Ranked `json:"rankedResults"`
}

// Aggregate 计算人数、均值、中位数、及格数与名次表。
// 名次按百分比降序，同分者先出成绩的在前。
func Aggregate(results []ResultView) Class {
	c := Class{Count: len(results)}
	if len(results) == 0 {
		return c
	}

	sorted := make([]ResultView, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Percentage != sorted[j].Percentage {
			return sorted[i].Percentage > sorted[j].Percentage
		}
		return sorted[i].ProcessedAt.Before(sorted[j].ProcessedAt)
	})

	var sum float64
	c.Ranked = make([]Ranked, len(sorted))
	for i, r := range sorted {
		c.Ranked[i] = Ranked{Rank: i + 1, ResultView: r}
		sum += r.Percentage
		if r.Passed {
			c.PassCount++
		}
	}

	c.MeanPercentage = util.Round2(sum / float64(len(sorted)))
	c.MedianPercentage = util.Round2(median(sorted))
	return c
}

// median 偶数个取中间两位均值；输入已按百分比降序
func median(sorted []ResultView) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2].Percentage
	}
	return (sorted[n/2-1].Percentage + sorted[n/2].Percentage) / 2
}
