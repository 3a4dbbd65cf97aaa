// Package detect 对校正后的答题卡逐题判定涂写状态。识别层（Tier）按
// 配置顺序依次尝试：先走确定性的像素灰度分析，置信度不足时降级到
// 远程视觉模型。一次只采纳一个层的整卷结果，避免逐题来源混杂。
package detect

import (
	"context"
	"sort"
	"strings"

	"omr_grading_backend/internal/layout"
	"omr_grading_backend/internal/preprocess"
)

// QuestionDetection 单题识别结果。Options 为检出的选项字母：
// 空切片表示未涂，多于一个表示多涂；如何计分由评分器决定。
type QuestionDetection struct {
	Question   int      `json:"question"`
	Options    []string `json:"options"`
	Confidence float64  `json:"confidence"`
}

func (d QuestionDetection) Blank() bool {
	return len(d.Options) == 0
}

func (d QuestionDetection) Multiple() bool {
	return len(d.Options) > 1
}

// Single 唯一检出的选项；未涂或多涂时 ok=false
func (d QuestionDetection) Single() (string, bool) {
	if len(d.Options) != 1 {
		return "", false
	}
	return d.Options[0], true
}

// Tier 一种识别策略。实现必须覆盖整卷：对每道题给出判定与置信度。
type Tier interface {
	Name() string
	Detect(ctx context.Context, rect *preprocess.Rectified, tpl *layout.Template) ([]QuestionDetection, error)
}

// 聚合函数：把逐题置信度压缩成单一分数用于层级验收
const (
	AggregateMin  = "min"
	AggregateMean = "mean"
)

// Outcome 探测引擎的最终输出
type Outcome struct {
	Detections []QuestionDetection
	Tier       string  // 被采纳的层
	Confidence float64 // 聚合置信度
	// LowConfidence 没有任何层达到阈值时为 true。评分照常进行，
	// 但结果应进入人工复核队列。
	LowConfidence bool
	// Issues 失败层的描述，按发生顺序
	Issues []string
}

// normalize 保证基数不变量：1..questionCount 每题恰好一个结果。
// 缺失的题补空白（置信度 0），题号越界的丢弃，非法选项字母过滤，
// 同一题出现多条时并成多涂（选项取并集，置信度取较低者）。
func normalize(dets []QuestionDetection, tpl *layout.Template) []QuestionDetection {
	byQ := make(map[int]QuestionDetection, tpl.QuestionCount)
	for _, d := range dets {
		if d.Question < 1 || d.Question > tpl.QuestionCount {
			continue
		}
		var opts []string
		for _, o := range d.Options {
			o = strings.ToUpper(strings.TrimSpace(o))
			if idx := layout.OptionIndex(o); idx >= 0 && idx < tpl.OptionsPerQuestion {
				opts = append(opts, o)
			}
		}
		d.Options = opts
		if d.Confidence < 0 {
			d.Confidence = 0
		}
		if d.Confidence > 1 {
			d.Confidence = 1
		}
		if prev, ok := byQ[d.Question]; ok {
			d.Options = append(d.Options, prev.Options...)
			if prev.Confidence < d.Confidence {
				d.Confidence = prev.Confidence
			}
		}
		d.Options = dedupSorted(d.Options)
		byQ[d.Question] = d
	}

	out := make([]QuestionDetection, tpl.QuestionCount)
	for q := 1; q <= tpl.QuestionCount; q++ {
		if d, ok := byQ[q]; ok {
			out[q-1] = d
		} else {
			out[q-1] = QuestionDetection{Question: q, Confidence: 0}
		}
	}
	return out
}

func dedupSorted(opts []string) []string {
	if len(opts) == 0 {
		return nil
	}
	sort.Strings(opts)
	out := opts[:1]
	for _, o := range opts[1:] {
		if o != out[len(out)-1] {
			out = append(out, o)
		}
	}
	return out
}

// aggregate 聚合逐题置信度
func aggregate(dets []QuestionDetection, mode string) float64 {
	if len(dets) == 0 {
		return 0
	}
	switch mode {
	case AggregateMean:
		var sum float64
		for _, d := range dets {
			sum += d.Confidence
		}
		return sum / float64(len(dets))
	default: // AggregateMin
		min := dets[0].Confidence
		for _, d := range dets[1:] {
			if d.Confidence < min {
				min = d.Confidence
			}
		}
		return min
	}
}
