package detect

import (
	"context"

	"omr_grading_backend/internal/layout"
	"omr_grading_backend/internal/preprocess"
)

// TierCV 确定性像素分析层的固定名称
const TierCV = "cv"

const (
	// 暗像素判定阈值（对比度归一化之后的灰度值）
	darkLevel = 100

	// 填涂率达到该值视为已涂
	markFillRatio = 0.35
)

// IntensityTier 逐气泡统计圆内暗像素占比的确定性识别层。
// 不依赖外部服务，先于一切远程层执行。
type IntensityTier struct{}

func NewIntensityTier() *IntensityTier {
	return &IntensityTier{}
}

func (t *IntensityTier) Name() string {
	return TierCV
}

func (t *IntensityTier) Detect(_ context.Context, rect *preprocess.Rectified, tpl *layout.Template) ([]QuestionDetection, error) {
	dets := make([]QuestionDetection, 0, tpl.QuestionCount)

	for q := 1; q <= tpl.QuestionCount; q++ {
		ratios := make([]float64, tpl.OptionsPerQuestion)
		var opts []string

		for o := 0; o < tpl.OptionsPerQuestion; o++ {
			r := fillRatio(rect, rect.ROIFor(q, o, tpl.OptionsPerQuestion))
			ratios[o] = r
			if r >= markFillRatio {
				opts = append(opts, layout.OptionLetter(o))
			}
		}

		dets = append(dets, QuestionDetection{
			Question:   q,
			Options:    opts,
			Confidence: questionConfidence(ratios),
		})
	}
	return dets, nil
}

// fillRatio ROI 圆内暗像素占比
func fillRatio(rect *preprocess.Rectified, roi preprocess.ROI) float64 {
	var dark, total float64
	r2 := roi.Radius * roi.Radius

	for y := roi.Rect.Min.Y; y < roi.Rect.Max.Y; y++ {
		for x := roi.Rect.Min.X; x < roi.Rect.Max.X; x++ {
			dx := float64(x) - roi.Center.X
			dy := float64(y) - roi.Center.Y
			if dx*dx+dy*dy > r2 {
				continue
			}
			total++
			if rect.Canvas.Pix[y*rect.Canvas.Stride+x] < darkLevel {
				dark++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return dark / total
}

// questionConfidence 置信度取各气泡填涂率到判定阈值的最小归一化距离。
// 所有气泡都明确地"涂满"或"留白"时接近 1，有气泡悬在阈值附近时趋向 0。
func questionConfidence(ratios []float64) float64 {
	minMargin := 1.0
	for _, r := range ratios {
		var margin float64
		if r >= markFillRatio {
			margin = (r - markFillRatio) / (1 - markFillRatio)
		} else {
			margin = (markFillRatio - r) / markFillRatio
		}
		if margin < minMargin {
			minMargin = margin
		}
	}
	return minMargin
}
