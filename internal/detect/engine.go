package detect

import (
	"context"
	"fmt"
	"time"

	"omr_grading_backend/internal/layout"
	"omr_grading_backend/internal/preprocess"
	"omr_grading_backend/internal/util"
	"omr_grading_backend/pkg/logger"
	"omr_grading_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// Engine 按顺序驱动识别层。第一个聚合置信度达到阈值的层整卷胜出；
// 层调用失败按置信度 0 处理并继续降级，绝不因单层故障中断提交。
type Engine struct {
	tiers       []Tier
	threshold   float64
	aggregation string
}

func NewEngine(threshold float64, aggregation string, tiers ...Tier) *Engine {
	if aggregation != AggregateMean {
		aggregation = AggregateMin
	}
	return &Engine{tiers: tiers, threshold: threshold, aggregation: aggregation}
}

// Tiers 已配置层的名称，按尝试顺序
func (e *Engine) Tiers() []string {
	names := make([]string, len(e.tiers))
	for i, t := range e.tiers {
		names[i] = t.Name()
	}
	return names
}

// Detect auto 模式：依序尝试全部层
func (e *Engine) Detect(ctx context.Context, rect *preprocess.Rectified, tpl *layout.Template) (*Outcome, error) {
	return e.run(ctx, e.tiers, rect, tpl)
}

// DetectWith pinned 模式：只用指定名称的层，用于人工排查
func (e *Engine) DetectWith(ctx context.Context, tierName string, rect *preprocess.Rectified, tpl *layout.Template) (*Outcome, error) {
	for _, t := range e.tiers {
		if t.Name() == tierName {
			return e.run(ctx, []Tier{t}, rect, tpl)
		}
	}
	return nil, util.NewConfigurationError("unknown detection tier %q", tierName)
}

func (e *Engine) run(ctx context.Context, tiers []Tier, rect *preprocess.Rectified, tpl *layout.Template) (*Outcome, error) {
	if len(tiers) == 0 {
		return nil, util.NewConfigurationError("no detection tiers configured")
	}

	var best *Outcome
	var issues []string

	for _, tier := range tiers {
		start := time.Now()
		dets, err := tier.Detect(ctx, rect, tpl)
		monitoring.TierDuration.WithLabelValues(tier.Name()).Observe(time.Since(start).Seconds())

		if err != nil {
			// 失败等价于置信度 0，继续降级
			monitoring.TierFailures.WithLabelValues(tier.Name()).Inc()
			logger.Log.Warn("detection tier failed, falling back",
				zap.String("tier", tier.Name()), zap.Error(err))
			issues = append(issues, (&util.TierInvocationError{Tier: tier.Name(), Err: err}).Error())
			continue
		}

		dets = normalize(dets, tpl)
		conf := aggregate(dets, e.aggregation)

		if conf >= e.threshold {
			return &Outcome{
				Detections: dets,
				Tier:       tier.Name(),
				Confidence: conf,
				Issues:     issues,
			}, nil
		}

		monitoring.TierFallbacks.WithLabelValues(tier.Name()).Inc()
		issues = append(issues, fmt.Sprintf("tier %s below confidence threshold: %.3f < %.3f",
			tier.Name(), conf, e.threshold))

		if best == nil || conf > best.Confidence {
			best = &Outcome{Detections: dets, Tier: tier.Name(), Confidence: conf}
		}
	}

	// 没有层达标：返回得分最高的层，标记低置信度，由下游安排人工复核
	if best != nil {
		best.LowConfidence = true
		best.Issues = issues
		logger.Log.Info("all tiers below threshold, using best effort result",
			zap.String("tier", best.Tier), zap.Float64("confidence", best.Confidence))
		return best, nil
	}

	// 所有层都调用失败
	return nil, fmt.Errorf("all detection tiers failed: %v", issues)
}
