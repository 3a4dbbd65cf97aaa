package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"omr_grading_backend/internal/detect"
	"omr_grading_backend/internal/grading"
	"omr_grading_backend/internal/layout"
	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/preprocess"
	"omr_grading_backend/internal/util"
	"omr_grading_backend/pkg/logger"
	"omr_grading_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// ExamStore 判分流程需要的考试读取能力
type ExamStore interface {
	FindWithKey(id string) (*model.Exam, error)
}

// SubmissionStore 提交的状态流转
type SubmissionStore interface {
	FindByID(id string) (*model.Submission, error)
	ListByExam(examID string, status string) ([]model.Submission, error)
	TryMarkProcessing(id string) error
	MarkProcessed(id string, at time.Time) error
	MarkFailed(id string, issues string) error
}

// ResultStore 结果写入，按提交覆盖
type ResultStore interface {
	Upsert(result *model.Result) error
	FindBySubmission(submissionID string) (*model.Result, error)
}

// ImageFetcher 按对象键取回原始照片
type ImageFetcher interface {
	Fetch(ctx context.Context, filename string) ([]byte, error)
}

// Detector 分层识别引擎
type Detector interface {
	Detect(ctx context.Context, rect *preprocess.Rectified, tpl *layout.Template) (*detect.Outcome, error)
	DetectWith(ctx context.Context, tierName string, rect *preprocess.Rectified, tpl *layout.Template) (*detect.Outcome, error)
}

// StatsInvalidator 结果变更后失效统计缓存
type StatsInvalidator interface {
	Invalidate(ctx context.Context, examID string)
}

// ProcessOptions 单次处理的可选项
type ProcessOptions struct {
	// PinnedTier 非空时跳过层级顺序，只用指定的识别层
	PinnedTier string
}

// ProcessOutcome 一次处理的汇总，写库之外返回给调用方
type ProcessOutcome struct {
	SubmissionID  string         `json:"submissionId"`
	Status        string         `json:"status"`
	Result        *model.Result  `json:"result,omitempty"`
	DetectorTier  string         `json:"detectorTier,omitempty"`
	Confidence    float64        `json:"confidence"`
	LowConfidence bool           `json:"lowConfidence"`
	Issues        []string       `json:"issues,omitempty"`
	Score         *grading.Score `json:"score,omitempty"`
}

// RectifyFunc 把原始照片校正到规范画布
type RectifyFunc func(raw []byte, tpl *layout.Template) (*preprocess.Rectified, error)

// GradingService 串起取图、校正、识别、判分、落库的状态机
type GradingService struct {
	Exams       ExamStore
	Submissions SubmissionStore
	Results     ResultStore
	Storage     ImageFetcher
	Engine      Detector
	Stats       StatsInvalidator
	Rectify     RectifyFunc

	// policy 热更新时整体替换，每次判分取快照，不与进行中的判分共享
	policy atomic.Value
}

func NewGradingService(
	exams ExamStore,
	submissions SubmissionStore,
	results ResultStore,
	storage ImageFetcher,
	engine Detector,
	stats StatsInvalidator,
	policy grading.Policy,
) *GradingService {
	s := &GradingService{
		Exams:       exams,
		Submissions: submissions,
		Results:     results,
		Storage:     storage,
		Engine:      engine,
		Stats:       stats,
		Rectify:     preprocess.Rectify,
	}
	s.policy.Store(policy)
	return s
}

// SetPolicy 替换评分策略，对进行中的判分不生效
func (s *GradingService) SetPolicy(p grading.Policy) {
	s.policy.Store(p)
}

func (s *GradingService) currentPolicy() grading.Policy {
	return s.policy.Load().(grading.Policy)
}

// ProcessSubmission 处理一份提交。pending/processed/failed 都可以进入，
// processing 中的提交并发触发时返回 ErrConcurrencyConflict。
// 重复处理会覆盖旧结果，属于幂等重判。
func (s *GradingService) ProcessSubmission(ctx context.Context, submissionID string, opts ProcessOptions) (*ProcessOutcome, error) {
	start := time.Now()

	if err := s.Submissions.TryMarkProcessing(submissionID); err != nil {
		if errors.Is(err, util.ErrConcurrencyConflict) {
			logger.Log.Info("Submission already in flight, skipping",
				zap.String("submissionId", submissionID))
		}
		return nil, err
	}

	sub, err := s.Submissions.FindByID(submissionID)
	if err != nil {
		s.fail(submissionID, "", []string{"submission lookup failed: " + err.Error()})
		return nil, err
	}

	outcome, err := s.runPipeline(ctx, sub, opts)
	if err != nil {
		issues := issuesFrom(err)
		s.fail(submissionID, sub.ExamID, issues)
		monitoring.ProcessingDuration.Observe(time.Since(start).Seconds())
		return &ProcessOutcome{
			SubmissionID: submissionID,
			Status:       util.StatusFailed,
			Issues:       issues,
		}, err
	}

	now := time.Now().UTC()
	outcome.Result.ProcessedAt = now
	if err := s.Results.Upsert(outcome.Result); err != nil {
		s.fail(submissionID, sub.ExamID, []string{"result write failed: " + err.Error()})
		return nil, err
	}
	// 重判走 ON DUPLICATE KEY UPDATE 时数据库保留旧行主键，
	// 回读持久化行，保证返回的 resultId 指向真实存在的记录
	persisted, err := s.Results.FindBySubmission(submissionID)
	if err != nil {
		s.fail(submissionID, sub.ExamID, []string{"result read-back failed: " + err.Error()})
		return nil, err
	}
	outcome.Result = persisted
	if err := s.Submissions.MarkProcessed(submissionID, now); err != nil {
		return nil, err
	}

	if s.Stats != nil {
		s.Stats.Invalidate(ctx, sub.ExamID)
	}

	monitoring.SubmissionsProcessed.WithLabelValues(util.StatusProcessed, outcome.DetectorTier).Inc()
	monitoring.ProcessingDuration.Observe(time.Since(start).Seconds())
	logger.Log.Info("Submission processed",
		zap.String("submissionId", submissionID),
		zap.String("examId", sub.ExamID),
		zap.String("tier", outcome.DetectorTier),
		zap.Float64("confidence", outcome.Confidence),
		zap.Float64("percentage", outcome.Result.Percentage))

	outcome.Status = util.StatusProcessed
	return outcome, nil
}

// ProcessExam 把一场考试下待处理的提交逐一跑完，冲突的跳过
func (s *GradingService) ProcessExam(ctx context.Context, examID string, opts ProcessOptions) ([]*ProcessOutcome, error) {
	subs, err := s.Submissions.ListByExam(examID, util.StatusPending)
	if err != nil {
		return nil, err
	}
	outcomes := make([]*ProcessOutcome, 0, len(subs))
	for _, sub := range subs {
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}
		out, err := s.ProcessSubmission(ctx, sub.ID, opts)
		if errors.Is(err, util.ErrConcurrencyConflict) {
			continue
		}
		if out != nil {
			outcomes = append(outcomes, out)
		}
	}
	return outcomes, nil
}

func (s *GradingService) runPipeline(ctx context.Context, sub *model.Submission, opts ProcessOptions) (*ProcessOutcome, error) {
	exam, err := s.Exams.FindWithKey(sub.ExamID)
	if err != nil {
		return nil, err
	}

	tpl, err := layout.LayoutFor(exam.QuestionCount, exam.OptionsPerQuestion)
	if err != nil {
		return nil, err
	}

	raw, err := s.Storage.Fetch(ctx, sub.ImageKey)
	if err != nil {
		return nil, err
	}

	rect, err := s.Rectify(raw, tpl)
	if err != nil {
		return nil, err
	}

	var det *detect.Outcome
	if opts.PinnedTier != "" {
		det, err = s.Engine.DetectWith(ctx, opts.PinnedTier, rect, tpl)
	} else {
		det, err = s.Engine.Detect(ctx, rect, tpl)
	}
	if err != nil {
		return nil, err
	}

	key := make([]grading.KeyEntry, 0, len(exam.AnswerKey))
	for _, e := range exam.AnswerKey {
		key = append(key, grading.KeyEntry{
			QuestionNumber: e.QuestionNumber,
			CorrectOption:  e.CorrectOption,
			Marks:          e.Marks,
		})
	}

	score, err := grading.Grade(det.Detections, key, exam.PassingMarks, s.currentPolicy())
	if err != nil {
		return nil, err
	}

	detail, err := json.Marshal(score.QuestionResults)
	if err != nil {
		return nil, err
	}

	result := &model.Result{
		SubmissionID:    sub.ID,
		ExamID:          sub.ExamID,
		StudentID:       sub.StudentID,
		ObtainedMarks:   score.ObtainedMarks,
		TotalMarks:      score.TotalMarks,
		Percentage:      score.Percentage,
		Grade:           score.Grade,
		Passed:          score.Passed,
		DetectorTier:    det.Tier,
		Confidence:      det.Confidence,
		LowConfidence:   det.LowConfidence,
		QuestionResults: detail,
	}

	return &ProcessOutcome{
		SubmissionID:  sub.ID,
		Result:        result,
		DetectorTier:  det.Tier,
		Confidence:    det.Confidence,
		LowConfidence: det.LowConfidence,
		Issues:        det.Issues,
		Score:         score,
	}, nil
}

func (s *GradingService) fail(submissionID, examID string, issues []string) {
	monitoring.SubmissionsProcessed.WithLabelValues(util.StatusFailed, "").Inc()
	logger.Log.Warn("Submission processing failed",
		zap.String("submissionId", submissionID),
		zap.String("examId", examID),
		zap.Strings("issues", issues))
	if err := s.Submissions.MarkFailed(submissionID, strings.Join(issues, "; ")); err != nil {
		logger.Log.Error("Failed to record submission failure",
			zap.String("submissionId", submissionID), zap.Error(err))
	}
}

// issuesFrom 把管线错误拆成可读的问题列表
func issuesFrom(err error) []string {
	var alignErr *util.AlignmentError
	if errors.As(err, &alignErr) {
		return alignErr.Issues
	}
	return []string{err.Error()}
}
