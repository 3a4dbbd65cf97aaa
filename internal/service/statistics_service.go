package service

import (
	"context"
	"encoding/json"
	"time"

	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/stats"
	"omr_grading_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ResultLister 统计需要的结果读取能力
type ResultLister interface {
	ListByExam(examID string) ([]model.Result, error)
}

// StatisticsService 汇总一场考试的总体表现，带 Redis 缓存。
// Redis 为 nil 时退化为每次直查数据库。
type StatisticsService struct {
	Results  ResultLister
	Redis    *redis.Client
	CacheTTL time.Duration
}

func NewStatisticsService(results ResultLister, rdb *redis.Client, ttl time.Duration) *StatisticsService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &StatisticsService{Results: results, Redis: rdb, CacheTTL: ttl}
}

func statsCacheKey(examID string) string {
	return "omr:stats:" + examID
}

// ExamStatistics 返回考试的班级统计，命中缓存时不访问数据库
func (s *StatisticsService) ExamStatistics(ctx context.Context, examID string) (*stats.Class, error) {
	if s.Redis != nil {
		cached, err := s.Redis.Get(ctx, statsCacheKey(examID)).Result()
		if err == nil {
			var class stats.Class
			if err := json.Unmarshal([]byte(cached), &class); err == nil {
				return &class, nil
			}
		} else if err != redis.Nil {
			logger.Log.Warn("Stats cache read failed", zap.String("examId", examID), zap.Error(err))
		}
	}

	results, err := s.Results.ListByExam(examID)
	if err != nil {
		return nil, err
	}

	views := make([]stats.ResultView, 0, len(results))
	for _, r := range results {
		views = append(views, stats.ResultView{
			ResultID:      r.ID,
			SubmissionID:  r.SubmissionID,
			StudentID:     r.StudentID,
			ObtainedMarks: r.ObtainedMarks,
			TotalMarks:    r.TotalMarks,
			Percentage:    r.Percentage,
			Grade:         r.Grade,
			Passed:        r.Passed,
			ProcessedAt:   r.ProcessedAt,
		})
	}

	class := stats.Aggregate(views)

	if s.Redis != nil {
		if payload, err := json.Marshal(class); err == nil {
			if err := s.Redis.Set(ctx, statsCacheKey(examID), payload, s.CacheTTL).Err(); err != nil {
				logger.Log.Warn("Stats cache write failed", zap.String("examId", examID), zap.Error(err))
			}
		}
	}

	return &class, nil
}

// Invalidate 结果变更后清掉缓存，下次查询重新聚合
func (s *StatisticsService) Invalidate(ctx context.Context, examID string) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(ctx, statsCacheKey(examID)).Err(); err != nil {
		logger.Log.Warn("Stats cache invalidation failed", zap.String("examId", examID), zap.Error(err))
	}
}
