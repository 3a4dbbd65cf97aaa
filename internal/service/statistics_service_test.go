package service

import (
	"context"
	"testing"
	"time"

	"omr_grading_backend/internal/model"
)

type fakeResultLister struct {
	results []model.Result
	calls   int
}

func (f *fakeResultLister) ListByExam(examID string) ([]model.Result, error) {
	f.calls++
	return f.results, nil
}

func TestExamStatisticsWithoutCache(t *testing.T) {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	lister := &fakeResultLister{results: []model.Result{
		{UUIDBase: model.UUIDBase{ID: "r1"}, SubmissionID: "s1", ObtainedMarks: 10, TotalMarks: 20, Percentage: 50, Grade: "D", Passed: true, ProcessedAt: base},
		{UUIDBase: model.UUIDBase{ID: "r2"}, SubmissionID: "s2", ObtainedMarks: 12, TotalMarks: 20, Percentage: 60, Grade: "C", Passed: true, ProcessedAt: base.Add(time.Minute)},
		{UUIDBase: model.UUIDBase{ID: "r3"}, SubmissionID: "s3", ObtainedMarks: 14, TotalMarks: 20, Percentage: 70, Grade: "C", Passed: true, ProcessedAt: base.Add(2 * time.Minute)},
		{UUIDBase: model.UUIDBase{ID: "r4"}, SubmissionID: "s4", ObtainedMarks: 16, TotalMarks: 20, Percentage: 80, Grade: "B", Passed: true, ProcessedAt: base.Add(3 * time.Minute)},
	}}

	svc := NewStatisticsService(lister, nil, time.Minute)

	class, err := svc.ExamStatistics(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("ExamStatistics: %v", err)
	}

	if class.Count != 4 {
		t.Errorf("count = %d", class.Count)
	}
	if class.MeanPercentage != 65.00 {
		t.Errorf("mean = %f, want 65.00", class.MeanPercentage)
	}
	if class.MedianPercentage != 65.00 {
		t.Errorf("median = %f, want 65.00", class.MedianPercentage)
	}
	if class.Ranked[0].ResultID != "r4" || class.Ranked[3].ResultID != "r1" {
		t.Errorf("rank order wrong: first=%s last=%s", class.Ranked[0].ResultID, class.Ranked[3].ResultID)
	}

	// 没有 Redis 时每次直查
	if _, err := svc.ExamStatistics(context.Background(), "exam-1"); err != nil {
		t.Fatalf("second query: %v", err)
	}
	if lister.calls != 2 {
		t.Errorf("store queries = %d, want 2", lister.calls)
	}
}

func TestInvalidateWithoutRedisIsNoop(t *testing.T) {
	svc := NewStatisticsService(&fakeResultLister{}, nil, time.Minute)
	// 不应 panic
	svc.Invalidate(context.Background(), "exam-1")
}
