package service

import (
	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/repository"
)

// ResultService 判分结果的读取
type ResultService struct {
	Results *repository.ResultRepository
}

func NewResultService(results *repository.ResultRepository) *ResultService {
	return &ResultService{Results: results}
}

func (s *ResultService) ResultForSubmission(submissionID string) (*model.Result, error) {
	return s.Results.FindBySubmission(submissionID)
}

func (s *ResultService) ResultsForExam(examID string) ([]model.Result, error) {
	return s.Results.ListByExam(examID)
}
