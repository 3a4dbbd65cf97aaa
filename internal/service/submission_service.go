package service

import (
	"context"
	"io"
	"path"

	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/repository"
	"omr_grading_backend/internal/util"
)

// SubmissionService 接收答题卡照片并登记提交
type SubmissionService struct {
	Submissions *repository.SubmissionRepository
	Exams       *repository.ExamRepository
	Storage     StorageProvider
}

func NewSubmissionService(
	submissions *repository.SubmissionRepository,
	exams *repository.ExamRepository,
	storage StorageProvider,
) *SubmissionService {
	return &SubmissionService{Submissions: submissions, Exams: exams, Storage: storage}
}

// CreateSubmission 存照片并建一条 pending 提交
func (s *SubmissionService) CreateSubmission(ctx context.Context, examID, studentID, filename string, reader io.Reader, size int64, contentType string) (*model.Submission, error) {
	if _, err := s.Exams.FindByID(examID); err != nil {
		return nil, err
	}

	key := path.Join("sheets", examID, model.GenerateUUID()+path.Ext(filename))
	if _, err := s.Storage.Upload(ctx, key, reader, size, contentType); err != nil {
		return nil, err
	}

	sub := &model.Submission{
		ExamID:    examID,
		StudentID: studentID,
		ImageKey:  key,
		Status:    util.StatusPending,
	}
	if err := s.Submissions.Create(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubmissionService) GetSubmission(id string) (*model.Submission, error) {
	return s.Submissions.FindByID(id)
}

func (s *SubmissionService) ListByExam(examID, status string) ([]model.Submission, error) {
	return s.Submissions.ListByExam(examID, status)
}
