package service

import (
	"strings"

	"omr_grading_backend/internal/layout"
	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/repository"
	"omr_grading_backend/internal/util"
)

// ExamService 考试与答案键的维护
type ExamService struct {
	Exams *repository.ExamRepository
}

func NewExamService(exams *repository.ExamRepository) *ExamService {
	return &ExamService{Exams: exams}
}

// CreateExam 建考试前先验证版面参数能生成合法模板
func (s *ExamService) CreateExam(exam *model.Exam) error {
	if exam.LayoutVersion == "" {
		exam.LayoutVersion = layout.Version
	}
	if _, err := layout.LayoutFor(exam.QuestionCount, exam.OptionsPerQuestion); err != nil {
		return err
	}
	return s.Exams.Create(exam)
}

func (s *ExamService) GetExam(id string) (*model.Exam, error) {
	return s.Exams.FindWithKey(id)
}

// SetAnswerKey 整体替换答案键，题号和选项都按版面校验
func (s *ExamService) SetAnswerKey(examID string, entries []model.AnswerKeyEntry) error {
	exam, err := s.Exams.FindByID(examID)
	if err != nil {
		return err
	}

	tpl, err := layout.LayoutFor(exam.QuestionCount, exam.OptionsPerQuestion)
	if err != nil {
		return err
	}

	seen := make(map[int]bool, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.QuestionNumber < 1 || e.QuestionNumber > exam.QuestionCount {
			return util.NewConfigurationError("answer key question %d out of range 1..%d",
				e.QuestionNumber, exam.QuestionCount)
		}
		if seen[e.QuestionNumber] {
			return util.NewConfigurationError("duplicate answer key entry for question %d", e.QuestionNumber)
		}
		seen[e.QuestionNumber] = true
		if e.CorrectOption != nil {
			opt := strings.ToUpper(strings.TrimSpace(*e.CorrectOption))
			if layout.OptionIndex(opt) < 0 || layout.OptionIndex(opt) >= tpl.OptionsPerQuestion {
				return util.NewConfigurationError("question %d has invalid option %q", e.QuestionNumber, opt)
			}
			e.CorrectOption = &opt
		}
		if e.Marks <= 0 {
			e.Marks = 1
		}
	}

	return s.Exams.ReplaceKey(examID, entries)
}
