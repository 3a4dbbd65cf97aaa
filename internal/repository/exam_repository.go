package repository

import (
	"omr_grading_backend/internal/model"

	"gorm.io/gorm"
)

type ExamRepository struct {
	DB *gorm.DB
}

func NewExamRepository(db *gorm.DB) *ExamRepository {
	return &ExamRepository{DB: db}
}

func (r *ExamRepository) Create(exam *model.Exam) error {
	return r.DB.Create(exam).Error
}

func (r *ExamRepository) FindByID(id string) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.Where("id = ?", id).First(&exam).Error
	return &exam, err
}

// FindWithKey 连同答案键一起加载，判分流程用
func (r *ExamRepository) FindWithKey(id string) (*model.Exam, error) {
	var exam model.Exam
	err := r.DB.Preload("AnswerKey", func(db *gorm.DB) *gorm.DB {
		return db.Order("question_number asc")
	}).Where("id = ?", id).First(&exam).Error
	return &exam, err
}

func (r *ExamRepository) Update(exam *model.Exam) error {
	return r.DB.Save(exam).Error
}

// ReplaceKey 整体替换答案键
func (r *ExamRepository) ReplaceKey(examID string, entries []model.AnswerKeyEntry) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("exam_id = ?", examID).Delete(&model.AnswerKeyEntry{}).Error; err != nil {
			return err
		}
		for i := range entries {
			entries[i].ExamID = examID
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
}
