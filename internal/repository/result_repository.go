package repository

import (
	"omr_grading_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResultRepository struct {
	DB *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{DB: db}
}

// Upsert 按 submission_id 覆盖旧结果，重判时替换而不是追加
func (r *ResultRepository) Upsert(result *model.Result) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "submission_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"obtained_marks", "total_marks", "percentage", "grade", "passed",
			"detector_tier", "confidence", "low_confidence",
			"question_results", "processed_at", "updated_at",
		}),
	}).Create(result).Error
}

func (r *ResultRepository) FindBySubmission(submissionID string) (*model.Result, error) {
	var result model.Result
	err := r.DB.Where("submission_id = ?", submissionID).First(&result).Error
	return &result, err
}

func (r *ResultRepository) ListByExam(examID string) ([]model.Result, error) {
	var results []model.Result
	err := r.DB.Where("exam_id = ?", examID).Order("processed_at asc").Find(&results).Error
	return results, err
}

func (r *ResultRepository) DeleteBySubmission(submissionID string) error {
	return r.DB.Where("submission_id = ?", submissionID).Delete(&model.Result{}).Error
}
