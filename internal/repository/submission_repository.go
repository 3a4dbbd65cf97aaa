package repository

import (
	"time"

	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/util"

	"gorm.io/gorm"
)

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

func (r *SubmissionRepository) Create(sub *model.Submission) error {
	return r.DB.Create(sub).Error
}

func (r *SubmissionRepository) FindByID(id string) (*model.Submission, error) {
	var sub model.Submission
	err := r.DB.Where("id = ?", id).First(&sub).Error
	return &sub, err
}

func (r *SubmissionRepository) ListByExam(examID string, status string) ([]model.Submission, error) {
	var subs []model.Submission
	query := r.DB.Where("exam_id = ?", examID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	err := query.Order("created_at asc").Find(&subs).Error
	return subs, err
}

// TryMarkProcessing 原子地把 pending/failed/processed 的提交置为 processing。
// 同一提交并发触发时只有一个调用者能拿到它，其余返回 ErrConcurrencyConflict。
func (r *SubmissionRepository) TryMarkProcessing(id string) error {
	res := r.DB.Model(&model.Submission{}).
		Where("id = ? AND status IN ?", id, []string{
			util.StatusPending, util.StatusProcessed, util.StatusFailed,
		}).
		Updates(map[string]interface{}{
			"status": util.StatusProcessing,
			"issues": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var sub model.Submission
		if err := r.DB.Where("id = ?", id).First(&sub).Error; err != nil {
			return err
		}
		return util.ErrConcurrencyConflict
	}
	return nil
}

func (r *SubmissionRepository) MarkProcessed(id string, at time.Time) error {
	return r.DB.Model(&model.Submission{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       util.StatusProcessed,
			"processed_at": at,
			"issues":       "",
		}).Error
}

func (r *SubmissionRepository) MarkFailed(id string, issues string) error {
	return r.DB.Model(&model.Submission{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status": util.StatusFailed,
			"issues": issues,
		}).Error
}
