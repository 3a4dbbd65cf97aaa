package model

import "time"

// Submission 学生拍照上传的一张答题卡
type Submission struct {
	UUIDBase
	ExamID      string     `gorm:"index;type:varchar(36);not null" json:"examId"`
	Exam        *Exam      `gorm:"foreignKey:ExamID" json:"exam,omitempty"`
	// StudentID 可为空：匿名或批量扫描的提交允许后补学号
	StudentID   string     `gorm:"size:64;index" json:"studentId,omitempty"`
	ImageKey    string     `gorm:"size:512;not null" json:"imageKey"`
	Status      string     `gorm:"size:20;index;default:'pending'" json:"status"` // pending, processing, processed, failed
	Issues      string     `gorm:"type:text" json:"issues"`
	ProcessedAt *time.Time `json:"processedAt"`
}

func (Submission) TableName() string {
	return "submissions"
}
