package model

import (
	"encoding/json"
	"time"
)

// Result 一份答题卡的判分结果，每份 Submission 至多一条
type Result struct {
	UUIDBase
	SubmissionID    string          `gorm:"uniqueIndex;type:varchar(36);not null" json:"submissionId"`
	ExamID          string          `gorm:"index;type:varchar(36);not null" json:"examId"`
	StudentID       string          `gorm:"size:64;index" json:"studentId,omitempty"`
	ObtainedMarks   int             `gorm:"not null" json:"obtainedMarks"`
	TotalMarks      int             `gorm:"not null" json:"totalMarks"`
	Percentage      float64         `gorm:"not null" json:"percentage"`
	Grade           string          `gorm:"size:4;not null" json:"grade"`
	Passed          bool            `gorm:"not null" json:"passed"`
	DetectorTier    string          `gorm:"size:40" json:"detectorTier"`
	Confidence      float64         `json:"confidence"`
	LowConfidence   bool            `gorm:"default:false" json:"lowConfidence"`
	QuestionResults json.RawMessage `gorm:"type:json" json:"questionResults"`
	ProcessedAt     time.Time       `gorm:"not null" json:"processedAt"`
}

func (Result) TableName() string {
	return "results"
}
