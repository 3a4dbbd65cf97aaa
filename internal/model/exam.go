package model

// Exam 一场考试及其答题卡版面参数
type Exam struct {
	UUIDBase
	Name               string           `gorm:"size:200;not null" json:"name"`
	LayoutVersion      string           `gorm:"size:10;default:'v1'" json:"layoutVersion"`
	QuestionCount      int              `gorm:"not null" json:"questionCount"`
	OptionsPerQuestion int              `gorm:"not null;default:4" json:"optionsPerQuestion"`
	PassingMarks       int              `gorm:"not null;default:0" json:"passingMarks"`
	AnswerKey          []AnswerKeyEntry `gorm:"foreignKey:ExamID" json:"answerKey,omitempty"`
}

func (Exam) TableName() string {
	return "exams"
}

// AnswerKeyEntry 单题的标准答案与分值，CorrectOption 为空表示该题不计分
type AnswerKeyEntry struct {
	BaseModel
	ExamID         string  `gorm:"index;type:varchar(36);not null" json:"examId"`
	QuestionNumber int     `gorm:"not null" json:"questionNumber"`
	CorrectOption  *string `gorm:"size:1" json:"correctOption"`
	Marks          int     `gorm:"not null;default:1" json:"marks"`
}

func (AnswerKeyEntry) TableName() string {
	return "answer_key_entries"
}
