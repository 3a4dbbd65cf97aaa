package controller

import (
	"errors"

	"omr_grading_backend/internal/model"
	"omr_grading_backend/internal/service"
	"omr_grading_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ExamController struct {
	ExamService *service.ExamService
}

func NewExamController(examService *service.ExamService) *ExamController {
	return &ExamController{ExamService: examService}
}

type createExamRequest struct {
	Name               string  `json:"name" binding:"required"`
	QuestionCount      int     `json:"questionCount" binding:"required"`
	OptionsPerQuestion int     `json:"optionsPerQuestion" binding:"required"`
	PassingMarks       int     `json:"passingMarks"`
}

func (c *ExamController) CreateExam(ctx *gin.Context) {
	var req createExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	exam := &model.Exam{
		Name:               req.Name,
		QuestionCount:      req.QuestionCount,
		OptionsPerQuestion: req.OptionsPerQuestion,
		PassingMarks:       req.PassingMarks,
	}

	if err := c.ExamService.CreateExam(exam); err != nil {
		var cfgErr *util.ConfigurationError
		if errors.As(err, &cfgErr) {
			util.BadRequest(ctx, cfgErr.Error())
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, exam)
}

func (c *ExamController) GetExam(ctx *gin.Context) {
	exam, err := c.ExamService.GetExam(ctx.Param("examId"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, exam)
}

type answerKeyRequest struct {
	Entries []struct {
		QuestionNumber int     `json:"questionNumber" binding:"required"`
		CorrectOption  *string `json:"correctOption"`
		Marks          int     `json:"marks"`
	} `json:"entries" binding:"required"`
}

func (c *ExamController) SetAnswerKey(ctx *gin.Context) {
	var req answerKeyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	entries := make([]model.AnswerKeyEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, model.AnswerKeyEntry{
			QuestionNumber: e.QuestionNumber,
			CorrectOption:  e.CorrectOption,
			Marks:          e.Marks,
		})
	}

	if err := c.ExamService.SetAnswerKey(ctx.Param("examId"), entries); err != nil {
		var cfgErr *util.ConfigurationError
		if errors.As(err, &cfgErr) {
			util.BadRequest(ctx, cfgErr.Error())
			return
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"examId": ctx.Param("examId"), "entries": len(entries)})
}
