package controller

import (
	"errors"

	"omr_grading_backend/internal/service"
	"omr_grading_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type StatisticsController struct {
	StatisticsService *service.StatisticsService
	ResultService     *service.ResultService
}

func NewStatisticsController(
	statisticsService *service.StatisticsService,
	resultService *service.ResultService,
) *StatisticsController {
	return &StatisticsController{
		StatisticsService: statisticsService,
		ResultService:     resultService,
	}
}

// ExamStatistics 一场考试的班级统计与排名
func (c *StatisticsController) ExamStatistics(ctx *gin.Context) {
	class, err := c.StatisticsService.ExamStatistics(ctx.Request.Context(), ctx.Param("examId"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, class)
}

// SubmissionResult 单份提交的判分明细
func (c *StatisticsController) SubmissionResult(ctx *gin.Context) {
	result, err := c.ResultService.ResultForSubmission(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
