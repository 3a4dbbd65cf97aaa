package controller

import (
	"errors"

	"omr_grading_backend/internal/service"
	"omr_grading_backend/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type SubmissionController struct {
	SubmissionService *service.SubmissionService
	GradingService    *service.GradingService
}

func NewSubmissionController(
	submissionService *service.SubmissionService,
	gradingService *service.GradingService,
) *SubmissionController {
	return &SubmissionController{
		SubmissionService: submissionService,
		GradingService:    gradingService,
	}
}

// UploadSubmission 接收一张答题卡照片，multipart 字段: examId, image，
// studentId 可选（匿名或批量扫描场景）
func (c *SubmissionController) UploadSubmission(ctx *gin.Context) {
	examID := ctx.PostForm("examId")
	studentID := ctx.PostForm("studentId")
	if examID == "" {
		util.BadRequest(ctx, "examId is required")
		return
	}

	file, err := ctx.FormFile("image")
	if err != nil {
		util.BadRequest(ctx, "image file is required")
		return
	}

	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = util.MimeJPEG
	}

	sub, err := c.SubmissionService.CreateSubmission(ctx.Request.Context(),
		examID, studentID, file.Filename, src, file.Size, contentType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, sub)
}

func (c *SubmissionController) GetSubmission(ctx *gin.Context) {
	sub, err := c.SubmissionService.GetSubmission(ctx.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, sub)
}

// ProcessSubmission 触发单份提交的判分，query 参数 tier 可以钉住某一识别层
func (c *SubmissionController) ProcessSubmission(ctx *gin.Context) {
	opts := service.ProcessOptions{PinnedTier: ctx.Query("tier")}

	outcome, err := c.GradingService.ProcessSubmission(ctx.Request.Context(), ctx.Param("id"), opts)
	if err != nil {
		if errors.Is(err, util.ErrConcurrencyConflict) {
			util.Conflict(ctx, err.Error())
			return
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.NotFound(ctx)
			return
		}
		var cfgErr *util.ConfigurationError
		if errors.As(err, &cfgErr) {
			util.BadRequest(ctx, cfgErr.Error())
			return
		}
		// 定位失败等管线错误：提交进入 failed，outcome 带着问题列表
		if outcome != nil {
			util.Success(ctx, outcome)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, outcome)
}

// ProcessExam 批量处理一场考试下所有 pending 提交
func (c *SubmissionController) ProcessExam(ctx *gin.Context) {
	opts := service.ProcessOptions{PinnedTier: ctx.Query("tier")}

	outcomes, err := c.GradingService.ProcessExam(ctx.Request.Context(), ctx.Param("examId"), opts)
	if err != nil && len(outcomes) == 0 {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, outcomes)
}
