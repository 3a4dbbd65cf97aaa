package app

import (
	"net/http"

	"omr_grading_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers) {
	router.GET("/metrics", monitoring.PrometheusHandler())

	router.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		exams := api.Group("/exams")
		{
			exams.POST("", c.exam.CreateExam)
			exams.GET("/:examId", c.exam.GetExam)
			exams.PUT("/:examId/answer-key", c.exam.SetAnswerKey)
			exams.POST("/:examId/process", c.submission.ProcessExam)
			exams.GET("/:examId/statistics", c.statistics.ExamStatistics)
		}

		submissions := api.Group("/submissions")
		{
			submissions.POST("", c.submission.UploadSubmission)
			submissions.GET("/:id", c.submission.GetSubmission)
			submissions.POST("/:id/process", c.submission.ProcessSubmission)
			submissions.GET("/:id/result", c.statistics.SubmissionResult)
		}
	}
}
