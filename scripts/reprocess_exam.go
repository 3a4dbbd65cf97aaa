// 手动重判脚本
//
// 调整识别阈值或更正答案键之后，用它把一场考试下的提交全部重新判一遍。
// 已有结果会被覆盖，正在处理中的提交自动跳过。
//
// 用法: go run scripts/reprocess_exam.go -exam <examId> [-tier cv]

package main

import (
	"context"
	"flag"
	"log"

	"omr_grading_backend/internal/app"
	"omr_grading_backend/internal/config"
	"omr_grading_backend/internal/repository"
	"omr_grading_backend/internal/service"
	"omr_grading_backend/internal/util"
	"omr_grading_backend/pkg/database"
	"omr_grading_backend/pkg/logger"
)

func main() {
	examID := flag.String("exam", "", "要重判的考试 ID")
	tier := flag.String("tier", "", "钉住某一识别层（留空按层级顺序）")
	flag.Parse()

	if *examID == "" {
		log.Fatal("用法: go run scripts/reprocess_exam.go -exam <examId> [-tier cv]")
	}

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	logger.InitLogger(cfg.Server.Mode)

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}

	storage, err := service.NewStorageService(cfg)
	if err != nil {
		log.Fatalf("存储初始化失败: %v", err)
	}

	engine := app.BuildEngine(cfg)

	examRepo := repository.NewExamRepository(db)
	subRepo := repository.NewSubmissionRepository(db)
	resultRepo := repository.NewResultRepository(db)

	gradingSvc := service.NewGradingService(
		examRepo, subRepo, resultRepo, storage.Provider, engine, nil,
		app.GradingPolicy(cfg),
	)

	subs, err := subRepo.ListByExam(*examID, "")
	if err != nil {
		log.Fatalf("读取提交失败: %v", err)
	}

	log.Printf("开始重判 %d 份提交...", len(subs))
	ctx := context.Background()
	opts := service.ProcessOptions{PinnedTier: *tier}
	var done, failed, skipped int
	for _, sub := range subs {
		_, err := gradingSvc.ProcessSubmission(ctx, sub.ID, opts)
		switch {
		case err == nil:
			done++
		case err == util.ErrConcurrencyConflict:
			skipped++
		default:
			failed++
			log.Printf("提交 %s 重判失败: %v", sub.ID, err)
		}
	}
	log.Printf("完成: 成功 %d, 失败 %d, 跳过 %d", done, failed, skipped)
}
