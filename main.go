package main

import (
	"log"

	"omr_grading_backend/internal/app"
	"omr_grading_backend/internal/config"
	"omr_grading_backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	application := app.NewApp(cfg)
	defer logger.Log.Sync()

	application.Run()
}
