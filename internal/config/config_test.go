package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

const sampleConfig = `
server:
  port: "8080"
  mode: debug
database:
  host: 127.0.0.1
  port: 3306
  user: omr
  password: secret
  dbname: omr_grading
  charset: utf8mb4
  parsetime: true
storage:
  type: minio
  local_path: ./uploads
  minio_endpoint: 127.0.0.1:9000
  minio_bucket: sheets
detection:
  confidence_threshold: 0.85
  aggregation: mean
  tier_order: ["vision-a", "cv"]
  vision:
    - name: vision-a
      base_url: https://vision.example.internal/v1
      api_key: test-key
      model: vision-large
      timeout_seconds: 45
      requests_per_minute: 30
grading:
  cutoffs:
    - min_percentage: 85
      grade: A
    - min_percentage: 0
      grade: F
`

func loadFrom(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	viper.Reset()
	return LoadConfig(dir)
}

// 配置的 snake_case 键必须完整落到结构体上，识别层参数尤其不能静默丢失
func TestLoadConfigParsesSnakeCaseKeys(t *testing.T) {
	cfg, err := loadFrom(t, sampleConfig)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Detection.ConfidenceThreshold != 0.85 {
		t.Errorf("confidence_threshold = %f", cfg.Detection.ConfidenceThreshold)
	}
	if cfg.Detection.Aggregation != "mean" {
		t.Errorf("aggregation = %s", cfg.Detection.Aggregation)
	}
	if len(cfg.Detection.TierOrder) != 2 || cfg.Detection.TierOrder[0] != "vision-a" {
		t.Errorf("tier_order = %v", cfg.Detection.TierOrder)
	}
	if len(cfg.Detection.Vision) != 1 {
		t.Fatalf("vision tiers = %d", len(cfg.Detection.Vision))
	}
	v := cfg.Detection.Vision[0]
	if v.BaseURL != "https://vision.example.internal/v1" {
		t.Errorf("base_url = %s", v.BaseURL)
	}
	if v.APIKey != "test-key" {
		t.Errorf("api_key = %s", v.APIKey)
	}
	if v.TimeoutSeconds != 45*time.Second {
		t.Errorf("timeout = %v", v.TimeoutSeconds)
	}
	if v.RequestsPerMinute != 30 {
		t.Errorf("requests_per_minute = %d", v.RequestsPerMinute)
	}
	if cfg.Storage.LocalPath != "./uploads" {
		t.Errorf("local_path = %s", cfg.Storage.LocalPath)
	}
	if len(cfg.Grading.Cutoffs) != 2 || cfg.Grading.Cutoffs[0].MinPercentage != 85 {
		t.Errorf("cutoffs = %+v", cfg.Grading.Cutoffs)
	}
}

func TestValidateRejectsUnknownTierOrder(t *testing.T) {
	cfg := &Config{}
	cfg.Detection.ConfidenceThreshold = 0.8
	cfg.Detection.Aggregation = "min"
	cfg.Detection.TierOrder = []string{"cv", "vision-z"}

	if err := validate(cfg); err == nil {
		t.Error("unknown tier name in tier_order should be rejected")
	}
}

func TestValidateRejectsDuplicateTierOrder(t *testing.T) {
	cfg := &Config{}
	cfg.Detection.ConfidenceThreshold = 0.8
	cfg.Detection.Aggregation = "min"
	cfg.Detection.TierOrder = []string{"cv", "cv"}

	if err := validate(cfg); err == nil {
		t.Error("duplicate tier in tier_order should be rejected")
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := &Config{}
	cfg.Detection.ConfidenceThreshold = 1.5
	cfg.Detection.Aggregation = "min"

	if err := validate(cfg); err == nil {
		t.Error("threshold above 1 should be rejected")
	}
}
