package config

import (
	"os"
	"strings"
	"time"

	"omr_grading_backend/internal/util"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Detection DetectionConfig `mapstructure:"detection"`
	Grading   GradingConfig   `mapstructure:"grading"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
}

// DetectionConfig 分层识别参数
type DetectionConfig struct {
	ConfidenceThreshold float64        `mapstructure:"confidence_threshold"`
	Aggregation         string         `mapstructure:"aggregation"` // min 或 mean
	Vision              []VisionConfig `mapstructure:"vision"`

	// TierOrder 层的尝试顺序，元素为 "cv" 或 vision 条目的 name。
	// 留空时 cv 在前，vision 按声明顺序殿后。
	TierOrder []string `mapstructure:"tier_order"`
}

// VisionConfig 远端视觉模型兜底层，按声明顺序排在像素层之后
type VisionConfig struct {
	Name              string        `mapstructure:"name"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	TimeoutSeconds    time.Duration `mapstructure:"timeout_seconds"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

type GradingConfig struct {
	Cutoffs []CutoffConfig `mapstructure:"cutoffs"`
}

type CutoffConfig struct {
	MinPercentage float64 `mapstructure:"min_percentage"`
	Grade         string  `mapstructure:"grade"`
}

type StatsConfig struct {
	CacheTTLSeconds time.Duration `mapstructure:"cache_ttl_seconds"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("OMR_GRADING")
	viper.AutomaticEnv()

	// Database
	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	viper.BindEnv("server.mode", "SERVER_MODE")

	// Storage
	viper.BindEnv("storage.type", "STORAGE_TYPE")
	viper.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	viper.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	viper.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	viper.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Detection
	viper.BindEnv("detection.confidence_threshold", "DETECTION_CONFIDENCE_THRESHOLD")
	viper.BindEnv("detection.aggregation", "DETECTION_AGGREGATION")

	// Tracing
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == util.StorageLocal {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Detection.ConfidenceThreshold == 0 {
		cfg.Detection.ConfidenceThreshold = 0.8
	}
	if cfg.Detection.Aggregation == "" {
		cfg.Detection.Aggregation = "min"
	}
	if cfg.Stats.CacheTTLSeconds == 0 {
		cfg.Stats.CacheTTLSeconds = 60
	}
	cfg.Stats.CacheTTLSeconds = cfg.Stats.CacheTTLSeconds * time.Second
	for i := range cfg.Detection.Vision {
		v := &cfg.Detection.Vision[i]
		if v.TimeoutSeconds == 0 {
			v.TimeoutSeconds = 30
		}
		v.TimeoutSeconds = v.TimeoutSeconds * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Detection.ConfidenceThreshold < 0 || cfg.Detection.ConfidenceThreshold > 1 {
		return util.NewConfigurationError("detection.confidence_threshold must be in [0,1], got %f", cfg.Detection.ConfidenceThreshold)
	}
	if cfg.Detection.Aggregation != "min" && cfg.Detection.Aggregation != "mean" {
		return util.NewConfigurationError("detection.aggregation must be min or mean, got %q", cfg.Detection.Aggregation)
	}
	known := map[string]bool{"cv": true}
	for _, v := range cfg.Detection.Vision {
		if v.Name == "" || v.BaseURL == "" || v.Model == "" {
			return util.NewConfigurationError("vision tier %q requires name, base_url and model", v.Name)
		}
		known[v.Name] = true
	}
	seenTier := map[string]bool{}
	for _, name := range cfg.Detection.TierOrder {
		if !known[name] {
			return util.NewConfigurationError("tier_order references unknown tier %q", name)
		}
		if seenTier[name] {
			return util.NewConfigurationError("tier_order lists tier %q twice", name)
		}
		seenTier[name] = true
	}
	seen := map[string]bool{}
	for _, c := range cfg.Grading.Cutoffs {
		g := strings.TrimSpace(c.Grade)
		if g == "" {
			return util.NewConfigurationError("grading cutoff at %.2f%% has empty grade", c.MinPercentage)
		}
		if seen[g] {
			return util.NewConfigurationError("duplicate grade %q in grading cutoffs", g)
		}
		seen[g] = true
	}
	return nil
}
