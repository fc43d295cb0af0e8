package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// EnvPrefix 环境变量统一前缀
const EnvPrefix = "NOVELBOT_"

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DB_"`
	LLM       LLMConfig       `yaml:"llm" envPrefix:"LLM_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`
	Writing   WritingConfig   `yaml:"writing" envPrefix:"WRITING_"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"PORT" validate:"required,numeric"`
	Mode string `yaml:"mode" env:"MODE" validate:"oneof=debug release test"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type" env:"TYPE" validate:"oneof=sqlite mysql"` // sqlite, mysql
	DSN  string `yaml:"dsn" env:"DSN" validate:"required"`
}

type LLMConfig struct {
	APIURL                string `yaml:"api_url" env:"API_URL" validate:"required,url"`
	APIKey                string `yaml:"api_key" env:"API_KEY"`
	Model                 string `yaml:"model" env:"MODEL" validate:"required"`
	MaxTokens             int    `yaml:"max_tokens" env:"MAX_TOKENS" validate:"min=1"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS" validate:"min=1,max=3600"`
	MaxRetries            int    `yaml:"max_retries" env:"MAX_RETRIES" validate:"min=1,max=10"`
	MaxRequestsPerMinute  int    `yaml:"max_requests_per_minute" env:"MAX_REQUESTS_PER_MINUTE" validate:"min=1"`
	MaxConcurrentRequests int    `yaml:"max_concurrent_requests" env:"MAX_CONCURRENT_REQUESTS" validate:"min=1,max=100"`
}

type SchedulerConfig struct {
	Enabled     bool `yaml:"enabled" env:"ENABLED"`
	TickSeconds int  `yaml:"tick_seconds" env:"TICK_SECONDS" validate:"min=1"`
	// AutoPlan 为真时每次 tick 前补齐当日规划的小说
	AutoPlan bool `yaml:"auto_plan" env:"AUTO_PLAN"`
}

type WritingConfig struct {
	DailyTargetNovels       int      `yaml:"daily_target_novels" env:"DAILY_TARGET_NOVELS" validate:"min=0"`
	DefaultChaptersPerNovel int      `yaml:"default_chapters_per_novel" env:"DEFAULT_CHAPTERS_PER_NOVEL" validate:"min=1,max=1000"`
	PreferredGenres         []string `yaml:"preferred_genres" env:"PREFERRED_GENRES" envSeparator:","`
}

var (
	cfg      *Config
	cfgErr   error
	once     sync.Once
	validate = validator.New()
)

// GetConfig 返回全局配置，首次调用时加载
func GetConfig() (*Config, error) {
	once.Do(func() {
		path := os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "config.yaml"
		}
		cfg, cfgErr = Load(path)
	})
	return cfg, cfgErr
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/novelbot.db",
		},
		LLM: LLMConfig{
			APIURL:                "https://api.deepseek.com",
			Model:                 "deepseek-chat",
			MaxTokens:             4096,
			RequestTimeoutSeconds: 60,
			MaxRetries:            3,
			MaxRequestsPerMinute:  30,
			MaxConcurrentRequests: 3,
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			TickSeconds: 60,
		},
		Writing: WritingConfig{
			DailyTargetNovels:       2,
			DefaultChaptersPerNovel: 10,
			PreferredGenres:         []string{"玄幻", "科幻", "都市", "悬疑"},
		},
	}
}

// Load 按 默认值 -> YAML 文件 -> .env -> 环境变量 的顺序加载配置并校验
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		klog.V(6).Infof("配置文件不存在，使用默认配置: path=%s", path)
	default:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// .env 不存在时忽略
	_ = godotenv.Load()

	// 环境变量优先级高于配置文件
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate 校验配置字段取值
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}
