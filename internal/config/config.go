package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"crowdfundin/pkg/config"
	"crowdfundin/pkg/otel"
)

type RazorpayConfig struct {
	BaseURL   string        `yaml:"base_url"`
	KeyID     string        `yaml:"key_id"`
	KeySecret string        `yaml:"key_secret"`
	Currency  string        `yaml:"currency"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Configured 占位的 key 视为未配置
func (c RazorpayConfig) Configured() bool {
	placeholder := func(s string) bool {
		return s == "" || s == "your_razorpay_key_id" || s == "your_razorpay_key_secret" || s == "changeme"
	}
	return !placeholder(c.KeyID) && !placeholder(c.KeySecret)
}

type EmailConfig struct {
	// Provider: smtp | resend | log
	Provider     string `yaml:"provider"`
	From         string `yaml:"from"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	ResendAPIKey string `yaml:"resend_api_key"`
	// 群发时的并发上限
	Concurrency int `yaml:"concurrency"`
}

type WorkerConfig struct {
	MaxRetries        int64         `yaml:"max_retries"`
	DedupTTL          time.Duration `yaml:"dedup_ttl"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

type OutboxConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
}

type Config struct {
	DB          config.DBConfig     `yaml:"db"`
	MQ          config.MQConfig     `yaml:"mq"`
	Redis       config.RedisConfig  `yaml:"redis"`
	JWT         config.JWTConfig    `yaml:"jwt"`
	Server      config.ServerConfig `yaml:"server"`
	Razorpay    RazorpayConfig      `yaml:"razorpay"`
	Email       EmailConfig         `yaml:"email"`
	Worker      WorkerConfig        `yaml:"worker"`
	Outbox      OutboxConfig        `yaml:"outbox"`
	Otel        otel.Config         `yaml:"otel"`
	FrontendURL string              `yaml:"frontend_url"`
	// 管理后台统计缓存时间
	StatsCacheTTL time.Duration `yaml:"stats_cache_ttl"`
}

// Load 读取 configDir 下的 base.yaml + <env>.yaml，再应用环境变量覆盖
func Load(env, configDir string) (*Config, error) {
	cfg := defaults()
	if err := config.LoadInto(env, configDir, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 环境变量覆盖
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	overrideRazorpayFromEnv(&cfg.Razorpay)
	overrideEmailFromEnv(&cfg.Email)
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.FrontendURL = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Otel.Endpoint = v
		cfg.Otel.Enabled = true
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: config.ServerConfig{Port: ":5000"},
		JWT:    config.JWTConfig{TTL: 30 * 24 * time.Hour},
		Razorpay: RazorpayConfig{
			BaseURL:  "https://api.razorpay.com",
			Currency: "INR",
			Timeout:  10 * time.Second,
		},
		Email:         EmailConfig{Provider: "log", Concurrency: 8},
		Worker:        WorkerConfig{MaxRetries: 3, DedupTTL: 24 * time.Hour, ReconcileInterval: 15 * time.Minute},
		Outbox:        OutboxConfig{Interval: time.Second, BatchSize: 100, MaxRetries: 5},
		Otel:          otel.Config{ServiceName: "crowdfundin"},
		FrontendURL:   "http://localhost:3000",
		StatsCacheTTL: time.Minute,
	}
}

func overrideRazorpayFromEnv(cfg *RazorpayConfig) {
	if v := os.Getenv("RAZORPAY_KEY_ID"); v != "" {
		cfg.KeyID = v
	}
	if v := os.Getenv("RAZORPAY_KEY_SECRET"); v != "" {
		cfg.KeySecret = v
	}
	if v := os.Getenv("RAZORPAY_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
}

func overrideEmailFromEnv(cfg *EmailConfig) {
	if v := os.Getenv("EMAIL_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("EMAIL_FROM"); v != "" {
		cfg.From = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.SMTPPort = port
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.SMTPUser = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTPPassword = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.ResendAPIKey = v
	}
}
