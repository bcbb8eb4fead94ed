package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Exam      ExamConfig      `mapstructure:"exam"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`

	// Answer autosaves per learner per minute.
	AnswersPerMinute int `mapstructure:"answers_per_minute"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	Charset      string
	ParseTime    bool
	MaxOpenConns int `mapstructure:"max_open_conns"`
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// ExamConfig holds the attempt policy shared by every exam unless an exam overrides it.
type ExamConfig struct {
	// Cooldown between two starts of the same exam by the same learner. 0 disables it.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// Per-tier sampling quotas used when an exam does not set its own.
	DefaultEasy   int `mapstructure:"default_easy"`
	DefaultMedium int `mapstructure:"default_medium"`
	DefaultHard   int `mapstructure:"default_hard"`
	// Extra time accepted on submit to absorb network latency.
	SubmitGrace   time.Duration `mapstructure:"submit_grace"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepWorkers  int           `mapstructure:"sweep_workers"`
	GradeOnExpiry bool          `mapstructure:"grade_on_expiry"`
	StartLockTTL  time.Duration `mapstructure:"start_lock_ttl"`
	StatsCacheTTL time.Duration `mapstructure:"stats_cache_ttl"`
}

// DefaultExamConfig mirrors the values written to configs/config.yaml.
func DefaultExamConfig() ExamConfig {
	return ExamConfig{
		Cooldown:      0,
		DefaultEasy:   10,
		DefaultMedium: 15,
		DefaultHard:   5,
		SubmitGrace:   5 * time.Second,
		SweepInterval: time.Minute,
		SweepWorkers:  4,
		GradeOnExpiry: true,
		StartLockTTL:  10 * time.Second,
		StatsCacheTTL: time.Minute,
	}
}

func setDefaults(v *viper.Viper) {
	def := DefaultExamConfig()
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./uploads")
	v.SetDefault("rate_limit.max_requests", 6000)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("rate_limit.answers_per_minute", 120)
	v.SetDefault("exam.cooldown", def.Cooldown)
	v.SetDefault("exam.default_easy", def.DefaultEasy)
	v.SetDefault("exam.default_medium", def.DefaultMedium)
	v.SetDefault("exam.default_hard", def.DefaultHard)
	v.SetDefault("exam.submit_grace", def.SubmitGrace)
	v.SetDefault("exam.sweep_interval", def.SweepInterval)
	v.SetDefault("exam.sweep_workers", def.SweepWorkers)
	v.SetDefault("exam.grade_on_expiry", def.GradeOnExpiry)
	v.SetDefault("exam.start_lock_ttl", def.StartLockTTL)
	v.SetDefault("exam.stats_cache_ttl", def.StatsCacheTTL)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MOOC_EXAM")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "SERVER_PORT")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Exam policy
	v.BindEnv("exam.cooldown", "EXAM_COOLDOWN")
	v.BindEnv("exam.grade_on_expiry", "EXAM_GRADE_ON_EXPIRY")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	return c.Exam.Validate()
}

func (e ExamConfig) Validate() error {
	if e.DefaultEasy < 0 || e.DefaultMedium < 0 || e.DefaultHard < 0 {
		return fmt.Errorf("exam sampling quotas must not be negative")
	}
	if e.DefaultEasy+e.DefaultMedium+e.DefaultHard == 0 {
		return fmt.Errorf("exam sampling quotas must draw at least one question")
	}
	if e.Cooldown < 0 || e.SubmitGrace < 0 {
		return fmt.Errorf("exam cooldown and submit grace must not be negative")
	}
	if e.SweepInterval <= 0 {
		return fmt.Errorf("exam sweep interval must be positive")
	}
	return nil
}
