package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Uploads   UploadsConfig
	Stats     StatsConfig
	Reminders RemindersConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadsConfig controls attachment storage and validation.
type UploadsConfig struct {
	Dir                   string
	TaskMaxBytes          int64
	SubmissionMaxBytes    int64
	AllowedTaskExts       []string
	AllowedSubmissionExts []string
}

// StatsConfig governs caching of the admin statistics payload.
type StatsConfig struct {
	CacheTTL time.Duration
}

// RemindersConfig gates the deadline reminder sweep.
type RemindersConfig struct {
	Enabled       bool
	SweepInterval time.Duration
	Window        time.Duration
	Workers       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	taskMax := v.GetInt64("UPLOADS_TASK_MAX_BYTES")
	if taskMax <= 0 {
		taskMax = 20 * 1024 * 1024
	}
	submissionMax := v.GetInt64("UPLOADS_SUBMISSION_MAX_BYTES")
	if submissionMax <= 0 {
		submissionMax = 10 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		Dir:                   v.GetString("UPLOADS_DIR"),
		TaskMaxBytes:          taskMax,
		SubmissionMaxBytes:    submissionMax,
		AllowedTaskExts:       splitAndTrim(v.GetString("UPLOADS_TASK_ALLOWED_EXTS")),
		AllowedSubmissionExts: splitAndTrim(v.GetString("UPLOADS_SUBMISSION_ALLOWED_EXTS")),
	}

	cfg.Stats = StatsConfig{
		CacheTTL: parseDuration(v.GetString("STATS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Reminders = RemindersConfig{
		Enabled:       v.GetBool("ENABLE_DEADLINE_REMINDERS"),
		SweepInterval: parseDuration(v.GetString("REMINDERS_SWEEP_INTERVAL"), time.Hour),
		Window:        parseDuration(v.GetString("REMINDERS_WINDOW"), 24*time.Hour),
		Workers:       v.GetInt("REMINDERS_WORKERS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "smart_edu")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPLOADS_DIR", "./uploads")
	v.SetDefault("UPLOADS_TASK_MAX_BYTES", 20*1024*1024)
	v.SetDefault("UPLOADS_SUBMISSION_MAX_BYTES", 10*1024*1024)
	v.SetDefault("UPLOADS_TASK_ALLOWED_EXTS", "pdf,doc,docx,txt,jpg,jpeg,png,ppt,pptx,xls,xlsx")
	v.SetDefault("UPLOADS_SUBMISSION_ALLOWED_EXTS", "pdf,doc,docx,txt,jpg,jpeg,png")

	v.SetDefault("STATS_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_DEADLINE_REMINDERS", false)
	v.SetDefault("REMINDERS_SWEEP_INTERVAL", "1h")
	v.SetDefault("REMINDERS_WINDOW", "24h")
	v.SetDefault("REMINDERS_WORKERS", 1)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
