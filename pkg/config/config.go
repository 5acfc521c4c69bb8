package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	developmentActionBaseURL = "http://localhost:5173"
	deployedActionBaseURL    = "http://192.168.20.30:8089"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	AutoMigrate bool

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Documents     DocumentsConfig
	SMTP          SMTPConfig
	Notifications NotificationsConfig
	RoleDirectory RoleDirectoryConfig
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
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig verifies access tokens minted by the external auth system.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DocumentsConfig controls support document storage and download links.
type DocumentsConfig struct {
	StorageDir       string
	SupportDir       string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
}

// SMTPConfig configures the outbound mail transport.
type SMTPConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	From        string
	FromName    string
	ImplicitTLS bool
	Timeout     time.Duration
}

// NotificationsConfig governs who gets notified and how dispatch is scheduled.
type NotificationsConfig struct {
	Enabled         bool
	Async           bool
	OpsMailbox      string
	ActionBaseURL   string
	CompanyName     string
	WithholdingRole string
	AttachSummary   bool
	Workers         int
	Retries         int
	RetryDelay      time.Duration
}

// RoleDirectoryConfig toggles caching of role email lookups.
type RoleDirectoryConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.AutoMigrate = v.GetBool("DB_AUTO_MIGRATE")

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
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxDocumentSize := v.GetInt64("DOCUMENTS_MAX_FILE_SIZE")
	if maxDocumentSize <= 0 {
		maxDocumentSize = 10 * 1024 * 1024
	}
	cfg.Documents = DocumentsConfig{
		StorageDir:       v.GetString("DOCUMENTS_STORAGE_DIR"),
		SupportDir:       v.GetString("DOCUMENTS_SUPPORT_DIR"),
		MaxFileSizeBytes: maxDocumentSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("DOCUMENTS_ALLOWED_MIME_TYPES")),
		SignedURLSecret:  v.GetString("DOCUMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("DOCUMENTS_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.SMTP = SMTPConfig{
		Host:        v.GetString("SMTP_HOST"),
		Port:        v.GetInt("SMTP_PORT"),
		User:        v.GetString("SMTP_USER"),
		Password:    v.GetString("SMTP_PASSWORD"),
		From:        v.GetString("SMTP_FROM"),
		FromName:    v.GetString("SMTP_FROM_NAME"),
		ImplicitTLS: v.GetBool("SMTP_IMPLICIT_TLS"),
		Timeout:     parseDuration(v.GetString("SMTP_TIMEOUT"), 15*time.Second),
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.User
	}

	actionBaseURL := v.GetString("NOTIFICATIONS_ACTION_BASE_URL")
	if actionBaseURL == "" {
		actionBaseURL = defaultActionBaseURL(cfg.Env)
	}
	cfg.Notifications = NotificationsConfig{
		Enabled:         v.GetBool("NOTIFICATIONS_ENABLED"),
		Async:           v.GetBool("NOTIFICATIONS_ASYNC"),
		OpsMailbox:      strings.TrimSpace(v.GetString("NOTIFICATIONS_OPS_MAILBOX")),
		ActionBaseURL:   strings.TrimRight(actionBaseURL, "/"),
		CompanyName:     v.GetString("NOTIFICATIONS_COMPANY_NAME"),
		WithholdingRole: v.GetString("NOTIFICATIONS_WITHHOLDING_ROLE"),
		AttachSummary:   v.GetBool("NOTIFICATIONS_ATTACH_SUMMARY"),
		Workers:         v.GetInt("NOTIFICATIONS_WORKERS"),
		Retries:         v.GetInt("NOTIFICATIONS_RETRIES"),
		RetryDelay:      parseDuration(v.GetString("NOTIFICATIONS_RETRY_DELAY"), 5*time.Second),
	}

	cfg.RoleDirectory = RoleDirectoryConfig{
		CacheEnabled: v.GetBool("ROLE_DIRECTORY_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("ROLE_DIRECTORY_CACHE_TTL"), 10*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "advances")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("DOCUMENTS_STORAGE_DIR", "./data")
	v.SetDefault("DOCUMENTS_SUPPORT_DIR", "soportes")
	v.SetDefault("DOCUMENTS_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("DOCUMENTS_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet,application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	v.SetDefault("DOCUMENTS_SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("DOCUMENTS_SIGNED_URL_TTL", "30m")

	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("SMTP_FROM_NAME", "Notificaciones Anticipos")
	v.SetDefault("SMTP_IMPLICIT_TLS", false)
	v.SetDefault("SMTP_TIMEOUT", "15s")

	v.SetDefault("NOTIFICATIONS_ENABLED", true)
	v.SetDefault("NOTIFICATIONS_ASYNC", true)
	v.SetDefault("NOTIFICATIONS_OPS_MAILBOX", "")
	v.SetDefault("NOTIFICATIONS_ACTION_BASE_URL", "")
	v.SetDefault("NOTIFICATIONS_COMPANY_NAME", "Recamier S.A.")
	v.SetDefault("NOTIFICATIONS_WITHHOLDING_ROLE", "Retenciones")
	v.SetDefault("NOTIFICATIONS_ATTACH_SUMMARY", false)
	v.SetDefault("NOTIFICATIONS_WORKERS", 2)
	v.SetDefault("NOTIFICATIONS_RETRIES", 3)
	v.SetDefault("NOTIFICATIONS_RETRY_DELAY", "5s")

	v.SetDefault("ROLE_DIRECTORY_CACHE_ENABLED", false)
	v.SetDefault("ROLE_DIRECTORY_CACHE_TTL", "10m")
}

func defaultActionBaseURL(env string) string {
	if env == EnvDevelopment {
		return developmentActionBaseURL
	}
	return deployedActionBaseURL
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
