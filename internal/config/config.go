package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Log          LogConfig          `mapstructure:"log"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Email        EmailConfig        `mapstructure:"email"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// StorageConfig selects which post stores are active.
// When both are enabled the database is authoritative for duplicate checks.
type StorageConfig struct {
	CSV CSVStorageConfig `mapstructure:"csv"`
	DB  DBStorageConfig  `mapstructure:"db"`
}

// CSVStorageConfig holds the flat-file backend settings
type CSVStorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Dir       string `mapstructure:"dir"`
	PostsFile string `mapstructure:"posts_file"`
}

// DBStorageConfig toggles the PostgreSQL backend
type DBStorageConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	DefaultLimit  int           `mapstructure:"default_limit"`
	DefaultWindow time.Duration `mapstructure:"default_window"`
}

// EmailConfig holds outbound email configuration
type EmailConfig struct {
	// Provider is the transport to use: "smtp" or "gmail"
	Provider string `mapstructure:"provider"`
	// SenderAddress is the "From" email address
	SenderAddress string `mapstructure:"sender_address"`
	// SenderName is the display name for the sender
	SenderName string `mapstructure:"sender_name"`
	// PortfolioLink is appended to every message body when set
	PortfolioLink string `mapstructure:"portfolio_link"`
	// TemplateFile holds the subject on line 1 and the body below it
	TemplateFile string `mapstructure:"template_file"`
	// AttachmentDir is scanned for files to attach to every message
	AttachmentDir string `mapstructure:"attachment_dir"`
	// SentLogFile is the append-only log of delivered messages
	SentLogFile string `mapstructure:"sent_log_file"`

	SMTP  SMTPConfig       `mapstructure:"smtp"`
	Gmail GmailEmailConfig `mapstructure:"gmail"`
}

// SMTPConfig holds mail submission settings
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Addr returns the submission endpoint address
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GmailEmailConfig holds Gmail API configuration
type GmailEmailConfig struct {
	// CredentialsJSON is the service account credentials JSON content
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID for OAuth2 token-based auth (alternative to service account)
	ClientID string `mapstructure:"client_id"`
	// ClientSecret for OAuth2 token-based auth
	ClientSecret string `mapstructure:"client_secret"`
	// RefreshToken for OAuth2 token-based auth
	RefreshToken string `mapstructure:"refresh_token"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	// A missing .env is fine; real deployments export variables directly.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/postreach")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("POSTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// SMTP login defaults to the sender mailbox
	if cfg.Email.SMTP.Username == "" {
		cfg.Email.SMTP.Username = cfg.Email.SenderAddress
	}

	return &cfg, nil
}

// bindLegacyEnv keeps the variable names used by existing .env files working
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"email.sender_address": {"POSTREACH_EMAIL_SENDER_ADDRESS", "SENDER_EMAIL"},
		"email.smtp.password":  {"POSTREACH_EMAIL_SMTP_PASSWORD", "SENDER_PASSWORD"},
		"email.smtp.host":      {"POSTREACH_EMAIL_SMTP_HOST", "SMTP_SERVER"},
		"email.smtp.port":      {"POSTREACH_EMAIL_SMTP_PORT", "SMTP_PORT"},
		"email.portfolio_link": {"POSTREACH_EMAIL_PORTFOLIO_LINK", "PORTFOLIO_LINK"},
		"database.host":        {"POSTREACH_DATABASE_HOST", "DB_HOST"},
		"database.port":        {"POSTREACH_DATABASE_PORT", "DB_PORT"},
		"database.user":        {"POSTREACH_DATABASE_USER", "DB_USER"},
		"database.password":    {"POSTREACH_DATABASE_PASSWORD", "DB_PASSWORD"},
		"database.name":        {"POSTREACH_DATABASE_NAME", "DB_NAME"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Storage defaults
	v.SetDefault("storage.csv.enabled", true)
	v.SetDefault("storage.csv.dir", "data")
	v.SetDefault("storage.csv.posts_file", "linkedin_posts.csv")
	v.SetDefault("storage.db.enabled", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "test_db")
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "root")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("rate_limiting.enabled", true)
	v.SetDefault("rate_limiting.default_limit", 60)
	v.SetDefault("rate_limiting.default_window", "1m")

	// Email defaults
	v.SetDefault("email.provider", "smtp")
	v.SetDefault("email.sender_address", "")
	v.SetDefault("email.sender_name", "")
	v.SetDefault("email.portfolio_link", "")
	v.SetDefault("email.template_file", "template/email_body.txt")
	v.SetDefault("email.attachment_dir", "resume")
	v.SetDefault("email.sent_log_file", "sent-mails/sent-mails.csv")
	v.SetDefault("email.smtp.host", "smtp.gmail.com")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.username", "")
	v.SetDefault("email.smtp.password", "")
}
