package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the bot
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Mail      MailConfig      `mapstructure:"mail"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Health    HealthConfig    `mapstructure:"health"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// BotConfig holds chat transport configuration
type BotConfig struct {
	Token       string        `mapstructure:"token" validate:"required"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	Debug       bool          `mapstructure:"debug"`
}

// MailConfig holds outbound mail configuration
type MailConfig struct {
	// Provider selects the transport: "smtp" or "gmail"
	Provider string `mapstructure:"provider" validate:"oneof=smtp gmail"`
	// Address is the sender mailbox and the SMTP login identity
	Address string `mapstructure:"address" validate:"required"`
	// Password is the SMTP secret (app password for Gmail SMTP)
	Password string      `mapstructure:"password" validate:"required_if=Provider smtp"`
	FromName string      `mapstructure:"from_name"`
	SMTP     SMTPConfig  `mapstructure:"smtp"`
	Gmail    GmailConfig `mapstructure:"gmail"`
}

// SMTPConfig holds mail relay connection settings
type SMTPConfig struct {
	Host    string        `mapstructure:"host" validate:"required"`
	Port    int           `mapstructure:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `mapstructure:"timeout"`
	// TLSMode is "starttls" (upgrade after connect) or "implicit" (TLS from the first byte, port 465)
	TLSMode string `mapstructure:"tls_mode" validate:"oneof=starttls implicit"`
}

// Addr returns the relay address
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	// CredentialsJSON is a service account JSON with domain-wide delegation
	CredentialsJSON string `mapstructure:"credentials_json"`
	// ClientID, ClientSecret and RefreshToken are used for personal accounts
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
}

// StorageConfig holds the working directory root
type StorageConfig struct {
	DataDir string `mapstructure:"data_dir" validate:"required"`
}

// DispatchConfig holds send loop and upload limits
type DispatchConfig struct {
	SendDelay   time.Duration `mapstructure:"send_delay"`
	MaxFileSize int64         `mapstructure:"max_file_size" validate:"min=1"`
	MaxContacts int           `mapstructure:"max_contacts" validate:"min=1"`
	// RequireAttachment turns an unreadable attachment into a per-recipient failure
	RequireAttachment bool `mapstructure:"require_attachment"`
}

// SessionConfig holds session store configuration
type SessionConfig struct {
	Store string        `mapstructure:"store" validate:"oneof=memory redis"`
	TTL   time.Duration `mapstructure:"ttl"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
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
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// HealthConfig holds the health probe listener; an empty Addr disables it
type HealthConfig struct {
	Addr string `mapstructure:"addr"`
}

// RateLimitConfig caps how many updates one user may send per window
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit" validate:"min=1"`
	Window  time.Duration `mapstructure:"window"`
}

// envBindings maps config keys to the environment names operators already use.
var envBindings = map[string]string{
	"bot.token":        "BOT_TOKEN",
	"mail.smtp.host":   "SMTP_SERVER",
	"mail.smtp.port":   "SMTP_PORT",
	"mail.address":     "SMTP_EMAIL",
	"mail.password":    "SMTP_PASSWORD",
	"storage.data_dir": "DATA_DIR",
	"log.file":         "LOG_FILE",
}

// fieldEnv maps validator namespaces to the environment variable an operator has to set.
var fieldEnv = map[string]string{
	"Config.Bot.Token":       "BOT_TOKEN",
	"Config.Mail.Address":    "SMTP_EMAIL",
	"Config.Mail.Password":   "SMTP_PASSWORD",
	"Config.Mail.SMTP.Host":  "SMTP_SERVER",
	"Config.Mail.SMTP.Port":  "SMTP_PORT",
	"Config.Storage.DataDir": "DATA_DIR",
}

// MissingError lists every required setting that is absent.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return "missing environment variables: " + strings.Join(e.Vars, ", ")
}

// Load reads configuration from .env, an optional config file and environment variables
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/mailmerge")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("MAILMERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env, "MAILMERGE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required settings. Missing values are reported together as a *MissingError.
func (c *Config) Validate() error {
	var missing []string
	var invalid []string

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("failed to validate config: %w", err)
		}
		for _, fe := range verrs {
			name, ok := fieldEnv[fe.Namespace()]
			if !ok {
				name = fe.Namespace()
			}
			if strings.HasPrefix(fe.Tag(), "required") {
				missing = append(missing, name)
				continue
			}
			invalid = append(invalid, fmt.Sprintf("%s (%s=%s)", name, fe.Tag(), fe.Param()))
		}
	}

	if c.Mail.Provider == "gmail" && c.Mail.Gmail.CredentialsJSON == "" && c.Mail.Gmail.RefreshToken == "" {
		missing = append(missing, "MAILMERGE_MAIL_GMAIL_CREDENTIALS_JSON or MAILMERGE_MAIL_GMAIL_REFRESH_TOKEN")
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return &MissingError{Vars: missing}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(invalid, ", "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Bot defaults
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.poll_timeout", "60s")
	v.SetDefault("bot.debug", false)

	// Mail defaults
	v.SetDefault("mail.provider", "smtp")
	v.SetDefault("mail.address", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from_name", "")
	v.SetDefault("mail.smtp.host", "smtp.gmail.com")
	v.SetDefault("mail.smtp.port", 587)
	v.SetDefault("mail.smtp.timeout", "10s")
	v.SetDefault("mail.smtp.tls_mode", "starttls")
	v.SetDefault("mail.gmail.credentials_json", "")
	v.SetDefault("mail.gmail.client_id", "")
	v.SetDefault("mail.gmail.client_secret", "")
	v.SetDefault("mail.gmail.refresh_token", "")

	// Storage defaults
	v.SetDefault("storage.data_dir", "user_data")

	// Dispatch defaults
	v.SetDefault("dispatch.send_delay", "500ms")
	v.SetDefault("dispatch.max_file_size", 50*1024*1024)
	v.SetDefault("dispatch.max_contacts", 10000)
	v.SetDefault("dispatch.require_attachment", false)

	// Session defaults
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", "24h")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "email_bot.log")
	v.SetDefault("log.max_size_mb", 5)
	v.SetDefault("log.max_backups", 5)

	// Health defaults
	v.SetDefault("health.addr", "")

	// Rate limit defaults
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.limit", 30)
	v.SetDefault("ratelimit.window", "1m")
}
