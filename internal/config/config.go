package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath         = "config.toml"
	DefaultHTTPAddr           = ":8080"
	DefaultPGHost             = "127.0.0.1"
	DefaultPGPort             = 5432
	DefaultPGUser             = "postgres"
	DefaultPGDatabase         = "lexdesk"
	DefaultPGSSLMode          = "disable"
	DefaultStorageRoot        = "data/objects"
	DefaultMediaURLTTLSeconds = 600
	DefaultPublicBaseURL      = "http://127.0.0.1:8080"
	DefaultWhisperBaseURL     = "https://api.openai.com/v1"
	DefaultWhisperModel       = "whisper-1"
	DefaultAMQPQueue          = "lexdesk.inbound"
	DefaultRetryAttempts      = 3
	DefaultRetryBackoffMs     = 500
	DefaultRetryMaxBackoffMs  = 8000
	DefaultMaxConcurrency     = 16
	DefaultHistoryLimit       = 20
	DefaultDedupTTLHours      = 24
)

type Config struct {
	Log           LogConfig           `toml:"log"`
	Server        ServerConfig        `toml:"server"`
	Postgres      PostgresConfig      `toml:"postgres"`
	Redis         RedisConfig         `toml:"redis"`
	AMQP          AMQPConfig          `toml:"amqp"`
	Storage       StorageConfig       `toml:"storage"`
	Media         MediaConfig         `toml:"media"`
	Transcription TranscriptionConfig `toml:"transcription"`
	AgentGateway  AgentGatewayConfig  `toml:"agent_gateway"`
	Telegram      TelegramConfig      `toml:"telegram"`
	Discord       DiscordConfig       `toml:"discord"`
	Workflow      WorkflowConfig      `toml:"workflow"`
	Retention     RetentionConfig     `toml:"retention"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// ConnString returns the explicit DSN when set, otherwise one built from the
// discrete fields. scheme is "postgres" for pgx and "pgx5" for migrations.
func (c PostgresConfig) ConnString(scheme string) string {
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		if scheme != "" && scheme != "postgres" {
			if i := strings.Index(dsn, "://"); i > 0 {
				return scheme + dsn[i:]
			}
		}
		return dsn
	}
	if scheme == "" {
		scheme = "postgres"
	}
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type AMQPConfig struct {
	URL      string `toml:"url"`
	Queue    string `toml:"queue"`
	Prefetch int    `toml:"prefetch"`
}

type StorageConfig struct {
	Root string `toml:"root"`
}

type MediaConfig struct {
	URLTTLSeconds int    `toml:"url_ttl_seconds"`
	SigningSecret string `toml:"signing_secret"`
	PublicBaseURL string `toml:"public_base_url"`
}

// URLTTL returns the ephemeral credential lifetime, falling back to the default
// for non-positive values.
func (c MediaConfig) URLTTL() time.Duration {
	if c.URLTTLSeconds <= 0 {
		return DefaultMediaURLTTLSeconds * time.Second
	}
	return time.Duration(c.URLTTLSeconds) * time.Second
}

type TranscriptionConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type AgentGatewayConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

func (c AgentGatewayConfig) BaseURL() string {
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Port
	if port == 0 {
		port = 8081
	}
	return "http://" + host + ":" + fmt.Sprint(port)
}

type TelegramConfig struct {
	BotToken string `toml:"bot_token"`
}

type DiscordConfig struct {
	BotToken string `toml:"bot_token"`
}

type WorkflowConfig struct {
	RetryAttempts     int `toml:"retry_attempts"`
	RetryBackoffMs    int `toml:"retry_backoff_ms"`
	RetryMaxBackoffMs int `toml:"retry_max_backoff_ms"`
	MaxConcurrency    int `toml:"max_concurrency"`
	HistoryLimit      int `toml:"history_limit"`
	HistoryEntryBytes int `toml:"history_entry_max_bytes"`
	DedupTTLHours     int `toml:"dedup_ttl_hours"`
}

// RetentionConfig controls history purging. MaxAgeDays of zero keeps
// history forever.
type RetentionConfig struct {
	Schedule   string `toml:"schedule"`
	MaxAgeDays int    `toml:"max_age_days"`
}

func (c RetentionConfig) MaxAge() time.Duration {
	if c.MaxAgeDays <= 0 {
		return 0
	}
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// Defaults returns a Config populated with default values.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		AMQP: AMQPConfig{
			Queue:    DefaultAMQPQueue,
			Prefetch: 8,
		},
		Storage: StorageConfig{
			Root: DefaultStorageRoot,
		},
		Media: MediaConfig{
			URLTTLSeconds: DefaultMediaURLTTLSeconds,
			PublicBaseURL: DefaultPublicBaseURL,
		},
		Transcription: TranscriptionConfig{
			BaseURL:        DefaultWhisperBaseURL,
			Model:          DefaultWhisperModel,
			TimeoutSeconds: 120,
		},
		AgentGateway: AgentGatewayConfig{
			Host: "127.0.0.1",
			Port: 8081,
		},
		Workflow: WorkflowConfig{
			RetryAttempts:     DefaultRetryAttempts,
			RetryBackoffMs:    DefaultRetryBackoffMs,
			RetryMaxBackoffMs: DefaultRetryMaxBackoffMs,
			MaxConcurrency:    DefaultMaxConcurrency,
			HistoryLimit:      DefaultHistoryLimit,
			DedupTTLHours:     DefaultDedupTTLHours,
		},
		Retention: RetentionConfig{
			Schedule: "@daily",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv lets secrets come from the environment instead of the config file.
func applyEnv(cfg *Config) {
	overrides := []struct {
		key string
		dst *string
	}{
		{key: "LEXDESK_POSTGRES_DSN", dst: &cfg.Postgres.DSN},
		{key: "LEXDESK_REDIS_ADDR", dst: &cfg.Redis.Addr},
		{key: "LEXDESK_AMQP_URL", dst: &cfg.AMQP.URL},
		{key: "LEXDESK_MEDIA_SIGNING_SECRET", dst: &cfg.Media.SigningSecret},
		{key: "LEXDESK_TRANSCRIPTION_API_KEY", dst: &cfg.Transcription.APIKey},
		{key: "LEXDESK_TELEGRAM_TOKEN", dst: &cfg.Telegram.BotToken},
		{key: "LEXDESK_DISCORD_TOKEN", dst: &cfg.Discord.BotToken},
		{key: "HTTP_ADDR", dst: &cfg.Server.Addr},
	}
	for _, o := range overrides {
		if value := strings.TrimSpace(os.Getenv(o.key)); value != "" {
			*o.dst = value
		}
	}
}
