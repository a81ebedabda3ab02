package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Event transports.
const (
	EventModeSocket = "socket"
	EventModeHTTP   = "http"
	EventModeKafka  = "kafka"
)

// Config holds typed configuration for the tracker service.
type Config struct {
	LogLevel string

	StoreDriver string
	PostgresDSN string
	SQLitePath  string

	SlackBotToken      string
	SlackAppToken      string
	SlackSigningSecret string
	EventMode          string
	EventTimeout       time.Duration

	HTTPAddr    string
	MetricsAddr string
	JWTSecret   string

	RedisAddr        string
	EventDedupTTL    time.Duration
	CommandRateLimit int

	KafkaBrokers        string
	KafkaInboundTopic   string
	KafkaLifecycleTopic string
	KafkaGroupID        string

	TelegramToken  string
	TelegramChatID int64
	WebhookURL     string

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	EmailTo      []string

	StatesFile     string
	EmojiOverrides map[string]string

	ScanOnStart     bool
	ScanLookback    time.Duration
	ScanMaxMessages int
	ScanSchedule    string

	OTelEndpoint string
}

// Defaults registers fallback values on v.
func Defaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("store_driver", DriverSQLite)
	v.SetDefault("sqlite_path", "/data/tasks.db")
	v.SetDefault("event_mode", EventModeSocket)
	v.SetDefault("event_timeout", 30*time.Second)
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_addr", ":9095")
	v.SetDefault("event_dedup_ttl", 10*time.Minute)
	v.SetDefault("command_rate_limit", 10)
	v.SetDefault("kafka_inbound_topic", "slack.events")
	v.SetDefault("kafka_lifecycle_topic", "tasks.lifecycle")
	v.SetDefault("kafka_group_id", "slack-task-tracker")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("scan_on_start", true)
	v.SetDefault("scan_lookback", 90*24*time.Hour)
	v.SetDefault("scan_max_messages", 1000)
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	overrides := EnvEmojiOverrides(os.Environ())
	for name, emoji := range v.GetStringMapString("emoji") {
		overrides[strings.ToLower(name)] = emoji
	}

	return Config{
		LogLevel:            v.GetString("log_level"),
		StoreDriver:         strings.ToLower(v.GetString("store_driver")),
		PostgresDSN:         v.GetString("postgres_dsn"),
		SQLitePath:          v.GetString("sqlite_path"),
		SlackBotToken:       v.GetString("slack_bot_token"),
		SlackAppToken:       v.GetString("slack_app_token"),
		SlackSigningSecret:  v.GetString("slack_signing_secret"),
		EventMode:           strings.ToLower(v.GetString("event_mode")),
		EventTimeout:        v.GetDuration("event_timeout"),
		HTTPAddr:            v.GetString("http_addr"),
		MetricsAddr:         v.GetString("metrics_addr"),
		JWTSecret:           v.GetString("jwt_secret"),
		RedisAddr:           v.GetString("redis_addr"),
		EventDedupTTL:       v.GetDuration("event_dedup_ttl"),
		CommandRateLimit:    v.GetInt("command_rate_limit"),
		KafkaBrokers:        v.GetString("kafka_brokers"),
		KafkaInboundTopic:   v.GetString("kafka_inbound_topic"),
		KafkaLifecycleTopic: v.GetString("kafka_lifecycle_topic"),
		KafkaGroupID:        v.GetString("kafka_group_id"),
		TelegramToken:       v.GetString("telegram_token"),
		TelegramChatID:      v.GetInt64("telegram_chat_id"),
		WebhookURL:          v.GetString("webhook_url"),
		SMTPHost:            v.GetString("smtp_host"),
		SMTPPort:            v.GetInt("smtp_port"),
		SMTPFrom:            v.GetString("smtp_from"),
		SMTPUsername:        v.GetString("smtp_username"),
		SMTPPassword:        v.GetString("smtp_password"),
		EmailTo:             v.GetStringSlice("email_to"),
		StatesFile:          v.GetString("states_file"),
		EmojiOverrides:      overrides,
		ScanOnStart:         v.GetBool("scan_on_start"),
		ScanLookback:        v.GetDuration("scan_lookback"),
		ScanMaxMessages:     v.GetInt("scan_max_messages"),
		ScanSchedule:        v.GetString("scan_schedule"),
		OTelEndpoint:        v.GetString("otel_endpoint"),
	}
}

// EnvEmojiOverrides collects DEFAULT_TASK_<STATE>_EMOJI variables, keyed by
// lower-cased state name.
func EnvEmojiOverrides(environ []string) map[string]string {
	const prefix, suffix = "DEFAULT_TASK_", "_EMOJI"
	out := make(map[string]string)
	for _, kv := range environ {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || val == "" || !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix)
		if name == "" {
			continue
		}
		out[strings.ToLower(name)] = val
	}
	return out
}

// Brokers splits the comma-separated broker list.
func (c Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
