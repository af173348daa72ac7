package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "github.com/ttauveron/gcp-iam-watcher/pkg/platform/strings"
)

// Config captures everything the watcher reads from the environment so main
// stays lean. Destination credentials are validated by the destination
// registry, not here; a kind that is never selected may leave its block empty.
type Config struct {
	Addr     string
	LogLevel slog.Level

	// DestTypes is the ordered list of destination kinds to build, parsed
	// from the DEST_TYPES CSV (DEST_TYPE is honored as a legacy fallback).
	DestTypes []string

	// Filters holds the optional per-kind filter dimensions, keyed by
	// destination kind. An absent entry or empty dimension means "no
	// constraint".
	Filters map[string]FilterDimensions

	Slack SlackConfig
	SMTP  SMTPConfig
	Redis RedisConfig
	Push  PushConfig
	Kafka KafkaConfig

	// NamingCacheTTL bounds how long resolved resource names are reused.
	NamingCacheTTL time.Duration
}

// FilterDimensions are the three independently optional filter sets attached
// to a destination kind.
type FilterDimensions struct {
	EventTypes    []string
	Roles         []string
	ResourceTypes []string
}

// Empty reports whether no dimension is configured.
func (f FilterDimensions) Empty() bool {
	return len(f.EventTypes) == 0 && len(f.Roles) == 0 && len(f.ResourceTypes) == 0
}

// SlackConfig holds the chat sink credentials. Either WebhookURL, or both
// Token and Channel, must be set when the slack kind is selected.
type SlackConfig struct {
	WebhookURL string
	Token      string
	Channel    string
}

// SMTPConfig holds the mail sink submission settings.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   string
}

// RedisConfig enables the Redis-backed naming cache when URL is non-empty.
type RedisConfig struct {
	URL string
}

// PushConfig configures the Pub/Sub push endpoint. When AuthSecret is set the
// endpoint requires an HS256-signed bearer token.
type PushConfig struct {
	AuthSecret string
	Audience   string
}

// KafkaConfig enables the Kafka inbound transport when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Group   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:           envOr("WATCHER_ADDR", ":8080"),
		LogLevel:       parseLevel(os.Getenv("LOG_LEVEL")),
		DestTypes:      pstrings.DedupeAndTrimLower(strings.Split(envOr("DEST_TYPES", envOr("DEST_TYPE", "slack")), ",")),
		Filters:        map[string]FilterDimensions{},
		NamingCacheTTL: envDuration("NAMING_CACHE_TTL", 5*time.Minute),
		Slack: SlackConfig{
			WebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
			Token:      os.Getenv("SLACK_TOKEN"),
			Channel:    os.Getenv("SLACK_CHANNEL"),
		},
		SMTP: SMTPConfig{
			Host: envOr("SMTP_HOST", "localhost"),
			Port: envInt("SMTP_PORT", 25),
			User: os.Getenv("SMTP_USER"),
			Pass: os.Getenv("SMTP_PASS"),
			From: os.Getenv("SMTP_EMAIL_FROM"),
			To:   os.Getenv("SMTP_EMAIL_TO"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Push: PushConfig{
			AuthSecret: os.Getenv("PUSH_AUTH_SECRET"),
			Audience:   os.Getenv("PUSH_AUTH_AUDIENCE"),
		},
		Kafka: KafkaConfig{
			Brokers: pstrings.DedupeAndTrim(strings.Split(os.Getenv("KAFKA_BROKERS"), ",")),
			Topic:   envOr("KAFKA_TOPIC", "iam-feed"),
			Group:   envOr("KAFKA_GROUP", "gcp-iam-watcher"),
		},
	}

	for _, kind := range cfg.DestTypes {
		dims := filtersFor(kind)
		if !dims.Empty() {
			cfg.Filters[kind] = dims
		}
	}

	return cfg
}

// filtersFor reads the three DEST_<KIND>_* filter CSVs for a destination kind.
// Example: DEST_SLACK_EVENT_TYPES=binding_added,binding_removed
func filtersFor(kind string) FilterDimensions {
	prefix := "DEST_" + strings.ToUpper(kind)
	return FilterDimensions{
		EventTypes:    csv(prefix + "_EVENT_TYPES"),
		Roles:         csv(prefix + "_ROLES"),
		ResourceTypes: csv(prefix + "_RESOURCE_TYPES"),
	}
}

func csv(name string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	return pstrings.DedupeAndTrimLower(strings.Split(raw, ","))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
