// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// QueueConfig provides settings for the asynq queue transport.
type QueueConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetMessageConcurrency() int
	GetJobMaxRetry() int
}

// AIConfig provides settings for the language model provider.
type AIConfig interface {
	GetAIBaseURL() string
	GetAIAPIKey() string
	GetAIModel() string
	GetAITimeout() time.Duration
	GetAIRequestsPerSecond() float64
	GetBreakerThreshold() int
	GetBreakerWindow() time.Duration
	GetBreakerResetTime() time.Duration
	GetAIMaxRetries() int
	GetAIBaseDelay() time.Duration
	GetAIMaxDelay() time.Duration
}

// WhatsAppConfig provides settings for the outbound WhatsApp bridge.
type WhatsAppConfig interface {
	GetWhatsAppURL() string
	GetWhatsAppKey() string
	GetWhatsAppDeviceID() string
}

// NotifyConfig provides settings for agent email notifications.
type NotifyConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetNotifyFromName() string
	GetNotifyFromAddress() string
	IsNotifyEnabled() bool
}

// ArchiveConfig provides settings for conversation archival storage.
type ArchiveConfig interface {
	GetArchiveEndpoint() string
	GetArchiveAccessKey() string
	GetArchiveSecretKey() string
	GetArchiveUseSSL() bool
	GetArchiveBucket() string
	IsArchiveEnabled() bool
}

// OpsConfig provides settings for the operational HTTP server.
type OpsConfig interface {
	GetOpsAddr() string
	GetOpsJWTSecret() string
	GetCORSOrigins() []string
}

// SweepConfig provides settings for the handoff-timeout sweeper.
type SweepConfig interface {
	GetHandoffTimeout() time.Duration
	GetSweepInterval() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                 string
	DatabaseURL         string
	RedisURL            string
	RedisTLSInsecure    bool
	MessageConcurrency  int
	JobMaxRetry         int
	AIBaseURL           string
	AIAPIKey            string
	AIModel             string
	AITimeout           time.Duration
	AIRequestsPerSecond float64
	AIMaxRetries        int
	AIBaseDelay         time.Duration
	AIMaxDelay          time.Duration
	BreakerThreshold    int
	BreakerWindow       time.Duration
	BreakerResetTime    time.Duration
	WhatsAppURL         string
	WhatsAppKey         string
	WhatsAppDeviceID    string
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	NotifyEnabled       bool
	NotifyFromName      string
	NotifyFromAddress   string
	ArchiveEndpoint     string
	ArchiveAccessKey    string
	ArchiveSecretKey    string
	ArchiveUseSSL       bool
	ArchiveBucket       string
	OpsAddr             string
	OpsJWTSecret        string
	CORSOrigins         []string
	HandoffTimeout      time.Duration
	SweepInterval       time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// QueueConfig implementation
func (c *Config) GetRedisURL() string { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetMessageConcurrency() int { return c.MessageConcurrency }
func (c *Config) GetJobMaxRetry() int { return c.JobMaxRetry }

// AIConfig implementation
func (c *Config) GetAIBaseURL() string { return c.AIBaseURL }
func (c *Config) GetAIAPIKey() string { return c.AIAPIKey }
func (c *Config) GetAIModel() string { return c.AIModel }
func (c *Config) GetAITimeout() time.Duration { return c.AITimeout }
func (c *Config) GetAIRequestsPerSecond() float64 { return c.AIRequestsPerSecond }
func (c *Config) GetBreakerThreshold() int { return c.BreakerThreshold }
func (c *Config) GetBreakerWindow() time.Duration { return c.BreakerWindow }
func (c *Config) GetBreakerResetTime() time.Duration { return c.BreakerResetTime }
func (c *Config) GetAIMaxRetries() int { return c.AIMaxRetries }
func (c *Config) GetAIBaseDelay() time.Duration { return c.AIBaseDelay }
func (c *Config) GetAIMaxDelay() time.Duration { return c.AIMaxDelay }

// WhatsAppConfig implementation
func (c *Config) GetWhatsAppURL() string { return c.WhatsAppURL }
func (c *Config) GetWhatsAppKey() string { return c.WhatsAppKey }
func (c *Config) GetWhatsAppDeviceID() string { return c.WhatsAppDeviceID }

// NotifyConfig implementation
func (c *Config) GetSMTPHost() string { return c.SMTPHost }
func (c *Config) GetSMTPPort() int { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string { return c.SMTPPassword }
func (c *Config) GetNotifyFromName() string { return c.NotifyFromName }
func (c *Config) GetNotifyFromAddress() string { return c.NotifyFromAddress }
func (c *Config) IsNotifyEnabled() bool { return c.NotifyEnabled && c.SMTPHost != "" }

// ArchiveConfig implementation
func (c *Config) GetArchiveEndpoint() string { return c.ArchiveEndpoint }
func (c *Config) GetArchiveAccessKey() string { return c.ArchiveAccessKey }
func (c *Config) GetArchiveSecretKey() string { return c.ArchiveSecretKey }
func (c *Config) GetArchiveUseSSL() bool { return c.ArchiveUseSSL }
func (c *Config) GetArchiveBucket() string { return c.ArchiveBucket }
func (c *Config) IsArchiveEnabled() bool { return c.ArchiveEndpoint != "" }

// OpsConfig implementation
func (c *Config) GetOpsAddr() string { return c.OpsAddr }
func (c *Config) GetOpsJWTSecret() string { return c.OpsJWTSecret }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// SweepConfig implementation
func (c *Config) GetHandoffTimeout() time.Duration { return c.HandoffTimeout }
func (c *Config) GetSweepInterval() time.Duration { return c.SweepInterval }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                 getEnv("APP_ENV", "development"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RedisTLSInsecure:    strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		MessageConcurrency:  mustInt(getEnv("MESSAGE_CONCURRENCY", "5")),
		JobMaxRetry:         mustInt(getEnv("JOB_MAX_RETRY", "3")),
		AIBaseURL:           getEnv("AI_BASE_URL", "https://api.moonshot.ai/v1"),
		AIAPIKey:            getEnv("AI_API_KEY", ""),
		AIModel:             getEnv("AI_MODEL", "kimi-k2-turbo-preview"),
		AITimeout:           mustDuration(getEnv("AI_TIMEOUT", "30s")),
		AIRequestsPerSecond: mustFloat(getEnv("AI_REQUESTS_PER_SECOND", "5")),
		AIMaxRetries:        mustInt(getEnv("AI_MAX_RETRIES", "3")),
		AIBaseDelay:         mustDuration(getEnv("AI_BASE_DELAY", "1s")),
		AIMaxDelay:          mustDuration(getEnv("AI_MAX_DELAY", "30s")),
		BreakerThreshold:    mustInt(getEnv("BREAKER_THRESHOLD", "5")),
		BreakerWindow:       mustDuration(getEnv("BREAKER_WINDOW", "1m")),
		BreakerResetTime:    mustDuration(getEnv("BREAKER_RESET_TIME", "30s")),
		WhatsAppURL:         getEnv("WHATSAPP_URL", ""),
		WhatsAppKey:         getEnv("WHATSAPP_KEY", ""),
		WhatsAppDeviceID:    getEnv("WHATSAPP_DEVICE_ID", ""),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		NotifyEnabled:       strings.EqualFold(getEnv("NOTIFY_ENABLED", "true"), "true"),
		NotifyFromName:      getEnv("NOTIFY_FROM_NAME", "LeadChat"),
		NotifyFromAddress:   getEnv("NOTIFY_FROM_ADDRESS", ""),
		ArchiveEndpoint:     getEnv("ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKey:    getEnv("ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey:    getEnv("ARCHIVE_SECRET_KEY", ""),
		ArchiveUseSSL:       strings.EqualFold(getEnv("ARCHIVE_USE_SSL", "false"), "true"),
		ArchiveBucket:       getEnv("ARCHIVE_BUCKET", "conversation-archive"),
		OpsAddr:             getEnv("OPS_ADDR", ":8081"),
		OpsJWTSecret:        getEnv("OPS_JWT_SECRET", ""),
		CORSOrigins:         splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),
		HandoffTimeout:      mustDuration(getEnv("HANDOFF_TIMEOUT", "4h")),
		SweepInterval:       mustDuration(getEnv("SWEEP_INTERVAL", "5m")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.AIAPIKey == "" {
		return nil, fmt.Errorf("AI_API_KEY is required")
	}
	if cfg.OpsJWTSecret == "" && !strings.EqualFold(cfg.Env, "development") {
		return nil, fmt.Errorf("OPS_JWT_SECRET is required outside development")
	}
	if cfg.NotifyEnabled && cfg.SMTPHost != "" && cfg.NotifyFromAddress == "" {
		return nil, fmt.Errorf("NOTIFY_FROM_ADDRESS is required when notifications are enabled")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
