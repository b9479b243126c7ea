package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DefaultModelID = "us.anthropic.claude-3-5-haiku-20241022-v1:0"

	// DefaultTopK is the number of passages retrieved per query.
	DefaultTopK = 5
)

// Config holds the configuration for the relay service.
// It is built once at startup and never mutated afterwards.
type Config struct {
	Environment   string `validate:"required"`
	Server        ServerConfig
	AWS           AWSConfig
	KnowledgeBase KnowledgeBaseConfig
	Log           LogConfig
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Port            int           `validate:"min=1,max=65535"`
	MaxConnections  int           `validate:"min=0"`
	MaxBodyBytes    int64         `validate:"min=1"`
	ShutdownTimeout time.Duration `validate:"min=0"`
}

// AWSConfig holds the region and optional static credentials.
// Empty credentials fall back to the SDK default chain.
type AWSConfig struct {
	Region          string `validate:"required"`
	AccessKeyID     string `validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `validate:"required_with=AccessKeyID"`
	SessionToken    string
}

type KnowledgeBaseConfig struct {
	ID      string
	ModelID string `validate:"required"`
	TopK    int    `validate:"min=1,max=100"`
}

type LogConfig struct {
	Level        string `validate:"required"`
	Format       string `validate:"oneof=text json"`
	ReportCaller bool
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	env := strings.ToLower(GetStringEnv("APP_ENV", GetStringEnv("NODE_ENV", EnvProduction)))

	defaultLevel := "info"
	if env == EnvDevelopment {
		defaultLevel = "debug"
	}

	return &Config{
		Environment: env,
		Server: ServerConfig{
			Port:            GetIntEnv("PORT", 3001),
			MaxConnections:  GetIntEnv("SERVER_MAX_CONNECTIONS", 0),
			MaxBodyBytes:    int64(GetIntEnv("SERVER_MAX_BODY_BYTES", 100*1024)),
			ShutdownTimeout: GetDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		AWS: AWSConfig{
			Region:          GetStringEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     GetStringEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: GetStringEnv("AWS_SECRET_ACCESS_KEY", ""),
			SessionToken:    GetStringEnv("AWS_SESSION_TOKEN", ""),
		},
		KnowledgeBase: KnowledgeBaseConfig{
			ID:      GetStringEnv("KNOWLEDGE_BASE_ID", ""),
			ModelID: GetStringEnv("FOUNDATION_MODEL_ID", DefaultModelID),
			TopK:    GetIntEnv("KNOWLEDGE_BASE_TOP_K", DefaultTopK),
		},
		Log: LogConfig{
			Level:        strings.ToLower(GetStringEnv("LOG_LEVEL", defaultLevel)),
			Format:       strings.ToLower(GetStringEnv("LOG_FORMAT", "text")),
			ReportCaller: GetBoolEnv("LOG_REPORT_CALLER", false),
		},
	}
}

// Validate checks the loaded values against their constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsDevelopment reports whether diagnostic detail may be exposed to clients.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func GetStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
