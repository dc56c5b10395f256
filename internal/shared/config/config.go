package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Firestore  FirestoreConfig
	Provider   ProviderConfig
	Encryption EncryptionConfig
	Link       LinkConfig
	Scheduler  SchedulerConfig
	Telemetry  TelemetryConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

type ProviderConfig struct {
	BaseURL    string
	Issuer     string
	Secret     string
	SessionTTL time.Duration
	Retries    int
	Backoff    time.Duration
}

type EncryptionConfig struct {
	Key string
}

type LinkConfig struct {
	PollInterval time.Duration
	MaxMFAPolls  int
	GateCapacity int
}

type SchedulerConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
	MetricsPort  string
}

func Load() (*Config, error) {

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	sessionTTL, err := time.ParseDuration(getEnv("PROVIDER_SESSION_TTL", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_SESSION_TTL: %w", err)
	}
	providerRetries, err := strconv.Atoi(getEnv("PROVIDER_RETRIES", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_RETRIES: %w", err)
	}
	providerBackoff, err := time.ParseDuration(getEnv("PROVIDER_BACKOFF", "500ms"))
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_BACKOFF: %w", err)
	}

	pollInterval, err := time.ParseDuration(getEnv("LINK_POLL_INTERVAL", "3s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LINK_POLL_INTERVAL: %w", err)
	}
	maxMFAPolls, err := strconv.Atoi(getEnv("LINK_MAX_MFA_POLLS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid LINK_MAX_MFA_POLLS: %w", err)
	}
	gateCapacity, err := strconv.Atoi(getEnv("LINK_GATE_CAPACITY", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid LINK_GATE_CAPACITY: %w", err)
	}

	schedulerWorkers, err := strconv.Atoi(getEnv("SCHEDULER_WORKERS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_WORKERS: %w", err)
	}
	schedulerJobDelay, err := time.ParseDuration(getEnv("SCHEDULER_JOB_DELAY", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_JOB_DELAY: %w", err)
	}
	schedulerQueueSize, err := strconv.Atoi(getEnv("SCHEDULER_QUEUE_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_QUEUE_SIZE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "linka"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "linka"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Firestore: FirestoreConfig{
			ProjectID:       getEnv("FIRESTORE_PROJECT_ID", ""),
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Provider: ProviderConfig{
			BaseURL:    getEnv("PROVIDER_BASE_URL", ""),
			Issuer:     getEnv("PROVIDER_ISSUER", "linka"),
			Secret:     getEnv("PROVIDER_SECRET", ""),
			SessionTTL: sessionTTL,
			Retries:    providerRetries,
			Backoff:    providerBackoff,
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
		Link: LinkConfig{
			PollInterval: pollInterval,
			MaxMFAPolls:  maxMFAPolls,
			GateCapacity: gateCapacity,
		},
		Scheduler: SchedulerConfig{
			Enabled:       getBoolEnv("SCHEDULER_ENABLED", true),
			ScheduleTimes: splitList(getEnv("SCHEDULER_TIMES", "05:00,10:00,14:00,20:00")),
			WorkerCount:   schedulerWorkers,
			JobDelay:      schedulerJobDelay,
			QueueSize:     schedulerQueueSize,
			RunOnStartup:  getBoolEnv("SCHEDULER_RUN_ON_STARTUP", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "linka"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
	}

	if cfg.Provider.BaseURL == "" {
		return nil, fmt.Errorf("PROVIDER_BASE_URL is required")
	}
	if cfg.Provider.Secret == "" {
		return nil, fmt.Errorf("PROVIDER_SECRET is required")
	}
	if cfg.Firestore.ProjectID == "" {
		return nil, fmt.Errorf("FIRESTORE_PROJECT_ID is required")
	}
	if cfg.Encryption.Key == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if len(cfg.Encryption.Key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
