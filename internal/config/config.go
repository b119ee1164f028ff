package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klubbweb/matchcenter/internal/platform/logging"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv             string
	ServiceName        string
	ServiceVersion     string
	HTTPAddr           string
	CORSAllowedOrigins []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	LogLevel           logging.Level

	DBEnabled bool
	DBURL     string

	CacheTTL      time.Duration
	Retention     time.Duration
	CleanupEvery  time.Duration
	FallbackEvery time.Duration
	NotifyEvery   time.Duration
	FanoutWorkers int

	FeedBaseURL             string
	FeedPollPath            string
	FeedTimeout             time.Duration
	FeedMaxRetries          int
	FeedCircuitEnabled      bool
	FeedCircuitFailureCount int
	FeedCircuitOpenTimeout  time.Duration
	FeedCircuitHalfOpenMax  int

	StreamEnabled    bool
	StreamURL        string
	StreamCursorPath string

	WebhookEnabled bool
	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration

	PprofEnabled bool
	PprofAddr    string

	UptraceEnabled bool
	UptraceDSN     string

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	readTimeout, err := getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_WRITE_TIMEOUT: %w", err)
	}

	logLevel, err := logging.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}

	dbURL := strings.TrimSpace(getEnv("DB_URL", ""))
	dbEnabled, err := strconv.ParseBool(getEnv("DB_ENABLED", boolDefault(dbURL != "")))
	if err != nil {
		return Config{}, fmt.Errorf("parse DB_ENABLED: %w", err)
	}
	if dbEnabled && dbURL == "" {
		return Config{}, fmt.Errorf("DB_URL is required when DB_ENABLED=true")
	}

	cacheTTL, err := getEnvAsDuration("CACHE_TTL", 10*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL: %w", err)
	}
	retention, err := getEnvAsDuration("MATCH_RETENTION", 90*24*time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("parse MATCH_RETENTION: %w", err)
	}
	cleanupEvery, err := getEnvAsDuration("CLEANUP_INTERVAL", time.Hour)
	if err != nil {
		return Config{}, fmt.Errorf("parse CLEANUP_INTERVAL: %w", err)
	}
	fallbackEvery, err := getEnvAsDuration("FALLBACK_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse FALLBACK_POLL_INTERVAL: %w", err)
	}
	notifyEvery, err := getEnvAsDuration("NOTIFY_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return Config{}, fmt.Errorf("parse NOTIFY_INTERVAL: %w", err)
	}
	fanoutWorkers, err := getEnvAsInt("FANOUT_WORKERS", 16)
	if err != nil {
		return Config{}, fmt.Errorf("parse FANOUT_WORKERS: %w", err)
	}

	feedBaseURL := strings.TrimSpace(getEnv("FEED_BASE_URL", ""))
	if feedBaseURL == "" {
		return Config{}, fmt.Errorf("FEED_BASE_URL is required")
	}
	feedTimeout, err := getEnvAsDuration("FEED_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse FEED_TIMEOUT: %w", err)
	}
	feedMaxRetries, err := getEnvAsInt("FEED_MAX_RETRIES", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse FEED_MAX_RETRIES: %w", err)
	}
	feedCircuitEnabled, err := strconv.ParseBool(getEnv("FEED_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse FEED_CIRCUIT_ENABLED: %w", err)
	}
	feedCircuitFailureCount, err := getEnvAsInt("FEED_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse FEED_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	feedCircuitOpenTimeout, err := getEnvAsDuration("FEED_CIRCUIT_OPEN_TIMEOUT", 15*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse FEED_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	feedCircuitHalfOpenMax, err := getEnvAsInt("FEED_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse FEED_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}

	streamURL := strings.TrimSpace(getEnv("STREAM_URL", ""))
	streamEnabled, err := strconv.ParseBool(getEnv("STREAM_ENABLED", boolDefault(streamURL != "")))
	if err != nil {
		return Config{}, fmt.Errorf("parse STREAM_ENABLED: %w", err)
	}
	if streamEnabled && streamURL == "" {
		return Config{}, fmt.Errorf("STREAM_URL is required when STREAM_ENABLED=true")
	}

	webhookURL := strings.TrimSpace(getEnv("WEBHOOK_URL", ""))
	webhookEnabled, err := strconv.ParseBool(getEnv("WEBHOOK_ENABLED", boolDefault(webhookURL != "")))
	if err != nil {
		return Config{}, fmt.Errorf("parse WEBHOOK_ENABLED: %w", err)
	}
	if webhookEnabled && webhookURL == "" {
		return Config{}, fmt.Errorf("WEBHOOK_URL is required when WEBHOOK_ENABLED=true")
	}
	webhookTimeout, err := getEnvAsDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse WEBHOOK_TIMEOUT: %w", err)
	}

	pprofEnabled, err := strconv.ParseBool(getEnv("PPROF_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PPROF_ENABLED: %w", err)
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := getEnvAsDuration("PYROSCOPE_UPLOAD_RATE", 15*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}

	return Config{
		AppEnv:             appEnv,
		ServiceName:        getEnv("SERVICE_NAME", "matchcenter"),
		ServiceVersion:     getEnv("SERVICE_VERSION", "dev"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		LogLevel:           logLevel,

		DBEnabled: dbEnabled,
		DBURL:     dbURL,

		CacheTTL:      cacheTTL,
		Retention:     retention,
		CleanupEvery:  cleanupEvery,
		FallbackEvery: fallbackEvery,
		NotifyEvery:   notifyEvery,
		FanoutWorkers: fanoutWorkers,

		FeedBaseURL:             feedBaseURL,
		FeedPollPath:            getEnv("FEED_POLL_PATH", "/matcher/data"),
		FeedTimeout:             feedTimeout,
		FeedMaxRetries:          feedMaxRetries,
		FeedCircuitEnabled:      feedCircuitEnabled,
		FeedCircuitFailureCount: feedCircuitFailureCount,
		FeedCircuitOpenTimeout:  feedCircuitOpenTimeout,
		FeedCircuitHalfOpenMax:  feedCircuitHalfOpenMax,

		StreamEnabled:    streamEnabled,
		StreamURL:        streamURL,
		StreamCursorPath: getEnv("STREAM_CURSOR_PATH", "matchcenter-cursor.db"),

		WebhookEnabled: webhookEnabled,
		WebhookURL:     webhookURL,
		WebhookSecret:  strings.TrimSpace(getEnv("WEBHOOK_SECRET", "")),
		WebhookTimeout: webhookTimeout,

		PprofEnabled: pprofEnabled,
		PprofAddr:    getEnv("PPROF_ADDR", ":6060"),

		UptraceEnabled: uptraceEnabled,
		UptraceDSN:     uptraceDSN,

		PyroscopeEnabled:           pyroscopeEnabled,
		PyroscopeServerAddress:     pyroscopeServerAddress,
		PyroscopeAppName:           getEnv("PYROSCOPE_APP_NAME", "matchcenter"),
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
		PyroscopeUploadRate:        pyroscopeUploadRate,
	}, nil
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

func boolDefault(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
