package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // FEED_TIMEZONE must resolve on hosts without zoneinfo

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DBPath string

	// External feeds.
	SensorFeedURL string
	LedgerFeedURL string
	LifecycleURL  string
	FeedTimeout   time.Duration
	FeedLocation  *time.Location

	// Cadences and bounds.
	PollInterval            time.Duration
	ShipmentRefreshInterval time.Duration
	HistoryRetention        int
	ValidationMinLatency    time.Duration
	ArtifactCacheSize       int

	// Completed sensor log publication.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	feedTimeout, err := parsePositiveDuration("FEED_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "1s")
	if err != nil {
		return nil, err
	}
	refreshInterval, err := parsePositiveDuration("SHIPMENT_REFRESH_INTERVAL", "3s")
	if err != nil {
		return nil, err
	}

	// Zero disables the validation latency floor.
	minLatency, err := time.ParseDuration(sharedcfg.EnvOrDefault("VALIDATION_MIN_LATENCY", "1s"))
	if err != nil || minLatency < 0 {
		return nil, errors.New("invalid VALIDATION_MIN_LATENCY")
	}

	retention, err := parsePositiveInt("HISTORY_RETENTION", 1000)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("ARTIFACT_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	tz := sharedcfg.EnvOrDefault("FEED_TIMEZONE", "Asia/Bangkok")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_TIMEZONE %q: %w", tz, err)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DBPath: sharedcfg.EnvOrDefault("DB_PATH", "./data/sensor.db"),

		SensorFeedURL: sharedcfg.EnvOrDefault("SENSOR_FEED_URL", "http://localhost:9000/sensor/latest"),
		LedgerFeedURL: sharedcfg.EnvOrDefault("LEDGER_FEED_URL", "http://localhost:9000/ledger"),
		LifecycleURL:  sharedcfg.EnvOrDefault("LIFECYCLE_URL", "http://localhost:9000/shipments"),
		FeedTimeout:   feedTimeout,
		FeedLocation:  loc,

		PollInterval:            pollInterval,
		ShipmentRefreshInterval: refreshInterval,
		HistoryRetention:        retention,
		ValidationMinLatency:    minLatency,
		ArtifactCacheSize:       cacheSize,

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "sensor-logs"),
	}

	if strings.TrimSpace(cfg.DBPath) == "" {
		return nil, errors.New("DB_PATH is required")
	}
	if cfg.SensorFeedURL == "" || cfg.LedgerFeedURL == "" || cfg.LifecycleURL == "" {
		return nil, errors.New("SENSOR_FEED_URL, LEDGER_FEED_URL and LIFECYCLE_URL are required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
