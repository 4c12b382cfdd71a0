package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	HTTP     HTTPConfig
	Analysis AnalysisConfig
	SMTP     SMTPConfig
	Log      LogConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicRequests string
	TopicReports  string
	NumPartitions int
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Threshold sources for the analysis engine
const (
	ThresholdSourceDefaults = "defaults"
	ThresholdSourceFile     = "file"
	ThresholdSourcePostgres = "postgres"
)

type AnalysisConfig struct {
	ThresholdSource string
	ThresholdsFile  string
	// Aggregation overrides the risk aggregation policy from the threshold source when set.
	Aggregation   string
	StrictCrops   bool
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
	DedupTTL      time.Duration
	// ClaimLease bounds how long an unfinished claim blocks redeliveries.
	ClaimLease time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

type LogConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "farm_user"),
			Password: getEnv("DB_PASSWORD", "farm_pass"),
			DBName:   getEnv("DB_NAME", "farm_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicRequests: getEnv("KAFKA_TOPIC_REQUESTS", "farm.analysis.requests"),
			TopicReports:  getEnv("KAFKA_TOPIC_REPORTS", "farm.analysis.reports"),
			NumPartitions: getEnvAsInt("KAFKA_NUM_PARTITIONS", 10),
		},
		HTTP: HTTPConfig{
			Port:         getEnvAsInt("HTTP_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		},
		Analysis: AnalysisConfig{
			ThresholdSource: strings.ToLower(getEnv("THRESHOLD_SOURCE", ThresholdSourceDefaults)),
			ThresholdsFile:  getEnv("THRESHOLDS_FILE", "thresholds.yaml"),
			Aggregation:     getEnv("RISK_AGGREGATION", ""),
			StrictCrops:     getEnvAsBool("STRICT_CROP_THRESHOLDS", false),
			Workers:         getEnvAsInt("ANALYSIS_WORKERS", 8),
			BatchSize:       getEnvAsInt("ANALYSIS_BATCH_SIZE", 50),
			FlushInterval:   getEnvAsDuration("ANALYSIS_FLUSH_INTERVAL", 2*time.Second),
			DedupTTL:        getEnvAsDuration("ANALYSIS_DEDUP_TTL", 24*time.Hour),
			ClaimLease:      getEnvAsDuration("ANALYSIS_CLAIM_LEASE", 2*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "farm-reports@example.com"),
			To:       getEnv("SMTP_TO", "agronomy@example.com"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := config.Analysis.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (a AnalysisConfig) validate() error {
	switch a.ThresholdSource {
	case ThresholdSourceDefaults, ThresholdSourceFile, ThresholdSourcePostgres:
	default:
		return fmt.Errorf("unknown THRESHOLD_SOURCE %q (want defaults, file or postgres)", a.ThresholdSource)
	}
	if a.Workers <= 0 {
		return fmt.Errorf("ANALYSIS_WORKERS must be positive, got %d", a.Workers)
	}
	if a.BatchSize <= 0 {
		return fmt.Errorf("ANALYSIS_BATCH_SIZE must be positive, got %d", a.BatchSize)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
