package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout int
	Timeout     int
	Prefix      string
}

type S3Config struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
	PublicBaseURL   string
}

// CollaboratorConfig points at the external subsystems the engine depends
// on: pricing, risk classification and engagement completion.
type CollaboratorConfig struct {
	PricingURL    string
	RiskURL       string
	EngagementURL string
	Timeout       time.Duration
}

type EscrowConfig struct {
	// AutoReleaseBuffer is added to the engagement end to get the moment
	// unreleased funds are swept to the payee.
	AutoReleaseBuffer time.Duration
	SweepInterval     time.Duration
}

type StatementConfig struct {
	ExportDir         string
	FilesPublicPrefix string
	ExternalURL       string
}

type AppConfig struct {
	Port          string
	Postgres      PostgresConfig
	Redis         RedisConfig
	S3            S3Config
	Collaborators CollaboratorConfig
	Escrow        EscrowConfig
	Statements    StatementConfig
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int value %q: %v", s, err)
	}
	return i
}

func mustBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		log.Fatalf("invalid bool value %q: %v", s, err)
	}
	return b
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("invalid duration value %q: %v", s, err)
	}
	return d
}

func Load() AppConfig {
	return AppConfig{
		Port: getenv("APP_PORT", "8020"),
		Postgres: PostgresConfig{
			Host:     getenv("PG_HOST", "127.0.0.1"),
			Port:     mustAtoi(getenv("PG_PORT", "5432")),
			User:     getenv("PG_USER", "root"),
			Password: getenv("PG_PASSWORD", "hello-world"),
			DBName:   getenv("PG_DB", "settlement"),
			SSLMode:  getenv("PG_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:        getenv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    getenv("REDIS_PASSWORD", ""),
			DB:          mustAtoi(getenv("REDIS_DB", "0")),
			MaxRetries:  mustAtoi(getenv("REDIS_MAX_RETRIES", "5")),
			DialTimeout: mustAtoi(getenv("REDIS_DIAL_TIMEOUT", "10")),
			Timeout:     mustAtoi(getenv("REDIS_TIMEOUT", "5")),
			Prefix:      getenv("REDIS_PREFIX", "settlement_"),
		},
		S3: S3Config{
			Enabled:         mustBool(getenv("S3_ENABLED", "false")),
			Endpoint:        getenv("S3_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getenv("S3_ACCESS_KEY", "minio"),
			SecretAccessKey: getenv("S3_SECRET_KEY", "minio123"),
			Bucket:          getenv("S3_BUCKET", "statements"),
			Region:          getenv("S3_REGION", "us-east-1"),
			UseSSL:          mustBool(getenv("S3_USE_SSL", "false")),
			Prefix:          getenv("S3_PREFIX", ""),
			PublicBaseURL:   getenv("S3_PUBLIC_BASE_URL", ""),
		},
		Collaborators: CollaboratorConfig{
			PricingURL:    getenv("PRICING_URL", "http://127.0.0.1:8021"),
			RiskURL:       getenv("RISK_URL", "http://127.0.0.1:8022"),
			EngagementURL: getenv("ENGAGEMENT_URL", "http://127.0.0.1:8023"),
			Timeout:       mustDuration(getenv("COLLABORATOR_TIMEOUT", "5s")),
		},
		Escrow: EscrowConfig{
			AutoReleaseBuffer: mustDuration(getenv("ESCROW_AUTO_RELEASE_BUFFER", "24h")),
			SweepInterval:     mustDuration(getenv("ESCROW_SWEEP_INTERVAL", "5m")),
		},
		Statements: StatementConfig{
			ExportDir:         getenv("STATEMENT_DIR", "./statements"),
			FilesPublicPrefix: getenv("FILES_PUBLIC_PREFIX", "/files"),
			ExternalURL:       getenv("EXTERNAL_URL", "http://127.0.0.1:8020"),
		},
	}
}
