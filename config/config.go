package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ossdesk/ossdesk/pkg/crypto"
)

const VERSION = "1.4"

type Config struct {
	Database    DatabaseConfig
	Blob        BlobConfig
	Security    SecurityConfig
	Worker      WorkerConfig
	Sync        SyncConfig
	Google      GoogleConfig
	SMTP        SMTPConfig
	Environment string
	LogLevel    string
	Version     string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type BlobConfig struct {
	Driver         string // "fs" or "s3"
	Root           string
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

type SecurityConfig struct {
	// SecretKey encrypts OAuth credentials at rest. Decoded from base64,
	// must be exactly 32 bytes.
	SecretKey []byte
}

// WorkerConfig sizes the job host. Concurrency is per job family: sync jobs
// hold provider cursors and stay near-serial, pipeline stages fan out.
type WorkerConfig struct {
	SyncConcurrency     int
	FetchConcurrency    int
	ParseConcurrency    int
	StitchConcurrency   int
	RouteConcurrency    int
	OutboundConcurrency int

	// VisibilityTimeout is the default lease length granted on claim; a
	// worker that exceeds its lease loses the job to the reaper. The
	// per-family timeouts below override it, zero falls through.
	VisibilityTimeout time.Duration

	SyncVisibility     time.Duration
	FetchVisibility    time.Duration
	ParseVisibility    time.Duration
	StitchVisibility   time.Duration
	RouteVisibility    time.Duration
	OutboundVisibility time.Duration

	ReapInterval time.Duration
	PollInterval time.Duration
}

type SyncConfig struct {
	// HistoryInterval is the cadence at which each active mailbox gets a
	// history sync enqueued.
	HistoryInterval time.Duration
	// BreakerThreshold is the consecutive-failure count that pauses a
	// mailbox.
	BreakerThreshold int
	// PauseWindow is how long a tripped mailbox stays paused.
	PauseWindow time.Duration
}

// GoogleConfig holds the OAuth client used to mint access tokens from the
// stored refresh tokens.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// SMTPConfig is the fallback transport for outbound ticket replies when an
// organization's outbound mailbox has no Gmail credential.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// LoadOptions contains options for loading configuration
type LoadOptions struct {
	EnvFile string // Optional environment file to load (e.g., ".env", ".env.test")
}

// Load loads the configuration with default options
func Load() (*Config, error) {
	// Try to load .env file but don't require it
	return LoadWithOptions(LoadOptions{EnvFile: ".env"})
}

// LoadWithOptions loads the configuration with the specified options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "ossdesk")
	v.SetDefault("DB_SSLMODE", "require")
	v.SetDefault("ENVIRONMENT", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("VERSION", VERSION)

	// Blob storage defaults
	v.SetDefault("BLOB_DRIVER", "fs")
	v.SetDefault("BLOB_ROOT", "./data/blobs")
	v.SetDefault("BLOB_REGION", "us-east-1")
	v.SetDefault("BLOB_FORCE_PATH_STYLE", false)

	// Worker defaults
	v.SetDefault("WORKER_SYNC_CONCURRENCY", 2)
	v.SetDefault("WORKER_FETCH_CONCURRENCY", 8)
	v.SetDefault("WORKER_PARSE_CONCURRENCY", 8)
	v.SetDefault("WORKER_STITCH_CONCURRENCY", 4)
	v.SetDefault("WORKER_ROUTE_CONCURRENCY", 4)
	v.SetDefault("WORKER_OUTBOUND_CONCURRENCY", 2)
	v.SetDefault("WORKER_VISIBILITY_TIMEOUT", "5m")
	// Sync jobs walk provider pages and hold their lease longest; the
	// pipeline stages are single-message and turn around fast.
	v.SetDefault("WORKER_SYNC_VISIBILITY_TIMEOUT", "10m")
	v.SetDefault("WORKER_FETCH_VISIBILITY_TIMEOUT", "2m")
	v.SetDefault("WORKER_PARSE_VISIBILITY_TIMEOUT", "2m")
	v.SetDefault("WORKER_STITCH_VISIBILITY_TIMEOUT", "1m")
	v.SetDefault("WORKER_ROUTE_VISIBILITY_TIMEOUT", "1m")
	v.SetDefault("WORKER_OUTBOUND_VISIBILITY_TIMEOUT", "2m")
	v.SetDefault("WORKER_REAP_INTERVAL", "1m")
	v.SetDefault("WORKER_POLL_INTERVAL", "2s")

	// Mailbox sync defaults
	v.SetDefault("SYNC_HISTORY_INTERVAL", "60s")
	v.SetDefault("SYNC_BREAKER_THRESHOLD", 5)
	v.SetDefault("SYNC_PAUSE_WINDOW", "30m")

	// SMTP defaults
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM_NAME", "Support")

	// Load environment file if specified
	if opts.EnvFile != "" {
		v.SetConfigName(opts.EnvFile)
		v.SetConfigType("env")

		currentPath, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("error getting current directory: %w", err)
		}

		v.AddConfigPath(currentPath)

		if err := v.ReadInConfig(); err != nil {
			// It's okay if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	// Read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	secretKeyBase64 := v.GetString("SECRET_KEY")
	if secretKeyBase64 == "" {
		return nil, fmt.Errorf("SECRET_KEY is required")
	}
	secretKey, err := base64.StdEncoding.DecodeString(secretKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding SECRET_KEY: %w", err)
	}
	if len(secretKey) != crypto.KeySize {
		return nil, fmt.Errorf("SECRET_KEY must decode to %d bytes, got %d", crypto.KeySize, len(secretKey))
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetInt("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Blob: BlobConfig{
			Driver:         v.GetString("BLOB_DRIVER"),
			Root:           v.GetString("BLOB_ROOT"),
			Bucket:         v.GetString("BLOB_BUCKET"),
			Region:         v.GetString("BLOB_REGION"),
			Endpoint:       v.GetString("BLOB_ENDPOINT"),
			AccessKey:      v.GetString("BLOB_ACCESS_KEY"),
			SecretKey:      v.GetString("BLOB_SECRET_KEY"),
			ForcePathStyle: v.GetBool("BLOB_FORCE_PATH_STYLE"),
		},
		Security: SecurityConfig{
			SecretKey: secretKey,
		},
		Worker: WorkerConfig{
			SyncConcurrency:     v.GetInt("WORKER_SYNC_CONCURRENCY"),
			FetchConcurrency:    v.GetInt("WORKER_FETCH_CONCURRENCY"),
			ParseConcurrency:    v.GetInt("WORKER_PARSE_CONCURRENCY"),
			StitchConcurrency:   v.GetInt("WORKER_STITCH_CONCURRENCY"),
			RouteConcurrency:    v.GetInt("WORKER_ROUTE_CONCURRENCY"),
			OutboundConcurrency: v.GetInt("WORKER_OUTBOUND_CONCURRENCY"),
			VisibilityTimeout:   v.GetDuration("WORKER_VISIBILITY_TIMEOUT"),
			SyncVisibility:      v.GetDuration("WORKER_SYNC_VISIBILITY_TIMEOUT"),
			FetchVisibility:     v.GetDuration("WORKER_FETCH_VISIBILITY_TIMEOUT"),
			ParseVisibility:     v.GetDuration("WORKER_PARSE_VISIBILITY_TIMEOUT"),
			StitchVisibility:    v.GetDuration("WORKER_STITCH_VISIBILITY_TIMEOUT"),
			RouteVisibility:     v.GetDuration("WORKER_ROUTE_VISIBILITY_TIMEOUT"),
			OutboundVisibility:  v.GetDuration("WORKER_OUTBOUND_VISIBILITY_TIMEOUT"),
			ReapInterval:        v.GetDuration("WORKER_REAP_INTERVAL"),
			PollInterval:        v.GetDuration("WORKER_POLL_INTERVAL"),
		},
		Sync: SyncConfig{
			HistoryInterval:  v.GetDuration("SYNC_HISTORY_INTERVAL"),
			BreakerThreshold: v.GetInt("SYNC_BREAKER_THRESHOLD"),
			PauseWindow:      v.GetDuration("SYNC_PAUSE_WINDOW"),
		},
		Google: GoogleConfig{
			ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		},
		SMTP: SMTPConfig{
			Host:      v.GetString("SMTP_HOST"),
			Port:      v.GetInt("SMTP_PORT"),
			Username:  v.GetString("SMTP_USERNAME"),
			Password:  v.GetString("SMTP_PASSWORD"),
			FromEmail: v.GetString("SMTP_FROM_EMAIL"),
			FromName:  v.GetString("SMTP_FROM_NAME"),
		},
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Version:     v.GetString("VERSION"),
	}

	if config.Blob.Driver == "s3" && config.Blob.Bucket == "" {
		return nil, fmt.Errorf("BLOB_BUCKET is required when BLOB_DRIVER is s3")
	}

	return config, nil
}

// IsDevelopment returns true if the environment is set to development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
