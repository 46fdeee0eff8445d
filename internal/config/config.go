package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"carbon-scribe/restoration-portal/pkg/cloud"
	"carbon-scribe/restoration-portal/pkg/storage"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	AWS           AWSConfig           `json:"aws" yaml:"aws"`
	Storage       StorageConfig       `json:"storage" yaml:"storage"`
	Analysis      AnalysisConfig      `json:"analysis" yaml:"analysis"`
	Ledger        LedgerConfig        `json:"ledger" yaml:"ledger"`
	RateLimit     RateLimitConfig     `json:"rate_limit" yaml:"rate_limit"`
	Reports       ReportsConfig       `json:"reports" yaml:"reports"`
	Notifications NotificationsConfig `json:"notifications" yaml:"notifications"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// AWSConfig holds credentials shared by the S3, DynamoDB and SNS clients.
// Empty values fall back to the default credential chain.
type AWSConfig struct {
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// StorageConfig selects where the projects and wallet slots live.
type StorageConfig struct {
	Driver        string         `json:"driver" yaml:"driver"`
	Dir           string         `json:"dir" yaml:"dir"`
	SQLitePath    string         `json:"sqlite_path" yaml:"sqlite_path"`
	Database      DatabaseConfig `json:"database" yaml:"database"`
	MongoURI      string         `json:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string         `json:"mongo_database" yaml:"mongo_database"`
	S3            S3Config       `json:"s3" yaml:"s3"`
	DynamoDB      DynamoDBConfig `json:"dynamodb" yaml:"dynamodb"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
}

// S3Config configures the S3 slot backend.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Prefix       string `json:"prefix" yaml:"prefix"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// DynamoDBConfig configures the DynamoDB slot backend.
type DynamoDBConfig struct {
	Table    string `json:"table" yaml:"table"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// AnalysisConfig controls the simulated analysis. Seed 0 draws from the
// process-wide random source.
type AnalysisConfig struct {
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	MaxIncrement float64       `json:"max_increment" yaml:"max_increment"`
	Seed         uint64        `json:"seed" yaml:"seed"`
}

// LedgerConfig
type LedgerConfig struct {
	ReconcileSchedule string `json:"reconcile_schedule" yaml:"reconcile_schedule"`
}

// RateLimitConfig
type RateLimitConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
	IdleTTL           time.Duration `json:"idle_ttl" yaml:"idle_ttl"`
}

// ReportsConfig controls periodic report snapshots. An empty schedule
// disables them. Snapshots go to SnapshotBucket when set, otherwise to
// SnapshotDir.
type ReportsConfig struct {
	SnapshotDir      string `json:"snapshot_dir" yaml:"snapshot_dir"`
	SnapshotSchedule string `json:"snapshot_schedule" yaml:"snapshot_schedule"`
	SnapshotBucket   string `json:"snapshot_bucket" yaml:"snapshot_bucket"`
	SnapshotPrefix   string `json:"snapshot_prefix" yaml:"snapshot_prefix"`
}

// NotificationsConfig controls where portal events are delivered besides
// websocket subscribers.
type NotificationsConfig struct {
	// SNSTopicARN, when set, also forwards completion and credit events to
	// an SNS topic.
	SNSTopicARN string `json:"sns_topic_arn" yaml:"sns_topic_arn"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     storage.DriverFile,
			Dir:        "data",
			SQLitePath: "data/portal.db",
			Database: DatabaseConfig{
				Host:    "localhost",
				Port:    5432,
				User:    os.Getenv("USER"),
				DBName:  "restoration_portal",
				SSLMode: "disable",
			},
			MongoDatabase: "restoration_portal",
			S3:            S3Config{Prefix: "portal"},
		},
		Analysis: AnalysisConfig{
			TickInterval: 200 * time.Millisecond,
			Duration:     2500 * time.Millisecond,
			MaxIncrement: 15,
		},
		Ledger: LedgerConfig{
			ReconcileSchedule: "0 */15 * * * *",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
			IdleTTL:           10 * time.Minute,
		},
		Reports: ReportsConfig{
			SnapshotDir:    "data/snapshots",
			SnapshotPrefix: "snapshots",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding ones already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from file and environment variables. The
// file format follows its extension: .yaml/.yml or JSON otherwise. A
// missing file leaves the defaults in place.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := decode(configPath, data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func decode(path string, data []byte, config *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	default:
		return json.Unmarshal(data, config)
	}
}

func overrideWithEnv(config *Config) error {
	strs := map[string]*string{
		"SERVER_HOST":             &config.Server.Host,
		"STORAGE_DRIVER":          &config.Storage.Driver,
		"STORAGE_DIR":             &config.Storage.Dir,
		"STORAGE_SQLITE_PATH":     &config.Storage.SQLitePath,
		"DATABASE_HOST":           &config.Storage.Database.Host,
		"DATABASE_USER":           &config.Storage.Database.User,
		"DATABASE_PASSWORD":       &config.Storage.Database.Password,
		"DATABASE_DBNAME":         &config.Storage.Database.DBName,
		"DATABASE_SSLMODE":        &config.Storage.Database.SSLMode,
		"MONGO_URI":               &config.Storage.MongoURI,
		"MONGO_DATABASE":          &config.Storage.MongoDatabase,
		"S3_BUCKET":               &config.Storage.S3.Bucket,
		"S3_PREFIX":               &config.Storage.S3.Prefix,
		"S3_ENDPOINT":             &config.Storage.S3.Endpoint,
		"DYNAMODB_TABLE":          &config.Storage.DynamoDB.Table,
		"DYNAMODB_ENDPOINT":       &config.Storage.DynamoDB.Endpoint,
		"AWS_REGION":              &config.AWS.Region,
		"AWS_ACCESS_KEY_ID":       &config.AWS.AccessKeyID,
		"AWS_SECRET_ACCESS_KEY":   &config.AWS.SecretAccessKey,
		"LEDGER_RECONCILE_CRON":   &config.Ledger.ReconcileSchedule,
		"REPORTS_SNAPSHOT_DIR":    &config.Reports.SnapshotDir,
		"REPORTS_SNAPSHOT_CRON":   &config.Reports.SnapshotSchedule,
		"REPORTS_SNAPSHOT_BUCKET": &config.Reports.SnapshotBucket,
		"SNS_TOPIC_ARN":           &config.Notifications.SNSTopicARN,
		"LOG_LEVEL":               &config.Logging.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":      &config.Server.Port,
		"DATABASE_PORT":    &config.Storage.Database.Port,
		"RATE_LIMIT_BURST": &config.RateLimit.Burst,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"ANALYSIS_TICK_INTERVAL": &config.Analysis.TickInterval,
		"ANALYSIS_DURATION":      &config.Analysis.Duration,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"RATE_LIMIT_ENABLED": &config.RateLimit.Enabled,
		"S3_USE_PATH_STYLE":  &config.Storage.S3.UsePathStyle,
		"LOG_DEVELOPMENT":    &config.Logging.Development,
	}
	for key, dst := range bools {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = b
		}
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
		}
		config.RateLimit.RequestsPerSecond = f
	}
	if v := os.Getenv("ANALYSIS_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ANALYSIS_SEED: %w", err)
		}
		config.Analysis.Seed = seed
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Storage.Driver {
	case storage.DriverMemory, storage.DriverFile, storage.DriverSQLite,
		storage.DriverPostgres, storage.DriverS3, storage.DriverMongo,
		storage.DriverDynamoDB:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == storage.DriverS3 && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3 storage requires a bucket")
	}
	if c.Storage.Driver == storage.DriverMongo && c.Storage.MongoURI == "" {
		return fmt.Errorf("mongo storage requires a uri")
	}
	if c.Storage.Driver == storage.DriverDynamoDB && c.Storage.DynamoDB.Table == "" {
		return fmt.Errorf("dynamodb storage requires a table")
	}
	if c.Analysis.TickInterval <= 0 || c.Analysis.Duration <= 0 {
		return fmt.Errorf("analysis intervals must be positive")
	}
	if c.Analysis.MaxIncrement <= 0 {
		return fmt.Errorf("analysis max increment must be positive")
	}
	return nil
}

// AWSOptions returns the shared AWS credentials.
func (c *Config) AWSOptions() cloud.AWSOptions {
	return cloud.AWSOptions{
		Region:          c.AWS.Region,
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
	}
}

// StorageOptions maps the storage section onto storage.Options.
func (c *Config) StorageOptions() storage.Options {
	st := c.Storage
	return storage.Options{
		Driver:        st.Driver,
		Dir:           st.Dir,
		SQLitePath:    st.SQLitePath,
		PostgresDSN:   st.Database.GetDatabaseURL(),
		MongoURI:      st.MongoURI,
		MongoDatabase: st.MongoDatabase,
		AWS:           c.AWSOptions(),
		S3: storage.S3Options{
			Bucket:       st.S3.Bucket,
			Prefix:       st.S3.Prefix,
			Endpoint:     st.S3.Endpoint,
			UsePathStyle: st.S3.UsePathStyle,
		},
		DynamoDB: storage.DynamoDBOptions{
			Table:    st.DynamoDB.Table,
			Endpoint: st.DynamoDB.Endpoint,
		},
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
