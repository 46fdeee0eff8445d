package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/restoration-portal/pkg/storage"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, storage.DriverFile, cfg.Storage.Driver)
	assert.Equal(t, 200*time.Millisecond, cfg.Analysis.TickInterval)
	assert.Equal(t, 2500*time.Millisecond, cfg.Analysis.Duration)
	assert.Equal(t, 15.0, cfg.Analysis.MaxIncrement)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.GetServerAddr())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9090
storage:
  driver: sqlite
  sqlite_path: /tmp/portal.db
analysis:
  tick_interval: 100ms
  duration: 1s
  seed: 7
ledger:
  reconcile_schedule: "*/30 * * * * *"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, storage.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/tmp/portal.db", cfg.StorageOptions().SQLitePath)
	assert.Equal(t, 100*time.Millisecond, cfg.Analysis.TickInterval)
	assert.Equal(t, time.Second, cfg.Analysis.Duration)
	assert.Equal(t, uint64(7), cfg.Analysis.Seed)
	assert.Equal(t, "*/30 * * * * *", cfg.Ledger.ReconcileSchedule)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset keys keep defaults")
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"server":{"port":7000},"storage":{"driver":"memory"},"logging":{"level":"debug"}}`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, storage.DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestMalformedFile(t *testing.T) {
	_, err := LoadConfig(writeFile(t, "config.json", `{"server":`))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8181")
	t.Setenv("STORAGE_DRIVER", "s3")
	t.Setenv("S3_BUCKET", "portal-state")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("ANALYSIS_DURATION", "5s")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("AWS_REGION", "ap-south-1")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	opts := cfg.StorageOptions()
	assert.Equal(t, storage.DriverS3, opts.Driver)
	assert.Equal(t, "portal-state", opts.S3.Bucket)
	assert.True(t, opts.S3.UsePathStyle)
	assert.Equal(t, "ap-south-1", opts.AWS.Region)
	assert.Equal(t, 5*time.Second, cfg.Analysis.Duration)
	assert.Equal(t, 2.5, cfg.RateLimit.RequestsPerSecond)
}

func TestInvalidEnvValues(t *testing.T) {
	t.Setenv("SERVER_PORT", "eighty")
	_, err := LoadConfig("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "floppy"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.Driver = storage.DriverS3
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.Driver = storage.DriverMongo
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.Driver = storage.DriverDynamoDB
	assert.Error(t, cfg.Validate())
	cfg.Storage.DynamoDB.Table = "portal-state"
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Analysis.TickInterval = 0
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}

func TestDatabaseURL(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "portal", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/portal?sslmode=disable", db.GetDatabaseURL())
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "PORTAL_TEST_DOTENV=from-file\n")
	t.Setenv("PORTAL_TEST_DOTENV", "")
	os.Unsetenv("PORTAL_TEST_DOTENV")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("PORTAL_TEST_DOTENV"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestSnapshotsDisabledByDefault(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Reports.SnapshotSchedule)

	t.Setenv("REPORTS_SNAPSHOT_CRON", "0 0 * * * *")
	t.Setenv("REPORTS_SNAPSHOT_DIR", "/var/lib/portal/snapshots")
	loaded, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "0 0 * * * *", loaded.Reports.SnapshotSchedule)
	assert.Equal(t, "/var/lib/portal/snapshots", loaded.Reports.SnapshotDir)
}

func TestCloudDestinationsFromEnv(t *testing.T) {
	t.Setenv("SNS_TOPIC_ARN", "arn:aws:sns:eu-west-1:123456789012:portal")
	t.Setenv("REPORTS_SNAPSHOT_BUCKET", "portal-reports")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	loaded, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "arn:aws:sns:eu-west-1:123456789012:portal", loaded.Notifications.SNSTopicARN)
	assert.Equal(t, "portal-reports", loaded.Reports.SnapshotBucket)
	assert.Equal(t, "snapshots", loaded.Reports.SnapshotPrefix)
	aws := loaded.AWSOptions()
	assert.Equal(t, "AKIDEXAMPLE", aws.AccessKeyID)
	assert.Equal(t, "secret", aws.SecretAccessKey)
}
