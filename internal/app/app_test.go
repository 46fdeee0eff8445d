package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/config"
	"carbon-scribe/restoration-portal/internal/middleware"
	"carbon-scribe/restoration-portal/internal/notifications"
	"carbon-scribe/restoration-portal/internal/projects"
	"carbon-scribe/restoration-portal/pkg/random"
	"carbon-scribe/restoration-portal/pkg/schedule"
	"carbon-scribe/restoration-portal/pkg/storage"
	"carbon-scribe/restoration-portal/pkg/workflows"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Storage.Driver = storage.DriverMemory
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, backend *storage.MemoryBackend, cfg *config.Config) (*App, *schedule.Manual) {
	t.Helper()
	clock := schedule.NewManual(time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC))
	a, err := wire(context.Background(), cfg, zap.NewNop(), backend, Options{
		Scheduler: clock,
		Random:    random.NewSeeded(3),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, clock
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = NewLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewOpensMemoryStorage(t *testing.T) {
	a, err := New(context.Background(), testConfig(), zap.NewNop(), Options{Scheduler: schedule.NewManual(time.Now())})
	require.NoError(t, err)
	assert.Zero(t, a.Portal.Count())
	require.NoError(t, a.Close())
}

func TestWireRecoversInterruptedAnalyses(t *testing.T) {
	backend := storage.NewMemoryBackend()
	backend.Put(projects.SlotName, []byte(`[
		{"id":"a","name":"Stuck","status":"analyzing","afterImage":{"name":"tree.jpg","size":1},"createdAt":"2025-08-01T00:00:00Z"},
		{"id":"b","name":"Waiting","status":"pending","afterImage":{"name":"tree.jpg","size":1},"createdAt":"2025-08-02T00:00:00Z"}
	]`))

	a, _ := newTestApp(t, backend, testConfig())

	stuck, ok := a.Projects.Get("a")
	require.True(t, ok)
	assert.Equal(t, workflows.StatusFailed, stuck.Status)
	waiting, _ := a.Projects.Get("b")
	assert.Equal(t, workflows.StatusPending, waiting.Status)
}

func TestRouterServesPortalAndReports(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a, clock := newTestApp(t, storage.NewMemoryBackend(), testConfig())
	router := a.Router()

	body := bytes.NewBufferString(`{"name":"Hillside","afterImage":{"name":"forest_after.jpg","size":10}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	clock.Advance(3 * time.Second)

	for _, path := range []string{"/health", "/api/v1/projects", "/api/v1/dashboard", "/api/v1/wallet"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	list := a.Portal.List()
	require.Len(t, list, 1)
	assert.Equal(t, workflows.StatusCompleted, list[0].Status)
}

func TestRouterAppliesRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.Burst = 1
	a, _ := newTestApp(t, storage.NewMemoryBackend(), cfg)
	router := a.Router()

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestWireCanSkipRecovery(t *testing.T) {
	backend := storage.NewMemoryBackend()
	backend.Put(projects.SlotName, []byte(`[{"id":"a","status":"analyzing","afterImage":{"name":"x.jpg","size":1},"createdAt":"2025-08-01T00:00:00Z"}]`))

	a, err := wire(context.Background(), testConfig(), zap.NewNop(), backend, Options{
		Scheduler:    schedule.NewManual(time.Now()),
		SkipRecovery: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	p, _ := a.Projects.Get("a")
	assert.Equal(t, workflows.StatusAnalyzing, p.Status)
}

func TestStartBackgroundWithSnapshots(t *testing.T) {
	cfg := testConfig()
	cfg.Reports.SnapshotDir = t.TempDir()
	cfg.Reports.SnapshotSchedule = "0 0 * * * *"
	a, _ := newTestApp(t, storage.NewMemoryBackend(), cfg)
	require.NotNil(t, a.Snapshots)

	require.NoError(t, a.StartBackground())
	assert.Error(t, a.StartBackground())

	paths, err := a.Snapshots.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, paths, 3)
}

func TestStartBackgroundRejectsBadSnapshotSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Reports.SnapshotDir = t.TempDir()
	cfg.Reports.SnapshotSchedule = "sometimes"
	a, _ := newTestApp(t, storage.NewMemoryBackend(), cfg)

	assert.Error(t, a.StartBackground())
	runs, _ := a.Reconciler.Stats()
	assert.Zero(t, runs)
}

type snsRecorder struct {
	mu    sync.Mutex
	types []string
}

func (r *snsRecorder) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, *in.MessageAttributes["type"].StringValue)
	return &sns.PublishOutput{}, nil
}

func (r *snsRecorder) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

func TestWireForwardsOutcomesToSNS(t *testing.T) {
	cfg := testConfig()
	cfg.Notifications.SNSTopicARN = "arn:aws:sns:us-east-1:123456789012:portal"
	client := &snsRecorder{}
	clock := schedule.NewManual(time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC))
	a, err := wire(context.Background(), cfg, zap.NewNop(), storage.NewMemoryBackend(), Options{
		Scheduler: clock,
		Random:    random.NewSeeded(3),
		SNS:       client,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Portal.Submit(context.Background(), projects.CreateRequest{
		Name:       "Ridge",
		AfterImage: &projects.ImageRef{Name: "forest_after.jpg", Size: 10},
	})
	require.NoError(t, err)
	clock.Advance(3 * time.Second)

	got := client.published()
	require.Len(t, got, 1)
	assert.Contains(t, []string{notifications.MessageTypeCompleted, notifications.MessageTypeFailed}, got[0])
	assert.NotContains(t, got, notifications.MessageTypeProgress)
}

type uploadRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (u *uploadRecorder) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if _, err := io.Copy(io.Discard, in.Body); err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, *in.Key)
	return &s3.PutObjectOutput{}, nil
}

func (u *uploadRecorder) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (u *uploadRecorder) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (u *uploadRecorder) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("unexpected multipart upload")
}

func (u *uploadRecorder) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestWireUploadsSnapshotsToBucket(t *testing.T) {
	cfg := testConfig()
	cfg.Reports.SnapshotSchedule = "0 0 * * * *"
	cfg.Reports.SnapshotBucket = "portal-reports"
	uploads := &uploadRecorder{}
	a, err := wire(context.Background(), cfg, zap.NewNop(), storage.NewMemoryBackend(), Options{
		Scheduler: schedule.NewManual(time.Now()),
		Uploads:   uploads,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	locations, err := a.Snapshots.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, locations, 3)
	assert.Contains(t, locations[0], "s3://portal-reports/snapshots/projects-")
	assert.Len(t, uploads.keys, 3)
}
