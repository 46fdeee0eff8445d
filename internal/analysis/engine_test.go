package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/projects"
	"carbon-scribe/restoration-portal/pkg/random"
	"carbon-scribe/restoration-portal/pkg/schedule"
	"carbon-scribe/restoration-portal/pkg/storage"
	"carbon-scribe/restoration-portal/pkg/workflows"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu        sync.Mutex
	progress  []float64
	results   []*projects.AnalysisResult
	errs      []error
	completes int
	afterDone int
}

func (r *recorder) onProgress(_ string, p float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completes > 0 {
		r.afterDone++
	}
	r.progress = append(r.progress, p)
}

func (r *recorder) onComplete(_ string, result *projects.AnalysisResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes++
	r.results = append(r.results, result)
	r.errs = append(r.errs, err)
}

func (r *recorder) completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completes
}

type harness struct {
	store *projects.Store
	clock *schedule.Manual
	ticks *random.Scripted
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := projects.NewStore(context.Background(), storage.NewMemoryBackend().Slot(projects.SlotName), zap.NewNop())
	require.NoError(t, err)
	return &harness{
		store: store,
		clock: schedule.NewManual(epoch),
		ticks: random.NewScripted(nil, nil),
	}
}

func (h *harness) engine(opts ...Option) *Engine {
	return NewEngine(h.store, h.clock, h.ticks, zap.NewNop(), opts...)
}

func (h *harness) submit(t *testing.T, afterName string) string {
	t.Helper()
	id, err := h.store.Create(context.Background(), projects.CreateRequest{
		Name:       "Seagrass meadow",
		AfterImage: &projects.ImageRef{Name: afterName, Size: 1},
	})
	require.NoError(t, err)
	return id
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

type stubAssigner struct {
	calls int
}

func (a *stubAssigner) Assign(_ context.Context, _ projects.Project, result projects.AnalysisResult) (projects.Patch, error) {
	a.calls++
	cid := "QmX0" + "0123456789012345678901234567890123456789"
	patch := projects.Patch{IPFSCID: &cid}
	if result.CarbonRestored > 0 {
		token := "BCX-2025-042"
		patch.NFTTokenID = &token
	}
	return patch, nil
}

func TestRunCompletesWithVegetation(t *testing.T) {
	h := newHarness(t)
	h.ticks.PushFloats(repeat(0.5, 20)...)
	classifier := NewHeuristicClassifier(random.NewScripted([]float64{0.9, 0.5, 0.5}, []int{80}), h.clock.Now)
	assigner := &stubAssigner{}
	engine := h.engine(WithClassifier(classifier), WithAssigner(assigner))
	id := h.submit(t, "forest_after.jpg")
	rec := &recorder{}

	require.NoError(t, engine.Run(context.Background(), id, rec.onProgress, rec.onComplete))

	project, _ := h.store.Get(id)
	assert.Equal(t, workflows.StatusAnalyzing, project.Status)
	assert.True(t, engine.Active(id))

	h.clock.Advance(2500 * time.Millisecond)

	require.Equal(t, 1, rec.completed())
	require.NoError(t, rec.errs[0])
	assert.Len(t, rec.progress, 13)
	assert.Equal(t, 7.5, rec.progress[0])
	assert.Equal(t, 90.0, rec.progress[11])
	assert.Equal(t, 100.0, rec.progress[12])

	result := rec.results[0]
	assert.True(t, result.HasVegetation)
	assert.Equal(t, int64(200), result.CarbonRestored)
	assert.Equal(t, "45", result.BiomassDetected.String())
	assert.Equal(t, "90", result.Confidence.String())
	assert.Equal(t, "forest_after.jpg", result.AfterImageName)
	assert.Equal(t, epoch.Add(2500*time.Millisecond), result.Timestamp)

	project, _ = h.store.Get(id)
	assert.Equal(t, workflows.StatusCompleted, project.Status)
	assert.Equal(t, int64(200), project.Credits())
	assert.Equal(t, "20.00", project.CarbonFootprint.StringFixed(2))
	assert.Equal(t, "BCX-2025-042", project.NFTTokenID)
	assert.NotEmpty(t, project.IPFSCID)
	assert.Equal(t, 1, assigner.calls)

	assert.False(t, engine.Active(id))
	assert.Equal(t, 0, h.clock.Pending())
}

func TestProgressStopsAtCap(t *testing.T) {
	h := newHarness(t)
	h.ticks.PushFloats(repeat(1.0, 20)...)
	engine := h.engine(WithClassifier(NewHeuristicClassifier(random.NewScripted([]float64{0.1, 0.5}, nil), h.clock.Now)))
	id := h.submit(t, "img001.jpg")
	rec := &recorder{}

	require.NoError(t, engine.Run(context.Background(), id, rec.onProgress, rec.onComplete))
	h.clock.Advance(1400 * time.Millisecond)
	assert.Equal(t, []float64{15, 30, 45, 60, 75, 90, 100}, rec.progress)

	h.clock.Advance(5 * time.Second)
	assert.Len(t, rec.progress, 7, "no ticks after the cap and no duplicate 100")
	assert.Equal(t, 1, rec.completed())
	assert.Equal(t, 0, rec.afterDone)
}

func TestProgressIsMonotonicAndBounded(t *testing.T) {
	h := newHarness(t)
	engine := NewEngine(h.store, h.clock, random.NewSeeded(99), zap.NewNop())

	var mu sync.Mutex
	seen := map[string][]float64{}
	record := func(id string, p float64) {
		mu.Lock()
		defer mu.Unlock()
		seen[id] = append(seen[id], p)
	}

	for i := 0; i < 20; i++ {
		id := h.submit(t, "tree.png")
		require.NoError(t, engine.Run(context.Background(), id, record, nil))
	}
	h.clock.Advance(3 * time.Second)

	require.Len(t, seen, 20)
	for id, values := range seen {
		require.NotEmpty(t, values, id)
		assert.Equal(t, 100.0, values[len(values)-1], id)
		for i, p := range values {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 100.0)
			if i > 0 {
				assert.GreaterOrEqual(t, p, values[i-1], id)
			}
		}
	}
}

func TestNoVegetationProducesNoCredits(t *testing.T) {
	h := newHarness(t)
	classifier := NewHeuristicClassifier(random.NewScripted([]float64{0.5, 0.3}, nil), h.clock.Now)
	assigner := &stubAssigner{}
	engine := h.engine(WithClassifier(classifier), WithAssigner(assigner))
	id := h.submit(t, "img001.jpg")
	rec := &recorder{}

	require.NoError(t, engine.Run(context.Background(), id, rec.onProgress, rec.onComplete))
	h.clock.Advance(2500 * time.Millisecond)

	require.NoError(t, rec.errs[0])
	result := rec.results[0]
	assert.False(t, result.HasVegetation)
	assert.Equal(t, int64(0), result.CarbonRestored)
	assert.True(t, result.BiomassDetected.IsZero())
	assert.Equal(t, "88", result.Confidence.String())

	project, _ := h.store.Get(id)
	assert.Equal(t, workflows.StatusCompleted, project.Status)
	assert.Nil(t, project.CFTAmount)
	assert.Nil(t, project.CarbonFootprint)
	assert.Empty(t, project.NFTTokenID)
	assert.NotEmpty(t, project.IPFSCID)
}

func TestRunRejectsReentry(t *testing.T) {
	h := newHarness(t)
	engine := h.engine()
	id := h.submit(t, "forest.jpg")
	rec := &recorder{}

	require.NoError(t, engine.Run(context.Background(), id, rec.onProgress, rec.onComplete))
	err := engine.Run(context.Background(), id, rec.onProgress, rec.onComplete)
	assert.ErrorIs(t, err, ErrAnalysisNotAllowed)

	h.clock.Advance(2500 * time.Millisecond)
	assert.Equal(t, 1, rec.completed())

	err = engine.Run(context.Background(), id, nil, nil)
	assert.ErrorIs(t, err, ErrAnalysisNotAllowed)
	assert.ErrorIs(t, engine.Run(context.Background(), "missing", nil, nil), projects.ErrNotFound)
}

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, project projects.Project) (projects.AnalysisResult, error) {
	args := m.Called(ctx, project)
	return args.Get(0).(projects.AnalysisResult), args.Error(1)
}

func TestClassifierErrorFailsProject(t *testing.T) {
	h := newHarness(t)
	classifier := new(MockClassifier)
	classifier.On("Classify", mock.Anything, mock.Anything).Return(projects.AnalysisResult{}, errors.New("model unavailable"))
	engine := h.engine(WithClassifier(classifier))
	id := h.submit(t, "forest.jpg")
	rec := &recorder{}

	require.NoError(t, engine.Run(context.Background(), id, rec.onProgress, rec.onComplete))
	h.clock.Advance(2500 * time.Millisecond)

	require.Equal(t, 1, rec.completed())
	assert.Error(t, rec.errs[0])
	assert.Nil(t, rec.results[0])

	project, _ := h.store.Get(id)
	assert.Equal(t, workflows.StatusFailed, project.Status)
	assert.Contains(t, project.FailureReason, "model unavailable")
	assert.Nil(t, project.Analysis)
	classifier.AssertExpectations(t)
}

func TestContextCancellationFailsRun(t *testing.T) {
	h := newHarness(t)
	engine := h.engine()
	id := h.submit(t, "forest.jpg")
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, engine.Run(ctx, id, rec.onProgress, rec.onComplete))
	h.clock.Advance(400 * time.Millisecond)
	cancel()

	assert.Eventually(t, func() bool { return rec.completed() == 1 }, time.Second, 5*time.Millisecond)
	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 1, rec.completed())
	assert.ErrorIs(t, rec.errs[0], context.Canceled)

	project, _ := h.store.Get(id)
	assert.Equal(t, workflows.StatusFailed, project.Status)
}

func TestCancelStopsRun(t *testing.T) {
	h := newHarness(t)
	engine := h.engine()
	first := h.submit(t, "forest.jpg")
	second := h.submit(t, "grass.jpg")
	rec := &recorder{}

	require.NoError(t, engine.Run(context.Background(), first, rec.onProgress, rec.onComplete))
	require.NoError(t, engine.Run(context.Background(), second, rec.onProgress, rec.onComplete))

	assert.True(t, engine.Cancel(first))
	assert.False(t, engine.Cancel(first))
	assert.Equal(t, 1, engine.CancelAll())
	assert.Equal(t, 0, h.clock.Pending())

	h.clock.Advance(5 * time.Second)
	assert.Equal(t, 2, rec.completed())
	for _, err := range rec.errs {
		assert.ErrorIs(t, err, ErrCancelled)
	}
	p, _ := h.store.Get(first)
	assert.Equal(t, workflows.StatusFailed, p.Status)
}

func TestRecoverInterrupted(t *testing.T) {
	backend := storage.NewMemoryBackend()
	backend.Put(projects.SlotName, []byte(`[
		{"id":"stuck","status":"analyzing","createdAt":"2025-01-01T00:00:00Z"},
		{"id":"fresh","status":"pending","createdAt":"2025-01-01T00:00:00Z"}
	]`))
	store, err := projects.NewStore(context.Background(), backend.Slot(projects.SlotName), zap.NewNop())
	require.NoError(t, err)
	engine := NewEngine(store, schedule.NewManual(epoch), nil, zap.NewNop())

	n, err := engine.RecoverInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stuck, _ := store.Get("stuck")
	assert.Equal(t, workflows.StatusFailed, stuck.Status)
	assert.Equal(t, ErrInterrupted.Error(), stuck.FailureReason)
	fresh, _ := store.Get("fresh")
	assert.Equal(t, workflows.StatusPending, fresh.Status)
}

func TestKeywordNamesDetectVegetationMostOfTheTime(t *testing.T) {
	h := newHarness(t)
	engine := NewEngine(h.store, h.clock, random.NewSeeded(2025), zap.NewNop())
	const trials = 400

	for i := 0; i < trials; i++ {
		id := h.submit(t, "forest_after.jpg")
		require.NoError(t, engine.Run(context.Background(), id, nil, nil))
	}
	h.clock.Advance(2500 * time.Millisecond)

	detected := 0
	for _, p := range h.store.List() {
		require.Equal(t, workflows.StatusCompleted, p.Status)
		if p.Analysis.HasVegetation {
			detected++
			assert.GreaterOrEqual(t, p.Analysis.CarbonRestored, int64(MinCarbon))
			assert.LessOrEqual(t, p.Analysis.CarbonRestored, int64(MaxCarbon))
			assert.Equal(t, p.Analysis.CarbonRestored, p.Credits())
		}
	}
	assert.InDelta(t, 0.8, float64(detected)/trials, 0.07)
}

// flakySlot fails the next Save once armed.
type flakySlot struct {
	storage.Slot
	mu    sync.Mutex
	armed bool
}

func (s *flakySlot) failNextSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
}

func (s *flakySlot) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	fail := s.armed
	s.armed = false
	s.mu.Unlock()
	if fail {
		return errors.New("transient write error")
	}
	return s.Slot.Save(ctx, data)
}

func TestFailedResultWriteFailsProject(t *testing.T) {
	h := newHarness(t)
	slot := &flakySlot{Slot: storage.NewMemoryBackend().Slot(projects.SlotName)}
	store, err := projects.NewStore(context.Background(), slot, zap.NewNop())
	require.NoError(t, err)
	h.store = store
	h.ticks.PushFloats(repeat(0.5, 20)...)
	classifier := NewHeuristicClassifier(random.NewScripted([]float64{0.9, 0.5, 0.5}, []int{80}), h.clock.Now)
	engine := h.engine(WithClassifier(classifier))
	id := h.submit(t, "forest_after.jpg")
	rec := &recorder{}

	require.NoError(t, engine.Run(context.Background(), id, rec.onProgress, rec.onComplete))
	slot.failNextSave()
	h.clock.Advance(2500 * time.Millisecond)

	require.Equal(t, 1, rec.completed())
	assert.ErrorContains(t, rec.errs[0], "transient write error")
	assert.Nil(t, rec.results[0])
	assert.False(t, engine.Active(id))

	project, _ := h.store.Get(id)
	assert.Equal(t, workflows.StatusFailed, project.Status)
	assert.Contains(t, project.FailureReason, "transient write error")
	assert.Nil(t, project.Analysis)
}
