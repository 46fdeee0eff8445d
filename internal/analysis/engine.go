package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/projects"
	"carbon-scribe/restoration-portal/pkg/random"
	"carbon-scribe/restoration-portal/pkg/schedule"
	"carbon-scribe/restoration-portal/pkg/workflows"
)

var (
	ErrAnalysisNotAllowed = errors.New("analysis can only start from pending")
	ErrCancelled          = errors.New("analysis cancelled")
	ErrInterrupted        = errors.New("analysis interrupted before completion")
)

// FootprintDivisor converts CFT to tonnes of CO2e.
const FootprintDivisor = 10

// Config controls the simulated analysis timing.
type Config struct {
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	MaxIncrement float64       `json:"max_increment" yaml:"max_increment"`
}

// DefaultConfig returns the reference timing: a tick every 200ms adding up
// to 15 points, completion after 2.5s.
func DefaultConfig() Config {
	return Config{
		TickInterval: 200 * time.Millisecond,
		Duration:     2500 * time.Millisecond,
		MaxIncrement: 15,
	}
}

// ProgressFunc receives progress in [0,100], non-decreasing per run.
type ProgressFunc func(projectID string, progress float64)

// CompleteFunc is called exactly once per run. err is non-nil when the run
// failed or was cancelled, in which case result is nil.
type CompleteFunc func(projectID string, result *projects.AnalysisResult, err error)

// Assigner contributes identifiers to the completion write so they land
// together with the result.
type Assigner interface {
	Assign(ctx context.Context, project projects.Project, result projects.AnalysisResult) (projects.Patch, error)
}

// Engine runs simulated analyses. At most one run is active per project,
// guarded by the pending -> analyzing transition.
type Engine struct {
	store      *projects.Store
	scheduler  schedule.Scheduler
	rnd        random.Source
	classifier Classifier
	assigner   Assigner
	config     Config
	logger     *zap.Logger

	mu   sync.Mutex
	runs map[string]*run
}

// Option customizes an Engine.
type Option func(*Engine)

func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

func WithAssigner(a Assigner) Option {
	return func(e *Engine) { e.assigner = a }
}

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// NewEngine creates an engine. rnd drives progress increments and, unless
// another classifier is supplied, the heuristic classifier.
func NewEngine(store *projects.Store, scheduler schedule.Scheduler, rnd random.Source, logger *zap.Logger, opts ...Option) *Engine {
	if rnd == nil {
		rnd = random.Default()
	}
	e := &Engine{
		store:     store,
		scheduler: scheduler,
		rnd:       rnd,
		config:    DefaultConfig(),
		logger:    logger,
		runs:      make(map[string]*run),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.classifier == nil {
		e.classifier = NewHeuristicClassifier(rnd, scheduler.Now)
	}
	return e
}

type run struct {
	projectID  string
	ctx        context.Context
	onProgress ProgressFunc
	onComplete CompleteFunc

	mu       sync.Mutex
	progress float64
	capped   bool
	done     bool
	ticker   schedule.Task
	timer    schedule.Task
	stopCtx  func() bool
}

// Run moves a pending project to analyzing and schedules progress ticks and
// completion. The run fails if ctx ends before completion.
func (e *Engine) Run(ctx context.Context, projectID string, onProgress ProgressFunc, onComplete CompleteFunc) error {
	project, ok := e.store.Get(projectID)
	if !ok {
		return fmt.Errorf("%w: %s", projects.ErrNotFound, projectID)
	}
	if project.Status != workflows.StatusPending {
		return fmt.Errorf("%w: project %s is %s", ErrAnalysisNotAllowed, projectID, project.Status)
	}

	err := e.store.Transition(ctx, projectID, workflows.StatusAnalyzing, projects.Patch{})
	if errors.Is(err, projects.ErrInvalidTransition) {
		return fmt.Errorf("%w: %v", ErrAnalysisNotAllowed, err)
	}
	if err != nil {
		return err
	}

	if onProgress == nil {
		onProgress = func(string, float64) {}
	}
	if onComplete == nil {
		onComplete = func(string, *projects.AnalysisResult, error) {}
	}
	r := &run{
		projectID:  projectID,
		ctx:        ctx,
		onProgress: onProgress,
		onComplete: onComplete,
	}

	e.mu.Lock()
	e.runs[projectID] = r
	e.mu.Unlock()

	r.mu.Lock()
	r.ticker = e.scheduler.Every(e.config.TickInterval, func() { e.tick(r) })
	r.timer = e.scheduler.AfterFunc(e.config.Duration, func() { e.complete(r) })
	r.stopCtx = context.AfterFunc(ctx, func() { e.abort(r, ctx.Err()) })
	r.mu.Unlock()

	e.logger.Info("Analysis started",
		zap.String("project_id", projectID),
		zap.Duration("duration", e.config.Duration))
	return nil
}

func (e *Engine) tick(r *run) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done || r.capped {
		return
	}
	r.progress += e.rnd.Float64() * e.config.MaxIncrement
	if r.progress >= 100 {
		r.progress = 100
		r.capped = true
		r.ticker.Stop()
	}
	r.onProgress(r.projectID, r.progress)
}

// finish marks the run done and stops its tasks. It reports false when the
// run had already finished.
func (e *Engine) finish(r *run) bool {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return false
	}
	r.done = true
	r.ticker.Stop()
	r.timer.Stop()
	r.mu.Unlock()

	if r.stopCtx != nil {
		r.stopCtx()
	}

	e.mu.Lock()
	if e.runs[r.projectID] == r {
		delete(e.runs, r.projectID)
	}
	e.mu.Unlock()
	return true
}

func (e *Engine) complete(r *run) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.ticker.Stop()
	if !r.capped {
		r.progress = 100
		r.capped = true
		r.onProgress(r.projectID, 100)
	}
	r.mu.Unlock()

	if !e.finish(r) {
		return
	}

	ctx := context.WithoutCancel(r.ctx)
	project, result, err := e.classify(r)
	if err != nil {
		e.fail(ctx, r, err)
		return
	}

	patch := projects.Patch{Analysis: &result}
	if result.CarbonRestored > 0 {
		amount := result.CarbonRestored
		footprint := decimal.NewFromInt(amount).Div(decimal.NewFromInt(FootprintDivisor)).Round(2)
		patch.CFTAmount = &amount
		patch.CarbonFootprint = &footprint
	}
	if e.assigner != nil {
		assigned, err := e.assigner.Assign(ctx, project, result)
		if err != nil {
			e.fail(ctx, r, fmt.Errorf("identifier assignment failed: %w", err))
			return
		}
		patch.IPFSCID = assigned.IPFSCID
		patch.NFTTokenID = assigned.NFTTokenID
	}

	if err := e.store.Transition(ctx, r.projectID, workflows.StatusCompleted, patch); err != nil {
		e.fail(ctx, r, fmt.Errorf("failed to record analysis result: %w", err))
		return
	}

	e.logger.Info("Analysis completed",
		zap.String("project_id", r.projectID),
		zap.Bool("has_vegetation", result.HasVegetation),
		zap.Int64("carbon_restored", result.CarbonRestored))
	r.onComplete(r.projectID, &result, nil)
}

func (e *Engine) classify(r *run) (projects.Project, projects.AnalysisResult, error) {
	if err := r.ctx.Err(); err != nil {
		return projects.Project{}, projects.AnalysisResult{}, err
	}
	project, ok := e.store.Get(r.projectID)
	if !ok {
		return projects.Project{}, projects.AnalysisResult{}, fmt.Errorf("%w: %s", projects.ErrNotFound, r.projectID)
	}
	result, err := e.classifier.Classify(r.ctx, project)
	if err != nil {
		return project, projects.AnalysisResult{}, fmt.Errorf("classification failed: %w", err)
	}
	if result.AfterImageName == "" && project.AfterImage != nil {
		result.AfterImageName = project.AfterImage.Name
	}
	if !result.HasVegetation {
		result.CarbonRestored = 0
		result.BiomassDetected = decimal.Zero
	}
	return project, result, nil
}

func (e *Engine) fail(ctx context.Context, r *run, cause error) {
	reason := cause.Error()
	err := e.store.Transition(ctx, r.projectID, workflows.StatusFailed, projects.Patch{FailureReason: &reason})
	if err != nil {
		e.logger.Error("Failed to record analysis failure",
			zap.String("project_id", r.projectID),
			zap.Error(err))
	}
	e.logger.Warn("Analysis failed",
		zap.String("project_id", r.projectID),
		zap.Error(cause))
	r.onComplete(r.projectID, nil, cause)
}

func (e *Engine) abort(r *run, cause error) {
	if !e.finish(r) {
		return
	}
	e.fail(context.WithoutCancel(r.ctx), r, cause)
}

// Cancel stops an active run and marks the project failed. It reports
// whether a run was active.
func (e *Engine) Cancel(projectID string) bool {
	e.mu.Lock()
	r, ok := e.runs[projectID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	if !e.finish(r) {
		return false
	}
	e.fail(context.WithoutCancel(r.ctx), r, ErrCancelled)
	return true
}

// CancelAll cancels every active run.
func (e *Engine) CancelAll() int {
	e.mu.Lock()
	ids := make([]string, 0, len(e.runs))
	for id := range e.runs {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	cancelled := 0
	for _, id := range ids {
		if e.Cancel(id) {
			cancelled++
		}
	}
	return cancelled
}

// Active reports whether projectID has a run in flight.
func (e *Engine) Active(projectID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.runs[projectID]
	return ok
}

// RecoverInterrupted marks projects left in analyzing without an active run,
// such as after a restart, as failed.
func (e *Engine) RecoverInterrupted(ctx context.Context) (int, error) {
	recovered := 0
	for _, p := range e.store.List() {
		if p.Status != workflows.StatusAnalyzing || e.Active(p.ID) {
			continue
		}
		reason := ErrInterrupted.Error()
		err := e.store.Transition(ctx, p.ID, workflows.StatusFailed, projects.Patch{FailureReason: &reason})
		if err != nil {
			return recovered, err
		}
		e.logger.Warn("Recovered interrupted analysis", zap.String("project_id", p.ID))
		recovered++
	}
	return recovered, nil
}
