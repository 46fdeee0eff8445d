package portal

import (
	"context"

	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/analysis"
	"carbon-scribe/restoration-portal/internal/projects"
	"carbon-scribe/restoration-portal/internal/tokenization"
)

// Analyzer starts analysis runs.
type Analyzer interface {
	Run(ctx context.Context, projectID string, onProgress analysis.ProgressFunc, onComplete analysis.CompleteFunc) error
}

// Finalizer issues credits for analyzed projects.
type Finalizer interface {
	Finalize(ctx context.Context, projectID string) (*tokenization.FinalizeResult, error)
}

// Notifier receives lifecycle events.
type Notifier interface {
	Progress(projectID string, progress float64)
	Completed(projectID string, result *projects.AnalysisResult, err error)
	CreditsIssued(projectID string, amount, balance int64)
}

// Service drives the project lifecycle: submission, analysis and credit
// issuance.
type Service struct {
	projects  *projects.Store
	analyzer  Analyzer
	finalizer Finalizer
	notifier  Notifier
	logger    *zap.Logger

	// runCtx bounds analysis runs. Request contexts end with the request
	// and would fail every run they started.
	runCtx context.Context
}

func NewService(
	runCtx context.Context,
	projectStore *projects.Store,
	analyzer Analyzer,
	finalizer Finalizer,
	notifier Notifier,
	logger *zap.Logger,
) *Service {
	return &Service{
		projects:  projectStore,
		analyzer:  analyzer,
		finalizer: finalizer,
		notifier:  notifier,
		logger:    logger,
		runCtx:    runCtx,
	}
}

// Submit creates a project and starts its analysis. The project id is
// returned even if the analysis could not be started; the project then
// stays pending and can be analyzed again.
func (s *Service) Submit(ctx context.Context, req projects.CreateRequest) (string, error) {
	id, err := s.projects.Create(ctx, req)
	if err != nil {
		return "", err
	}
	if err := s.Analyze(id); err != nil {
		s.logger.Warn("Failed to start analysis for new project",
			zap.String("project_id", id),
			zap.Error(err))
	}
	return id, nil
}

// Analyze starts analysis for a pending project.
func (s *Service) Analyze(projectID string) error {
	return s.analyzer.Run(s.runCtx, projectID, s.onProgress, s.onComplete)
}

func (s *Service) onProgress(projectID string, progress float64) {
	if s.notifier != nil {
		s.notifier.Progress(projectID, progress)
	}
}

func (s *Service) onComplete(projectID string, result *projects.AnalysisResult, err error) {
	switch {
	case err != nil:
		s.logger.Warn("Analysis failed", zap.String("project_id", projectID), zap.Error(err))
	case result != nil:
		s.logger.Info("Analysis completed",
			zap.String("project_id", projectID),
			zap.Bool("has_vegetation", result.HasVegetation),
			zap.Int64("carbon_restored", result.CarbonRestored))
	}
	if s.notifier != nil {
		s.notifier.Completed(projectID, result, err)
	}
}

// Finalize issues the credits of an analyzed project.
func (s *Service) Finalize(ctx context.Context, projectID string) (*tokenization.FinalizeResult, error) {
	res, err := s.finalizer.Finalize(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if res.Issued && s.notifier != nil {
		s.notifier.CreditsIssued(projectID, res.Amount, res.Balance)
	}
	return res, nil
}

// Get returns a project snapshot.
func (s *Service) Get(projectID string) (projects.Project, error) {
	project, ok := s.projects.Get(projectID)
	if !ok {
		return projects.Project{}, projects.ErrNotFound
	}
	return project, nil
}

// List returns all projects, newest first.
func (s *Service) List() []projects.Project {
	return s.projects.List()
}

// Count returns the number of stored projects.
func (s *Service) Count() int {
	return s.projects.Count()
}
