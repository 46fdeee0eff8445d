package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/pkg/storage"
	"carbon-scribe/restoration-portal/pkg/workflows"
)

// SlotName is the storage slot holding every project.
const SlotName = "projects"

const maxIDAttempts = 8

// Store owns the project set. Records are kept newest first and the whole
// set is written to its slot after every successful mutation.
type Store struct {
	mu           sync.RWMutex
	projects     []*Project
	byID         map[string]*Project
	slot         storage.Slot
	logger       *zap.Logger
	stateMachine *workflows.StateMachine
	now          func() time.Time
	newID        func() string
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides project id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore rehydrates the store from slot. A missing or corrupt payload
// starts an empty store; only backend read failures are returned.
func NewStore(ctx context.Context, slot storage.Slot, logger *zap.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		byID:         make(map[string]*Project),
		slot:         slot,
		logger:       logger,
		stateMachine: workflows.NewStateMachine(),
		now:          time.Now,
		newID:        func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	var persisted []*Project
	err := storage.LoadJSON(ctx, s.slot, &persisted)
	switch {
	case errors.Is(err, storage.ErrSlotEmpty):
		s.logger.Info("No persisted projects, starting empty")
		return nil
	case errors.Is(err, storage.ErrCorruptPersistedState):
		s.logger.Warn("Persisted projects are corrupt, starting empty", zap.Error(err))
		return nil
	case err != nil:
		return fmt.Errorf("failed to load projects: %w", err)
	}

	for _, p := range persisted {
		if p == nil || p.ID == "" {
			s.logger.Warn("Skipping persisted project without id")
			continue
		}
		if _, dup := s.byID[p.ID]; dup {
			s.logger.Warn("Skipping duplicate persisted project", zap.String("project_id", p.ID))
			continue
		}
		s.projects = append(s.projects, p)
		s.byID[p.ID] = p
	}

	s.logger.Info("Projects loaded", zap.Int("count", len(s.projects)))
	return nil
}

// Create validates a submission and stores a new pending project.
func (s *Store) Create(ctx context.Context, req CreateRequest) (string, error) {
	if req.AfterImage == nil || strings.TrimSpace(req.AfterImage.Name) == "" {
		return "", ErrInvalidSubmission
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = DefaultName
	}

	project := &Project{
		Name:        name,
		Description: req.Description,
		Status:      workflows.StatusPending,
		CreatedAt:   s.now().UTC().Format(time.RFC3339Nano),
	}
	if req.BeforeImage != nil {
		img := *req.BeforeImage
		project.BeforeImage = &img
	}
	img := *req.AfterImage
	project.AfterImage = &img

	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; ; attempt++ {
		if attempt == maxIDAttempts {
			return "", fmt.Errorf("failed to allocate a unique project id")
		}
		project.ID = s.newID()
		if _, exists := s.byID[project.ID]; !exists {
			break
		}
	}

	previous := s.projects
	s.projects = append([]*Project{project}, s.projects...)
	s.byID[project.ID] = project

	if err := s.persistLocked(ctx); err != nil {
		s.projects = previous
		delete(s.byID, project.ID)
		return "", err
	}

	s.logger.Info("Project created",
		zap.String("project_id", project.ID),
		zap.String("name", project.Name),
		zap.String("after_image", project.AfterImage.Name))

	return project.ID, nil
}

// Update merges patch into the project. Field-level invariants are the
// caller's concern.
func (s *Store) Update(ctx context.Context, id string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.applyLocked(ctx, project, patch)
}

// Transition moves a project to status and merges patch in the same write.
// It fails with ErrInvalidTransition unless the state machine allows the move
// from the project's current status, which makes it a compare-and-set.
func (s *Store) Transition(ctx context.Context, id, status string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	project, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !s.stateMachine.CanTransition(project.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, project.Status, status)
	}

	from := project.Status
	patch.Status = &status
	if err := s.applyLocked(ctx, project, patch); err != nil {
		return err
	}

	s.logger.Info("Project status changed",
		zap.String("project_id", id),
		zap.String("from", from),
		zap.String("to", status))
	return nil
}

// applyLocked must be called with s.mu held. Patch application only swaps
// pointer fields, so a shallow copy is enough to roll back.
func (s *Store) applyLocked(ctx context.Context, project *Project, patch Patch) error {
	before := *project
	patch.apply(project)
	if err := s.persistLocked(ctx); err != nil {
		*project = before
		return err
	}
	return nil
}

// Get returns a snapshot of the project.
func (s *Store) Get(id string) (Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	project, ok := s.byID[id]
	if !ok {
		return Project{}, false
	}
	return project.Clone(), true
}

// List returns snapshots of every project, newest first.
func (s *Store) List() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	return out
}

// Count returns the number of stored projects.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects)
}

func (s *Store) persistLocked(ctx context.Context) error {
	if err := storage.SaveJSON(ctx, s.slot, s.projects); err != nil {
		s.logger.Error("Failed to persist projects", zap.Error(err))
		return fmt.Errorf("failed to persist projects: %w", err)
	}
	return nil
}
