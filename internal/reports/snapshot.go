package reports

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"carbon-scribe/restoration-portal/internal/reports/export"
)

const snapshotTimeout = 2 * time.Minute

// Snapshotter periodically writes project exports and the dashboard to a
// sink.
type Snapshotter struct {
	cron     *cron.Cron
	service  *Service
	sink     SnapshotSink
	schedule string
	logger   *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
	running  bool
}

// NewSnapshotter creates a snapshotter. schedule is a six-field cron
// expression (with seconds).
func NewSnapshotter(service *Service, sink SnapshotSink, schedule string, logger *zap.Logger) *Snapshotter {
	return &Snapshotter{
		cron:     cron.New(cron.WithSeconds()),
		service:  service,
		sink:     sink,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
	}
}

// Start registers the snapshot job and starts the cron scheduler.
func (s *Snapshotter) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("snapshotter already running")
	}
	if err := s.sink.Prepare(); err != nil {
		return err
	}
	job := func() {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Report snapshot failed", zap.Error(err))
		}
	}
	if _, err := s.cron.AddFunc(s.schedule, job); err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", s.schedule, err)
	}

	s.logger.Info("Starting report snapshots",
		zap.String("schedule", s.schedule),
		zap.Stringer("sink", s.sink))
	s.cron.Start()
	s.running = true
	return nil
}

// Stop stops the scheduler and waits for a running snapshot to finish.
func (s *Snapshotter) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.logger.Info("Stopping report snapshots")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
}

// RunOnce writes one CSV, XLSX and dashboard JSON snapshot and returns the
// locations reported by the sink.
func (s *Snapshotter) RunOnce(ctx context.Context) ([]string, error) {
	stamp := s.now().UTC().Format("20060102-150405")
	list := s.service.projects.List()

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"projects-" + stamp + ".csv", func(w io.Writer) error { return export.WriteProjectsCSV(w, list) }},
		{"projects-" + stamp + ".xlsx", func(w io.Writer) error { return export.WriteProjectsExcel(w, list) }},
		{"dashboard-" + stamp + ".json", func(w io.Writer) error { return writeDashboard(w, s.service.dashboard(list)) }},
	}

	paths := make([]string, 0, len(writers))
	for _, wr := range writers {
		var buf bytes.Buffer
		if err := wr.write(&buf); err != nil {
			return paths, fmt.Errorf("failed to render %s: %w", wr.name, err)
		}
		location, err := s.sink.Put(ctx, wr.name, buf.Bytes())
		if err != nil {
			return paths, err
		}
		paths = append(paths, location)
	}

	s.logger.Info("Report snapshot written",
		zap.Int("projects", len(list)),
		zap.String("stamp", stamp))
	return paths, nil
}

func writeDashboard(w io.Writer, d Dashboard) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
