package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultReconcileSchedule runs reconciliation every fifteen minutes.
const DefaultReconcileSchedule = "0 */15 * * * *"

// Reconciler periodically verifies the wallet balance against its
// transaction log and reports drift.
type Reconciler struct {
	cron     *cron.Cron
	ledger   *Store
	logger   *zap.Logger
	schedule string
	mu       sync.Mutex
	running  bool
	runs     int
	drifts   int
}

// NewReconciler creates a reconciler. schedule is a six-field cron
// expression (with seconds); empty selects DefaultReconcileSchedule.
func NewReconciler(ledger *Store, logger *zap.Logger, schedule string) *Reconciler {
	if schedule == "" {
		schedule = DefaultReconcileSchedule
	}
	return &Reconciler{
		cron:     cron.New(cron.WithSeconds()),
		ledger:   ledger,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the reconciliation job and starts the cron scheduler.
func (r *Reconciler) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("reconciler already running")
	}
	if _, err := r.cron.AddFunc(r.schedule, func() { _ = r.RunOnce() }); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", r.schedule, err)
	}

	r.logger.Info("Starting ledger reconciler", zap.String("schedule", r.schedule))
	r.cron.Start()
	r.running = true
	return nil
}

// Stop stops the scheduler and waits for a running job to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.logger.Info("Stopping ledger reconciler")
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// RunOnce verifies the ledger immediately. It returns ErrBalanceDrift
// when the balance and the transaction sum disagree.
func (r *Reconciler) RunOnce() error {
	err := r.ledger.Verify()

	r.mu.Lock()
	r.runs++
	if errors.Is(err, ErrBalanceDrift) {
		r.drifts++
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("Ledger reconciliation failed", zap.Error(err))
		return err
	}
	r.logger.Debug("Ledger reconciled", zap.Int64("balance", r.ledger.Balance()))
	return nil
}

// Stats returns how many reconciliations ran and how many found drift.
func (r *Reconciler) Stats() (runs, drifts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, r.drifts
}
