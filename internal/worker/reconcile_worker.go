package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"tucano/internal/amqp"
	"tucano/internal/core"
	"tucano/internal/log"
	"tucano/internal/sheets"
)

// DefaultSchedule is used when no cron schedule is configured.
const DefaultSchedule = "@every 1h"

// sweepParallelism bounds how many users a sweep reconciles at once.
const sweepParallelism = 4

// Reconciler fills in missing recurring instances for a user.
type Reconciler interface {
	ReconcileUser(ctx context.Context, uid string) (int, error)
}

// Source lists users and their transactions.
type Source interface {
	Users(ctx context.Context) ([]string, error)
	ListTransactions(ctx context.Context, uid string) ([]core.Transaction, error)
}

// ReconcileWorker keeps every user's recurring transactions projected and,
// when a ledger is configured, mirrors each user's transactions to it.
type ReconcileWorker struct {
	source     Source
	reconciler Reconciler
	ledger     sheets.Ledger
	logger     *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	// sweeps tracks the startup sweep; cron tracks its own jobs
	sweeps sync.WaitGroup
	// sweeping guards against overlapping sweeps
	sweeping atomic.Bool
}

// NewReconcileWorker creates a worker. ledger may be nil.
func NewReconcileWorker(source Source, reconciler Reconciler, ledger sheets.Ledger, logger *log.Logger) *ReconcileWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ReconcileWorker{
		source:     source,
		reconciler: reconciler,
		ledger:     ledger,
		logger:     logger.WithComponent(log.ComponentWorker),
	}
}

// HandleChange processes one change notification from AMQP.
func (w *ReconcileWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	w.logger.DebugContext(ctx, "Processing change message",
		log.FieldUserID, msg.UserID,
		log.FieldPath, msg.Path,
		"op", msg.Op)
	return w.SyncUser(ctx, msg.UserID)
}

// SyncUser reconciles one user and mirrors the result.
func (w *ReconcileWorker) SyncUser(ctx context.Context, uid string) error {
	created, err := w.reconciler.ReconcileUser(ctx, uid)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", uid, err)
	}
	if created > 0 {
		w.logger.InfoContext(ctx, "Projected recurring transactions",
			log.FieldUserID, uid,
			log.FieldCount, created)
	}
	if err := w.mirror(ctx, uid); err != nil {
		return fmt.Errorf("mirror %s: %w", uid, err)
	}
	return nil
}

// mirror rewrites the user's ledger unless it already matches.
func (w *ReconcileWorker) mirror(ctx context.Context, uid string) error {
	if w.ledger == nil {
		return nil
	}
	txs, err := w.source.ListTransactions(ctx, uid)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}
	rows := sheets.Rows(txs)

	current, err := w.ledger.ReadLedger(ctx, uid)
	if err != nil {
		w.logger.WarnContext(ctx, "Could not read mirrored ledger, rewriting it",
			log.FieldUserID, uid,
			log.FieldError, err)
	} else if sheets.Equal(current, rows) {
		w.logger.DebugContext(ctx, "Ledger already up to date", log.FieldUserID, uid)
		return nil
	}

	ref, err := w.ledger.WriteLedger(ctx, uid, rows)
	if err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	w.logger.InfoContext(ctx, "Ledger synced",
		log.FieldUserID, uid,
		log.FieldCount, len(rows),
		log.FieldSheetsRef, ref)
	return nil
}

// Sweep syncs every known user. One user failing does not stop the others;
// the failures are joined into the returned error.
func (w *ReconcileWorker) Sweep(ctx context.Context) error {
	users, err := w.source.Users(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(sweepParallelism)
	for _, uid := range users {
		g.Go(func() error {
			if err := w.SyncUser(ctx, uid); err != nil {
				w.logger.ErrorContext(ctx, "Failed to sync user",
					log.FieldUserID, uid,
					log.FieldError, err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	w.logger.InfoContext(ctx, "Sweep completed",
		"users", len(users),
		"errors", len(errs))
	return errors.Join(errs...)
}

// runSweep is the scheduled entry point. A tick that fires while the
// previous sweep still runs is skipped.
func (w *ReconcileWorker) runSweep(ctx context.Context) {
	if !w.sweeping.CompareAndSwap(false, true) {
		w.logger.WarnContext(ctx, "Previous sweep still running, skipping")
		return
	}
	defer w.sweeping.Store(false)
	if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Sweep finished with errors", log.FieldError, err)
	}
}

// Start runs a sweep at once and then on every schedule tick. Returns an
// error if already running or if the schedule does not parse.
func (w *ReconcileWorker) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("reconcile worker is already running")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { w.runSweep(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	w.sweeps.Add(1)
	go func() {
		defer w.sweeps.Done()
		w.runSweep(ctx)
	}()
	c.Start()

	w.cron = c
	w.running = true
	w.logger.InfoContext(ctx, "Reconcile worker started", "schedule", schedule)
	return nil
}

// Stop halts the schedule and waits for running sweeps.
func (w *ReconcileWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	c := w.cron
	w.running = false
	w.cron = nil
	w.mu.Unlock()

	jobs := c.Stop()
	done := make(chan struct{})
	go func() {
		<-jobs.Done()
		w.sweeps.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.InfoContext(ctx, "Reconcile worker stopped gracefully")
		return nil
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Reconcile worker stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the schedule is active.
func (w *ReconcileWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
