package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YadneshTeli/TaskForge-sub000/config"
	"github.com/YadneshTeli/TaskForge-sub000/interfaces"
	"github.com/YadneshTeli/TaskForge-sub000/logging"
	"github.com/YadneshTeli/TaskForge-sub000/models"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
)

// Waker is told that new outbox jobs were committed.
type Waker interface {
	Notify()
}

// SyncWorker drains the outbox. Jobs that touch the analytics store go
// through the circuit breaker; while it is open they fail fast and are
// rescheduled with backoff.
type SyncWorker struct {
	outbox        interfaces.Outbox
	analytics     *AnalyticsService
	notifications *NotificationService
	breaker       *gobreaker.CircuitBreaker
	cfg           config.SyncConfig
	wake          chan struct{}
	now           func() time.Time
}

// NewSyncWorker builds a worker. notifications may be nil, in which case
// notify jobs complete without sending anything.
func NewSyncWorker(outbox interfaces.Outbox, analytics *AnalyticsService, notifications *NotificationService, breaker *gobreaker.CircuitBreaker, cfg config.SyncConfig) *SyncWorker {
	return &SyncWorker{
		outbox:        outbox,
		analytics:     analytics,
		notifications: notifications,
		breaker:       breaker,
		cfg:           cfg,
		wake:          make(chan struct{}, 1),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (w *SyncWorker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run processes jobs on every poll tick and whenever Notify is called, until
// ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	logging.Logger.Infof("Event ID: SYNC_WORKER_STARTED, Description: Polling every %s with %d workers", w.cfg.PollInterval, w.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			logging.Logger.Info("Event ID: SYNC_WORKER_STOPPED, Description: Sync worker stopped")
			return
		case <-ticker.C:
		case <-w.wake:
		}
		for {
			n, err := w.ProcessPending(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logging.Logger.Errorf("Event ID: SYNC_CLAIM_FAILED, Description: %v", err)
				}
				break
			}
			if n < w.cfg.BatchSize {
				break
			}
		}
	}
}

// ProcessPending claims one batch of due jobs and runs it. It returns the
// number of jobs claimed. Individual job failures are recorded on the job and
// do not fail the batch.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	jobs, err := w.outbox.ClaimSyncJobs(ctx, w.now(), w.cfg.BatchSize, w.cfg.Lease)
	if err != nil {
		return 0, fmt.Errorf("claiming sync jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			w.finish(ctx, job, w.runJob(ctx, job))
			return nil
		})
	}
	_ = g.Wait()
	return len(jobs), nil
}

// Drain processes jobs until nothing is due.
func (w *SyncWorker) Drain(ctx context.Context) error {
	for {
		n, err := w.ProcessPending(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (w *SyncWorker) Stats(ctx context.Context) (models.OutboxStats, error) {
	stats, err := w.outbox.SyncJobStats(ctx)
	if err != nil {
		return stats, &DatabaseError{Op: "outbox stats", Err: err}
	}
	return stats, nil
}

// errPermanent marks failures that no retry can fix.
var errPermanent = errors.New("permanent sync failure")

func (w *SyncWorker) runJob(ctx context.Context, job models.SyncJob) error {
	switch job.Kind {
	case models.JobNotifyUser:
		if w.notifications == nil {
			return nil
		}
		_, err := w.notifications.Notify(ctx, models.UserID(job.UserRef.ID), job.NotificationKind, job.Message)
		var ve *ValidationError
		if errors.As(err, &ve) {
			return fmt.Errorf("%w: %v", errPermanent, err)
		}
		return err
	case models.JobSyncTaskMetrics, models.JobRefreshProjectAnalytics, models.JobRecomputeUserStats,
		models.JobInitProjectAnalytics, models.JobSyncProjectMember:
		run, err := w.analyticsJob(job)
		if err != nil {
			return fmt.Errorf("%w: %v", errPermanent, err)
		}
		_, err = w.breaker.Execute(func() (interface{}, error) {
			return nil, run(ctx)
		})
		return err
	default:
		return fmt.Errorf("%w: unknown job kind %q", errPermanent, job.Kind)
	}
}

// analyticsJob resolves the job's references up front so a malformed job
// fails before it reaches the breaker.
func (w *SyncWorker) analyticsJob(job models.SyncJob) (func(context.Context) error, error) {
	switch job.Kind {
	case models.JobSyncTaskMetrics:
		id, err := job.TaskRef.ObjectID()
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) error { return w.analytics.SyncTaskMetrics(ctx, id) }, nil
	case models.JobRecomputeUserStats:
		if err := job.UserRef.Validate(); err != nil {
			return nil, err
		}
		user := models.UserID(job.UserRef.ID)
		return func(ctx context.Context) error {
			_, err := w.analytics.RecomputeUserStats(ctx, user)
			return err
		}, nil
	}

	id, err := job.ProjectRef.ObjectID()
	if err != nil {
		return nil, err
	}
	switch job.Kind {
	case models.JobRefreshProjectAnalytics:
		return func(ctx context.Context) error {
			_, err := w.analytics.UpdateProjectAnalytics(ctx, id)
			var nf *NotFoundError
			if errors.As(err, &nf) {
				return nil
			}
			return err
		}, nil
	default:
		if err := job.UserRef.Validate(); err != nil {
			return nil, err
		}
		user := models.UserID(job.UserRef.ID)
		if job.Kind == models.JobInitProjectAnalytics {
			return func(ctx context.Context) error { return w.analytics.InitProjectAnalytics(ctx, id, user) }, nil
		}
		return func(ctx context.Context) error { return w.analytics.SyncProjectMember(ctx, id, user) }, nil
	}
}

// Backoff returns the delay before the given attempt is retried.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func (w *SyncWorker) finish(ctx context.Context, job models.SyncJob, runErr error) {
	now := w.now()
	if runErr == nil {
		if err := w.outbox.CompleteSyncJob(ctx, job.ID, now); err != nil {
			logging.Logger.WithField("job_id", job.ID.Hex()).
				Errorf("Event ID: SYNC_COMPLETE_FAILED, Description: %v", err)
		}
		return
	}

	dead := job.Attempts >= w.cfg.MaxAttempts || errors.Is(runErr, errPermanent)
	next := now.Add(Backoff(job.Attempts, w.cfg.BaseBackoff, w.cfg.MaxBackoff))
	entry := logging.Logger.WithFields(logrus.Fields{
		"job_id":  job.ID.Hex(),
		"kind":    string(job.Kind),
		"attempt": job.Attempts,
		"error":   runErr.Error(),
	})
	switch {
	case dead:
		entry.Error("Event ID: SYNC_JOB_DEAD, Description: Sync job gave up")
	case errors.Is(runErr, gobreaker.ErrOpenState), errors.Is(runErr, gobreaker.ErrTooManyRequests):
		entry.Debug("Event ID: SYNC_JOB_DEFERRED, Description: Analytics breaker is open")
	default:
		entry.Warn("Event ID: SYNC_JOB_FAILED, Description: Sync job will be retried")
	}

	if err := w.outbox.FailSyncJob(ctx, job.ID, runErr.Error(), next, dead); err != nil {
		logging.Logger.WithField("job_id", job.ID.Hex()).
			Errorf("Event ID: SYNC_FAIL_RECORD_FAILED, Description: %v", err)
	}
}
