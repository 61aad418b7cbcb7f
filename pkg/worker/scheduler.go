package worker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/pkg/models"
)

// Scheduler enqueues periodic scans and purges old jobs.
type Scheduler struct {
	worker *Worker
	cron   *cron.Cron
}

// NewScheduler registers the configured scan schedule and a daily job
// purge. An empty schedule disables periodic scans.
func NewScheduler(w *Worker) (*Scheduler, error) {
	c := cron.New()
	ctx := w.log.WithContext(context.Background())

	if schedule := w.config.ScanSchedule; schedule != "" {
		if err := c.AddFunc(schedule, func() { w.scheduledScan(ctx) }); err != nil {
			return nil, errors.Wrapf(err, "invalid scan schedule %q", schedule)
		}
	}
	if err := c.AddFunc("@daily", func() { w.purgeJobs(ctx) }); err != nil {
		return nil, errors.WithStack(err)
	}

	return &Scheduler{worker: w, cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// scheduledScan enqueues a scan unless one is already pending or running.
func (w *Worker) scheduledScan(ctx context.Context) {
	log := logger.FromContext(ctx)
	active, err := w.jobService.HasActiveJobByType(ctx, models.JobTypeScan)
	if err != nil {
		log.Err(err).Error("check active scan error")
		return
	}
	if active {
		log.Debug("scan already queued; skipping scheduled scan")
		return
	}
	w.EnqueueScan(ctx, "schedule")
}

func (w *Worker) purgeJobs(ctx context.Context) {
	log := logger.FromContext(ctx)
	if w.config.JobRetention <= 0 {
		return
	}
	n, err := w.jobService.DeleteFinishedJobsBefore(ctx, time.Now().Add(-w.config.JobRetention))
	if err != nil {
		log.Err(err).Error("purge jobs error")
		return
	}
	if n > 0 {
		log.Info("old jobs purged", logger.Data{"count": n})
	}
}
