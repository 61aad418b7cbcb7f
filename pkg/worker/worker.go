package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/shelfscan/pkg/config"
	"github.com/shishobooks/shelfscan/pkg/errcodes"
	"github.com/shishobooks/shelfscan/pkg/joblogs"
	"github.com/shishobooks/shelfscan/pkg/jobs"
	"github.com/shishobooks/shelfscan/pkg/models"
	"github.com/shishobooks/shelfscan/pkg/scanner"
	"github.com/uptrace/bun"
)

type processFunc func(ctx context.Context, job *models.Job, jl *joblogs.JobLogger) error

// Worker runs queued jobs one at a time. Scans already exclude each other
// through the scanner's lock, so a single processor is enough.
type Worker struct {
	config    *config.Config
	log       logger.Logger
	processID string

	processFuncs map[string]processFunc

	scanner       *scanner.Scanner
	jobService    *jobs.Service
	jobLogService *joblogs.Service

	queue          chan *models.Job
	shutdown       chan struct{}
	doneFetching   chan struct{}
	doneProcessing chan struct{}
}

func New(cfg *config.Config, db *bun.DB, sc *scanner.Scanner) *Worker {
	w := &Worker{
		config:    cfg,
		log:       logger.New(),
		processID: uuid.NewString(),

		scanner:       sc,
		jobService:    jobs.NewService(db),
		jobLogService: joblogs.NewService(db),

		queue:          make(chan *models.Job, 1),
		shutdown:       make(chan struct{}),
		doneFetching:   make(chan struct{}),
		doneProcessing: make(chan struct{}),
	}

	w.processFuncs = map[string]processFunc{
		models.JobTypeScan:       w.ProcessScanJob,
		models.JobTypeRemoveDead: w.ProcessRemoveDeadJob,
	}

	return w
}

// Start requeues jobs a previous process left in progress and begins
// fetching and processing pending jobs.
func (w *Worker) Start() {
	ctx := w.log.WithContext(context.Background())
	if err := w.requeueInterrupted(ctx); err != nil {
		w.log.Err(err).Error("requeue interrupted jobs error")
	}

	go w.fetchJobs()
	go w.processJobs()
}

func (w *Worker) requeueInterrupted(ctx context.Context) error {
	stale, err := w.jobService.ListJobs(ctx, jobs.ListJobsOptions{
		Statuses:           []string{models.JobStatusInProgress},
		ProcessIDToExclude: &w.processID,
	})
	if err != nil {
		return err
	}
	for _, job := range stale {
		job.Status = models.JobStatusPending
		job.ProcessID = nil
		job.Progress = 0
		err := w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
			Columns: []string{"status", "process_id", "progress"},
		})
		if err != nil {
			return err
		}
		w.log.Info("requeued interrupted job", logger.Data{"job_id": job.ID, "type": job.Type})
	}
	return nil
}

func (w *Worker) fetchJobs() {
	duration := w.config.WorkerPollInterval
	timer := time.NewTimer(duration)

	for {
		select {
		case <-w.shutdown:
			// We're shutting down, so stop adding more jobs to the queue.
			timer.Stop()
			close(w.doneFetching)
			return
		case <-timer.C:
			j, err := w.jobService.ListJobs(context.Background(), jobs.ListJobsOptions{
				Limit:    pointerutil.Int(1),
				Statuses: []string{models.JobStatusPending},
			})
			if err != nil {
				w.log.Err(err).Error("list jobs error")
				timer.Reset(duration)
				continue
			}
			for _, job := range j {
				select {
				case w.queue <- job:
				case <-w.shutdown:
				}
			}
			timer.Reset(duration)
		}
	}
}

func (w *Worker) processJobs() {
	for {
		select {
		case <-w.shutdown:
			close(w.doneProcessing)
			return
		case job := <-w.queue:
			ctx, cancel := w.jobContext(job)
			if err := w.RunJob(ctx, job); err != nil {
				logger.FromContext(ctx).Err(err).Error("run job error")
			}
			cancel()
		}
	}
}

// jobContext is cancelled when the worker shuts down so a running scan stops
// between candidates.
func (w *Worker) jobContext(job *models.Job) (context.Context, context.CancelFunc) {
	log := w.log.ID(uuid.NewString()).Root(logger.Data{"job_id": job.ID, "type": job.Type, "process_id": w.processID})
	ctx, cancel := context.WithCancel(log.WithContext(context.Background()))
	go func() {
		select {
		case <-w.shutdown:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// RunJob claims job, runs it and records the outcome. A job that finds
// another scan running goes back to pending.
func (w *Worker) RunJob(ctx context.Context, job *models.Job) (err error) {
	log := logger.FromContext(ctx)
	jl := w.jobLogService.NewJobLogger(ctx, job.ID, log)

	fn, ok := w.processFuncs[job.Type]
	if !ok {
		return w.finish(ctx, job, errors.Errorf("can't find process function for type %q", job.Type))
	}

	claimed, err := w.jobService.ClaimJob(ctx, job, w.processID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Debug("job was already claimed")
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			perr := errors.Errorf("panic: %v", r)
			jl.Fatal("job panicked", perr, nil)
			err = w.finish(ctx, job, perr)
		}
	}()

	runErr := fn(ctx, job, jl)

	// The outcome is recorded even when the job was interrupted.
	ctx = context.WithoutCancel(ctx)
	if errcodes.Code(runErr) == errcodes.CodeScanInProgress || errors.Is(runErr, context.Canceled) {
		jl.Info("job interrupted; it will be retried", logger.Data{"error": runErr.Error()})
		job.Status = models.JobStatusPending
		job.ProcessID = nil
		job.Progress = 0
		return w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{
			Columns: []string{"status", "process_id", "progress"},
		})
	}
	if runErr != nil {
		jl.Error("job failed", runErr, nil)
	}
	return w.finish(ctx, job, runErr)
}

func (w *Worker) finish(ctx context.Context, job *models.Job, runErr error) error {
	columns := []string{"status", "progress", "result", "error"}
	if runErr != nil {
		job.Status = models.JobStatusFailed
		job.Error = pointerutil.String(runErr.Error())
	} else {
		job.Status = models.JobStatusCompleted
		job.Progress = 100
	}
	return w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{Columns: columns})
}

func (w *Worker) Shutdown() {
	close(w.shutdown)

	<-w.doneFetching
	<-w.doneProcessing
}

// EnqueueScan queues a scan of the configured roots, reporting why.
func (w *Worker) EnqueueScan(ctx context.Context, reason string) {
	w.enqueue(ctx, models.JobTypeScan, nil, reason)
}

func (w *Worker) enqueue(ctx context.Context, jobType string, roots []string, reason string) {
	log := logger.FromContext(ctx)
	if len(roots) == 0 && len(w.config.ScanRoots) == 0 {
		log.Info("no scan roots configured; nothing to enqueue", logger.Data{"reason": reason})
		return
	}
	job, created, err := w.jobService.EnqueueScan(ctx, jobType, roots)
	if err != nil {
		log.Err(err).Error("enqueue job error")
		return
	}
	if !created {
		log.Debug("identical job already pending", logger.Data{"job_id": job.ID, "reason": reason})
		return
	}
	log.Info("job enqueued", logger.Data{"job_id": job.ID, "type": jobType, "reason": reason})
}

func percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	p := current * 100 / total
	if p > 99 {
		// 100 is reserved for a finished job.
		p = 99
	}
	return p
}

func rootsOf(job *models.Job, fallback []string) []string {
	if data, ok := job.DataParsed.(*models.JobScanData); ok && len(data.Roots) > 0 {
		return data.Roots
	}
	return fallback
}

func summary(r *scanner.Result) string {
	return fmt.Sprintf("added=%d updated=%d removed=%d skipped=%d failures=%d",
		r.Added, r.Updated, r.Removed, r.Skipped, len(r.Failures))
}
