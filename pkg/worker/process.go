package worker

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/shelfscan/pkg/joblogs"
	"github.com/shishobooks/shelfscan/pkg/jobs"
	"github.com/shishobooks/shelfscan/pkg/models"
	"github.com/shishobooks/shelfscan/pkg/scanner"
)

// ProcessScanJob scans the job's roots, or the configured ones, saving
// progress as it goes and the summary as the job result.
func (w *Worker) ProcessScanJob(ctx context.Context, job *models.Job, jl *joblogs.JobLogger) error {
	roots := rootsOf(job, w.config.ScanRoots)
	if len(roots) == 0 {
		return errors.New("no scan roots")
	}
	jl.Info("scan started", logger.Data{"roots": roots})

	progress, wait := w.trackProgress(ctx, job)
	result, err := func() (*scanner.Result, error) {
		// The tracker is drained even when the scan panics.
		defer func() {
			close(progress)
			wait()
		}()
		return w.scanner.Scan(ctx, roots, progress)
	}()

	if result != nil {
		w.recordResult(ctx, job, jl, result)
	}
	if err != nil {
		return err
	}
	jl.Info("scan finished", logger.Data{"summary": summary(result)})
	return nil
}

// ProcessRemoveDeadJob deletes locations whose files are gone under the
// job's roots.
func (w *Worker) ProcessRemoveDeadJob(ctx context.Context, job *models.Job, jl *joblogs.JobLogger) error {
	roots := rootsOf(job, w.config.ScanRoots)
	if len(roots) == 0 {
		return errors.New("no scan roots")
	}

	result, err := w.scanner.RemoveDeadLocations(ctx, roots)
	if result != nil {
		w.recordResult(ctx, job, jl, result)
	}
	if err != nil {
		return err
	}
	jl.Info("dead locations removed", logger.Data{"removed": result.Removed})
	return nil
}

func (w *Worker) recordResult(ctx context.Context, job *models.Job, jl *joblogs.JobLogger, result *scanner.Result) {
	for _, f := range result.Failures {
		jl.Skipped(f.Path, f.Code, f.Error)
	}
	b, err := json.Marshal(result)
	if err != nil {
		logger.FromContext(ctx).Err(err).Warn("failed to encode job result")
		return
	}
	s := string(b)
	job.Result = &s
}

// trackProgress returns a channel for scan progress that saves the job's
// percentage whenever it moves. Close the channel and call wait once the
// scan is done.
func (w *Worker) trackProgress(ctx context.Context, job *models.Job) (chan<- scanner.Progress, func()) {
	ch := make(chan scanner.Progress, 16)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		log := logger.FromContext(ctx)
		last := job.Progress
		for p := range ch {
			pct := percent(p.Current, p.Total)
			if pct <= last {
				continue
			}
			last = pct
			update := &models.Job{ID: job.ID, Progress: pct}
			err := w.jobService.UpdateJob(ctx, update, jobs.UpdateJobOptions{Columns: []string{"progress"}})
			if err != nil {
				log.Err(err).Warn("failed to save job progress")
			}
		}
		job.Progress = last
	}()

	return ch, wg.Wait
}
