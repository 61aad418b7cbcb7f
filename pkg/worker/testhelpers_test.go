package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/shelfscan/internal/testdb"
	"github.com/shishobooks/shelfscan/pkg/config"
	"github.com/shishobooks/shelfscan/pkg/contentid"
	"github.com/shishobooks/shelfscan/pkg/joblogs"
	"github.com/shishobooks/shelfscan/pkg/jobs"
	"github.com/shishobooks/shelfscan/pkg/models"
	"github.com/shishobooks/shelfscan/pkg/pages"
	"github.com/shishobooks/shelfscan/pkg/registry"
	"github.com/shishobooks/shelfscan/pkg/scanner"
	"github.com/shishobooks/shelfscan/pkg/volumes"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

// testContext holds a worker over an in-memory catalog with one scan root
// on a fake volume.
type testContext struct {
	t             *testing.T
	ctx           context.Context
	db            *bun.DB
	config        *config.Config
	root          string
	identifier    *volumes.Identifier
	scanner       *scanner.Scanner
	worker        *Worker
	jobService    *jobs.Service
	jobLogService *joblogs.Service
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()

	root := t.TempDir()
	cfg := config.NewForTest()
	cfg.ScanRoots = []string{root}
	cfg.WorkerPollInterval = 10 * time.Millisecond
	cfg.WatchInterval = 20 * time.Millisecond
	cfg.LockFilePath = filepath.Join(t.TempDir(), "scan.lock")

	db := testdb.New(t)
	identifier := volumes.NewIdentifier(
		volumes.NewStaticEnumerator(volumes.Volume{Designator: "D:", Serial: "VOL-1"}),
		volumes.PrefixDesignator(map[string]string{root: "D:"}),
	)
	calc := contentid.NewCalculator(pages.NewSource(), cfg.ThumbnailWidth, cfg.ThumbnailHeight)
	sc := scanner.New(cfg, registry.NewService(db), identifier, calc)
	w := New(cfg, db, sc)

	return &testContext{
		t:             t,
		ctx:           logger.New().WithContext(context.Background()),
		db:            db,
		config:        cfg,
		root:          root,
		identifier:    identifier,
		scanner:       sc,
		worker:        w,
		jobService:    w.jobService,
		jobLogService: w.jobLogService,
	}
}

func (tc *testContext) createJob(jobType, status string, roots ...string) *models.Job {
	tc.t.Helper()
	job := &models.Job{
		Type:       jobType,
		Status:     status,
		DataParsed: &models.JobScanData{Roots: roots},
	}
	require.NoError(tc.t, tc.jobService.CreateJob(tc.ctx, job))
	return job
}

func (tc *testContext) job(id int) *models.Job {
	tc.t.Helper()
	job, err := tc.jobService.RetrieveJob(tc.ctx, jobs.RetrieveJobOptions{ID: &id})
	require.NoError(tc.t, err)
	return job
}

func (tc *testContext) jobs(statuses ...string) []*models.Job {
	tc.t.Helper()
	list, err := tc.jobService.ListJobs(tc.ctx, jobs.ListJobsOptions{Statuses: statuses})
	require.NoError(tc.t, err)
	return list
}
