package joblogs

import (
	"context"
	"runtime/debug"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/shelfscan/pkg/models"
)

// Values longer than this are shortened before they are stored.
const maxDataValueLen = 1024

// JobLogger mirrors a job's log lines into the job_logs table so a scan can
// be inspected after the process that ran it is gone.
type JobLogger struct {
	ctx     context.Context
	jobID   int
	service *Service
	log     logger.Logger
}

func (svc *Service) NewJobLogger(ctx context.Context, jobID int, log logger.Logger) *JobLogger {
	return &JobLogger{
		ctx:     ctx,
		jobID:   jobID,
		service: svc,
		log:     log.Data(logger.Data{"job_id": jobID}),
	}
}

func (l *JobLogger) Info(msg string, data logger.Data) {
	l.log.Info(msg, data)
	l.store(models.JobLogLevelInfo, msg, data, false)
}

func (l *JobLogger) Warn(msg string, data logger.Data) {
	l.log.Warn(msg, data)
	l.store(models.JobLogLevelWarn, msg, data, false)
}

// Skipped records a candidate the scan could not catalog, keyed by its path.
func (l *JobLogger) Skipped(path, code, reason string) {
	l.Warn("skipped", logger.Data{"path": path, "code": code, "error": reason})
}

// Error stores err and the current stack alongside msg.
func (l *JobLogger) Error(msg string, err error, data logger.Data) {
	l.log.Err(err).Error(msg, data)
	l.store(models.JobLogLevelError, msg, withError(data, err), true)
}

// Fatal is Error for a recovered panic.
func (l *JobLogger) Fatal(msg string, err error, data logger.Data) {
	data = withError(data, err)
	l.log.Error(msg, data)
	l.store(models.JobLogLevelFatal, msg, data, true)
}

func withError(data logger.Data, err error) logger.Data {
	if err == nil {
		return data
	}
	out := logger.Data{"error": err.Error()}
	for k, v := range data {
		if k != "error" {
			out[k] = v
		}
	}
	return out
}

func (l *JobLogger) store(level, msg string, data logger.Data, withStack bool) {
	entry := &models.JobLog{
		JobID:   l.jobID,
		Level:   level,
		Message: msg,
	}
	entry.Path, entry.Data = encodeData(data)
	if withStack {
		stack := string(debug.Stack())
		entry.StackTrace = &stack
	}

	if err := l.service.CreateJobLog(l.ctx, entry); err != nil {
		l.log.Err(err).Warn("failed to persist job log")
	}
}

// encodeData moves "path" into its own column and JSON-encodes the rest.
func encodeData(data logger.Data) (path, encoded *string) {
	rest := make(logger.Data, len(data))
	for k, v := range data {
		if k == "path" {
			if p, ok := v.(string); ok && p != "" {
				path = &p
				continue
			}
		}
		if s, ok := v.(string); ok {
			v = truncateMiddle(s, maxDataValueLen)
		}
		rest[k] = v
	}
	if len(rest) == 0 {
		return path, nil
	}
	b, err := json.Marshal(rest)
	if err != nil {
		return path, nil
	}
	s := string(b)
	return path, &s
}

func truncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	half := (maxLen - 5) / 2
	return s[:half] + " ... " + s[len(s)-half:]
}
