package joblogs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/shelfscan/internal/testdb"
	"github.com/shishobooks/shelfscan/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobLogger(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	_, err := db.Exec(`INSERT INTO jobs (type, status, data, progress) VALUES ('scan', 'in_progress', '{}', 0)`)
	require.NoError(t, err)

	svc := NewService(db)
	jl := svc.NewJobLogger(ctx, 1, logger.New())
	jl.Info("scan started", logger.Data{"roots": 2})
	jl.Skipped("/r/broken.zip", "decode_failure", strings.Repeat("x", 2000))
	jl.Error("scan failed", assert.AnError, nil)

	logs, err := svc.ListJobLogs(ctx, ListJobLogsOptions{JobID: 1})
	require.NoError(t, err)
	require.Len(t, logs, 3)

	assert.Equal(t, models.JobLogLevelInfo, logs[0].Level)
	assert.Nil(t, logs[0].Path)
	assert.Nil(t, logs[0].StackTrace)

	require.NotNil(t, logs[1].Path)
	assert.Equal(t, "/r/broken.zip", *logs[1].Path)
	require.NotNil(t, logs[1].Data)
	data := map[string]string{}
	require.NoError(t, json.Unmarshal([]byte(*logs[1].Data), &data))
	assert.Equal(t, "decode_failure", data["code"])
	assert.Len(t, data["error"], maxDataValueLen-1)
	assert.Contains(t, data["error"], " ... ")

	assert.Equal(t, models.JobLogLevelError, logs[2].Level)
	assert.NotNil(t, logs[2].StackTrace)

	warnings, err := svc.ListJobLogs(ctx, ListJobLogsOptions{JobID: 1, Levels: []string{models.JobLogLevelWarn}})
	require.NoError(t, err)
	assert.Len(t, warnings, 1)

	after, err := svc.ListJobLogs(ctx, ListJobLogsOptions{JobID: 1, AfterID: pointerutil.Int(logs[1].ID)})
	require.NoError(t, err)
	assert.Len(t, after, 1)

	n, err := svc.DeleteJobLogsBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestEncodeData(t *testing.T) {
	path, data := encodeData(logger.Data{"path": "/r/a.zip"})
	require.NotNil(t, path)
	assert.Equal(t, "/r/a.zip", *path)
	assert.Nil(t, data)

	path, data = encodeData(logger.Data{"path": 3, "roots": []string{"/r"}})
	assert.Nil(t, path, "a non-string path stays in the data")
	require.NotNil(t, data)
	assert.JSONEq(t, `{"path":3,"roots":["/r"]}`, *data)

	path, data = encodeData(nil)
	assert.Nil(t, path)
	assert.Nil(t, data)
}

func TestJobLogger_ErrorDoesNotMutateData(t *testing.T) {
	data := logger.Data{"root": "/r"}
	out := withError(data, assert.AnError)
	assert.Equal(t, logger.Data{"root": "/r"}, data)
	assert.Equal(t, assert.AnError.Error(), out["error"])
	assert.Equal(t, logger.Data{"root": "/r"}, withError(data, nil))
}

func TestTruncateMiddle(t *testing.T) {
	assert.Equal(t, "short", truncateMiddle("short", 10))
	assert.Equal(t, "ab ... yz", truncateMiddle("abcdefghijklmnopqrstuvwxyz", 9))
}
