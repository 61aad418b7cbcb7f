package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_UnmarshalData(t *testing.T) {
	job := &Job{Type: JobTypeScan, Data: `{"roots":["/mnt/a","/mnt/b"]}`}

	require.NoError(t, job.UnmarshalData())
	data, ok := job.DataParsed.(*JobScanData)
	require.True(t, ok)
	assert.Equal(t, []string{"/mnt/a", "/mnt/b"}, data.Roots)
}

func TestJob_UnmarshalData_UnknownType(t *testing.T) {
	job := &Job{Type: "export", Data: `{}`}
	assert.Error(t, job.UnmarshalData())
}

func TestLocation_FullPath(t *testing.T) {
	l := &Location{BasePath: "/mnt/comics", RelativePath: "series/vol1.cbz"}
	assert.Equal(t, "/mnt/comics/series/vol1.cbz", l.FullPath())
}
