package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/shishobooks/shelfscan/pkg/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun/migrate"
)

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &scanner.Result{
		Added:    2,
		Removed:  1,
		Failures: []scanner.Failure{{Path: "/r/bad.zip", Code: "decode_failure", Error: "boom"}},
	})

	out := buf.String()
	assert.Contains(t, out, "added")
	assert.Contains(t, out, "/r/bad.zip")
	assert.Contains(t, out, "decode_failure")
}

func TestPrintResult_NoFailures(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &scanner.Result{})

	assert.NotContains(t, buf.String(), "Path")
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}

func TestPrintMigrations(t *testing.T) {
	var buf bytes.Buffer
	printMigrations(&buf, migrate.MigrationSlice{
		{Name: "20250321211048", Comment: "create_initial_tables", GroupID: 1, ID: 1, MigratedAt: time.Date(2025, 3, 21, 12, 0, 0, 0, time.UTC)},
		{Name: "20260301000000", Comment: "content_addressable_locations"},
	})

	out := buf.String()
	assert.Contains(t, out, "create_initial_tables")
	assert.Contains(t, out, "2025-03-21 12:00:00")
	assert.Contains(t, out, "pending")
}
