package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/robinjoseph08/golib/logger"
	"github.com/schollz/progressbar/v3"
	"github.com/shishobooks/shelfscan/pkg/scanner"
)

func renderTable(headers []string, rows [][]string, rightAligned ...int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func printResult(w io.Writer, r *scanner.Result) {
	rows := [][]string{
		{"added", strconv.Itoa(r.Added)},
		{"updated", strconv.Itoa(r.Updated)},
		{"removed", strconv.Itoa(r.Removed)},
		{"reactivated", strconv.Itoa(r.Reactivated)},
		{"skipped", strconv.Itoa(r.Skipped)},
		{"orphans deleted", strconv.Itoa(r.OrphansDeleted)},
		{"failures", strconv.Itoa(len(r.Failures))},
	}
	fmt.Fprintln(w, renderTable([]string{"Outcome", "Count"}, rows, 2))

	if len(r.Failures) == 0 {
		return
	}
	failures := make([][]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		failures = append(failures, []string{f.Path, f.Code, f.Error})
	}
	fmt.Fprintln(w, renderTable([]string{"Path", "Code", "Error"}, failures))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// watchProgress renders scan progress as a bar on a terminal and as log
// lines otherwise. Close the returned channel and call wait when the scan
// is done.
func watchProgress(log logger.Logger, w io.Writer) (chan<- scanner.Progress, func()) {
	ch := make(chan scanner.Progress, 64)
	done := make(chan struct{})

	go func() {
		defer close(done)
		if !isTerminal(w) {
			for p := range ch {
				if p.Total == 0 || p.Current == p.Total || p.Current%100 == 0 {
					log.Info("scan progress", logger.Data{"current": p.Current, "total": p.Total, "message": p.Message})
				}
			}
			return
		}

		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("scanning"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		for p := range ch {
			if p.Total > 0 {
				bar.ChangeMax(p.Total)
			}
			bar.Describe(p.Message)
			_ = bar.Set(p.Current)
		}
		_ = bar.Finish()
	}()

	return ch, func() { <-done }
}
