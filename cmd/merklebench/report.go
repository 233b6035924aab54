package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/forestrie/go-merklebench/bench"
	"github.com/forestrie/go-merklebench/nodestore"
)

func printReport(out io.Writer, report *bench.Report, store *nodestore.Store) {
	fmt.Fprintf(out, "engine:   %s\n", report.Engine)
	fmt.Fprintf(out, "range:    [%s, %s) %s inserted\n",
		humanize.Comma(int64(report.Start)), humanize.Comma(int64(report.End)), humanize.Comma(int64(report.Inserted())))
	fmt.Fprintf(out, "size:     %s\n", humanize.Comma(int64(report.Size)))
	fmt.Fprintf(out, "root:     %s\n", report.Root)
	fmt.Fprintf(out, "elapsed:  %s\n", report.Elapsed.Round(time.Millisecond))
	if report.ProofBytes > 0 {
		fmt.Fprintf(out, "proofs:   %s\n", humanize.IBytes(report.ProofBytes))
	}
	st := store.Stats()
	fmt.Fprintf(out, "store:    %s %s, %s puts, %s flushed in %s batches\n",
		store.Backend(), store.Path(),
		humanize.Comma(int64(st.Puts)), humanize.Comma(int64(st.Flushed)), humanize.Comma(int64(st.Flushes)))

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"OP", "COUNT", "TOTAL", "MEAN", "MIN", "P50", "P90", "P99", "MAX", "OPS/SEC"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, s := range report.Ops {
		table.Append([]string{
			string(s.Op),
			humanize.Comma(int64(s.Count)),
			formatDuration(s.Total),
			formatDuration(s.Mean),
			formatDuration(s.Min),
			formatDuration(s.P50),
			formatDuration(s.P90),
			formatDuration(s.P99),
			formatDuration(s.Max),
			humanize.CommafWithDigits(s.OpsPerSec, 1),
		})
	}
	table.Render()
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Microsecond).String()
	}
	return d.String()
}
