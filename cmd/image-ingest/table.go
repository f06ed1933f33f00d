package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	imageingest "github.com/e7canasta/orion-care-sensor/modules/image-ingest"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderStats formats final worker statistics as a two-column table.
func renderStats(st imageingest.WorkerStats) string {
	count := func(n uint64) string { return humanize.Comma(int64(n)) }

	rows := [][]string{
		{"Source", st.Source},
		{"Received", count(st.Received)},
		{"Reported", count(st.Reported)},
		{"Decode failures", count(st.DecodeFailures)},
		{"Convert failures", count(st.ConvertFailures)},
		{"Skipped", count(st.Skipped)},
		{"Dropped (queue)", count(st.Dropped)},
		{"Dropped (transport)", count(st.TransportDrops)},
		{"Arrival FPS", fmt.Sprintf("%.2f", st.ArrivalFPS)},
		{"Last latency", st.LastLatency.Round(time.Microsecond).String()},
	}
	if !st.Started.IsZero() {
		rows = append(rows, []string{"Started", humanize.Time(st.Started)})
	}
	if st.LastError != "" {
		rows = append(rows, []string{"Last error", st.LastError})
	}
	return renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
