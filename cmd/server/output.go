package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/repo-analyzer/internal/analysis"
	"github.com/ZanzyTHEbar/repo-analyzer/internal/types"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetAutoWrapText(true)
	table.SetColWidth(80)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func writeOutcome(w io.Writer, out analysis.Outcome) {
	table := newTable(w)

	result := out.Result
	if !out.OK() {
		result = out.Body("").(types.FailurePayload).AnalysisResult
	}

	table.Append([]string{"Repository", out.Repository})
	table.Append([]string{"Score", strconv.FormatFloat(result.Score, 'f', -1, 64)})
	table.Append([]string{"Summary", result.Summary})
	for i, step := range result.Roadmap {
		label := ""
		if i == 0 {
			label = "Roadmap"
		}
		table.Append([]string{label, fmt.Sprintf("%d. %s", i+1, step)})
	}
	if out.Capped {
		table.Append([]string{"Note", "score capped for low engagement"})
	}
	if !out.OK() {
		table.Append([]string{"Error", fmt.Sprintf("%s: %s", out.Err.Category, out.Err.Message())})
	}
	table.Append([]string{"Duration", out.Duration.Round(time.Millisecond).String()})

	table.Render()
}

func writeProbe(w io.Writer, report types.ProbeReport) {
	table := newTable(w)

	status := "FAILED"
	if report.Success {
		status = "OK"
	}
	table.Append([]string{"Status", status})
	table.Append([]string{"Model", report.Model})
	table.Append([]string{"Message", report.Message})
	if report.StatusCode != 0 {
		table.Append([]string{"HTTP status", strconv.Itoa(report.StatusCode)})
	}
	if report.APIResponse != "" {
		table.Append([]string{"Response", strings.TrimSpace(report.APIResponse)})
	}
	if report.ErrorDetails != "" {
		table.Append([]string{"Error", report.ErrorDetails})
	}
	for i, line := range report.Logs {
		table.Append([]string{fmt.Sprintf("Log %d", i+1), line})
	}

	table.Render()
}
