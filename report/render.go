package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Align is a column alignment for Table.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// Table renders rows with rounded borders. Short rows are padded.
func Table(headers []string, rows [][]string, aligns []Align) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == AlignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// JSON returns the indented JSON form of the report.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// AttemptsTable renders one row per attempt.
func (r *Report) AttemptsTable() string {
	rows := make([][]string, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		score, pass, issues := "-", "-", ""
		if a.Evaluation != nil {
			score = strconv.Itoa(a.Evaluation.Score)
			pass = strconv.FormatBool(a.Evaluation.Pass)
			codes := make([]string, 0, len(a.Evaluation.Issues))
			for _, issue := range a.Evaluation.Issues {
				codes = append(codes, issue.Code)
			}
			issues = strings.Join(codes, ", ")
		}
		rows = append(rows, []string{
			strconv.Itoa(a.Number),
			a.Strategy,
			a.Method,
			score,
			pass,
			a.Duration.Round(time.Millisecond).String(),
			issues,
		})
	}
	return Table(
		[]string{"#", "Strategy", "Method", "Score", "Pass", "Duration", "Issues"},
		rows,
		[]Align{AlignRight, AlignLeft, AlignLeft, AlignRight, AlignLeft, AlignRight, AlignLeft},
	)
}

// Summary renders a human-readable account of the run.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) %s in %s\n", r.ConverterName, r.ConversionID, r.Status(), r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Outcome: %s\n", r.Outcome)
	if r.Decision.StrategyUsed != "" {
		fmt.Fprintf(&b, "Strategy: %s (score %d, %d retries)\n", r.Decision.StrategyUsed, r.Decision.Score, r.Decision.RetryCount)
	}
	if r.Decision.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", r.Decision.Reason)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", r.Error)
	}
	if r.Output != nil {
		location := r.Output.Path
		if location == "" {
			location = "memory"
		}
		fmt.Fprintf(&b, "Output: %s, %d bytes (%s)\n", r.Output.Format, r.Output.Size(), location)
	}
	if len(r.Attempts) > 0 {
		b.WriteString(r.AttemptsTable())
		b.WriteString("\n")
	}
	if d := r.Diagnosis; d != nil {
		fmt.Fprintf(&b, "Diagnosis [%s]: %s\n", d.Severity, d.RootCause)
		for _, f := range d.Fixes {
			fmt.Fprintf(&b, "  - %s (%.0f%%)\n", f.Description, f.Confidence*100)
		}
		if d.AlternativeRoute != "" {
			fmt.Fprintf(&b, "  Alternative: %s\n", d.AlternativeRoute)
		}
	}
	return b.String()
}
