package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/report"
	"github.com/richinex/transmute/storage"
)

// ListConverters prints every registered converter.
func (a *App) ListConverters(verbose bool) {
	descs := a.Registry.List()
	rows := make([][]string, 0, len(descs))
	for _, d := range descs {
		rows = append(rows, []string{
			d.ID(),
			d.Category(),
			strings.Join(d.From(), ", "),
			strings.Join(d.To(), ", "),
			strings.Join(d.StrategyIDs(), ", "),
		})
	}
	fmt.Fprintln(a.Out, report.Table([]string{"Converter", "Category", "From", "To", "Strategies"}, rows, nil))

	if !verbose {
		return
	}
	for _, d := range descs {
		fmt.Fprintf(a.Out, "\n%s: %s\n", d.ID(), d.Description())
		for _, s := range d.Strategies() {
			fmt.Fprintf(a.Out, "  %s [%s, %s speed, %s quality]", s.ID, s.Mode, s.Speed, s.Quality)
			if s.Engine != "" {
				fmt.Fprintf(a.Out, " engine=%s", s.Engine)
			}
			if s.Stub {
				fmt.Fprint(a.Out, " (not implemented)")
			}
			fmt.Fprintln(a.Out)
			if s.When != "" {
				fmt.Fprintf(a.Out, "    when: %s\n", s.When)
			}
		}
	}
}

// ListEngines prints the availability of every external engine.
func (a *App) ListEngines() {
	statuses := a.Engines.Check(a.Settings.Engines.Requirements())
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		state, where := "missing", s.Detail
		if s.Available {
			state, where = "ok", s.Path
		}
		rows = append(rows, []string{s.Name, s.Command, state, where, s.Description})
	}
	fmt.Fprintln(a.Out, report.Table([]string{"Engine", "Command", "Status", "Path", "Used for"}, rows, nil))

	fmt.Fprintf(a.Out, "AI: %s\n", a.AI.Name())
}

// HistoryOptions holds flags of the history command.
type HistoryOptions struct {
	Converter string
	Outcome   string
	Limit     int
}

// History lists archived conversions, newest first.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	archive, err := a.Archive()
	if err != nil {
		return err
	}
	defer archive.Close()

	records, err := archive.List(ctx, storage.Filter{
		ConverterID: opts.Converter,
		Outcome:     model.Outcome(opts.Outcome),
		Limit:       opts.Limit,
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "No conversions recorded.")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			shortID(r.ConversionID),
			r.CreatedAt.Local().Format(time.DateTime),
			r.ConverterID,
			string(r.Outcome),
			r.Strategy,
			strconv.Itoa(r.Score),
			strconv.Itoa(r.Attempts),
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	aligns := []report.Align{report.AlignLeft, report.AlignLeft, report.AlignLeft, report.AlignLeft,
		report.AlignLeft, report.AlignRight, report.AlignRight, report.AlignRight}
	fmt.Fprintln(a.Out, report.Table(
		[]string{"ID", "When", "Converter", "Outcome", "Strategy", "Score", "Attempts", "Duration"}, rows, aligns))
	return nil
}

// ShowReport prints one archived report; id may be abbreviated.
func (a *App) ShowReport(ctx context.Context, id string) error {
	archive, err := a.Archive()
	if err != nil {
		return err
	}
	defer archive.Close()

	full, err := archive.Resolve(ctx, id)
	if err != nil {
		return err
	}
	r, err := archive.Get(ctx, full)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.Out, string(r.Report))
	return nil
}
