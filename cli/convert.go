package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/orchestration"
	"github.com/richinex/transmute/report"
	"github.com/richinex/transmute/storage"
)

// ConvertOptions holds flags of the convert command.
type ConvertOptions struct {
	Inputs []string
	To     string
	// From overrides the format taken from each input's extension.
	From      string
	Converter string
	// Output is a file for a single input, otherwise a directory.
	Output       string
	Strategy     string
	MaxAttempts  int
	MinPassScore int
	// Set holds converter options as key=value pairs.
	Set []string
	// JSON prints full reports instead of summaries.
	JSON bool
	// Events streams every lifecycle event to the error writer.
	Events bool
	// NoHistory skips archiving the reports.
	NoHistory bool
}

// ErrConversionFailed is returned when at least one input did not convert.
var ErrConversionFailed = errors.New("conversion failed")

// Convert converts every input and writes the outputs.
func (a *App) Convert(ctx context.Context, opts ConvertOptions) error {
	if len(opts.Inputs) == 0 {
		return errors.New("no inputs")
	}
	if opts.To == "" {
		return errors.New("--to is required")
	}
	values, err := parseSet(opts.Set)
	if err != nil {
		return err
	}
	if opts.Strategy != "" {
		values[converter.StrategyOption] = opts.Strategy
	}

	jobs := make([]orchestration.Job, len(opts.Inputs))
	dests := make([]string, len(opts.Inputs))
	for i, in := range opts.Inputs {
		artifact, err := inputArtifact(in, opts.From)
		if err != nil {
			return err
		}
		dests[i] = outputPath(in, opts.Output, opts.To, len(opts.Inputs) > 1)
		jobOpts := converter.NewOptions(opts.To, values).With(converter.OutputPathOption, dests[i])
		jobs[i] = orchestration.Job{
			Converter: opts.Converter,
			Request: converter.Request{
				Input:        artifact,
				Options:      jobOpts,
				MaxAttempts:  opts.MaxAttempts,
				MinPassScore: opts.MinPassScore,
			},
		}
	}

	batch := orchestration.NewBatch(a.Registry, a.AI).
		WithConfig(a.Settings.Lifecycle()).
		WithLogger(a.Log).
		WithParallelism(a.Settings.Converter.Parallelism)
	batch.Broadcaster().Subscribe(events.ZerologObserver(a.Log))
	if opts.Events {
		batch.Broadcaster().Subscribe(a.printEvent)
	}

	results := batch.Run(ctx, jobs)

	var archive storage.Archive
	if !opts.NoHistory {
		if archive, err = a.Archive(); err != nil {
			a.Log.Warn().Err(err).Msg("history unavailable")
		} else {
			defer archive.Close()
		}
	}

	failed := 0
	for i, res := range results {
		if res.Report == nil {
			fmt.Fprintf(a.ErrOut, "%s: %v\n", opts.Inputs[i], res.Err)
			failed++
			continue
		}
		if res.Report.Output != nil {
			if err := saveOutput(res.Report, dests[i]); err != nil {
				return fmt.Errorf("%s: %w", opts.Inputs[i], err)
			}
		}
		if archive != nil {
			if _, err := archive.Save(context.WithoutCancel(ctx), res.Report); err != nil {
				a.Log.Warn().Err(err).Str("conversion_id", res.Report.ConversionID).Msg("failed to archive report")
			}
		}
		if err := a.printReport(opts.Inputs[i], dests[i], res.Report, opts.JSON); err != nil {
			return err
		}
		if res.Report.Output == nil {
			failed++
		}
	}

	if s := orchestration.Summarize(results); len(results) > 1 {
		fmt.Fprintf(a.Out, "\n%d converted, %d failed, %d cancelled, %d unrouted\n", s.Succeeded, s.Failed, s.Cancelled, s.Unrouted)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d inputs", ErrConversionFailed, failed, len(results))
	}
	return nil
}

// Plan prints the strategy the first attempt would use for an input.
func (a *App) Plan(ctx context.Context, input, to, from, converterID string) error {
	artifact, err := inputArtifact(input, from)
	if err != nil {
		return err
	}
	spec, err := a.resolve(converterID, artifact.Format, to)
	if err != nil {
		return err
	}
	strategy, err := newEngine(a, spec).Plan(ctx, converter.Request{
		Input:   artifact,
		Options: converter.NewOptions(to, nil),
	})
	if err != nil {
		return err
	}
	s, _ := spec.Descriptor.Strategy(strategy)
	fmt.Fprintf(a.Out, "%s would start with %q (%s, %s speed, %s quality)\n",
		spec.Descriptor.ID(), strategy, s.Mode, s.Speed, s.Quality)
	if s.Description != "" {
		fmt.Fprintf(a.Out, "  %s\n", s.Description)
	}
	return nil
}

func (a *App) resolve(id, from, to string) (converter.Spec, error) {
	if id != "" {
		spec, ok := a.Registry.Get(id)
		if !ok {
			return converter.Spec{}, fmt.Errorf("unknown converter %q", id)
		}
		return spec, nil
	}
	matches := a.Registry.Find(from, to)
	if len(matches) == 0 {
		return converter.Spec{}, converter.UnsupportedTarget(from, to)
	}
	return matches[0], nil
}

func (a *App) printReport(input, dest string, rep *report.Report, asJSON bool) error {
	if asJSON {
		data, err := rep.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(a.Out, string(data))
		return nil
	}
	fmt.Fprintf(a.Out, "%s\n%s", input, rep.Summary())
	if rep.Output != nil {
		fmt.Fprintf(a.Out, "Wrote %s\n", dest)
	}
	return nil
}

func (a *App) printEvent(e events.Event) {
	fmt.Fprintf(a.ErrOut, "%s +%dms %s", shortID(e.ConversionID), e.ElapsedMs, e.Name)
	for k, v := range e.Payload {
		fmt.Fprintf(a.ErrOut, " %s=%v", k, v)
	}
	fmt.Fprintln(a.ErrOut)
}

// inputArtifact turns a CLI argument into an artifact. http(s) URLs become
// "url" inputs; anything else is a file whose extension names the format.
func inputArtifact(arg, from string) (model.Artifact, error) {
	if u, err := url.Parse(arg); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return model.BytesArtifact([]byte(arg), orDefault(from, "url")), nil
	}
	info, err := os.Stat(arg)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("input: %w", err)
	}
	if info.IsDir() {
		return model.Artifact{}, fmt.Errorf("input %s is a directory", arg)
	}
	format := from
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(arg), ".")
	}
	if format == "" {
		return model.Artifact{}, fmt.Errorf("cannot infer the format of %s; pass --from", arg)
	}
	return model.FileArtifact(arg, format), nil
}

// outputPath places the output next to the input unless out says otherwise.
func outputPath(input, out, to string, many bool) string {
	ext := "." + model.NormalizeFormat(to)
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if u, err := url.Parse(input); err == nil && u.Host != "" {
		base = strings.NewReplacer(".", "_", ":", "_").Replace(u.Host)
	}
	switch {
	case out != "" && !many:
		return out
	case out != "":
		return filepath.Join(out, base+ext)
	case strings.Contains(input, "://"):
		return base + ext
	default:
		return filepath.Join(filepath.Dir(input), base+ext)
	}
}

// saveOutput writes in-memory outputs to dest; converters that honoured
// the output path have already written it.
func saveOutput(rep *report.Report, dest string) error {
	out := rep.Output
	if out.Path == dest {
		return nil
	}
	data, err := out.Bytes()
	if err != nil {
		return fmt.Errorf("read output: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// parseSet turns key=value flags into converter options. Integers, floats
// and booleans are typed; everything else stays a string.
func parseSet(pairs []string) (map[string]any, error) {
	values := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid option %q, want key=value", p)
		}
		values[strings.TrimSpace(k)] = typed(strings.TrimSpace(v))
	}
	return values, nil
}

func typed(v string) any {
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
