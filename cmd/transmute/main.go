// Package main provides the transmute CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/transmute/cli"
)

var (
	// Global flags
	configPath  string
	provider    string
	logLevel    string
	historyPath string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "transmute",
		Short: "Convert files with self-checking, retrying converters",
		Long: `Convert files between formats. Each conversion plans a strategy, runs it,
checks the output and retries with another strategy when the check fails.

AI features (planning, spot-checks, narration, transcription) are enabled by
setting TRANSMUTE_PROVIDER and the provider's API key; without them every
converter falls back to deterministic strategies.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML settings file")
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (openai, anthropic, deepseek, gemini, none)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", "", `History database path ("-" keeps history in memory)`)

	rootCmd.AddCommand(convertCmd(ctx))
	rootCmd.AddCommand(planCmd(ctx))
	rootCmd.AddCommand(convertersCmd())
	rootCmd.AddCommand(enginesCmd())
	rootCmd.AddCommand(historyCmd(ctx))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func newApp() (*cli.App, error) {
	return cli.NewApp(cli.Options{
		ConfigPath:  configPath,
		Provider:    provider,
		LogLevel:    logLevel,
		HistoryPath: historyPath,
	}, os.Stdout, os.Stderr)
}

func convertCmd(ctx context.Context) *cobra.Command {
	var opts cli.ConvertOptions

	cmd := &cobra.Command{
		Use:   "convert [input...]",
		Short: "Convert one or more files or URLs",
		Long: `Convert inputs to the --to format. The converter is chosen from the input
extension and the target unless --converter names one. Several inputs run in
parallel; --output is then a directory.

Examples:
  transmute convert people.csv --to json
  transmute convert deck.pptx --to md --strategy flat
  transmute convert https://example.com --to pdf -o page.pdf
  transmute convert *.wav --to mp3 -o out/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			opts.Inputs = args
			return app.Convert(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.To, "to", "t", "", "Target format (required)")
	cmd.Flags().StringVarP(&opts.From, "from", "f", "", "Input format, when the extension is missing or misleading")
	cmd.Flags().StringVar(&opts.Converter, "converter", "", "Converter id (see 'transmute converters')")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Output file, or directory for several inputs")
	cmd.Flags().StringVarP(&opts.Strategy, "strategy", "s", "", "Strategy for the first attempt")
	cmd.Flags().IntVar(&opts.MaxAttempts, "max-attempts", 0, "Attempt budget (default from settings)")
	cmd.Flags().IntVar(&opts.MinPassScore, "min-score", 0, "Minimum passing score 0-100 (default from settings)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "Converter option key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print full JSON reports")
	cmd.Flags().BoolVar(&opts.Events, "events", false, "Stream lifecycle events to stderr")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not archive the reports")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func planCmd(ctx context.Context) *cobra.Command {
	var to, from, converterID string

	cmd := &cobra.Command{
		Use:   "plan [input]",
		Short: "Show which strategy a conversion would start with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			return app.Plan(ctx, args[0], to, from, converterID)
		},
	}

	cmd.Flags().StringVarP(&to, "to", "t", "", "Target format (required)")
	cmd.Flags().StringVarP(&from, "from", "f", "", "Input format override")
	cmd.Flags().StringVar(&converterID, "converter", "", "Converter id")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func convertersCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "converters",
		Short: "List available converters",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			app.ListConverters(verbose)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show strategies in detail")

	return cmd
}

func enginesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "Show which external engines are installed",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			app.ListEngines()
			return nil
		},
	}
}

func historyCmd(ctx context.Context) *cobra.Command {
	var opts cli.HistoryOptions

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List past conversions, or show one report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return app.ShowReport(ctx, args[0])
			}
			return app.History(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Converter, "converter", "", "Only this converter")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "Only this outcome (success, exhausted-accepted, fatal, ...)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "Maximum rows")

	return cmd
}
