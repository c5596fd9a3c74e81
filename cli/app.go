// Command execution for CLI commands.
//
// Information Hiding:
// - Settings, logger and AI facade assembly hidden
// - Converter registry construction hidden
// - Output formatting hidden

package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/richinex/transmute/config"
	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/converters"
	"github.com/richinex/transmute/internal/deps"
	"github.com/richinex/transmute/lifecycle"
	"github.com/richinex/transmute/llm"
	"github.com/richinex/transmute/storage"
)

// Options holds global CLI options.
type Options struct {
	ConfigPath string
	// Provider overrides TRANSMUTE_PROVIDER when set.
	Provider string
	// LogLevel overrides TRANSMUTE_LOG_LEVEL when set.
	LogLevel string
	// HistoryPath overrides the archive location; "-" keeps history in memory.
	HistoryPath string
}

// App is everything a command needs, built once per invocation.
type App struct {
	Settings config.Settings
	Log      zerolog.Logger
	Registry *converter.Registry
	AI       *llm.Facade
	Engines  *deps.Prober
	Out      io.Writer
	ErrOut   io.Writer

	historyPath string
}

// NewApp loads settings and wires the converters.
func NewApp(opts Options, out, errOut io.Writer) (*App, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Provider != "" {
		if err := settings.UseProvider(opts.Provider); err != nil {
			return nil, err
		}
	}
	if opts.LogLevel != "" {
		settings.Log.Level = opts.LogLevel
	}
	if opts.HistoryPath != "" {
		settings.HistoryPath = opts.HistoryPath
	}

	log, err := NewLogger(errOut, settings.Log)
	if err != nil {
		return nil, err
	}
	ai, err := settings.Facade()
	if err != nil {
		return nil, err
	}
	return newApp(settings, log, ai, deps.Default(), out, errOut)
}

func newApp(settings config.Settings, log zerolog.Logger, ai *llm.Facade, engines *deps.Prober, out, errOut io.Writer) (*App, error) {
	reg := converter.NewRegistry()
	kit := converters.Kit{LLM: ai, Engines: engines, Paths: settings.Engines, Log: log}
	if err := converters.Register(reg, kit); err != nil {
		return nil, fmt.Errorf("register converters: %w", err)
	}
	return &App{
		Settings:    settings,
		Log:         log,
		Registry:    reg,
		AI:          ai,
		Engines:     engines,
		Out:         out,
		ErrOut:      errOut,
		historyPath: settings.HistoryPath,
	}, nil
}

// Archive opens the report history.
func (a *App) Archive() (storage.Archive, error) {
	path := a.historyPath
	if path == "-" {
		return storage.NewMemoryArchive(), nil
	}
	if path == "" {
		path = defaultHistoryPath()
	}
	return storage.OpenSqlite(path)
}

// defaultHistoryPath is the per-user archive location.
func defaultHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".transmute", "history.db")
	}
	return filepath.Join(dir, "transmute", "history.db")
}

func newEngine(a *App, spec converter.Spec) *lifecycle.Engine {
	return lifecycle.New(spec, a.AI).
		WithConfig(a.Settings.Lifecycle()).
		WithLogger(a.Log)
}
