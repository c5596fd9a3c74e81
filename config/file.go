package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileSettings mirrors Settings for TOML. Pointers distinguish "absent"
// from a zero value.
type fileSettings struct {
	LLM struct {
		Provider    *string  `toml:"provider"`
		Model       *string  `toml:"model"`
		MaxTokens   *uint32  `toml:"max_tokens"`
		Temperature *float64 `toml:"temperature"`
	} `toml:"llm"`
	Converter struct {
		MaxAttempts      *int    `toml:"max_attempts"`
		MinPassScore     *int    `toml:"min_pass_score"`
		QualityThreshold *int    `toml:"quality_threshold"`
		ExecuteTimeout   *string `toml:"execute_timeout"`
		LLMTimeout       *string `toml:"llm_timeout"`
		WorkspaceRoot    *string `toml:"workspace_root"`
		Parallelism      *int    `toml:"parallelism"`
	} `toml:"converter"`
	Engines struct {
		FFmpeg    *string `toml:"ffmpeg"`
		FFprobe   *string `toml:"ffprobe"`
		Chrome    *string `toml:"chrome"`
		PDFToText *string `toml:"pdftotext"`
	} `toml:"engines"`
	Log struct {
		Level  *string `toml:"level"`
		Format *string `toml:"format"`
	} `toml:"log"`
	History *string `toml:"history"`
}

// Load reads the environment and overlays the TOML file at path.
// An empty path skips the file; a missing file is an error.
func Load(path string) (Settings, error) {
	s, err := New()
	if err != nil {
		return Settings{}, err
	}
	if path == "" {
		return s, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var fs fileSettings
	decoder := toml.NewDecoder(file).DisallowUnknownFields()
	if err := decoder.Decode(&fs); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Settings{}, fmt.Errorf("parse config: %s", strict.String())
		}
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}
	if err := fs.apply(&s); err != nil {
		return Settings{}, err
	}
	return s, s.Validate()
}

func (fs fileSettings) apply(s *Settings) error {
	if fs.LLM.Provider != nil {
		s.LLM.Provider = normalizeProvider(*fs.LLM.Provider)
		if s.LLM.Provider != ProviderNone {
			if _, err := getProviderInfo(s.LLM.Provider); err != nil {
				return err
			}
			if fs.LLM.Model == nil {
				model, _ := ModelFor(s.LLM.Provider)
				s.LLM.Model = model
			}
		}
	}
	set(&s.LLM.Model, fs.LLM.Model)
	set(&s.LLM.MaxTokens, fs.LLM.MaxTokens)
	set(&s.LLM.Temperature, fs.LLM.Temperature)

	c := &s.Converter
	set(&c.MaxAttempts, fs.Converter.MaxAttempts)
	set(&c.MinPassScore, fs.Converter.MinPassScore)
	set(&c.QualityThreshold, fs.Converter.QualityThreshold)
	set(&c.WorkspaceRoot, fs.Converter.WorkspaceRoot)
	set(&c.Parallelism, fs.Converter.Parallelism)
	if err := setDuration(&c.ExecuteTimeout, fs.Converter.ExecuteTimeout, "converter.execute_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.LLMTimeout, fs.Converter.LLMTimeout, "converter.llm_timeout"); err != nil {
		return err
	}

	set(&s.Engines.FFmpeg, fs.Engines.FFmpeg)
	set(&s.Engines.FFprobe, fs.Engines.FFprobe)
	set(&s.Engines.Chrome, fs.Engines.Chrome)
	set(&s.Engines.PDFToText, fs.Engines.PDFToText)

	set(&s.Log.Level, fs.Log.Level)
	set(&s.Log.Format, fs.Log.Format)
	set(&s.HistoryPath, fs.History)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, key string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, *v, err)
	}
	*dst = d
	return nil
}
