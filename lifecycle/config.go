package lifecycle

import (
	"time"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/evaluation"
)

// Config holds engine defaults. Request fields override them per conversion.
type Config struct {
	MaxAttempts  int
	MinPassScore int
	// QualityThreshold triggers a diagnosis on successful runs scoring below it.
	// Independent of MinPassScore.
	QualityThreshold int
	ExecuteTimeout   time.Duration
	// LLMTimeout bounds each planner call and spot-check.
	LLMTimeout time.Duration
	// WorkspaceRoot is where per-execute directories are created; empty means os.TempDir.
	WorkspaceRoot string
}

const DefaultQualityThreshold = 60

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      converter.DefaultMaxAttempts,
		MinPassScore:     evaluation.DefaultMinPassScore,
		QualityThreshold: DefaultQualityThreshold,
		ExecuteTimeout:   5 * time.Minute,
		LLMTimeout:       60 * time.Second,
	}
}

// params are the resolved knobs of one conversion.
type params struct {
	maxAttempts      int
	minPassScore     int
	qualityThreshold int
	executeTimeout   time.Duration
	spotCheck        converter.SpotCheckPolicy
}

func (e *Engine) resolve(req converter.Request) params {
	p := params{
		maxAttempts:      e.cfg.MaxAttempts,
		minPassScore:     e.cfg.MinPassScore,
		qualityThreshold: e.cfg.QualityThreshold,
		executeTimeout:   e.cfg.ExecuteTimeout,
		spotCheck:        req.SpotCheck,
	}
	if req.MaxAttempts > 0 {
		p.maxAttempts = req.Attempts()
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = converter.DefaultMaxAttempts
	}
	p.maxAttempts = min(p.maxAttempts, converter.MaxAttemptsLimit)
	if req.MinPassScore > 0 {
		p.minPassScore = req.MinPassScore
	}
	if req.QualityThreshold > 0 {
		p.qualityThreshold = req.QualityThreshold
	}
	switch {
	case req.ExecuteTimeout > 0:
		p.executeTimeout = req.ExecuteTimeout
	case e.spec.Timeout > 0:
		p.executeTimeout = e.spec.Timeout
	}
	if p.spotCheck == "" {
		p.spotCheck = converter.SpotCheckAuto
	}
	return p
}
