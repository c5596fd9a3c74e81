package converter

import (
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/model"
)

// Options is the caller's option bag: the target format plus free-form knobs
// such as bitrate, quality, width or maxPages.
type Options struct {
	Target string
	Values map[string]any
}

// NewOptions creates options for a target format.
func NewOptions(target string, values map[string]any) Options {
	return Options{Target: model.NormalizeFormat(target), Values: maps.Clone(values)}
}

// With returns a copy with key set to value.
func (o Options) With(key string, value any) Options {
	values := maps.Clone(o.Values)
	if values == nil {
		values = make(map[string]any)
	}
	values[key] = value
	return Options{Target: o.Target, Values: values}
}

// String returns a string knob or def.
func (o Options) String(key, def string) string {
	v, ok := o.Values[key]
	if !ok || v == nil {
		return def
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return def
		}
		return s
	default:
		return fmt.Sprint(v)
	}
}

// Int returns an integer knob or def. Numeric strings are accepted.
func (o Options) Int(key string, def int) int {
	switch v := o.Values[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Float returns a float knob or def.
func (o Options) Float(key string, def float64) float64 {
	switch v := o.Values[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Bool returns a boolean knob or def.
func (o Options) Bool(key string, def bool) bool {
	switch v := o.Values[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// StrategyOption names the option key carrying a caller-preferred strategy
// for the first attempt.
const StrategyOption = "strategy"

// SpotCheckPolicy controls when the LLM spot-check runs.
type SpotCheckPolicy string

const (
	// SpotCheckAuto runs the spot-check for generative strategies only.
	SpotCheckAuto   SpotCheckPolicy = "auto"
	SpotCheckAlways SpotCheckPolicy = "always"
	SpotCheckNever  SpotCheckPolicy = "never"
)

// Request is one conversion: the input, the options and the run parameters.
// Zero run parameters fall back to engine defaults.
type Request struct {
	Input   model.Artifact
	Options Options

	MaxAttempts      int
	MinPassScore     int
	QualityThreshold int
	SpotCheck        SpotCheckPolicy
	ExecuteTimeout   time.Duration

	// ConversionID is generated when empty.
	ConversionID string
	// Observers are subscribed to the run's logger before the first event.
	Observers []events.Observer
	// Environment is passed to the planner verbatim.
	Environment map[string]string
}

const (
	DefaultMaxAttempts = 3
	MaxAttemptsLimit   = 10
)

// Validate checks the request against a descriptor.
func (r Request) Validate(desc model.Descriptor) error {
	if r.Input.IsZero() {
		return InvalidInput("empty input")
	}
	if r.Options.Target == "" {
		return InvalidInput("no target format")
	}
	if r.Input.Format != "" && !desc.Accepts(r.Input.Format) {
		return UnsupportedTarget(r.Input.Format, r.Options.Target)
	}
	if !desc.Produces(r.Options.Target) {
		return UnsupportedTarget(r.Input.Format, r.Options.Target)
	}
	if r.MinPassScore < 0 || r.MinPassScore > 100 {
		return InvalidInput("minPassScore %d outside [0,100]", r.MinPassScore)
	}
	return nil
}

// Attempts returns the clamped attempt budget.
func (r Request) Attempts() int {
	switch {
	case r.MaxAttempts <= 0:
		return DefaultMaxAttempts
	case r.MaxAttempts > MaxAttemptsLimit:
		return MaxAttemptsLimit
	default:
		return r.MaxAttempts
	}
}
