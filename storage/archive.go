// Package storage keeps finished conversion reports so the CLI can show
// history. The conversion core never persists anything; callers archive
// reports after Convert returns.
//
// Information Hiding:
// - Record derivation from a report hidden
// - Backend (memory or SQLite) hidden behind Archive
// - Short-id resolution shared by both backends

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/richinex/transmute/model"
	"github.com/richinex/transmute/report"
)

// ErrNotFound is returned when no report has the requested id.
var ErrNotFound = errors.New("storage: report not found")

// Record is the archived form of one report. Report holds the full JSON;
// the other fields are indexed summaries.
type Record struct {
	ConversionID string          `json:"conversionId"`
	ConverterID  string          `json:"converterId"`
	Outcome      model.Outcome   `json:"outcome"`
	Strategy     string          `json:"strategy"`
	Score        int             `json:"score"`
	Attempts     int             `json:"attempts"`
	Duration     time.Duration   `json:"durationNs"`
	OutputFormat string          `json:"outputFormat,omitempty"`
	OutputHash   string          `json:"outputHash,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	Report       json.RawMessage `json:"report"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	ConverterID string
	Outcome     model.Outcome
	// Limit caps the number of records; zero means no cap.
	Limit int
}

func (f Filter) match(r Record) bool {
	if f.ConverterID != "" && r.ConverterID != f.ConverterID {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	return true
}

// Archive stores reports by conversion id.
type Archive interface {
	// Save archives rep, replacing any record with the same id.
	Save(ctx context.Context, rep *report.Report) (Record, error)

	// Get returns the record for an exact id or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// Resolve expands an id prefix to a full id.
	Resolve(ctx context.Context, prefix string) (string, error)

	// List returns records newest first.
	List(ctx context.Context, filter Filter) ([]Record, error)

	// Delete removes a record. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	Close() error
}

// NewRecord derives the archived form of rep.
func NewRecord(rep *report.Report, now time.Time) (Record, error) {
	if rep == nil || rep.ConversionID == "" {
		return Record{}, errors.New("storage: report has no conversion id")
	}
	raw, err := rep.JSON()
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode report: %w", err)
	}
	r := Record{
		ConversionID: rep.ConversionID,
		ConverterID:  rep.ConverterID,
		Outcome:      rep.Outcome,
		Strategy:     rep.Decision.StrategyUsed,
		Score:        rep.Decision.Score,
		Attempts:     len(rep.Attempts),
		Duration:     rep.Duration,
		Error:        rep.Error,
		CreatedAt:    now.UTC(),
		Report:       raw,
	}
	if rep.Output != nil {
		r.OutputFormat = rep.Output.Format
		if data, err := rep.Output.Bytes(); err == nil && len(data) > 0 {
			r.OutputHash = hashOutput(data)
		}
	}
	return r, nil
}

// hashOutput fingerprints an output so identical conversions can be spotted.
func hashOutput(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Decode unmarshals the archived report JSON.
func (r Record) Decode() (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(r.Report, &out); err != nil {
		return nil, fmt.Errorf("failed to decode archived report: %w", err)
	}
	return out, nil
}
