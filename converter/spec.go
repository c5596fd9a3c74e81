// Package converter defines the contract every concrete converter implements.
//
// A converter is a record: a static descriptor paired with function fields
// for execute, structural checks and the optional LLM spot-check. The
// lifecycle engine is generic over this record.
package converter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richinex/transmute/model"
)

// ExecuteFunc runs one strategy. The workspace is released by the caller
// on every exit path; bodies must not keep references to files inside it.
//
// Bodies must honour ctx: the engine cannot preempt them. Cancellation and
// the execute timeout arrive only through ctx, and a result returned after
// the deadline is discarded as an ExecuteTimeout.
type ExecuteFunc func(ctx context.Context, ws *Workspace, input model.Artifact, strategy string, opts Options) (model.ExecuteResult, error)

// ChecksFunc inspects an output. Must be pure.
type ChecksFunc func(input, output model.Artifact, strategy string) []model.Issue

// SpotCheckFunc asks an LLM for a 0-100 opinion of an output. Advisory only.
type SpotCheckFunc func(ctx context.Context, input, output model.Artifact) (int, error)

// DescribeFunc summarizes an input for the planner.
type DescribeFunc func(input model.Artifact, metadata map[string]any) string

// Spec is a converter: descriptor plus behaviour.
type Spec struct {
	Descriptor model.Descriptor
	Execute    ExecuteFunc
	Checks     ChecksFunc
	SpotCheck  SpotCheckFunc
	Describe   DescribeFunc
	// Timeout bounds one execute call; zero defers to the engine.
	Timeout time.Duration
	// SpotCheckOptIn runs the spot-check for symbolic strategies too.
	SpotCheckOptIn bool
}

// Validate checks that the record is usable by the engine.
func (s Spec) Validate() error {
	if s.Descriptor.ID() == "" {
		return errors.New("converter: descriptor has no id")
	}
	if len(s.Descriptor.Strategies()) == 0 {
		return fmt.Errorf("converter %s: no strategies declared", s.Descriptor.ID())
	}
	if s.Execute == nil || s.Checks == nil {
		return fmt.Errorf("converter %s: execute and checks are required", s.Descriptor.ID())
	}
	return nil
}

// DescribeInput returns the converter's summary of input, or a generic one.
func (s Spec) DescribeInput(input model.Artifact, metadata map[string]any) string {
	if s.Describe != nil {
		return s.Describe(input, metadata)
	}
	return fmt.Sprintf("%s input, %d bytes", orUnknown(input.Format), input.Size())
}

func orUnknown(format string) string {
	if format == "" {
		return "unknown"
	}
	return format
}
