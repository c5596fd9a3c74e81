package orchestration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/model"
)

func TestMain(m *testing.M) {
	// genai starts the opencensus stats worker at init
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

// gauge tracks how many executes run at once.
type gauge struct {
	now, peak atomic.Int32
}

func (g *gauge) enter() {
	n := g.now.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (g *gauge) leave() { g.now.Add(-1) }

// echoSpec copies the input into an artifact of the target format.
func echoSpec(id, from, to string, g *gauge, delay time.Duration) converter.Spec {
	return converter.Spec{
		Descriptor: model.NewDescriptor(model.DescriptorSpec{
			ID: id, Name: id, Category: "test",
			From: []string{from}, To: []string{to},
			Strategies: []model.Strategy{{ID: "copy", Mode: model.ModeSymbolic}},
		}),
		Execute: func(ctx context.Context, _ *converter.Workspace, input model.Artifact, _ string, opts converter.Options) (model.ExecuteResult, error) {
			if g != nil {
				g.enter()
				defer g.leave()
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return model.ExecuteResult{}, ctx.Err()
			}
			data, _ := input.Bytes()
			return model.ExecuteResult{Output: model.BytesArtifact(data, opts.Target)}, nil
		},
		Checks: func(model.Artifact, model.Artifact, string) []model.Issue { return nil },
	}
}

func registry(t *testing.T, specs ...converter.Spec) *converter.Registry {
	t.Helper()
	r := converter.NewRegistry()
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	return r
}

func job(id, data, from, to string) Job {
	return Job{
		Converter: id,
		Request: converter.Request{
			Input:        model.BytesArtifact([]byte(data), from),
			Options:      converter.NewOptions(to, nil),
			ConversionID: data,
		},
	}
}

func TestBatchPreservesOrderAndBoundsParallelism(t *testing.T) {
	g := &gauge{}
	reg := registry(t, echoSpec("a-to-b", "a", "b", g, 20*time.Millisecond))

	var jobs []Job
	for _, s := range []string{"one", "two", "three", "four", "five", "six"} {
		jobs = append(jobs, job("a-to-b", s, "a", "b"))
	}
	results := NewBatch(reg, nil).WithParallelism(2).Run(context.Background(), jobs)

	var got []string
	for i, r := range results {
		if r.Index != i || !r.Succeeded() {
			t.Fatalf("result %d = %+v", i, r)
		}
		data, _ := r.Report.Output.Bytes()
		got = append(got, string(data))
	}
	if diff := cmp.Diff([]string{"one", "two", "three", "four", "five", "six"}, got); diff != "" {
		t.Errorf("outputs (-want +got):\n%s", diff)
	}
	if p := g.peak.Load(); p > 2 {
		t.Errorf("peak parallelism = %d, want <= 2", p)
	}
}

func TestBatchRoutesByFormat(t *testing.T) {
	reg := registry(t,
		echoSpec("a-to-b", "a", "b", nil, 0),
		echoSpec("c-to-d", "c", "d", nil, 0),
	)
	results := NewBatch(reg, nil).Run(context.Background(), []Job{
		job("", "x", "c", "d"),
		job("", "y", "a", "b"),
		job("", "z", "a", "zip"),
		job("missing", "w", "a", "b"),
	})

	if results[0].Converter != "c-to-d" || results[1].Converter != "a-to-b" {
		t.Errorf("routed to %q and %q", results[0].Converter, results[1].Converter)
	}
	if !errors.Is(results[2].Err, converter.ErrUnsupportedTarget) || results[2].Report != nil {
		t.Errorf("unroutable job = %+v", results[2])
	}
	if results[3].Err == nil || results[3].Report != nil {
		t.Errorf("unknown converter = %+v", results[3])
	}

	want := Summary{Total: 4, Succeeded: 2, Unrouted: 2}
	if diff := cmp.Diff(want, Summarize(results)); diff != "" {
		t.Errorf("summary (-want +got):\n%s", diff)
	}
}

func TestBatchBroadcastsEveryConversion(t *testing.T) {
	reg := registry(t, echoSpec("a-to-b", "a", "b", nil, 0))
	b := NewBatch(reg, nil).WithParallelism(3)

	var (
		mu   sync.Mutex
		byID = map[string][]events.Name{}
	)
	b.Broadcaster().Subscribe(func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		byID[e.ConversionID] = append(byID[e.ConversionID], e.Name)
	})

	results := b.Run(context.Background(), []Job{
		job("a-to-b", "p", "a", "b"),
		job("a-to-b", "q", "a", "b"),
		job("a-to-b", "r", "a", "b"),
	})

	mu.Lock()
	defer mu.Unlock()
	if len(byID) != 3 {
		t.Fatalf("broadcast ids = %v", byID)
	}
	for _, r := range results {
		got := byID[r.Report.ConversionID]
		if len(got) != len(r.Report.Events) {
			t.Errorf("%s: broadcast %d events, report has %d", r.Report.ConversionID, len(got), len(r.Report.Events))
			continue
		}
		for i, e := range r.Report.Events {
			if got[i] != e.Name {
				t.Errorf("%s: event %d = %s, want %s", r.Report.ConversionID, i, got[i], e.Name)
			}
		}
	}
}

func TestBatchCancellation(t *testing.T) {
	reg := registry(t, echoSpec("a-to-b", "a", "b", nil, time.Minute))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	results := NewBatch(reg, nil).WithParallelism(1).Run(ctx, []Job{
		job("a-to-b", "slow", "a", "b"),
		job("a-to-b", "queued", "a", "b"),
	})

	for _, r := range results {
		if r.Report == nil || r.Report.Status() != "cancelled" {
			t.Fatalf("result %d = %+v", r.Index, r.Report)
		}
		if !errors.Is(r.Err, converter.ErrCancelled) {
			t.Errorf("result %d err = %v", r.Index, r.Err)
		}
	}
	if n := converter.LiveWorkspaces(); n != 0 {
		t.Errorf("%d workspaces still live", n)
	}
	if s := Summarize(results); s.Cancelled != 2 {
		t.Errorf("summary = %+v", s)
	}
}
