// Batch runner for independent conversions.
//
// Information Hiding:
// - Bounded worker pool and slot accounting hidden
// - Routing of jobs to converters through the registry
// - One engine per converter, shared across jobs

package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/richinex/transmute/converter"
	"github.com/richinex/transmute/events"
	"github.com/richinex/transmute/lifecycle"
	"github.com/richinex/transmute/llm"
)

// DefaultParallelism is the number of conversions run at once when unset.
const DefaultParallelism = 4

// Batch runs jobs with bounded parallelism. Every conversion gets its own
// event logger; all of them publish to one Broadcaster.
type Batch struct {
	registry    *converter.Registry
	ai          *llm.Facade
	cfg         lifecycle.Config
	log         zerolog.Logger
	broadcaster *events.Broadcaster
	parallelism int

	mu      sync.Mutex
	engines map[string]*lifecycle.Engine
}

// NewBatch creates a batch runner over registry. ai may be nil.
func NewBatch(registry *converter.Registry, ai *llm.Facade) *Batch {
	return &Batch{
		registry:    registry,
		ai:          ai,
		cfg:         lifecycle.DefaultConfig(),
		log:         zerolog.Nop(),
		broadcaster: events.NewBroadcaster(),
		parallelism: DefaultParallelism,
		engines:     make(map[string]*lifecycle.Engine),
	}
}

// WithConfig sets the engine defaults used for every job.
func (b *Batch) WithConfig(cfg lifecycle.Config) *Batch {
	b.cfg = cfg
	return b
}

// WithLogger sets the operational logger.
func (b *Batch) WithLogger(log zerolog.Logger) *Batch {
	b.log = log
	return b
}

// WithParallelism bounds concurrent conversions. Values below one mean one.
func (b *Batch) WithParallelism(n int) *Batch {
	b.parallelism = max(n, 1)
	return b
}

// WithBroadcaster replaces the shared broadcaster.
func (b *Batch) WithBroadcaster(bc *events.Broadcaster) *Batch {
	b.broadcaster = bc
	return b
}

// Broadcaster returns the broadcaster every conversion publishes to.
func (b *Batch) Broadcaster() *events.Broadcaster {
	return b.broadcaster
}

// Run converts every job and returns results in input order. It returns
// once all started conversions have finished; after ctx is cancelled,
// pending jobs still run and end as cancelled reports.
func (b *Batch) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	slots := make(chan struct{}, b.parallelism)

	var wg sync.WaitGroup
	for i, job := range jobs {
		slots <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			results[i] = b.runOne(ctx, i, job)
		}()
	}
	wg.Wait()

	s := Summarize(results)
	b.log.Info().
		Int("total", s.Total).
		Int("succeeded", s.Succeeded).
		Int("failed", s.Failed).
		Int("cancelled", s.Cancelled).
		Int("unrouted", s.Unrouted).
		Msg("batch finished")
	return results
}

func (b *Batch) runOne(ctx context.Context, i int, job Job) Result {
	start := time.Now()
	res := Result{Index: i}

	engine, id, err := b.route(job)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		b.log.Warn().Int("job", i).Err(err).Msg("job not routed")
		return res
	}
	res.Converter = id

	rep, err := engine.Convert(ctx, job.Request)
	res.Report = rep
	res.Err = err
	res.Duration = time.Since(start)
	return res
}

// route returns the engine for a job, creating it on first use.
func (b *Batch) route(job Job) (*lifecycle.Engine, string, error) {
	id := job.Converter
	if id == "" {
		target := job.Request.Options.Target
		matches := b.registry.Find(job.Request.Input.Format, target)
		if len(matches) == 0 {
			return nil, "", converter.UnsupportedTarget(job.Request.Input.Format, target)
		}
		id = matches[0].Descriptor.ID()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.engines[id]; ok {
		return e, id, nil
	}
	spec, ok := b.registry.Get(id)
	if !ok {
		return nil, "", fmt.Errorf("orchestration: converter '%s' not registered", id)
	}
	e := lifecycle.New(spec, b.ai).
		WithConfig(b.cfg).
		WithLogger(b.log).
		WithBroadcaster(b.broadcaster)
	b.engines[id] = e
	return e, id, nil
}
