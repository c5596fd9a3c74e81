// In-memory report archive.
//
// Information Hiding:
// - Map storage and id index hidden
// - Thread-safe access via RWMutex
// - Suitable for tests and one-shot CLI runs

package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/richinex/transmute/internal/idindex"
	"github.com/richinex/transmute/report"
)

// MemoryArchive implements Archive with a map. Data is lost when the
// process exits.
type MemoryArchive struct {
	mu      sync.RWMutex
	records map[string]Record
	ids     *idindex.Index
	now     func() time.Time
}

// NewMemoryArchive creates an empty archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		records: make(map[string]Record),
		ids:     idindex.New(),
		now:     time.Now,
	}
}

// Save archives rep.
func (a *MemoryArchive) Save(ctx context.Context, rep *report.Report) (Record, error) {
	r, err := NewRecord(rep, a.now())
	if err != nil {
		return Record{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[r.ConversionID] = r
	a.ids.Add(r.ConversionID)
	return r, nil
}

// Get returns the record for id.
func (a *MemoryArchive) Get(ctx context.Context, id string) (Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	r, ok := a.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// Resolve expands an id prefix.
func (a *MemoryArchive) Resolve(ctx context.Context, prefix string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, err := a.ids.Resolve(prefix)
	if errors.Is(err, idindex.ErrNoMatch) {
		return "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return id, err
}

// List returns matching records, newest first.
func (a *MemoryArchive) List(ctx context.Context, filter Filter) ([]Record, error) {
	a.mu.RLock()
	out := make([]Record, 0, len(a.records))
	for _, r := range a.records {
		if filter.match(r) {
			out = append(out, r)
		}
	}
	a.mu.RUnlock()

	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete removes id.
func (a *MemoryArchive) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.records, id)
	a.ids.Remove(id)
	return nil
}

// Close is a no-op.
func (a *MemoryArchive) Close() error {
	return nil
}

func sortNewestFirst(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ConversionID < records[j].ConversionID
	})
}

// Verify MemoryArchive implements Archive
var _ Archive = (*MemoryArchive)(nil)
