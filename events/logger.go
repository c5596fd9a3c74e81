// Package events provides the append-only event log of a conversion run.
//
// Information Hiding:
// - Ordering and locking hidden behind Log/Subscribe/Snapshot
// - Observer failures isolated from the emitter

package events

import (
	"maps"
	"sync"
	"time"
)

// Event is one time-stamped entry of the log.
type Event struct {
	Timestamp    time.Time      `json:"timestamp"`
	ElapsedMs    int64          `json:"elapsedMs"`
	Name         Name           `json:"event"`
	ConversionID string         `json:"conversionId"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// Observer receives events synchronously in emission order.
// Observers must not call Log on the logger that invoked them.
type Observer func(Event)

// Logger is a per-conversion event sink. Safe for concurrent use.
type Logger struct {
	mu           sync.Mutex
	conversionID string
	start        time.Time
	now          func() time.Time
	events       []Event
	observers    map[int]Observer
	order        []int
	nextID       int
}

// NewLogger creates a logger tagged with the conversion id.
func NewLogger(conversionID string) *Logger {
	return newLoggerWithClock(conversionID, time.Now)
}

func newLoggerWithClock(conversionID string, now func() time.Time) *Logger {
	return &Logger{
		conversionID: conversionID,
		start:        now(),
		now:          now,
		observers:    make(map[int]Observer),
	}
}

// ConversionID returns the tag carried by every event of this logger.
func (l *Logger) ConversionID() string {
	return l.conversionID
}

// Log appends an event and notifies observers. Never panics; a nil logger is a no-op.
func (l *Logger) Log(name Name, payload map[string]any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now()
	event := Event{
		Timestamp:    ts,
		ElapsedMs:    ts.Sub(l.start).Milliseconds(),
		Name:         name,
		ConversionID: l.conversionID,
		Payload:      maps.Clone(payload),
	}
	l.events = append(l.events, event)

	// Dispatch under the lock so observation order equals emission order.
	for _, id := range l.order {
		notify(l.observers[id], event)
	}
}

// Subscribe registers an observer and returns a function that removes it.
func (l *Logger) Subscribe(observer Observer) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.observers[id] = observer
	l.order = append(l.order, id)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.observers[id]; !ok {
			return
		}
		delete(l.observers, id)
		for i, v := range l.order {
			if v == id {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
	}
}

// Snapshot returns a copy of the events in emission order.
func (l *Logger) Snapshot() []Event {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, len(l.events))
	for i, e := range l.events {
		e.Payload = maps.Clone(e.Payload)
		out[i] = e
	}
	return out
}

// Len returns the number of events logged so far.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// notify calls an observer, discarding any panic it raises.
func notify(observer Observer, event Event) {
	defer func() { _ = recover() }()
	observer(event)
}
