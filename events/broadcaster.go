package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Broadcaster is a process-level fan-in: loggers of many conversions publish
// to it, and its observers demultiplex by Event.ConversionID.
// Events of one conversion stay in order; order across conversions is undefined.
type Broadcaster struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe adds an observer for events of every attached logger.
func (b *Broadcaster) Subscribe(observer Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, observer)
}

// Attach forwards every event of l to the broadcaster's observers.
// The returned function detaches the logger.
func (b *Broadcaster) Attach(l *Logger) (detach func()) {
	return l.Subscribe(b.publish)
}

func (b *Broadcaster) publish(event Event) {
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()
	for _, o := range observers {
		notify(o, event)
	}
}

// ZerologObserver writes every event to log at debug level.
func ZerologObserver(log zerolog.Logger) Observer {
	return func(e Event) {
		entry := log.Debug().
			Str("conversion_id", e.ConversionID).
			Str("event", string(e.Name)).
			Int64("elapsed_ms", e.ElapsedMs)
		if len(e.Payload) > 0 {
			entry = entry.Fields(e.Payload)
		}
		entry.Msg("converter event")
	}
}
