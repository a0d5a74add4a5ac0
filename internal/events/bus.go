// internal/events/bus.go
package events

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Publisher is the only thing the engine needs from the sink.
type Publisher interface {
	Publish(e Event)
}

// Handler consumes events. It runs on the publisher's goroutine and must not block.
type Handler func(e Event)

var _ Publisher = (*Bus)(nil)

// Bus is an in-process fan-out keyed by topic.
type Bus struct {
	log  zerolog.Logger
	mu   sync.RWMutex
	subs map[string][]Handler
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		log:  logger.With().Str("component", "events").Logger(),
		subs: make(map[string][]Handler),
	}
}

// Subscribe registers h for topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], h)
}

// Publish delivers e to every subscriber of every topic of e.
// A panicking handler is logged and skipped.
func (b *Bus) Publish(e Event) {
	for _, topic := range e.Topics() {
		b.mu.RLock()
		hs := b.subs[topic]
		b.mu.RUnlock()

		for _, h := range hs {
			b.deliver(topic, h, e)
		}
	}
}

func (b *Bus) deliver(topic string, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("topic", topic).Str("panic", fmt.Sprint(r)).Msg("event handler panicked")
		}
	}()
	h(e)
}
