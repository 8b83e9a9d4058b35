package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking for channel subscribers.
//   - Handlers registered with On run synchronously on the publishing
//     goroutine; a panicking handler is isolated from the others.
//   - Slow channel subscribers may drop events (bounded backpressure).
//
// Data should be small and ideally JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Handler receives events registered through On.
type Handler func(e Event)

// All matches every event type in On.
const All = "*"

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	On(eventType string, h Handler) (id uint64)
	Off(id uint64)
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{
		subs:     map[uint64]chan Event{},
		handlers: map[uint64]handlerEntry{},
	}
}

type handlerEntry struct {
	eventType string
	fn        Handler
}

type memBus struct {
	mu       sync.RWMutex
	subs     map[uint64]chan Event
	handlers map[uint64]handlerEntry
	order    []uint64 // handler registration order
	seq      atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot so Publish doesn't hold locks while calling out.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	fns := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		h, ok := b.handlers[id]
		if !ok {
			continue
		}
		if h.eventType == All || h.eventType == e.Type {
			fns = append(fns, h.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		func() {
			defer func() { _ = recover() }()
			fn(e)
		}()
	}

	for _, ch := range chs {
		// If a subscriber unsubscribes concurrently and the channel closes,
		// recover from a possible panic (send on closed channel).
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}

func (b *memBus) On(eventType string, h Handler) uint64 {
	if h == nil {
		return 0
	}
	id := b.seq.Add(1)
	b.mu.Lock()
	b.handlers[id] = handlerEntry{eventType: eventType, fn: h}
	b.order = append(b.order, id)
	b.mu.Unlock()
	return id
}

// Off is idempotent; unknown ids are ignored.
func (b *memBus) Off(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[id]; !ok {
		return
	}
	delete(b.handlers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}
