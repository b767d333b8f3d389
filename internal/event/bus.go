package event

import (
	"sync"

	"github.com/trafficlens/metricsync/internal/domain"
	"go.uber.org/zap"
)

// Update is published after every successful upstream fetch whose payload
// differs from the previously cached one.
type Update struct {
	PropertyID string
	Report     *domain.Report
	Range      domain.DateRange
}

// Listener receives published updates.
type Listener func(Update)

// Subscription identifies one registered listener.
type Subscription struct {
	id  uint64
	bus *Bus
}

// Cancel unregisters the listener. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s != nil && s.bus != nil {
		s.bus.unsubscribe(s.id)
	}
}

// Bus fans updates out to subscribed listeners synchronously. A panicking
// listener is recovered and logged; it never reaches the publisher.
type Bus struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64
	logger    *zap.Logger
	panicHook func()
}

// SetPanicHook installs a callback invoked whenever a listener panic is
// recovered. Used for instrumentation.
func (b *Bus) SetPanicHook(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.panicHook = fn
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		listeners: make(map[uint64]Listener),
		logger:    logger,
	}
}

// Subscribe registers a listener and returns its subscription handle.
func (b *Bus) Subscribe(fn Listener) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	return &Subscription{id: id, bus: b}
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, id)
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers the update to every listener synchronously. Delivery
// order between listeners is not specified. Listener panics are isolated.
func (b *Bus) Publish(u Update) {
	b.mu.RLock()
	fns := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		b.deliver(fn, u)
	}
}

func (b *Bus) deliver(fn Listener, u Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update listener panicked",
				zap.String("property_id", u.PropertyID),
				zap.Any("panic", r))
			b.mu.RLock()
			hook := b.panicHook
			b.mu.RUnlock()
			if hook != nil {
				hook()
			}
		}
	}()
	fn(u)
}
