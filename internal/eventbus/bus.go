package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabkeeper/schema"
)

// AllWindows subscribes to events from every window, floating tabs included.
const AllWindows schema.WindowID = ""

// Bus fanouts hierarchy events to per-window subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.WindowID]map[chan schema.HierarchyEvent]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.WindowID]map[chan schema.HierarchyEvent]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the window and returns a channel + cancel.
// AllWindows receives every event.
func (b *Bus) Subscribe(windowID schema.WindowID) (<-chan schema.HierarchyEvent, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan schema.HierarchyEvent, b.depth)
	b.mu.Lock()
	windowSubs := b.subs[windowID]
	if windowSubs == nil {
		windowSubs = make(map[chan schema.HierarchyEvent]struct{})
		b.subs[windowID] = windowSubs
	}
	windowSubs[ch] = struct{}{}
	count := len(windowSubs)
	b.mu.Unlock()
	b.log.With("window", windowID).Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[windowID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, windowID)
				}
			}
			b.mu.Unlock()
			close(ch)
			b.log.With("window", windowID).Debug("eventbus unsubscribe")
		})
	}
}

// Publish delivers event to subscribers of its window and of AllWindows.
// Full subscriber channels drop the event.
func (b *Bus) Publish(event schema.HierarchyEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]chan schema.HierarchyEvent, 0, len(b.subs[event.Window])+len(b.subs[AllWindows]))
	for sub := range b.subs[event.Window] {
		subs = append(subs, sub)
	}
	if event.Window != AllWindows {
		for sub := range b.subs[AllWindows] {
			subs = append(subs, sub)
		}
	}
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.With("window", event.Window).Trace("eventbus dropped", "type", event.Type, "count", dropped)
	}
}
