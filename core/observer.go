package core

import "pkt.systems/tabkeeper/schema"

// Observer receives structural and state notifications from the hierarchy.
// Callbacks run on the loop and must not block.
type Observer interface {
	OnChildAdded(parent, child schema.NodeID, index int)
	OnChildRemoved(parent, child schema.NodeID)
	OnParentChanged(child, parent schema.NodeID)
	OnTabInserted(window schema.WindowID, node schema.NodeID, index int)
	OnTabRemoved(window schema.WindowID, node schema.NodeID, index int)
	OnRestoredChanged(node schema.NodeID, restored bool)
	// OnCurrentChanged reports the new current tab of window. A zero node
	// means the strip is empty.
	OnCurrentChanged(window schema.WindowID, node schema.NodeID)
}

// NopObserver implements Observer with no-op methods for embedding.
type NopObserver struct{}

func (NopObserver) OnChildAdded(schema.NodeID, schema.NodeID, int)    {}
func (NopObserver) OnChildRemoved(schema.NodeID, schema.NodeID)       {}
func (NopObserver) OnParentChanged(schema.NodeID, schema.NodeID)      {}
func (NopObserver) OnTabInserted(schema.WindowID, schema.NodeID, int) {}
func (NopObserver) OnTabRemoved(schema.WindowID, schema.NodeID, int)  {}
func (NopObserver) OnRestoredChanged(schema.NodeID, bool)             {}
func (NopObserver) OnCurrentChanged(schema.WindowID, schema.NodeID)   {}

type observerEntry struct {
	id  uint64
	obs Observer
}

// Subscribe registers obs and returns a function that removes it.
func (h *Hierarchy) Subscribe(obs Observer) func() {
	if obs == nil {
		return func() {}
	}
	h.nextObserver++
	id := h.nextObserver
	h.observers = append(h.observers, observerEntry{id: id, obs: obs})
	return func() {
		for i, entry := range h.observers {
			if entry.id == id {
				h.observers = append(h.observers[:i:i], h.observers[i+1:]...)
				return
			}
		}
	}
}

func (h *Hierarchy) notify(fn func(Observer)) {
	if len(h.observers) == 0 {
		return
	}
	entries := append([]observerEntry(nil), h.observers...)
	for _, entry := range entries {
		fn(entry.obs)
	}
}
