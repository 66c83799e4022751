package tabkeeper

import (
	"pkt.systems/tabkeeper/core"
	"pkt.systems/tabkeeper/schema"
)

type eventSink func(schema.HierarchyEvent)

// eventFanout turns hierarchy callbacks into events for every sink. It runs
// on the loop, so window lookups see the state the callback describes.
type eventFanout struct {
	h     *core.Hierarchy
	sinks []eventSink
}

var _ core.Observer = eventFanout{}

func (f eventFanout) publish(event schema.HierarchyEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink(event)
	}
}

func (f eventFanout) windowOf(id schema.NodeID) schema.WindowID {
	win, _ := f.h.Window(id)
	return win
}

func (f eventFanout) OnChildAdded(parent, child schema.NodeID, index int) {
	f.publish(schema.HierarchyEvent{Type: schema.EventChildAdded, Window: f.windowOf(child), Node: child, Parent: parent, Index: index})
}

func (f eventFanout) OnChildRemoved(parent, child schema.NodeID) {
	f.publish(schema.HierarchyEvent{Type: schema.EventChildRemoved, Window: f.windowOf(child), Node: child, Parent: parent, Index: -1})
}

func (f eventFanout) OnParentChanged(child, parent schema.NodeID) {
	f.publish(schema.HierarchyEvent{Type: schema.EventParentChanged, Window: f.windowOf(child), Node: child, Parent: parent, Index: -1})
}

func (f eventFanout) OnTabInserted(win schema.WindowID, node schema.NodeID, index int) {
	f.publish(schema.HierarchyEvent{Type: schema.EventTabInserted, Window: win, Node: node, Index: index})
}

func (f eventFanout) OnTabRemoved(win schema.WindowID, node schema.NodeID, index int) {
	f.publish(schema.HierarchyEvent{Type: schema.EventTabRemoved, Window: win, Node: node, Index: index})
}

func (f eventFanout) OnRestoredChanged(node schema.NodeID, restored bool) {
	f.publish(schema.HierarchyEvent{Type: schema.EventRestoredChanged, Window: f.windowOf(node), Node: node, Index: -1, Restored: restored})
}

func (f eventFanout) OnCurrentChanged(win schema.WindowID, node schema.NodeID) {
	index := -1
	if !node.IsZero() {
		if _, i, err := f.h.IndexOf(node); err == nil {
			index = i
		}
	}
	f.publish(schema.HierarchyEvent{Type: schema.EventCurrentChanged, Window: win, Node: node, Index: index})
}
