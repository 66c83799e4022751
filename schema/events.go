package schema

// HierarchyEventType describes a structural or state change in the tab tree.
type HierarchyEventType string

const (
	// EventChildAdded indicates a child was linked under a parent.
	EventChildAdded HierarchyEventType = "child_added"
	// EventChildRemoved indicates a child was unlinked from a parent.
	EventChildRemoved HierarchyEventType = "child_removed"
	// EventParentChanged indicates a node's parent changed.
	EventParentChanged HierarchyEventType = "parent_changed"
	// EventTabInserted indicates a tab entered a window strip.
	EventTabInserted HierarchyEventType = "tab_inserted"
	// EventTabRemoved indicates a tab left a window strip.
	EventTabRemoved HierarchyEventType = "tab_removed"
	// EventRestoredChanged indicates a tab was unloaded or restored.
	EventRestoredChanged HierarchyEventType = "restored_changed"
	// EventCurrentChanged indicates a window selected another current tab.
	EventCurrentChanged HierarchyEventType = "current_changed"
)

// HierarchyEvent is the transport-friendly form of an observer callback.
type HierarchyEvent struct {
	Type     HierarchyEventType `json:"type"`
	Window   WindowID           `json:"window,omitempty"`
	Node     NodeID             `json:"node"`
	Parent   NodeID             `json:"parent,omitzero"`
	Index    int                `json:"index"`
	Restored bool               `json:"restored,omitempty"`
}
