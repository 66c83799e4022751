package core

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/tabkeeper/internal/eventloop"
)

// HierarchyDeps captures optional dependencies for the tab hierarchy.
type HierarchyDeps struct {
	// Loop runs deferred activations and eager restores. A fresh wall-clock
	// loop is created when nil; the caller must then drive it via Loop().
	Loop *eventloop.Loop
	// Views recreates content for unloaded tabs.
	Views ViewFactory
	// HistoryDenylist holds glob patterns for URL schemes whose history is
	// never replayed on restore. Nil uses DefaultHistoryDenylist.
	HistoryDenylist []string
	// Context is the base context for deferred work.
	Context context.Context
	Logger  pslog.Logger
}
