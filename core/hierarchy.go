package core

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gobwas/glob"
	"github.com/samber/lo"

	"pkt.systems/pslog"
	"pkt.systems/tabkeeper/internal/eventloop"
	"pkt.systems/tabkeeper/internal/logx"
	"pkt.systems/tabkeeper/schema"
)

var errNilView = errors.New("view is required")

// node is one tab. Exactly one of view (Restored) and a valid record
// (Unloaded) is held at any time.
type node struct {
	id       schema.NodeID
	window   schema.WindowID
	parent   schema.NodeID
	children []schema.NodeID
	mode     schema.TabMode
	record   schema.TabRecord
	view     View
	pinned   bool
}

type slot struct {
	gen  uint32
	node *node
}

type window struct {
	id             schema.WindowID
	placement      schema.Placement
	virtualDesktop int
	tabs           []schema.NodeID
	current        schema.NodeID
}

// Hierarchy owns every tab node, the parent/child links between them and
// the per-window tab strips. It is not safe for concurrent use: every call
// must run on the loop.
type Hierarchy struct {
	cfg      schema.RestoreConfig
	loop     *eventloop.Loop
	views    ViewFactory
	ctx      context.Context
	denylist []glob.Glob

	slots   []slot
	free    []uint32
	windows map[schema.WindowID]*window
	order   []schema.WindowID

	observers    []observerEntry
	nextObserver uint64
}

// NewHierarchy constructs an empty hierarchy.
func NewHierarchy(cfg schema.RestoreConfig, deps HierarchyDeps) (*Hierarchy, error) {
	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if deps.Logger != nil {
		ctx = pslog.ContextWithLogger(ctx, deps.Logger)
	}
	loop := deps.Loop
	if loop == nil {
		loop = eventloop.New(nil, logx.Ctx(ctx))
	}
	patterns := deps.HistoryDenylist
	if patterns == nil {
		patterns = DefaultHistoryDenylist
	}
	denylist := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("history denylist pattern %q: %w", pattern, err)
		}
		denylist = append(denylist, g)
	}
	return &Hierarchy{
		cfg:      schema.NormalizeRestoreConfig(cfg),
		loop:     loop,
		views:    deps.Views,
		ctx:      ctx,
		denylist: denylist,
		windows:  make(map[schema.WindowID]*window),
	}, nil
}

// Loop returns the loop deferred work is scheduled on.
func (h *Hierarchy) Loop() *eventloop.Loop {
	return h.loop
}

// Config returns the restore configuration.
func (h *Hierarchy) Config() schema.RestoreConfig {
	return h.cfg
}

func (h *Hierarchy) alloc() *node {
	var idx uint32
	if n := len(h.free); n > 0 {
		idx = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		h.slots = append(h.slots, slot{})
		idx = uint32(len(h.slots) - 1)
	}
	s := &h.slots[idx]
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	nd := &node{
		id:     schema.NodeID{Index: idx, Gen: s.gen},
		record: schema.NewTabRecord(h.cfg.DefaultZoomLevel),
	}
	s.node = nd
	return nd
}

func (h *Hierarchy) release(id schema.NodeID) {
	h.slots[id.Index].node = nil
	h.free = append(h.free, id.Index)
}

// node resolves a handle, returning nil when it is zero or stale.
func (h *Hierarchy) node(id schema.NodeID) *node {
	if id.IsZero() || int(id.Index) >= len(h.slots) {
		return nil
	}
	s := h.slots[id.Index]
	if s.node == nil || s.gen != id.Gen {
		return nil
	}
	return s.node
}

func (h *Hierarchy) lookup(id schema.NodeID) (*node, error) {
	nd := h.node(id)
	if nd == nil {
		return nil, fmt.Errorf("%w: %s", schema.ErrTabNotFound, id)
	}
	return nd, nil
}

func (h *Hierarchy) lookupWindow(id schema.WindowID) (*window, error) {
	w := h.windows[id]
	if w == nil {
		return nil, fmt.Errorf("%w: %s", schema.ErrWindowNotFound, id)
	}
	return w, nil
}

// Contains reports whether id refers to a live node.
func (h *Hierarchy) Contains(id schema.NodeID) bool {
	return h.node(id) != nil
}

// Len returns the number of live nodes, floating ones included.
func (h *Hierarchy) Len() int {
	return len(h.slots) - len(h.free)
}

// NewWindow creates an empty window.
func (h *Hierarchy) NewWindow(placement schema.Placement) schema.WindowID {
	id := newWindowID()
	for h.windows[id] != nil {
		id = newWindowID()
	}
	h.windows[id] = &window{
		id:             id,
		placement:      placement,
		virtualDesktop: schema.NoVirtualDesktop,
	}
	h.order = append(h.order, id)
	logx.WithWindow(h.ctx, id).Debug("window created")
	return id
}

// CloseWindow closes every tab in the window, then the window itself.
func (h *Hierarchy) CloseWindow(id schema.WindowID) error {
	w, err := h.lookupWindow(id)
	if err != nil {
		return err
	}
	for _, tab := range slices.Clone(w.tabs) {
		if err := h.CloseTab(tab); err != nil {
			return err
		}
	}
	delete(h.windows, id)
	h.order = lo.Without(h.order, id)
	logx.WithWindow(h.ctx, id).Debug("window closed")
	return nil
}

// Windows returns window ids in creation order.
func (h *Hierarchy) Windows() []schema.WindowID {
	return slices.Clone(h.order)
}

// Placement returns the window geometry and virtual desktop hint.
func (h *Hierarchy) Placement(id schema.WindowID) (schema.Placement, int, error) {
	w, err := h.lookupWindow(id)
	if err != nil {
		return schema.Placement{}, schema.NoVirtualDesktop, err
	}
	return w.placement, w.virtualDesktop, nil
}

// SetPlacement replaces the window geometry and virtual desktop hint.
func (h *Hierarchy) SetPlacement(id schema.WindowID, placement schema.Placement, virtualDesktop int) error {
	w, err := h.lookupWindow(id)
	if err != nil {
		return err
	}
	w.placement = placement
	w.virtualDesktop = virtualDesktop
	return nil
}

// OpenTab inserts a restored tab showing view at pos in the window strip.
// A negative or out of range pos appends.
func (h *Hierarchy) OpenTab(win schema.WindowID, pos int, view View) (schema.NodeID, error) {
	if view == nil {
		return schema.NodeID{}, errNilView
	}
	w, err := h.lookupWindow(win)
	if err != nil {
		return schema.NodeID{}, err
	}
	nd := h.alloc()
	nd.mode = schema.ModeRestored
	nd.view = view
	h.insertIntoStrip(w, nd, pos)
	return nd.id, nil
}

// OpenUnloadedTab inserts a tab that holds only record until activated.
func (h *Hierarchy) OpenUnloadedTab(win schema.WindowID, pos int, record schema.TabRecord) (schema.NodeID, error) {
	if !record.IsValid() {
		return schema.NodeID{}, schema.ErrEmptySnapshot
	}
	w, err := h.lookupWindow(win)
	if err != nil {
		return schema.NodeID{}, err
	}
	nd := h.alloc()
	nd.mode = schema.ModeUnloaded
	nd.record = record.Clone()
	nd.pinned = record.IsPinned
	h.insertIntoStrip(w, nd, pos)
	return nd.id, nil
}

// CloseTab destroys a node. Its parent forgets it and its children become
// roots.
func (h *Hierarchy) CloseTab(id schema.NodeID) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	log := logx.WithWindowTab(h.ctx, nd.window, id)
	if parent := h.node(nd.parent); parent != nil {
		parent.children = lo.Without(parent.children, id)
		h.notify(func(o Observer) { o.OnChildRemoved(parent.id, id) })
	}
	nd.parent = schema.NodeID{}
	children := nd.children
	nd.children = nil
	for _, childID := range children {
		child := h.node(childID)
		if child == nil {
			continue
		}
		child.parent = schema.NodeID{}
		h.notify(func(o Observer) { o.OnParentChanged(childID, schema.NodeID{}) })
	}
	if nd.window != "" {
		h.removeFromStrip(nd)
	}
	h.loop.Cancel(activationKey(id))
	h.loop.Cancel(eagerRestoreKey(id))
	view := nd.view
	nd.view = nil
	h.release(id)
	if view != nil {
		if err := view.Close(); err != nil {
			log.Warn("tab view close failed", "err", err)
		}
	}
	log.Debug("tab closed")
	return nil
}

func (h *Hierarchy) insertIntoStrip(w *window, nd *node, pos int) {
	if pos < 0 || pos > len(w.tabs) {
		pos = len(w.tabs)
	}
	w.tabs = slices.Insert(w.tabs, pos, nd.id)
	nd.window = w.id
	h.notify(func(o Observer) { o.OnTabInserted(w.id, nd.id, pos) })
	if w.current.IsZero() {
		h.setCurrent(w, nd.id)
	}
}

func (h *Hierarchy) removeFromStrip(nd *node) {
	w := h.windows[nd.window]
	nd.window = ""
	if w == nil {
		return
	}
	idx := lo.IndexOf(w.tabs, nd.id)
	if idx < 0 {
		return
	}
	w.tabs = slices.Delete(w.tabs, idx, idx+1)
	h.notify(func(o Observer) { o.OnTabRemoved(w.id, nd.id, idx) })
	if w.current != nd.id {
		return
	}
	var next schema.NodeID
	switch {
	case len(w.tabs) == 0:
	case idx < len(w.tabs):
		next = w.tabs[idx]
	default:
		next = w.tabs[len(w.tabs)-1]
	}
	h.setCurrent(w, next)
	// The neighbour that takes over is activated like a selected tab, but
	// always on a later turn since the strip is still being edited.
	if nb := h.node(next); nb != nil && nb.mode == schema.ModeUnloaded {
		h.loop.Schedule(activationKey(next), ActivationDelay, func() {
			h.runDeferredRestore(next, "activation")
		})
	}
}

func (h *Hierarchy) setCurrent(w *window, id schema.NodeID) {
	if w.current == id {
		return
	}
	w.current = id
	h.notify(func(o Observer) { o.OnCurrentChanged(w.id, id) })
}

// AddChild links child under parent at pos in its child list. A negative
// pos appends; a zero parent is a no-op. The child leaves its old parent.
func (h *Hierarchy) AddChild(parent, child schema.NodeID, pos int) error {
	if parent.IsZero() {
		return nil
	}
	if parent == child {
		return schema.ErrSelfParent
	}
	p, err := h.lookup(parent)
	if err != nil {
		return err
	}
	c, err := h.lookup(child)
	if err != nil {
		return err
	}
	for cur := p.parent; !cur.IsZero(); {
		if cur == child {
			return fmt.Errorf("%w: %s is an ancestor of %s", schema.ErrCycle, child, parent)
		}
		ancestor := h.node(cur)
		if ancestor == nil {
			break
		}
		cur = ancestor.parent
	}
	if old := h.node(c.parent); old != nil {
		old.children = lo.Without(old.children, child)
		h.notify(func(o Observer) { o.OnChildRemoved(old.id, child) })
	}
	if pos < 0 || pos > len(p.children) {
		pos = len(p.children)
	}
	p.children = slices.Insert(p.children, pos, child)
	c.parent = parent
	h.notify(func(o Observer) {
		o.OnChildAdded(parent, child, pos)
		o.OnParentChanged(child, parent)
	})
	return nil
}

// SetParent makes parent the parent of child, appending it to the child
// list. A zero parent removes the current parent.
func (h *Hierarchy) SetParent(child, parent schema.NodeID) error {
	if parent.IsZero() {
		return h.RemoveParent(child)
	}
	c, err := h.lookup(child)
	if err != nil {
		return err
	}
	if c.parent == parent {
		return nil
	}
	return h.AddChild(parent, child, -1)
}

// RemoveParent makes id a root. It is a no-op for roots.
func (h *Hierarchy) RemoveParent(id schema.NodeID) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	parent := h.node(nd.parent)
	nd.parent = schema.NodeID{}
	if parent == nil {
		return nil
	}
	parent.children = lo.Without(parent.children, id)
	h.notify(func(o Observer) {
		o.OnChildRemoved(parent.id, id)
		o.OnParentChanged(id, schema.NodeID{})
	})
	return nil
}

// Detach removes id from the tree. Its children take its place in the
// parent's child list, in order, or become roots when id has no parent.
func (h *Hierarchy) Detach(id schema.NodeID) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	children := nd.children
	nd.children = nil
	parent := h.node(nd.parent)
	nd.parent = schema.NodeID{}
	if parent == nil {
		for _, childID := range children {
			child := h.node(childID)
			if child == nil {
				continue
			}
			child.parent = schema.NodeID{}
			h.notify(func(o Observer) {
				o.OnChildRemoved(id, childID)
				o.OnParentChanged(childID, schema.NodeID{})
			})
		}
		return nil
	}
	idx := lo.IndexOf(parent.children, id)
	if idx < 0 {
		idx = len(parent.children)
	} else {
		parent.children = slices.Delete(parent.children, idx, idx+1)
	}
	parent.children = slices.Insert(parent.children, idx, children...)
	h.notify(func(o Observer) {
		o.OnChildRemoved(parent.id, id)
		o.OnParentChanged(id, schema.NodeID{})
	})
	for i, childID := range children {
		child := h.node(childID)
		if child == nil {
			continue
		}
		child.parent = parent.id
		index := idx + i
		h.notify(func(o Observer) {
			o.OnChildRemoved(id, childID)
			o.OnChildAdded(parent.id, childID, index)
			o.OnParentChanged(childID, parent.id)
		})
	}
	return nil
}

// DetachFromWindow takes id out of its window strip. Parent and child links
// are kept; the node floats until AttachToWindow.
func (h *Hierarchy) DetachFromWindow(id schema.NodeID) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	if nd.window == "" {
		return schema.ErrNotAttached
	}
	h.removeFromStrip(nd)
	return nil
}

// AttachToWindow inserts a floating node into win at pos.
func (h *Hierarchy) AttachToWindow(id schema.NodeID, win schema.WindowID, pos int) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	if nd.window != "" {
		return schema.ErrAlreadyAttached
	}
	w, err := h.lookupWindow(win)
	if err != nil {
		return err
	}
	h.insertIntoStrip(w, nd, pos)
	return nil
}

// MoveToWindow moves id into win at pos, keeping its links.
func (h *Hierarchy) MoveToWindow(id schema.NodeID, win schema.WindowID, pos int) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	w, err := h.lookupWindow(win)
	if err != nil {
		return err
	}
	if nd.window != "" {
		h.removeFromStrip(nd)
	}
	h.insertIntoStrip(w, nd, pos)
	return nil
}

// MoveTab reorders id within its strip.
func (h *Hierarchy) MoveTab(id schema.NodeID, pos int) error {
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	w := h.windows[nd.window]
	if w == nil {
		return schema.ErrNotAttached
	}
	from := lo.IndexOf(w.tabs, id)
	if pos < 0 || pos >= len(w.tabs) {
		pos = len(w.tabs) - 1
	}
	if from == pos {
		return nil
	}
	w.tabs = slices.Delete(w.tabs, from, from+1)
	w.tabs = slices.Insert(w.tabs, pos, id)
	h.notify(func(o Observer) {
		o.OnTabRemoved(w.id, id, from)
		o.OnTabInserted(w.id, id, pos)
	})
	return nil
}

// Parent returns the parent of id, or the zero handle for roots.
func (h *Hierarchy) Parent(id schema.NodeID) (schema.NodeID, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return schema.NodeID{}, err
	}
	return nd.parent, nil
}

// Children returns the ordered children of id.
func (h *Hierarchy) Children(id schema.NodeID) ([]schema.NodeID, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(nd.children), nil
}

// Window returns the window holding id, or "" when it floats.
func (h *Hierarchy) Window(id schema.NodeID) (schema.WindowID, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return "", err
	}
	return nd.window, nil
}

// Tabs returns the strip order of win.
func (h *Hierarchy) Tabs(win schema.WindowID) ([]schema.NodeID, error) {
	w, err := h.lookupWindow(win)
	if err != nil {
		return nil, err
	}
	return slices.Clone(w.tabs), nil
}

// IndexOf returns the window and strip position of id.
func (h *Hierarchy) IndexOf(id schema.NodeID) (schema.WindowID, int, error) {
	nd, err := h.lookup(id)
	if err != nil {
		return "", -1, err
	}
	w := h.windows[nd.window]
	if w == nil {
		return "", -1, schema.ErrNotAttached
	}
	return w.id, lo.IndexOf(w.tabs, id), nil
}

// ChildInsertPosition returns the strip position after the last tab of
// parent's subtree that shares its window, where a new child tab belongs.
func (h *Hierarchy) ChildInsertPosition(parent schema.NodeID) (int, error) {
	win, pos, err := h.IndexOf(parent)
	if err != nil {
		return -1, err
	}
	w := h.windows[win]
	for i := pos + 1; i < len(w.tabs); i++ {
		if !h.isDescendant(w.tabs[i], parent) {
			break
		}
		pos = i
	}
	return pos + 1, nil
}

func (h *Hierarchy) isDescendant(id, ancestor schema.NodeID) bool {
	nd := h.node(id)
	for nd != nil && !nd.parent.IsZero() {
		if nd.parent == ancestor {
			return true
		}
		nd = h.node(nd.parent)
	}
	return false
}

// CurrentTab returns the current tab of win, or the zero handle when empty.
func (h *Hierarchy) CurrentTab(win schema.WindowID) (schema.NodeID, error) {
	w, err := h.lookupWindow(win)
	if err != nil {
		return schema.NodeID{}, err
	}
	return w.current, nil
}

// SetCurrentTab makes id the current tab of win and activates it when it
// is unloaded.
func (h *Hierarchy) SetCurrentTab(ctx context.Context, win schema.WindowID, id schema.NodeID) error {
	w, err := h.lookupWindow(win)
	if err != nil {
		return err
	}
	nd, err := h.lookup(id)
	if err != nil {
		return err
	}
	if nd.window != win {
		return fmt.Errorf("%w: %s is not in window %s", schema.ErrNotAttached, id, win)
	}
	h.setCurrent(w, id)
	if nd.mode == schema.ModeRestored {
		return nil
	}
	return h.Activate(ctx, id)
}
